package memory

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/store"
	"salonpos/backend/internal/xid"
)

var _ store.Repository = (*Store)(nil)

type Store struct {
	mu                 sync.RWMutex
	sessionsByID       map[string]domain.CashSession
	openSessionByLoc   map[string]string
	movementsBySession map[string][]domain.CashMovement
	servicesByID       map[string]domain.Service
	paymentMethodsByID map[string]domain.PaymentMethod
	overrides          map[string]domain.CommissionOverride
	ordersByID         map[string]*domain.Order
	itemOrder          map[string]string
	revenueByOrder     map[string]domain.RevenueRecord
	recurringByID      map[string]domain.RecurringExpenseConfig
	installmentsByKey  map[string]domain.ExpenseInstallment
	batchRunsByID      map[string]domain.BatchRun
	activeRunByJobDate map[string]string
	auditLogs          []domain.AuditLog
}

// New returns an empty store.
func New() *Store {
	return &Store{
		sessionsByID:       make(map[string]domain.CashSession),
		openSessionByLoc:   make(map[string]string),
		movementsBySession: make(map[string][]domain.CashMovement),
		servicesByID:       make(map[string]domain.Service),
		paymentMethodsByID: make(map[string]domain.PaymentMethod),
		overrides:          make(map[string]domain.CommissionOverride),
		ordersByID:         make(map[string]*domain.Order),
		itemOrder:          make(map[string]string),
		revenueByOrder:     make(map[string]domain.RevenueRecord),
		recurringByID:      make(map[string]domain.RecurringExpenseConfig),
		installmentsByKey:  make(map[string]domain.ExpenseInstallment),
		batchRunsByID:      make(map[string]domain.BatchRun),
		activeRunByJobDate: make(map[string]string),
		auditLogs:          make([]domain.AuditLog, 0, 128),
	}
}

// NewSeeded returns a store preloaded with a small salon catalog for dev/demo mode.
func NewSeeded() *Store {
	s := New()
	for _, svc := range []domain.Service{
		{ID: "svc-haircut", Name: "Haircut", Price: decimal.RequireFromString("50.00"), CommissionPercent: decimal.NewFromInt(30), Active: true},
		{ID: "svc-coloring", Name: "Coloring", Price: decimal.RequireFromString("120.00"), CommissionPercent: decimal.NewFromInt(35), Active: true},
		{ID: "svc-manicure", Name: "Manicure", Price: decimal.RequireFromString("30.00"), CommissionPercent: decimal.NewFromInt(40), Active: true},
		{ID: "svc-beard", Name: "Beard trim", Price: decimal.RequireFromString("25.50"), CommissionPercent: decimal.NewFromInt(30), Active: true},
		{ID: "svc-perm", Name: "Permanent wave", Price: decimal.RequireFromString("180.00"), CommissionPercent: decimal.NewFromInt(25), Active: false},
	} {
		s.servicesByID[svc.ID] = svc
	}
	for _, pm := range []domain.PaymentMethod{
		{ID: "pm-cash", Name: "Cash", AffectsCash: true, Active: true},
		{ID: "pm-card", Name: "Card", AffectsCash: false, Active: true},
		{ID: "pm-pix", Name: "Instant transfer", AffectsCash: false, Active: true},
		{ID: "pm-voucher", Name: "Voucher", AffectsCash: false, Active: false},
	} {
		s.paymentMethodsByID[pm.ID] = pm
	}
	override := domain.CommissionOverride{
		ProfessionalID: "prof-ana",
		ServiceID:      "svc-haircut",
		Percent:        decimal.NewFromInt(40),
		UpdatedAt:      time.Now().UTC(),
	}
	s.overrides[overrideKey(override.ProfessionalID, override.ServiceID)] = override
	return s
}

// PutService inserts or replaces a catalog service. The catalog is managed
// outside the commerce core; this exists for seeding and tests.
func (s *Store) PutService(svc domain.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.servicesByID[svc.ID] = svc
}

// PutPaymentMethod inserts or replaces a payment method.
func (s *Store) PutPaymentMethod(pm domain.PaymentMethod) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paymentMethodsByID[pm.ID] = pm
}

func (s *Store) CreateCashSession(_ context.Context, session domain.CashSession) (*domain.CashSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.openSessionByLoc[session.LocationID]; exists {
		return nil, store.ErrDuplicate
	}
	if session.ID == "" {
		session.ID = xid.New("cash")
	}
	if session.OpenedAt.IsZero() {
		session.OpenedAt = time.Now().UTC()
	}
	session.Status = domain.CashSessionOpen
	session.ClosedAt = nil

	s.sessionsByID[session.ID] = session
	s.openSessionByLoc[session.LocationID] = session.ID
	copySession := session
	return &copySession, nil
}

func (s *Store) GetCashSession(_ context.Context, id string) (*domain.CashSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessionsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &session, nil
}

func (s *Store) GetOpenCashSession(_ context.Context, locationID string) (*domain.CashSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.openSessionByLoc[locationID]
	if !ok {
		return nil, store.ErrNotFound
	}
	session, ok := s.sessionsByID[id]
	if !ok || !session.IsOpen() {
		return nil, store.ErrNotFound
	}
	return &session, nil
}

// CloseCashSession writes the closing fields only if the session is still OPEN
// and none of its orders is.
func (s *Store) CloseCashSession(_ context.Context, params store.CloseCashSessionParams) (*domain.CashSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sessionsByID[params.SessionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !current.IsOpen() {
		return nil, store.ErrStaleState
	}
	for _, order := range s.ordersByID {
		if order.CashSessionID == current.ID && order.IsOpen() {
			return nil, store.ErrOpenOrders
		}
	}

	expected := domain.ExpectedCash(current, s.movementsBySession[current.ID])
	if params.Verify != nil {
		if err := params.Verify(expected); err != nil {
			return nil, err
		}
	}
	closedAt := params.ClosedAt
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}
	counted := params.CountedBalance.Round(2)
	difference := counted.Sub(expected)
	current.Status = domain.CashSessionClosed
	current.ClosingBalance = &counted
	current.ExpectedBalance = &expected
	current.Difference = &difference
	current.ClosingNotes = params.Notes
	current.ClosedBy = params.ClosedBy
	current.ClosedAt = &closedAt

	s.sessionsByID[current.ID] = current
	delete(s.openSessionByLoc, current.LocationID)
	copySession := current
	return &copySession, nil
}

func (s *Store) CreateCashMovement(_ context.Context, movement domain.CashMovement) (*domain.CashMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessionsByID[movement.SessionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !session.IsOpen() {
		return nil, store.ErrStaleState
	}
	movement = s.appendMovementLocked(movement)
	return &movement, nil
}

func (s *Store) appendMovementLocked(movement domain.CashMovement) domain.CashMovement {
	if movement.ID == "" {
		movement.ID = xid.New("mov")
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}
	s.movementsBySession[movement.SessionID] = append(s.movementsBySession[movement.SessionID], movement)
	return movement
}

func (s *Store) ListCashMovements(_ context.Context, sessionID string) ([]domain.CashMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.movementsBySession[sessionID]), nil
}

func (s *Store) ListServices(_ context.Context) ([]domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Service, 0, len(s.servicesByID))
	for _, svc := range s.servicesByID {
		result = append(result, svc)
	}
	slices.SortFunc(result, func(a, b domain.Service) int {
		return strings.Compare(a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) GetService(_ context.Context, id string) (*domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	svc, ok := s.servicesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &svc, nil
}

func (s *Store) GetPaymentMethod(_ context.Context, id string) (*domain.PaymentMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pm, ok := s.paymentMethodsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &pm, nil
}

func (s *Store) GetCommissionOverride(_ context.Context, professionalID string, serviceID string) (*domain.CommissionOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	override, ok := s.overrides[overrideKey(professionalID, serviceID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &override, nil
}

func (s *Store) UpsertCommissionOverride(_ context.Context, override domain.CommissionOverride) (*domain.CommissionOverride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if override.UpdatedAt.IsZero() {
		override.UpdatedAt = time.Now().UTC()
	}
	s.overrides[overrideKey(override.ProfessionalID, override.ServiceID)] = override
	return &override, nil
}

func (s *Store) DeleteCommissionOverride(_ context.Context, professionalID string, serviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := overrideKey(professionalID, serviceID)
	if _, ok := s.overrides[key]; !ok {
		return store.ErrNotFound
	}
	delete(s.overrides, key)
	return nil
}

// CreateOrder attaches the order to its cash session, which must be OPEN.
func (s *Store) CreateOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessionsByID[order.CashSessionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !session.IsOpen() {
		return nil, store.ErrStaleState
	}
	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	order.LocationID = session.LocationID
	order.Status = domain.OrderOpen
	order.TotalAmount = decimal.Zero
	order.CommissionTotal = decimal.Zero
	order.Items = []domain.OrderItem{}

	s.ordersByID[order.ID] = &order
	return cloneOrder(&order), nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.ordersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneOrder(order), nil
}

func (s *Store) ListOrders(_ context.Context, filter store.OrderFilter) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0, 32)
	for _, order := range s.ordersByID {
		if filter.LocationID != "" && order.LocationID != filter.LocationID {
			continue
		}
		if filter.CashSessionID != "" && order.CashSessionID != filter.CashSessionID {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		result = append(result, *cloneOrder(order))
	}
	slices.SortFunc(result, func(a, b domain.Order) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) GetOrderItem(_ context.Context, itemID string) (*domain.OrderItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orderID, ok := s.itemOrder[itemID]
	if !ok {
		return nil, store.ErrNotFound
	}
	for _, item := range s.ordersByID[orderID].Items {
		if item.ID == itemID {
			copyItem := item
			return &copyItem, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) AddOrderItem(_ context.Context, item domain.OrderItem) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, err := s.openOrderLocked(item.OrderID)
	if err != nil {
		return nil, err
	}
	if item.ID == "" {
		item.ID = xid.New("item")
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	order.Items = append(order.Items, item)
	s.itemOrder[item.ID] = order.ID
	recomputeTotals(order)
	return cloneOrder(order), nil
}

// UpdateOrderItem replaces quantity and the price/commission snapshot of an
// existing line.
func (s *Store) UpdateOrderItem(_ context.Context, item domain.OrderItem) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	orderID, ok := s.itemOrder[item.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	order, err := s.openOrderLocked(orderID)
	if err != nil {
		return nil, err
	}
	for i := range order.Items {
		if order.Items[i].ID != item.ID {
			continue
		}
		order.Items[i].Quantity = item.Quantity
		order.Items[i].UnitPrice = item.UnitPrice
		order.Items[i].CommissionPercent = item.CommissionPercent
		order.Items[i].CommissionValue = item.CommissionValue
		recomputeTotals(order)
		return cloneOrder(order), nil
	}
	return nil, store.ErrNotFound
}

func (s *Store) RemoveOrderItem(_ context.Context, itemID string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	orderID, ok := s.itemOrder[itemID]
	if !ok {
		return nil, store.ErrNotFound
	}
	order, err := s.openOrderLocked(orderID)
	if err != nil {
		return nil, err
	}
	order.Items = slices.DeleteFunc(order.Items, func(item domain.OrderItem) bool {
		return item.ID == itemID
	})
	delete(s.itemOrder, itemID)
	recomputeTotals(order)
	return cloneOrder(order), nil
}

// CloseOrder marks the order CLOSED with a PENDING revenue status and, when the
// payment method affects cash, records the SALE movement in the same step.
func (s *Store) CloseOrder(_ context.Context, params store.CloseOrderParams) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, err := s.openOrderLocked(params.OrderID)
	if err != nil {
		return nil, err
	}
	if len(order.Items) == 0 {
		return nil, store.ErrEmptyOrder
	}
	session, ok := s.sessionsByID[order.CashSessionID]
	if !ok || !session.IsOpen() {
		return nil, store.ErrStaleState
	}
	closedAt := params.ClosedAt
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}
	recomputeTotals(order)
	order.Status = domain.OrderClosed
	order.PaymentMethodID = params.PaymentMethodID
	order.AccountID = params.AccountID
	order.RevenueStatus = domain.RevenuePending
	order.ClosedAt = &closedAt

	s.appendMovementLocked(domain.CashMovement{
		SessionID:       session.ID,
		Kind:            domain.MovementSale,
		OrderID:         order.ID,
		PaymentMethodID: params.PaymentMethodID,
		Amount:          order.TotalAmount,
		AffectsCash:     params.AffectsCash,
		Description:     "order " + order.ID,
		CreatedAt:       closedAt,
	})
	return cloneOrder(order), nil
}

func (s *Store) CancelOrder(_ context.Context, orderID string, reason string, at time.Time) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, err := s.openOrderLocked(orderID)
	if err != nil {
		return nil, err
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	order.Status = domain.OrderCanceled
	order.CancelReason = reason
	order.ClosedAt = &at
	return cloneOrder(order), nil
}

func (s *Store) UpdateOrderRevenue(_ context.Context, orderID string, status string, ref string, errText string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.ordersByID[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if order.Status != domain.OrderClosed {
		return nil, store.ErrStaleState
	}
	order.RevenueStatus = status
	order.RevenueRef = ref
	order.RevenueError = errText
	return cloneOrder(order), nil
}

// CreateRevenueRecord is keyed by order: a second record for the same order
// returns the first one alongside ErrDuplicate.
func (s *Store) CreateRevenueRecord(_ context.Context, record domain.RevenueRecord) (*domain.RevenueRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.revenueByOrder[record.OrderID]; ok {
		return &existing, store.ErrDuplicate
	}
	if record.ID == "" {
		record.ID = xid.New("rev")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	s.revenueByOrder[record.OrderID] = record
	return &record, nil
}

func (s *Store) CreateRecurringConfig(_ context.Context, cfg domain.RecurringExpenseConfig) (*domain.RecurringExpenseConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.ID == "" {
		cfg.ID = xid.New("rec")
	}
	now := time.Now().UTC()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = cfg.CreatedAt
	if _, exists := s.recurringByID[cfg.ID]; exists {
		return nil, store.ErrDuplicate
	}
	s.recurringByID[cfg.ID] = cfg
	return &cfg, nil
}

func (s *Store) GetRecurringConfig(_ context.Context, id string) (*domain.RecurringExpenseConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.recurringByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &cfg, nil
}

// ListDueRecurringConfigs returns active configs that still have installments
// left to generate. Due-date filtering is the caller's job.
func (s *Store) ListDueRecurringConfigs(_ context.Context) ([]domain.RecurringExpenseConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.RecurringExpenseConfig, 0, len(s.recurringByID))
	for _, cfg := range s.recurringByID {
		if cfg.Status != domain.RecurringActive || cfg.Exhausted() {
			continue
		}
		result = append(result, cfg)
	}
	slices.SortFunc(result, func(a, b domain.RecurringExpenseConfig) int {
		return strings.Compare(a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) SetRecurringConfigStatus(_ context.Context, id string, status string) (*domain.RecurringExpenseConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.recurringByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cfg.Status = status
	cfg.UpdatedAt = time.Now().UTC()
	s.recurringByID[id] = cfg
	return &cfg, nil
}

// IncrementInstallmentsGenerated bumps the counter only if it still equals expected.
func (s *Store) IncrementInstallmentsGenerated(_ context.Context, id string, expected int) (*domain.RecurringExpenseConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.recurringByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if cfg.InstallmentsGenerated != expected || cfg.Exhausted() {
		return nil, store.ErrStaleState
	}
	cfg.InstallmentsGenerated++
	cfg.UpdatedAt = time.Now().UTC()
	s.recurringByID[id] = cfg
	return &cfg, nil
}

func (s *Store) CreateInstallment(_ context.Context, inst domain.ExpenseInstallment) (*domain.ExpenseInstallment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.recurringByID[inst.ConfigID]; !ok {
		return nil, store.ErrNotFound
	}
	key := installmentKey(inst.ConfigID, inst.InstallmentNumber)
	if existing, ok := s.installmentsByKey[key]; ok {
		return &existing, store.ErrDuplicate
	}
	if inst.ID == "" {
		inst.ID = xid.New("inst")
	}
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = time.Now().UTC()
	}
	s.installmentsByKey[key] = inst
	return &inst, nil
}

func (s *Store) GetInstallment(_ context.Context, configID string, number int) (*domain.ExpenseInstallment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.installmentsByKey[installmentKey(configID, number)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &inst, nil
}

func (s *Store) ListInstallments(_ context.Context, configID string) ([]domain.ExpenseInstallment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ExpenseInstallment, 0, 12)
	for _, inst := range s.installmentsByKey {
		if inst.ConfigID == configID {
			result = append(result, inst)
		}
	}
	slices.SortFunc(result, func(a, b domain.ExpenseInstallment) int {
		return a.InstallmentNumber - b.InstallmentNumber
	})
	return result, nil
}

// CreateBatchRun reserves (job type, run date). While a RUNNING or SUCCESS run
// holds the slot, the holder is returned alongside ErrDuplicate.
func (s *Store) CreateBatchRun(_ context.Context, run domain.BatchRun) (*domain.BatchRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := runKey(run.JobType, run.RunDate)
	if holderID, ok := s.activeRunByJobDate[key]; ok {
		holder := s.batchRunsByID[holderID]
		return &holder, store.ErrDuplicate
	}
	if run.ID == "" {
		run.ID = xid.New("run")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	run.RunDate = domain.DateOf(run.RunDate, time.UTC)
	run.Status = domain.RunRunning
	run.FinishedAt = nil

	s.batchRunsByID[run.ID] = run
	s.activeRunByJobDate[key] = run.ID
	return &run, nil
}

func (s *Store) GetActiveBatchRun(_ context.Context, jobType string, runDate time.Time) (*domain.BatchRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.activeRunByJobDate[runKey(jobType, runDate)]
	if !ok {
		return nil, store.ErrNotFound
	}
	run := s.batchRunsByID[id]
	return &run, nil
}

// FinalizeBatchRun moves a RUNNING run to its terminal status. SUCCESS keeps
// the day's slot; PARTIAL and FAILED release it.
func (s *Store) FinalizeBatchRun(_ context.Context, id string, status string, summary string, finishedAt time.Time) (*domain.BatchRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.batchRunsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if run.Status != domain.RunRunning {
		return nil, store.ErrStaleState
	}
	run.Status = status
	run.Summary = summary
	run.FinishedAt = &finishedAt
	s.batchRunsByID[id] = run

	key := runKey(run.JobType, run.RunDate)
	if status != domain.RunSuccess && s.activeRunByJobDate[key] == id {
		delete(s.activeRunByJobDate, key)
	}
	return &run, nil
}

func (s *Store) ListBatchRuns(_ context.Context, jobType string, limit int) ([]domain.BatchRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.BatchRun, 0, len(s.batchRunsByID))
	for _, run := range s.batchRunsByID {
		if jobType != "" && run.JobType != jobType {
			continue
		}
		result = append(result, run)
	}
	slices.SortFunc(result, func(a, b domain.BatchRun) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, locationID string, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if locationID != "" && entry.LocationID != locationID {
			continue
		}
		result = append(result, entry)
	}
	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) openOrderLocked(orderID string) (*domain.Order, error) {
	order, ok := s.ordersByID[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !order.IsOpen() {
		return nil, store.ErrStaleState
	}
	return order, nil
}

func recomputeTotals(order *domain.Order) {
	order.TotalAmount, order.CommissionTotal = domain.SumItems(order.Items)
}

func overrideKey(professionalID string, serviceID string) string {
	return professionalID + "::" + serviceID
}

func installmentKey(configID string, number int) string {
	return configID + "::" + strconv.Itoa(number)
}

func runKey(jobType string, runDate time.Time) string {
	return jobType + "::" + domain.DateOf(runDate, time.UTC).Format(time.DateOnly)
}

func cloneOrder(src *domain.Order) *domain.Order {
	if src == nil {
		return nil
	}
	dup := *src
	dup.Items = slices.Clone(src.Items)
	if dup.Items == nil {
		dup.Items = []domain.OrderItem{}
	}
	return &dup
}
