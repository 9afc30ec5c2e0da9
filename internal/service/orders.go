package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/revenue"
	"salonpos/backend/internal/store"
	"salonpos/backend/internal/validate"
	"salonpos/backend/internal/xid"
)

type CreateOrderRequest struct {
	LocationID     string `json:"location_id"`
	ClientID       string `json:"client_id" validate:"required"`
	ProfessionalID string `json:"professional_id" validate:"required"`
}

type AddItemRequest struct {
	ServiceID      string `json:"service_id" validate:"required"`
	ProfessionalID string `json:"professional_id"`
	// Quantity defaults to 1 when omitted.
	Quantity *int `json:"quantity"`
}

type UpdateItemRequest struct {
	Quantity          *int             `json:"quantity"`
	UnitPrice         *decimal.Decimal `json:"unit_price"`
	CommissionPercent *decimal.Decimal `json:"commission_percent"`
}

type CloseOrderRequest struct {
	PaymentMethodID string `json:"payment_method_id"`
	AccountID       string `json:"account_id"`
}

type CloseOutcomeKind string

const (
	OutcomeClosed                 CloseOutcomeKind = "CLOSED"
	OutcomeClosedWithRevenueError CloseOutcomeKind = "CLOSED_WITH_REVENUE_ERROR"
)

// CloseOutcome is the result of a successful close. The order is CLOSED in
// both kinds; RevenueErr is set only for OutcomeClosedWithRevenueError.
type CloseOutcome struct {
	Kind       CloseOutcomeKind
	Order      domain.Order
	RevenueRef string
	RevenueErr error
}

func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (domain.Order, error) {
	req.LocationID = strings.TrimSpace(req.LocationID)
	if req.LocationID == "" {
		req.LocationID = s.defaultLocationID
	}
	req.ClientID = strings.TrimSpace(req.ClientID)
	req.ProfessionalID = strings.TrimSpace(req.ProfessionalID)
	if err := validate.Struct(req); err != nil {
		return domain.Order{}, err
	}

	session, err := s.repo.GetOpenCashSession(ctx, req.LocationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Order{}, fmt.Errorf("%w: no open cash session for location %s", domain.ErrPrecondition, req.LocationID)
		}
		return domain.Order{}, err
	}

	saved, err := s.repo.CreateOrder(ctx, domain.Order{
		LocationID:     req.LocationID,
		ClientID:       req.ClientID,
		ProfessionalID: req.ProfessionalID,
		CashSessionID:  session.ID,
		CreatedAt:      s.now(),
	})
	if err != nil {
		// the session was closed between the lookup and the insert
		if errors.Is(err, store.ErrStaleState) || errors.Is(err, store.ErrNotFound) {
			return domain.Order{}, fmt.Errorf("%w: no open cash session for location %s", domain.ErrPrecondition, req.LocationID)
		}
		return domain.Order{}, err
	}

	s.logAudit(ctx, saved.LocationID, "order_create", "order", saved.ID, "client="+saved.ClientID)
	return *saved, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, notFound(err, "order %s", id)
	}
	return *order, nil
}

func (s *Service) ListOrders(ctx context.Context, filter store.OrderFilter) ([]domain.Order, error) {
	filter.Status = strings.ToUpper(strings.TrimSpace(filter.Status))
	switch filter.Status {
	case "", domain.OrderOpen, domain.OrderClosed, domain.OrderCanceled:
	default:
		return nil, fmt.Errorf("%w: unknown order status %q", domain.ErrValidation, filter.Status)
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	return s.repo.ListOrders(ctx, filter)
}

// AddedItem is the line created by AddItem and the order it now belongs to.
type AddedItem struct {
	Item  domain.OrderItem `json:"item"`
	Order domain.Order     `json:"order"`
}

// AddItem appends a service line priced from the catalog at this moment. The
// commission percent is resolved for the line's professional, falling back to
// the order's primary professional.
func (s *Service) AddItem(ctx context.Context, orderID string, req AddItemRequest) (AddedItem, error) {
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	if quantity < 1 {
		return AddedItem{}, fmt.Errorf("%w: quantity must be at least 1", domain.ErrValidation)
	}
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	if err := validate.Struct(req); err != nil {
		return AddedItem{}, err
	}

	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return AddedItem{}, err
	}
	if !order.IsOpen() {
		return AddedItem{}, orderNotOpen(order)
	}

	svc, err := s.repo.GetService(ctx, req.ServiceID)
	if err != nil {
		return AddedItem{}, notFound(err, "service %s", req.ServiceID)
	}
	if !svc.Active {
		return AddedItem{}, fmt.Errorf("%w: service %s is inactive", domain.ErrNotFound, svc.ID)
	}

	professionalID := strings.TrimSpace(req.ProfessionalID)
	if professionalID == "" {
		professionalID = order.ProfessionalID
	}
	percent, err := s.commissions.Resolve(ctx, professionalID, svc.ID, svc.CommissionPercent)
	if err != nil {
		return AddedItem{}, err
	}

	item := domain.OrderItem{
		ID:                xid.New("item"),
		OrderID:           order.ID,
		ServiceID:         svc.ID,
		ProfessionalID:    professionalID,
		Quantity:          quantity,
		UnitPrice:         svc.Price,
		CommissionPercent: percent,
		CommissionValue:   domain.CommissionFor(svc.Price, quantity, percent),
		CreatedAt:         s.now(),
	}
	updated, err := s.repo.AddOrderItem(ctx, item)
	if err != nil {
		return AddedItem{}, s.orderWriteError(ctx, err, order.ID)
	}
	for _, saved := range updated.Items {
		if saved.ID == item.ID {
			item = saved
			break
		}
	}
	return AddedItem{Item: item, Order: *updated}, nil
}

func (s *Service) UpdateItem(ctx context.Context, orderID string, itemID string, req UpdateItemRequest) (domain.Order, error) {
	item, err := s.itemOfOrder(ctx, orderID, itemID)
	if err != nil {
		return domain.Order{}, err
	}

	if req.Quantity != nil {
		if *req.Quantity < 1 {
			return domain.Order{}, fmt.Errorf("%w: quantity must be at least 1", domain.ErrValidation)
		}
		item.Quantity = *req.Quantity
	}
	if req.UnitPrice != nil {
		if req.UnitPrice.IsNegative() {
			return domain.Order{}, fmt.Errorf("%w: unit_price must not be negative", domain.ErrValidation)
		}
		item.UnitPrice = req.UnitPrice.Round(2)
	}
	if req.CommissionPercent != nil {
		p := *req.CommissionPercent
		if p.IsNegative() || p.GreaterThan(decimal.NewFromInt(100)) {
			return domain.Order{}, fmt.Errorf("%w: commission_percent must be between 0 and 100", domain.ErrValidation)
		}
		item.CommissionPercent = p.Round(2)
	}
	item.CommissionValue = domain.CommissionFor(item.UnitPrice, item.Quantity, item.CommissionPercent)

	updated, err := s.repo.UpdateOrderItem(ctx, item)
	if err != nil {
		return domain.Order{}, s.orderWriteError(ctx, err, orderID)
	}
	return *updated, nil
}

func (s *Service) RemoveItem(ctx context.Context, orderID string, itemID string) (domain.Order, error) {
	if _, err := s.itemOfOrder(ctx, orderID, itemID); err != nil {
		return domain.Order{}, err
	}
	updated, err := s.repo.RemoveOrderItem(ctx, itemID)
	if err != nil {
		return domain.Order{}, s.orderWriteError(ctx, err, orderID)
	}
	return *updated, nil
}

// CloseOrder closes the order and records its SALE movement in one store
// operation, then posts revenue. A failed posting leaves the order CLOSED
// and is reported as OutcomeClosedWithRevenueError, not as an error.
func (s *Service) CloseOrder(ctx context.Context, orderID string, req CloseOrderRequest) (CloseOutcome, error) {
	methodID := strings.TrimSpace(req.PaymentMethodID)
	if methodID == "" {
		return CloseOutcome{}, fmt.Errorf("%w: payment_method_id is required", domain.ErrValidation)
	}
	method, err := s.repo.GetPaymentMethod(ctx, methodID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return CloseOutcome{}, fmt.Errorf("%w: unknown payment method %s", domain.ErrValidation, methodID)
		}
		return CloseOutcome{}, err
	}
	if !method.Active {
		return CloseOutcome{}, fmt.Errorf("%w: payment method %s is inactive", domain.ErrValidation, methodID)
	}

	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return CloseOutcome{}, err
	}
	if !order.IsOpen() {
		return CloseOutcome{}, orderNotOpen(order)
	}
	if len(order.Items) == 0 {
		return CloseOutcome{}, fmt.Errorf("%w: order %s has no items", domain.ErrValidation, order.ID)
	}

	closed, err := s.repo.CloseOrder(ctx, store.CloseOrderParams{
		OrderID:         order.ID,
		PaymentMethodID: method.ID,
		AccountID:       strings.TrimSpace(req.AccountID),
		AffectsCash:     method.AffectsCash,
		ClosedAt:        s.now(),
	})
	if err != nil {
		if errors.Is(err, store.ErrEmptyOrder) {
			return CloseOutcome{}, fmt.Errorf("%w: order %s has no items", domain.ErrValidation, order.ID)
		}
		return CloseOutcome{}, s.orderWriteError(ctx, err, order.ID)
	}

	s.logAudit(ctx, closed.LocationID, "order_close", "order", closed.ID,
		fmt.Sprintf("total=%s,method=%s", closed.TotalAmount.StringFixed(2), method.ID))
	return s.postRevenue(ctx, *closed), nil
}

// RetryRevenuePosting posts revenue again for a CLOSED order whose earlier
// posting failed or never completed.
func (s *Service) RetryRevenuePosting(ctx context.Context, orderID string) (CloseOutcome, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return CloseOutcome{}, err
	}
	if order.Status != domain.OrderClosed {
		return CloseOutcome{}, fmt.Errorf("%w: order %s is %s", domain.ErrState, order.ID, order.Status)
	}
	if order.RevenueStatus == domain.RevenuePosted {
		return CloseOutcome{}, fmt.Errorf("%w: revenue for order %s is already posted", domain.ErrState, order.ID)
	}
	return s.postRevenue(ctx, order), nil
}

func (s *Service) postRevenue(ctx context.Context, order domain.Order) CloseOutcome {
	log := s.logger.WithFields(logrus.Fields{"order_id": order.ID, "location_id": order.LocationID})
	date := s.now()
	if order.ClosedAt != nil {
		date = *order.ClosedAt
	}

	ref, postErr := s.poster.Post(ctx, revenue.Entry{
		OrderID:         order.ID,
		LocationID:      order.LocationID,
		ClientID:        order.ClientID,
		ProfessionalID:  order.ProfessionalID,
		PaymentMethodID: order.PaymentMethodID,
		AccountID:       order.AccountID,
		TotalAmount:     order.TotalAmount,
		CommissionTotal: order.CommissionTotal,
		Date:            date,
		Note:            "order " + order.ID,
	})

	if postErr != nil {
		log.WithError(postErr).Warn("revenue posting failed after order close")
		if updated, err := s.repo.UpdateOrderRevenue(ctx, order.ID, domain.RevenueFailed, "", postErr.Error()); err != nil {
			log.WithError(err).Error("failed to record revenue failure")
			order.RevenueStatus = domain.RevenueFailed
			order.RevenueError = postErr.Error()
		} else {
			order = *updated
		}
		return CloseOutcome{Kind: OutcomeClosedWithRevenueError, Order: order, RevenueErr: postErr}
	}

	if updated, err := s.repo.UpdateOrderRevenue(ctx, order.ID, domain.RevenuePosted, ref, ""); err != nil {
		log.WithError(err).Error("failed to record revenue reference")
		order.RevenueStatus = domain.RevenuePosted
		order.RevenueRef = ref
		order.RevenueError = ""
	} else {
		order = *updated
	}
	return CloseOutcome{Kind: OutcomeClosed, Order: order, RevenueRef: ref}
}

func (s *Service) CancelOrder(ctx context.Context, orderID string, reason string) (domain.Order, error) {
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) < domain.MinCancelReasonLength {
		return domain.Order{}, fmt.Errorf("%w: cancel reason must have at least %d characters", domain.ErrValidation, domain.MinCancelReasonLength)
	}

	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !order.IsOpen() {
		return domain.Order{}, orderNotOpen(order)
	}

	canceled, err := s.repo.CancelOrder(ctx, order.ID, reason, s.now())
	if err != nil {
		return domain.Order{}, s.orderWriteError(ctx, err, order.ID)
	}
	s.logAudit(ctx, canceled.LocationID, "order_cancel", "order", canceled.ID, reason)
	return *canceled, nil
}

func (s *Service) itemOfOrder(ctx context.Context, orderID string, itemID string) (domain.OrderItem, error) {
	item, err := s.repo.GetOrderItem(ctx, itemID)
	if err != nil {
		return domain.OrderItem{}, notFound(err, "item %s", itemID)
	}
	if item.OrderID != orderID {
		return domain.OrderItem{}, fmt.Errorf("%w: item %s on order %s", domain.ErrNotFound, itemID, orderID)
	}
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return domain.OrderItem{}, err
	}
	if !order.IsOpen() {
		return domain.OrderItem{}, orderNotOpen(order)
	}
	return *item, nil
}

// orderWriteError translates the store sentinels of a conditional order
// write. A stale close is reported as a precondition when the bound cash
// session is the one that changed.
func (s *Service) orderWriteError(ctx context.Context, err error, orderID string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: order %s", domain.ErrNotFound, orderID)
	case errors.Is(err, store.ErrStaleState):
		current, getErr := s.repo.GetOrder(ctx, orderID)
		if getErr != nil {
			return fmt.Errorf("%w: order %s is no longer open", domain.ErrState, orderID)
		}
		if !current.IsOpen() {
			return orderNotOpen(*current)
		}
		if session, sErr := s.repo.GetCashSession(ctx, current.CashSessionID); sErr == nil && !session.IsOpen() {
			return fmt.Errorf("%w: cash session %s is closed", domain.ErrPrecondition, session.ID)
		}
		return fmt.Errorf("%w: order %s changed concurrently", domain.ErrState, orderID)
	default:
		return err
	}
}

func orderNotOpen(order domain.Order) error {
	return fmt.Errorf("%w: order %s is %s", domain.ErrState, order.ID, order.Status)
}
