package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"salonpos/backend/internal/domain"
	"salonpos/backend/internal/store"
	"salonpos/backend/internal/validate"
)

// closeTolerance is the largest counted-vs-expected difference accepted
// without closing notes.
var closeTolerance = decimal.RequireFromString("0.01")

type OpenCashSessionRequest struct {
	LocationID     string          `json:"location_id"`
	OpeningBalance decimal.Decimal `json:"opening_balance" validate:"gte=0"`
	Notes          string          `json:"notes" validate:"max=500"`
}

type CloseCashSessionRequest struct {
	CountedBalance decimal.Decimal `json:"counted_balance" validate:"gte=0"`
	Notes          string          `json:"notes" validate:"max=500"`
}

type CashMovementRequest struct {
	Kind        string          `json:"kind" validate:"required,oneof=DEPOSIT WITHDRAWAL"`
	Amount      decimal.Decimal `json:"amount" validate:"gt=0"`
	Description string          `json:"description" validate:"max=200"`
}

type CashSessionReport struct {
	Session         domain.CashSession         `json:"session"`
	ExpectedBalance decimal.Decimal            `json:"expected_balance"`
	TotalsByKind    map[string]decimal.Decimal `json:"totals_by_kind"`
	NonCashSales    decimal.Decimal            `json:"non_cash_sales"`
	MovementCount   int                        `json:"movement_count"`
	Movements       []domain.CashMovement      `json:"movements"`
}

func ExpectedBalance(session domain.CashSession, movements []domain.CashMovement) decimal.Decimal {
	return domain.ExpectedCash(session, movements)
}

func (s *Service) OpenCashSession(ctx context.Context, req OpenCashSessionRequest) (domain.CashSession, error) {
	req.LocationID = strings.TrimSpace(req.LocationID)
	if req.LocationID == "" {
		req.LocationID = s.defaultLocationID
	}
	if err := validate.Struct(req); err != nil {
		return domain.CashSession{}, err
	}

	saved, err := s.repo.CreateCashSession(ctx, domain.CashSession{
		LocationID:     req.LocationID,
		OpeningBalance: req.OpeningBalance.Round(2),
		OpeningNotes:   strings.TrimSpace(req.Notes),
		OpenedBy:       actorName(ctx),
		OpenedAt:       s.now(),
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.CashSession{}, fmt.Errorf("%w: a cash session is already open for location %s", domain.ErrConflict, req.LocationID)
		}
		return domain.CashSession{}, err
	}

	s.logAudit(ctx, saved.LocationID, "cash_session_open", "cash_session", saved.ID, "opening_balance="+saved.OpeningBalance.StringFixed(2))
	return *saved, nil
}

func (s *Service) GetCashSession(ctx context.Context, id string) (domain.CashSession, error) {
	session, err := s.repo.GetCashSession(ctx, id)
	if err != nil {
		return domain.CashSession{}, notFound(err, "cash session %s", id)
	}
	return *session, nil
}

func (s *Service) CurrentCashSession(ctx context.Context, locationID string) (domain.CashSession, error) {
	if locationID == "" {
		locationID = s.defaultLocationID
	}
	session, err := s.repo.GetOpenCashSession(ctx, locationID)
	if err != nil {
		return domain.CashSession{}, notFound(err, "no open cash session for location %s", locationID)
	}
	return *session, nil
}

func (s *Service) CloseCashSession(ctx context.Context, sessionID string, req CloseCashSessionRequest) (domain.CashSession, error) {
	if err := validate.Struct(req); err != nil {
		return domain.CashSession{}, err
	}
	session, err := s.GetCashSession(ctx, sessionID)
	if err != nil {
		return domain.CashSession{}, err
	}
	if !session.IsOpen() {
		return domain.CashSession{}, fmt.Errorf("%w: cash session %s is %s", domain.ErrState, sessionID, session.Status)
	}

	counted := req.CountedBalance.Round(2)
	notes := strings.TrimSpace(req.Notes)
	closed, err := s.repo.CloseCashSession(ctx, store.CloseCashSessionParams{
		SessionID:      sessionID,
		CountedBalance: counted,
		Notes:          notes,
		ClosedBy:       actorName(ctx),
		ClosedAt:       s.now(),
		Verify: func(expected decimal.Decimal) error {
			difference := counted.Sub(expected)
			if difference.Abs().GreaterThan(closeTolerance) && notes == "" {
				return fmt.Errorf("%w: notes are required when the counted balance differs from the expected %s by %s",
					domain.ErrValidation, expected.StringFixed(2), difference.StringFixed(2))
			}
			return nil
		},
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrValidation):
			return domain.CashSession{}, err
		case errors.Is(err, store.ErrOpenOrders):
			return domain.CashSession{}, fmt.Errorf("%w: cash session %s has open orders; close or cancel them first", domain.ErrState, sessionID)
		case errors.Is(err, store.ErrStaleState):
			return domain.CashSession{}, fmt.Errorf("%w: cash session %s is no longer open", domain.ErrState, sessionID)
		}
		return domain.CashSession{}, notFound(err, "cash session %s", sessionID)
	}

	expected, difference := decimal.Zero, decimal.Zero
	if closed.ExpectedBalance != nil {
		expected = *closed.ExpectedBalance
	}
	if closed.Difference != nil {
		difference = *closed.Difference
	}
	s.logger.WithFields(logrus.Fields{
		"session_id": closed.ID,
		"expected":   expected.StringFixed(2),
		"counted":    counted.StringFixed(2),
	}).Info("cash session closed")
	s.logAudit(ctx, closed.LocationID, "cash_session_close", "cash_session", closed.ID,
		fmt.Sprintf("expected=%s,counted=%s,difference=%s", expected.StringFixed(2), counted.StringFixed(2), difference.StringFixed(2)))
	return *closed, nil
}

// RecordCashMovement adds a manual deposit or withdrawal to an open session.
// Withdrawals are stored with a negative amount.
func (s *Service) RecordCashMovement(ctx context.Context, sessionID string, req CashMovementRequest) (domain.CashMovement, error) {
	req.Kind = strings.ToUpper(strings.TrimSpace(req.Kind))
	if err := validate.Struct(req); err != nil {
		return domain.CashMovement{}, err
	}
	session, err := s.GetCashSession(ctx, sessionID)
	if err != nil {
		return domain.CashMovement{}, err
	}
	if !session.IsOpen() {
		return domain.CashMovement{}, fmt.Errorf("%w: cash session %s is %s", domain.ErrState, sessionID, session.Status)
	}

	amount := req.Amount.Round(2)
	if req.Kind == domain.MovementWithdrawal {
		amount = amount.Neg()
	}
	saved, err := s.repo.CreateCashMovement(ctx, domain.CashMovement{
		SessionID:   sessionID,
		Kind:        req.Kind,
		Amount:      amount,
		AffectsCash: true,
		Description: strings.TrimSpace(req.Description),
		CreatedAt:   s.now(),
	})
	if err != nil {
		if errors.Is(err, store.ErrStaleState) {
			return domain.CashMovement{}, fmt.Errorf("%w: cash session %s is no longer open", domain.ErrState, sessionID)
		}
		return domain.CashMovement{}, notFound(err, "cash session %s", sessionID)
	}

	s.logAudit(ctx, session.LocationID, "cash_movement", "cash_session", sessionID, fmt.Sprintf("%s %s", req.Kind, amount.StringFixed(2)))
	return *saved, nil
}

func (s *Service) CashSessionReport(ctx context.Context, sessionID string) (CashSessionReport, error) {
	session, err := s.GetCashSession(ctx, sessionID)
	if err != nil {
		return CashSessionReport{}, err
	}
	movements, err := s.repo.ListCashMovements(ctx, sessionID)
	if err != nil {
		return CashSessionReport{}, err
	}

	report := CashSessionReport{
		Session:         session,
		ExpectedBalance: ExpectedBalance(session, movements),
		TotalsByKind:    make(map[string]decimal.Decimal, 3),
		NonCashSales:    decimal.Zero,
		MovementCount:   len(movements),
		Movements:       movements,
	}
	for _, m := range movements {
		report.TotalsByKind[m.Kind] = report.TotalsByKind[m.Kind].Add(m.Amount)
		if m.Kind == domain.MovementSale && !m.AffectsCash {
			report.NonCashSales = report.NonCashSales.Add(m.Amount)
		}
	}
	return report, nil
}
