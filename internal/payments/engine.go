package payments

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/halladj/vtc-sahra/internal/apperr"
	"github.com/halladj/vtc-sahra/internal/ledger"
	"github.com/halladj/vtc-sahra/internal/models"
	"github.com/halladj/vtc-sahra/internal/observability"
)

// Engine charges drivers commission on completion and penalties on cancellation.
// Percent amounts are floored; the platform never rounds a charge up.
type Engine struct {
	ledger            *ledger.Ledger
	commissionPercent decimal.Decimal
	penaltyPercent    decimal.Decimal
	logger            *slog.Logger
}

func NewEngine(l *ledger.Ledger, commissionPercent, penaltyPercent decimal.Decimal, logger *slog.Logger) *Engine {
	return &Engine{ledger: l, commissionPercent: commissionPercent, penaltyPercent: penaltyPercent, logger: logger}
}

// PenaltyResult is the outcome of a cancellation penalty. Partial means the
// driver could not cover Requested and the shortfall was absorbed.
type PenaltyResult struct {
	Requested      int64 `json:"requested"`
	PenaltyCharged int64 `json:"penalty_charged"`
	Partial        bool  `json:"partial"`
}

func (e *Engine) CommissionAmount(price int64) int64 {
	return percentOf(price, e.commissionPercent)
}

func (e *Engine) PenaltyAmount(price int64) int64 {
	return percentOf(price, e.penaltyPercent)
}

func percentOf(price int64, pct decimal.Decimal) int64 {
	return decimal.NewFromInt(price).Mul(pct).Floor().IntPart()
}

// ProcessCommission debits the commission and records it in the same unit.
func (e *Engine) ProcessCommission(ctx context.Context, rideID, driverID string, price int64) (*models.Commission, error) {
	amount := e.CommissionAmount(price)
	c := &models.Commission{
		ID:      uuid.NewString(),
		RideID:  rideID,
		Percent: e.commissionPercent.String(),
		Amount:  amount,
	}
	err := e.ledger.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if amount > 0 {
			if _, err := e.ledger.DebitTx(ctx, tx, driverID, amount, "commission:"+rideID); err != nil {
				return err
			}
		}
		return tx.InsertCommission(ctx, c)
	})
	if err != nil {
		observability.CommissionFailed.Inc()
		e.logger.Error("commission_charge_failed", "ride_id", rideID, "driver_id", driverID, "amount", amount, "error", err)
		return nil, err
	}
	observability.CommissionCharged.Add(float64(amount))
	e.logger.Info("commission_charged", "ride_id", rideID, "driver_id", driverID, "amount", amount)
	return c, nil
}

// ProcessCancellationPenalty never fails: a driver who cannot pay the full
// penalty is charged whatever balance remains, and an empty wallet is skipped.
func (e *Engine) ProcessCancellationPenalty(ctx context.Context, rideID, driverID string, price int64) PenaltyResult {
	res := PenaltyResult{Requested: e.PenaltyAmount(price)}
	if res.Requested <= 0 {
		return res
	}
	c := &models.Commission{ID: uuid.NewString(), RideID: rideID, Percent: e.penaltyPercent.String()}
	ref := "penalty:" + rideID

	err := e.ledger.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		w, err := tx.LockWallet(ctx, driverID)
		if err != nil {
			return err
		}
		charge := res.Requested
		if w.Balance < charge {
			res.Partial = true
			charge = w.Balance
		}
		if charge == 0 {
			return nil
		}
		if _, err := e.ledger.DebitTx(ctx, tx, driverID, charge, ref); err != nil {
			return err
		}
		c.Amount = charge
		if err := tx.InsertCommission(ctx, c); err != nil {
			return err
		}
		res.PenaltyCharged = charge
		return nil
	})
	if err != nil {
		res.Partial = true
		res.PenaltyCharged = 0
		e.logger.Error("penalty_charge_failed", "ride_id", rideID, "driver_id", driverID, "requested", res.Requested, "error", err)
	}

	partial := "false"
	if res.Partial {
		partial = "true"
	}
	observability.PenaltiesCharged.WithLabelValues(partial).Inc()
	e.logger.Info("penalty_charged", "ride_id", rideID, "driver_id", driverID,
		"requested", res.Requested, "charged", res.PenaltyCharged, "partial", res.Partial)
	return res
}

// ValidateBalance reports whether the driver can cover the commission on price.
// A driver without a wallet cannot.
func (e *Engine) ValidateBalance(ctx context.Context, driverID string, price int64) (bool, error) {
	bal, err := e.ledger.Balance(ctx, driverID)
	if errors.Is(err, apperr.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return bal >= e.CommissionAmount(price), nil
}
