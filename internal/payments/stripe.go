package payments

import (
	"context"
	"fmt"
	"log/slog"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"

	"github.com/halladj/vtc-sahra/internal/apperr"
	"github.com/halladj/vtc-sahra/internal/ledger"
	"github.com/halladj/vtc-sahra/internal/models"
)

// CardGateway holds and captures card funds.
type CardGateway interface {
	Hold(ctx context.Context, amount int64, currency, paymentMethodID string) (string, error)
	Capture(ctx context.Context, intentID string) error
	Cancel(ctx context.Context, intentID string) error
}

// StripeGateway is a thin wrapper around stripe-go for PaymentIntent hold/capture/cancel flows.
type StripeGateway struct{}

// NewStripeGateway sets the process-wide stripe key.
func NewStripeGateway(apiKey string) *StripeGateway {
	stripe.Key = apiKey
	return &StripeGateway{}
}

// Hold creates and confirms a PaymentIntent with capture_method=manual.
func (s *StripeGateway) Hold(ctx context.Context, amount int64, currency, paymentMethodID string) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(amount),
		Currency:      stripe.String(currency),
		PaymentMethod: stripe.String(paymentMethodID),
		Confirm:       stripe.Bool(true),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
	}
	params.Context = ctx
	pi, err := paymentintent.New(params)
	if err != nil {
		return "", err
	}
	return pi.ID, nil
}

func (s *StripeGateway) Capture(ctx context.Context, intentID string) error {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	_, err := paymentintent.Capture(intentID, params)
	return err
}

func (s *StripeGateway) Cancel(ctx context.Context, intentID string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	_, err := paymentintent.Cancel(intentID, params)
	return err
}

// TopUps funds wallets from a card: hold, capture, then credit the ledger.
type TopUps struct {
	gateway  CardGateway
	ledger   *ledger.Ledger
	currency string
	logger   *slog.Logger
}

func NewTopUps(gateway CardGateway, l *ledger.Ledger, currency string, logger *slog.Logger) *TopUps {
	return &TopUps{gateway: gateway, ledger: l, currency: currency, logger: logger}
}

func (t *TopUps) TopUp(ctx context.Context, ownerID string, amount int64, paymentMethodID string) (*models.Transaction, error) {
	const op = "payments.top_up"
	if amount <= 0 {
		return nil, apperr.InvalidInput(op, "amount must be > 0, got %d", amount)
	}
	if paymentMethodID == "" {
		return nil, apperr.InvalidInput(op, "payment method is required")
	}
	if _, err := t.ledger.Balance(ctx, ownerID); err != nil {
		return nil, err
	}

	intentID, err := t.gateway.Hold(ctx, amount, t.currency, paymentMethodID)
	if err != nil {
		return nil, apperr.Internal(op, fmt.Errorf("hold: %w", err))
	}
	if err := t.gateway.Capture(ctx, intentID); err != nil {
		if cerr := t.gateway.Cancel(ctx, intentID); cerr != nil {
			t.logger.Error("topup_cancel_failed", "owner_id", ownerID, "intent_id", intentID, "error", cerr)
		}
		return nil, apperr.Internal(op, fmt.Errorf("capture: %w", err))
	}

	tr, err := t.ledger.Credit(ctx, ownerID, amount, "topup:"+intentID)
	if err != nil {
		// funds are captured; the intent id is the reconciliation key
		t.logger.Error("topup_credit_failed", "owner_id", ownerID, "intent_id", intentID, "amount", amount, "error", err)
		return nil, err
	}
	t.logger.Info("wallet_topped_up", "owner_id", ownerID, "intent_id", intentID, "amount", amount)
	return tr, nil
}
