package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/halladj/vtc-sahra/internal/apperr"
	"github.com/halladj/vtc-sahra/internal/ledger"
	"github.com/halladj/vtc-sahra/internal/logging"
)

type fakeGateway struct {
	captureErr error
	held       int64
	cancelled  []string
}

func (f *fakeGateway) Hold(ctx context.Context, amount int64, currency, pm string) (string, error) {
	f.held += amount
	return "pi_123", nil
}

func (f *fakeGateway) Capture(ctx context.Context, id string) error { return f.captureErr }

func (f *fakeGateway) Cancel(ctx context.Context, id string) error {
	f.cancelled = append(f.cancelled, id)
	return nil
}

func TestTopUpCreditsWallet(t *testing.T) {
	ctx := context.Background()
	l := ledger.New(ledger.NewMemoryStore(), logging.Discard())
	_, _ = l.OpenWallet(ctx, "d1")
	gw := &fakeGateway{}
	tu := NewTopUps(gw, l, "dzd", logging.Discard())

	tr, err := tu.TopUp(ctx, "d1", 2500, "pm_card")
	if err != nil {
		t.Fatal(err)
	}
	if tr.Reference != "topup:pi_123" {
		t.Fatalf("reference = %s", tr.Reference)
	}
	if bal, _ := l.Balance(ctx, "d1"); bal != 2500 {
		t.Fatalf("balance = %d", bal)
	}
}

func TestTopUpCancelsHoldWhenCaptureFails(t *testing.T) {
	ctx := context.Background()
	l := ledger.New(ledger.NewMemoryStore(), logging.Discard())
	_, _ = l.OpenWallet(ctx, "d1")
	gw := &fakeGateway{captureErr: errors.New("card declined")}
	tu := NewTopUps(gw, l, "dzd", logging.Discard())

	if _, err := tu.TopUp(ctx, "d1", 2500, "pm_card"); err == nil {
		t.Fatal("expected error")
	}
	if len(gw.cancelled) != 1 {
		t.Fatalf("hold should be cancelled, got %v", gw.cancelled)
	}
	if bal, _ := l.Balance(ctx, "d1"); bal != 0 {
		t.Fatalf("balance = %d", bal)
	}
}

func TestTopUpValidatesBeforeCharging(t *testing.T) {
	ctx := context.Background()
	l := ledger.New(ledger.NewMemoryStore(), logging.Discard())
	gw := &fakeGateway{}
	tu := NewTopUps(gw, l, "dzd", logging.Discard())

	if _, err := tu.TopUp(ctx, "d1", 0, "pm"); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := tu.TopUp(ctx, "ghost", 100, "pm"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if gw.held != 0 {
		t.Fatal("card must not be touched when validation fails")
	}
}
