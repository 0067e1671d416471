package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"hyperliquid-trading-bot/internal/clock"
	"hyperliquid-trading-bot/internal/hyperliquid"
	"hyperliquid-trading-bot/internal/logging"
)

type fakeVenue struct {
	nextOrderID int64
	slPlaced    []float64
	tpPlaced    []float64
	cancelled   []int64
	cancelAlls  int
	slErr       error
	tpErr       error
	cancelErr   error
}

func (f *fakeVenue) PlaceStopLoss(_ context.Context, _ string, _ hyperliquid.OrderSide, _, trigger float64, _ string) (*hyperliquid.OrderResult, error) {
	if f.slErr != nil {
		return nil, f.slErr
	}
	f.nextOrderID++
	f.slPlaced = append(f.slPlaced, trigger)
	return &hyperliquid.OrderResult{OrderID: f.nextOrderID}, nil
}

func (f *fakeVenue) PlaceTakeProfit(_ context.Context, _ string, _ hyperliquid.OrderSide, _, trigger float64, _ string) (*hyperliquid.OrderResult, error) {
	if f.tpErr != nil {
		return nil, f.tpErr
	}
	f.nextOrderID++
	f.tpPlaced = append(f.tpPlaced, trigger)
	return &hyperliquid.OrderResult{OrderID: f.nextOrderID}, nil
}

func (f *fakeVenue) CancelOrder(_ context.Context, _ string, orderID int64, _ string) error {
	f.cancelled = append(f.cancelled, orderID)
	return f.cancelErr
}

func (f *fakeVenue) CancelAllOrders(_ context.Context, _, _ string) error {
	f.cancelAlls++
	return nil
}

func newTestManager(venue *fakeVenue, clk clock.Clock) *Manager {
	m := NewManager(venue, clk, logging.New(&logging.Config{Level: "ERROR"}))
	m.sleep = func(time.Duration) {}
	return m
}

func TestPlaceSlTpOrdersTracksBothLegs(t *testing.T) {
	venue := &fakeVenue{}
	m := newTestManager(venue, clock.NewFake(time.Now()))

	result, err := m.PlaceSlTpOrders(context.Background(), "BTC", hyperliquid.SideBuy, 0.1, 100000, 98000, 104000, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.SLPlaced || !result.TPPlaced {
		t.Fatalf("both legs should place: sl=%v tp=%v", result.SLPlaced, result.TPPlaced)
	}
	if venue.cancelAlls != 1 {
		t.Errorf("cancel-all calls = %d, want 1", venue.cancelAlls)
	}
	if got := m.TrackedStopLoss("BTC"); got != result.SLOrderID {
		t.Errorf("tracked SL = %d, want %d", got, result.SLOrderID)
	}
}

func TestPlaceSlTpOrdersPartialSuccess(t *testing.T) {
	venue := &fakeVenue{slErr: errors.New("rejected")}
	m := newTestManager(venue, clock.NewFake(time.Now()))

	result, err := m.PlaceSlTpOrders(context.Background(), "ETH", hyperliquid.SideSell, 1, 3000, 3060, 2880, "")
	if err != nil {
		t.Fatalf("one placed leg should still succeed: %v", err)
	}
	if result.SLPlaced || !result.TPPlaced {
		t.Fatalf("expected TP only: sl=%v tp=%v", result.SLPlaced, result.TPPlaced)
	}
	if result.SLErr == nil {
		t.Error("SL leg error should be surfaced")
	}
}

func TestPlaceSlTpOrdersBothLegsFail(t *testing.T) {
	venue := &fakeVenue{slErr: errors.New("down"), tpErr: errors.New("down")}
	m := newTestManager(venue, clock.NewFake(time.Now()))

	if _, err := m.PlaceSlTpOrders(context.Background(), "SOL", hyperliquid.SideBuy, 10, 150, 147, 156, ""); err == nil {
		t.Fatal("expected error when both legs fail")
	}
}

func TestUpdateStopLossRateLimit(t *testing.T) {
	venue := &fakeVenue{}
	clk := clock.NewFake(time.Now())
	m := newTestManager(venue, clk)

	if _, err := m.PlaceSlTpOrders(context.Background(), "BTC", hyperliquid.SideBuy, 0.1, 100000, 98000, 104000, ""); err != nil {
		t.Fatal(err)
	}

	// Inside the 30s window the update is rejected.
	clk.Advance(10 * time.Second)
	if err := m.UpdateStopLoss(context.Background(), "BTC", hyperliquid.SideBuy, 0.1, 99000, "", false); err == nil {
		t.Fatal("update inside rate-limit window should fail")
	}

	// Force bypasses the window.
	if err := m.UpdateStopLoss(context.Background(), "BTC", hyperliquid.SideBuy, 0.1, 99000, "", true); err != nil {
		t.Fatalf("forced update should succeed: %v", err)
	}

	// After the window a normal update goes through and cancels the old stop.
	clk.Advance(31 * time.Second)
	before := len(venue.cancelled)
	if err := m.UpdateStopLoss(context.Background(), "BTC", hyperliquid.SideBuy, 0.1, 99500, "", false); err != nil {
		t.Fatalf("update after window should succeed: %v", err)
	}
	if len(venue.cancelled) != before+1 {
		t.Error("previous stop should be cancelled on update")
	}
}

func TestUpdateStopLossIgnoresCancelError(t *testing.T) {
	venue := &fakeVenue{cancelErr: errors.New("already filled")}
	clk := clock.NewFake(time.Now())
	m := newTestManager(venue, clk)

	if _, err := m.PlaceSlTpOrders(context.Background(), "BTC", hyperliquid.SideBuy, 0.1, 100000, 98000, 104000, ""); err != nil {
		t.Fatal(err)
	}
	clk.Advance(time.Minute)
	if err := m.UpdateStopLoss(context.Background(), "BTC", hyperliquid.SideBuy, 0.1, 99000, "", false); err != nil {
		t.Fatalf("cancel failure must not block the replacement: %v", err)
	}
}

func TestClearTrackedOrders(t *testing.T) {
	venue := &fakeVenue{}
	m := newTestManager(venue, clock.NewFake(time.Now()))

	if _, err := m.PlaceSlTpOrders(context.Background(), "BTC", hyperliquid.SideBuy, 0.1, 100000, 98000, 104000, ""); err != nil {
		t.Fatal(err)
	}
	m.ClearTrackedOrders("BTC")
	if m.TrackedStopLoss("BTC") != 0 {
		t.Error("tracked orders should be cleared")
	}
}

func TestValidateTakeProfit(t *testing.T) {
	tests := []struct {
		name       string
		side       hyperliquid.OrderSide
		entry, tp  float64
		wantAdjust bool
	}{
		{"profitable long TP kept", hyperliquid.SideBuy, 100000, 104000, false},
		{"break-even long TP raised", hyperliquid.SideBuy, 100000, 100010, true},
		{"profitable short TP kept", hyperliquid.SideSell, 100000, 96000, false},
		{"break-even short TP lowered", hyperliquid.SideSell, 100000, 99990, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateTakeProfit(tt.side, tt.entry, tt.tp)
			if tt.wantAdjust && got == tt.tp {
				t.Errorf("TP %v should be adjusted", tt.tp)
			}
			if !tt.wantAdjust && got != tt.tp {
				t.Errorf("TP %v should be kept, got %v", tt.tp, got)
			}
			// Adjusted or not, the result must cover round-trip taker fees.
			gross := got - tt.entry
			if tt.side == hyperliquid.SideSell {
				gross = tt.entry - got
			}
			fees := takerFee() * (tt.entry + got)
			if gross <= fees {
				t.Errorf("TP %v does not clear fees (gross %v, fees %v)", got, gross, fees)
			}
		})
	}
}
