package returns

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ideaboard/internal/storage"
)

func dec(value float64) *decimal.Decimal {
	d := decimal.NewFromFloat(value)
	return &d
}

func idea(ticker, position string, rec float64, posted time.Time) storage.Idea {
	return storage.Idea{
		Ticker:       ticker,
		PositionType: position,
		PriceAtRec:   dec(rec),
		PostedDate:   posted,
	}
}

func TestXIRRSingleLongPick(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	ideas := []storage.Idea{idea("ACME", storage.PositionLong, 100, now.AddDate(-1, 0, 0))}
	prices := map[string]decimal.Decimal{"ACME": decimal.NewFromInt(110)}

	flows := BuildCashflows(ideas, prices, 5, now)
	rate, ok := XIRR(flows)
	if !ok {
		t.Fatal("XIRR unavailable")
	}
	// One unit to 1.1 units over a year is a 10% annualized return.
	if math.Abs(rate-10.0) > 0.2 {
		t.Fatalf("rate = %v, want ~10.0", rate)
	}
}

func TestXIRRUnavailableCases(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	if _, ok := XIRR(nil); ok {
		t.Fatal("empty series should be unavailable")
	}
	if _, ok := XIRR([]Cashflow{{Date: now, Amount: -1}}); ok {
		t.Fatal("single flow should be unavailable")
	}
	sameSign := []Cashflow{
		{Date: now.AddDate(-1, 0, 0), Amount: -1},
		{Date: now, Amount: -1},
	}
	if _, ok := XIRR(sameSign); ok {
		t.Fatal("same-sign flows should be unavailable")
	}
}

func TestBuildCashflowsShortFlooredAtZero(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	ideas := []storage.Idea{idea("PUMP", storage.PositionShort, 100, now.AddDate(-1, 0, 0))}
	prices := map[string]decimal.Decimal{"PUMP": decimal.NewFromInt(400)}

	flows := BuildCashflows(ideas, prices, 5, now)
	if len(flows) != 2 {
		t.Fatalf("got %d flows, want 2", len(flows))
	}
	if flows[1].Amount != 0 {
		t.Fatalf("short liquidation = %v, want 0", flows[1].Amount)
	}
}

func TestBuildCashflowsWindowAndSkips(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	ideas := []storage.Idea{
		idea("OLD", storage.PositionLong, 50, now.AddDate(-6, 0, 0)),
		idea("ACME", storage.PositionLong, 100, now.AddDate(-1, 0, 0)),
		idea("NOPRICE", storage.PositionLong, 100, now.AddDate(-1, 0, 0)),
	}
	failed := storage.RecPriceFailed
	ideas = append(ideas, storage.Idea{
		Ticker: "BROKE", PositionType: storage.PositionLong,
		PriceAtRec: &failed, PostedDate: now.AddDate(-1, 0, 0),
	})
	prices := map[string]decimal.Decimal{
		"OLD":   decimal.NewFromInt(60),
		"ACME":  decimal.NewFromInt(110),
		"BROKE": decimal.NewFromInt(10),
	}

	flows := BuildCashflows(ideas, prices, 5, now)
	// Only ACME survives: OLD is outside the window, NOPRICE has no current
	// price, BROKE carries the failed-fetch sentinel.
	if len(flows) != 2 {
		t.Fatalf("got %d flows, want 2", len(flows))
	}
	if flows[0].Amount != -1 || flows[1].Amount != 1.1 {
		t.Fatalf("unexpected flows: %+v", flows)
	}
}

func TestSimpleReturnDirections(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	prices := map[string]decimal.Decimal{"ACME": decimal.NewFromInt(150)}

	long, ok := SimpleReturn(idea("ACME", storage.PositionLong, 100, now), prices)
	if !ok || long != 50 {
		t.Fatalf("long return = %v ok=%v, want 50", long, ok)
	}

	short, ok := SimpleReturn(idea("ACME", storage.PositionShort, 100, now), prices)
	if !ok || short != -50 {
		t.Fatalf("short return = %v ok=%v, want -50", short, ok)
	}
}

func TestComputeMetricsBestPickTieBreak(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	posted := now.AddDate(-1, 0, 0)
	ideas := []storage.Idea{
		idea("ZZZ", storage.PositionLong, 100, posted),
		idea("AAA", storage.PositionLong, 100, posted),
		idea("LOSER", storage.PositionLong, 100, posted),
	}
	prices := map[string]decimal.Decimal{
		"ZZZ":   decimal.NewFromInt(150),
		"AAA":   decimal.NewFromInt(150),
		"LOSER": decimal.NewFromInt(80),
	}

	value := ComputeMetrics(ideas, prices, now)
	if value.TotalPicks != 3 {
		t.Fatalf("TotalPicks = %d, want 3", value.TotalPicks)
	}
	if value.BestPickTicker == nil || *value.BestPickTicker != "AAA" {
		t.Fatalf("best pick = %v, want AAA", value.BestPickTicker)
	}
	if value.BestPickReturn == nil || *value.BestPickReturn != 50.0 {
		t.Fatalf("best return = %v, want 50.0", value.BestPickReturn)
	}
	if value.WinRate == nil || *value.WinRate != 66.7 {
		t.Fatalf("win rate = %v, want 66.7", value.WinRate)
	}
}

func TestComputeMetricsCountsOnlyResolvablePicks(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	posted := now.AddDate(-1, 0, 0)
	failed := storage.RecPriceFailed
	ideas := []storage.Idea{
		idea("ACME", storage.PositionLong, 100, posted),
		idea("NOPRICE", storage.PositionLong, 100, posted),
		{Ticker: "BROKE", PositionType: storage.PositionLong, PriceAtRec: &failed, PostedDate: posted},
	}
	prices := map[string]decimal.Decimal{"ACME": decimal.NewFromInt(110)}

	value := ComputeMetrics(ideas, prices, now)
	if value.TotalPicks != 1 {
		t.Fatalf("TotalPicks = %d, want 1", value.TotalPicks)
	}
	if value.WinRate == nil || *value.WinRate != 100.0 {
		t.Fatalf("win rate = %v, want 100.0", value.WinRate)
	}

	// All picks unresolvable leaves the author with no picks at all.
	empty := ComputeMetrics(ideas[1:], prices, now)
	if empty.TotalPicks != 0 {
		t.Fatalf("TotalPicks = %d, want 0", empty.TotalPicks)
	}
	if empty.WinRate != nil {
		t.Fatalf("win rate = %v, want nil", empty.WinRate)
	}
}

func TestComputeMetricsIndependentWindows(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	ideas := []storage.Idea{
		idea("ACME", storage.PositionLong, 100, now.AddDate(-4, 0, 0)),
	}
	prices := map[string]decimal.Decimal{"ACME": decimal.NewFromInt(200)}

	value := ComputeMetrics(ideas, prices, now)
	if value.XIRR5Yr == nil {
		t.Fatal("5-year XIRR should be available")
	}
	if value.XIRR3Yr != nil || value.XIRR1Yr != nil {
		t.Fatal("3/1-year windows should be empty for a 4-year-old pick")
	}
}
