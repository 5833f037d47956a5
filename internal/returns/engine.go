// Package returns computes annualized and simple returns for an author's
// track record of stock picks.
package returns

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"ideaboard/internal/storage"
)

const (
	xirrMaxIterations = 100
	xirrTolerance     = 1e-7
	xirrRateFloor     = -0.999999
)

// Cashflow is one dated flow of a normalized investment. Outflows are
// negative, inflows positive.
type Cashflow struct {
	Date   time.Time
	Amount float64
}

// BuildCashflows converts ideas posted within the last windowYears into a
// normalized cashflow series: invest 1 unit at the posted date, liquidate at
// now. Ideas without a usable recommendation price or without a current price
// are skipped. Short inflows are floored at zero, matching a fully margined
// short position wiped out when the price doubles.
func BuildCashflows(ideas []storage.Idea, prices map[string]decimal.Decimal, windowYears int, now time.Time) []Cashflow {
	cutoff := now.AddDate(-windowYears, 0, 0)

	var flows []Cashflow
	var liquidation float64
	for _, idea := range ideas {
		if idea.PostedDate.Before(cutoff) || idea.PostedDate.After(now) {
			continue
		}
		ratio, ok := exitRatio(idea, prices)
		if !ok {
			continue
		}
		flows = append(flows, Cashflow{Date: idea.PostedDate, Amount: -1})
		liquidation += ratio
	}
	if len(flows) == 0 {
		return nil
	}

	flows = append(flows, Cashflow{Date: now, Amount: liquidation})
	sort.SliceStable(flows, func(i, j int) bool { return flows[i].Date.Before(flows[j].Date) })
	return flows
}

// exitRatio is the present value of 1 unit invested in the idea at its
// recommendation price.
func exitRatio(idea storage.Idea, prices map[string]decimal.Decimal) (float64, bool) {
	if idea.PriceAtRec == nil {
		return 0, false
	}
	rec, _ := idea.PriceAtRec.Float64()
	if rec <= 0 {
		return 0, false
	}
	current, ok := prices[idea.Ticker]
	if !ok {
		return 0, false
	}
	cur, _ := current.Float64()
	if cur <= 0 {
		return 0, false
	}

	if idea.PositionType == storage.PositionShort {
		return math.Max(0, (2*rec-cur)/rec), true
	}
	return cur / rec, true
}

// XIRR computes the annualized internal rate of return of an irregular
// cashflow series, returned as a percentage rounded to one decimal place.
// The second return is false when no rate can be computed: fewer than two
// flows, all flows of one sign, or no convergence.
func XIRR(flows []Cashflow) (float64, bool) {
	if len(flows) < 2 {
		return 0, false
	}

	var hasPositive, hasNegative bool
	for _, f := range flows {
		if f.Amount > 0 {
			hasPositive = true
		}
		if f.Amount < 0 {
			hasNegative = true
		}
	}
	if !hasPositive || !hasNegative {
		return 0, false
	}

	epoch := flows[0].Date
	years := make([]float64, len(flows))
	amounts := make([]float64, len(flows))
	for i, f := range flows {
		years[i] = f.Date.Sub(epoch).Hours() / 24 / 365
		amounts[i] = f.Amount
	}

	rate, ok := solveNewton(years, amounts)
	if !ok {
		rate, ok = solveBisection(years, amounts)
	}
	if !ok || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return 0, false
	}

	return math.Round(rate*1000) / 10, true
}

func netPresentValue(rate float64, years, amounts []float64) float64 {
	var npv float64
	for i := range amounts {
		npv += amounts[i] / math.Pow(1+rate, years[i])
	}
	return npv
}

func npvDerivative(rate float64, years, amounts []float64) float64 {
	var d float64
	for i := range amounts {
		d -= years[i] * amounts[i] / math.Pow(1+rate, years[i]+1)
	}
	return d
}

func solveNewton(years, amounts []float64) (float64, bool) {
	rate := 0.1
	for i := 0; i < xirrMaxIterations; i++ {
		npv := netPresentValue(rate, years, amounts)
		if math.Abs(npv) < xirrTolerance {
			return rate, true
		}
		deriv := npvDerivative(rate, years, amounts)
		if deriv == 0 || math.IsNaN(deriv) || math.IsInf(deriv, 0) {
			return 0, false
		}
		next := rate - npv/deriv
		if next <= xirrRateFloor {
			next = (rate + xirrRateFloor) / 2
		}
		if math.Abs(next-rate) < xirrTolerance {
			return next, true
		}
		rate = next
	}
	return 0, false
}

func solveBisection(years, amounts []float64) (float64, bool) {
	lo, hi := xirrRateFloor, 10.0
	fLo := netPresentValue(lo, years, amounts)
	fHi := netPresentValue(hi, years, amounts)
	if fLo*fHi > 0 {
		return 0, false
	}

	for i := 0; i < 200; i++ {
		mid := (lo + hi) / 2
		fMid := netPresentValue(mid, years, amounts)
		if math.Abs(fMid) < xirrTolerance || hi-lo < xirrTolerance {
			return mid, true
		}
		if fLo*fMid < 0 {
			hi = mid
		} else {
			lo, fLo = mid, fMid
		}
	}
	return 0, false
}

// SimpleReturn is the unbounded percentage return of one idea against the
// latest current price.
func SimpleReturn(idea storage.Idea, prices map[string]decimal.Decimal) (float64, bool) {
	if idea.PriceAtRec == nil {
		return 0, false
	}
	rec, _ := idea.PriceAtRec.Float64()
	if rec <= 0 {
		return 0, false
	}
	current, ok := prices[idea.Ticker]
	if !ok {
		return 0, false
	}
	cur, _ := current.Float64()
	if cur <= 0 {
		return 0, false
	}

	if idea.PositionType == storage.PositionShort {
		return (rec - cur) / rec * 100, true
	}
	return (cur - rec) / rec * 100, true
}

// ComputeMetrics derives the full metric set for one author's ideas. XIRR is
// computed independently over 5, 3 and 1 year windows. Win rate and best pick
// cover the 5-year window.
func ComputeMetrics(ideas []storage.Idea, prices map[string]decimal.Decimal, now time.Time) storage.MetricsValue {
	var value storage.MetricsValue

	for _, years := range []int{5, 3, 1} {
		flows := BuildCashflows(ideas, prices, years, now)
		if rate, ok := XIRR(flows); ok {
			r := rate
			switch years {
			case 5:
				value.XIRR5Yr = &r
			case 3:
				value.XIRR3Yr = &r
			case 1:
				value.XIRR1Yr = &r
			}
		}
	}

	cutoff := now.AddDate(-5, 0, 0)
	var scored, winners int
	var bestTicker string
	var bestReturn float64
	for _, idea := range ideas {
		if idea.PostedDate.Before(cutoff) || idea.PostedDate.After(now) {
			continue
		}
		ret, ok := SimpleReturn(idea, prices)
		if !ok {
			continue
		}
		scored++
		if ret > 0 {
			winners++
		}
		if bestTicker == "" || ret > bestReturn || (ret == bestReturn && idea.Ticker < bestTicker) {
			bestTicker = idea.Ticker
			bestReturn = ret
		}
	}

	// Only picks with a resolvable return count: an author whose ideas are
	// all unpriced has zero picks.
	value.TotalPicks = scored
	if scored > 0 {
		rate := math.Round(float64(winners)/float64(scored)*1000) / 10
		value.WinRate = &rate
	}
	if bestTicker != "" {
		rounded := math.Round(bestReturn*10) / 10
		value.BestPickTicker = &bestTicker
		value.BestPickReturn = &rounded
	}
	return value
}
