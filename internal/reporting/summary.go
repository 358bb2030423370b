// Package reporting renders journaled positions and transitions for operators.
package reporting

import (
	"sort"

	"github.com/shopspring/decimal"

	"solana-sniper/internal/domain"
)

// Summary aggregates realized results over a set of positions.
type Summary struct {
	Total     int
	Active    int // PENDING_BUY, OPEN or PENDING_SELL
	Closed    int
	Abandoned int
	Failed    int

	Wins                 int
	Losses               int
	WinRate              float64 // wins / closed
	RealizedPnL          float64
	MeanPnL              float64
	BestPnL              float64
	WorstPnL             float64
	MaxDrawdown          float64 // peak-to-trough of cumulative PnL, in SOL
	MaxConsecutiveLosses int
}

// Summarize computes a Summary. Only CLOSED positions contribute to PnL
// statistics, taken in close order.
func Summarize(positions []*domain.Position) Summary {
	var (
		s       Summary
		settled []*domain.Position
	)
	s.Total = len(positions)
	for _, p := range positions {
		switch p.State {
		case domain.StateClosed:
			s.Closed++
			settled = append(settled, p)
		case domain.StateAbandoned:
			s.Abandoned++
		case domain.StateFailed:
			s.Failed++
		default:
			s.Active++
		}
	}
	if len(settled) == 0 {
		return s
	}

	sort.Slice(settled, func(i, j int) bool {
		if !settled[i].ClosedAt.Equal(settled[j].ClosedAt) {
			return settled[i].ClosedAt.Before(settled[j].ClosedAt)
		}
		return settled[i].ID < settled[j].ID
	})

	total := decimal.Zero
	cumulative := decimal.Zero
	peak := decimal.Zero
	maxDrawdown := decimal.Zero
	streak := 0

	s.BestPnL = settled[0].RealizedPnL
	s.WorstPnL = settled[0].RealizedPnL
	for _, p := range settled {
		pnl := decimal.NewFromFloat(p.RealizedPnL)
		total = total.Add(pnl)

		if p.RealizedPnL > 0 {
			s.Wins++
			streak = 0
		} else {
			s.Losses++
			streak++
			if streak > s.MaxConsecutiveLosses {
				s.MaxConsecutiveLosses = streak
			}
		}
		if p.RealizedPnL > s.BestPnL {
			s.BestPnL = p.RealizedPnL
		}
		if p.RealizedPnL < s.WorstPnL {
			s.WorstPnL = p.RealizedPnL
		}

		cumulative = cumulative.Add(pnl)
		if cumulative.GreaterThan(peak) {
			peak = cumulative
		}
		if dd := peak.Sub(cumulative); dd.GreaterThan(maxDrawdown) {
			maxDrawdown = dd
		}
	}

	n := decimal.NewFromInt(int64(len(settled)))
	s.RealizedPnL = total.InexactFloat64()
	s.MeanPnL = total.Div(n).InexactFloat64()
	s.WinRate = float64(s.Wins) / float64(len(settled))
	s.MaxDrawdown = maxDrawdown.InexactFloat64()
	return s
}
