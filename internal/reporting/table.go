package reporting

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"solana-sniper/internal/domain"
)

// WritePositions prints positions as an aligned table, like `ps`.
func WritePositions(w io.Writer, positions []*domain.Position, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMINT\tSTATE\tENTRY\tLAST\tPNL\tAGE\tREASON")
	for _, p := range positions {
		pnl := "-"
		if p.State == domain.StateClosed {
			pnl = fmt.Sprintf("%+.6f", p.RealizedPnL)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p.ID,
			shortMint(p.Mint),
			p.State,
			price(p.EntryPrice),
			price(p.LastPrice),
			pnl,
			age(p, now),
			p.ExitReason,
		)
	}
	return tw.Flush()
}

// WriteTransitions prints a transition journal, one line per state change, like `logs`.
func WriteTransitions(w io.Writer, transitions []*domain.Transition) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tID\tMINT\tFROM\tTO\tREASON\tPRICE\tERROR")
	for _, t := range transitions {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.At.UTC().Format("2006-01-02 15:04:05.000"),
			t.PositionID,
			shortMint(t.Mint),
			t.From,
			t.To,
			t.Reason,
			price(t.Price),
			t.Error,
		)
	}
	return tw.Flush()
}

// WriteSummary prints a Summary block.
func WriteSummary(w io.Writer, s Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Positions:\t%d (active %d, closed %d, abandoned %d, failed %d)\n",
		s.Total, s.Active, s.Closed, s.Abandoned, s.Failed)
	if s.Closed > 0 {
		fmt.Fprintf(tw, "Win rate:\t%.1f%% (%d/%d)\n", s.WinRate*100, s.Wins, s.Closed)
		fmt.Fprintf(tw, "Realized PnL:\t%+.6f SOL (mean %+.6f, best %+.6f, worst %+.6f)\n",
			s.RealizedPnL, s.MeanPnL, s.BestPnL, s.WorstPnL)
		fmt.Fprintf(tw, "Max drawdown:\t%.6f SOL\n", s.MaxDrawdown)
		fmt.Fprintf(tw, "Max losing streak:\t%d\n", s.MaxConsecutiveLosses)
	}
	return tw.Flush()
}

func shortMint(mint string) string {
	if len(mint) <= 12 {
		return mint
	}
	return mint[:4] + ".." + mint[len(mint)-4:]
}

func price(v float64) string {
	if v == 0 {
		return "-"
	}
	return fmt.Sprintf("%.10g", v)
}

func age(p *domain.Position, now time.Time) string {
	start := p.OpenedAt
	if start.IsZero() {
		start = p.CreatedAt
	}
	end := now
	if !p.ClosedAt.IsZero() {
		end = p.ClosedAt
	}
	if start.IsZero() || end.Before(start) {
		return "-"
	}
	return end.Sub(start).Round(time.Second).String()
}
