package reporting

import (
	"bytes"
	"encoding/csv"
	"math"
	"strings"
	"testing"
	"time"

	"solana-sniper/internal/domain"
)

var base = time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC)

func closed(id int64, pnl float64, at time.Duration) *domain.Position {
	return &domain.Position{
		ID:          id,
		RunID:       "run",
		Mint:        "Mint" + string(rune('A'+id)),
		State:       domain.StateClosed,
		EntryPrice:  1,
		Quantity:    10,
		RealizedPnL: pnl,
		ExitReason:  domain.ReasonTakeProfit,
		OpenedAt:    base,
		ClosedAt:    base.Add(at),
	}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSummarize(t *testing.T) {
	positions := []*domain.Position{
		// deliberately out of close order
		closed(3, 2.0, 3*time.Minute),
		closed(1, 1.0, time.Minute),
		closed(2, -3.0, 2*time.Minute),
		closed(4, -0.5, 4*time.Minute),
		{ID: 5, State: domain.StateOpen},
		{ID: 6, State: domain.StateAbandoned},
		{ID: 7, State: domain.StateFailed},
	}

	s := Summarize(positions)

	if s.Total != 7 || s.Active != 1 || s.Closed != 4 || s.Abandoned != 1 || s.Failed != 1 {
		t.Fatalf("unexpected counts: %+v", s)
	}
	if s.Wins != 2 || s.Losses != 2 {
		t.Errorf("wins/losses = %d/%d, want 2/2", s.Wins, s.Losses)
	}
	if !approx(s.WinRate, 0.5) {
		t.Errorf("win rate = %v, want 0.5", s.WinRate)
	}
	if !approx(s.RealizedPnL, -0.5) {
		t.Errorf("realized = %v, want -0.5", s.RealizedPnL)
	}
	if !approx(s.MeanPnL, -0.125) {
		t.Errorf("mean = %v, want -0.125", s.MeanPnL)
	}
	if !approx(s.BestPnL, 2.0) || !approx(s.WorstPnL, -3.0) {
		t.Errorf("best/worst = %v/%v", s.BestPnL, s.WorstPnL)
	}
	// cumulative in close order: 1, -2, 0, -0.5 → peak 1, trough -2
	if !approx(s.MaxDrawdown, 3.0) {
		t.Errorf("max drawdown = %v, want 3", s.MaxDrawdown)
	}
	if s.MaxConsecutiveLosses != 1 {
		t.Errorf("max consecutive losses = %d, want 1", s.MaxConsecutiveLosses)
	}
}

func TestSummarize_NoClosed(t *testing.T) {
	s := Summarize([]*domain.Position{{ID: 1, State: domain.StatePendingBuy}})
	if s.Closed != 0 || s.WinRate != 0 || s.RealizedPnL != 0 {
		t.Fatalf("unexpected summary: %+v", s)
	}
}

func TestWritePositionsCSV(t *testing.T) {
	var buf bytes.Buffer
	p := closed(1, 0.25, time.Minute)
	p.LastError = "sell TRANSIENT: congested, retrying"
	if err := WritePositionsCSV(&buf, []*domain.Position{p}); err != nil {
		t.Fatalf("write: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected header + 1 row, got %d", len(records))
	}
	row := records[1]
	if row[3] != "CLOSED" || row[10] != "0.25" {
		t.Errorf("unexpected row: %v", row)
	}
	if row[15] != p.LastError {
		t.Errorf("comma in error not preserved: %q", row[15])
	}
	if row[12] != "" {
		t.Errorf("zero created_at should be empty, got %q", row[12])
	}
}

func TestWritePositions(t *testing.T) {
	var buf bytes.Buffer
	open := &domain.Position{
		ID:         2,
		Mint:       "7GCihgDB8fe6KNjn2MYtkzZcRjQy3t9GHdC8uHYmW2hr",
		State:      domain.StateOpen,
		EntryPrice: 0.000028,
		OpenedAt:   base,
	}
	if err := WritePositions(&buf, []*domain.Position{closed(1, 1.5, 90*time.Second), open}, base.Add(time.Minute)); err != nil {
		t.Fatalf("write: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"ID", "CLOSED", "+1.500000", "1m30s", "7GCi..W2hr", "OPEN", "1m0s"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteTransitions(t *testing.T) {
	var buf bytes.Buffer
	trs := []*domain.Transition{
		{PositionID: 1, Mint: "M", From: domain.StatePendingBuy, To: domain.StateOpen, Reason: domain.ReasonFilled, Price: 1, At: base},
		{PositionID: 1, Mint: "M", From: domain.StatePendingSell, To: domain.StateOpen, Reason: domain.ReasonRetry, Error: "timeout", At: base.Add(time.Second)},
	}
	if err := WriteTransitions(&buf, trs); err != nil {
		t.Fatalf("write: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[2], "SELL_RETRY") || !strings.Contains(lines[2], "timeout") {
		t.Errorf("unexpected line: %q", lines[2])
	}
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSummary(&buf, Summarize([]*domain.Position{closed(1, 1, time.Minute)})); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.Contains(buf.String(), "100.0%") {
		t.Errorf("missing win rate:\n%s", buf.String())
	}
}
