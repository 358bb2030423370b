package reporting

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"solana-sniper/internal/domain"
)

var positionHeader = []string{
	"run_id", "id", "mint", "state", "entry_price", "quantity", "take_profit_price", "stop_loss_price",
	"exit_reason", "exit_price", "realized_pnl", "sell_attempts", "created_at", "opened_at", "closed_at", "last_error",
}

// WritePositionsCSV writes positions as CSV with a header row.
func WritePositionsCSV(w io.Writer, positions []*domain.Position) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(positionHeader); err != nil {
		return err
	}
	for _, p := range positions {
		row := []string{
			p.RunID,
			strconv.FormatInt(p.ID, 10),
			p.Mint,
			string(p.State),
			formatFloat(p.EntryPrice),
			formatFloat(p.Quantity),
			formatFloat(p.TakeProfitPrice),
			formatFloat(p.StopLossPrice),
			string(p.ExitReason),
			formatFloat(p.ExitPrice),
			formatFloat(p.RealizedPnL),
			strconv.Itoa(p.SellAttempts),
			formatTime(p.CreatedAt),
			formatTime(p.OpenedAt),
			formatTime(p.ClosedAt),
			p.LastError,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
