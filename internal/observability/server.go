package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"solana-sniper/internal/domain"
)

// PositionLister exposes a snapshot of the order book.
type PositionLister interface {
	Positions() []*domain.Position
}

// Server serves /health, /metrics and /positions.
type Server struct {
	srv       *http.Server
	positions PositionLister
	runID     string
	started   time.Time
	logger    zerolog.Logger
}

// NewServer creates the operator HTTP server. positions may be nil.
func NewServer(addr, runID string, positions PositionLister, logger zerolog.Logger) *Server {
	s := &Server{
		positions: positions,
		runID:     runID,
		started:   time.Now(),
		logger:    logger.With().Str("component", "http").Logger(),
	}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the route mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/positions", s.handlePositions)
	return mux
}

// Start serves until Shutdown. ErrServerClosed is not reported.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.srv.Addr).Msg("starting HTTP server")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// HealthResponse is the JSON body of /health.
type HealthResponse struct {
	Status        string `json:"status"`
	RunID         string `json:"run_id"`
	Uptime        string `json:"uptime"`
	OpenPositions int    `json:"open_positions"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{
		Status: "ok",
		RunID:  s.runID,
		Uptime: time.Since(s.started).Round(time.Second).String(),
	}
	if s.positions != nil {
		resp.OpenPositions = len(s.positions.Positions())
	}
	s.writeJSON(w, resp)
}

// PositionView is the JSON form of a position.
type PositionView struct {
	ID              int64      `json:"id"`
	Mint            string     `json:"mint"`
	State           string     `json:"state"`
	EntryPrice      float64    `json:"entry_price"`
	Quantity        float64    `json:"quantity"`
	TakeProfitPrice float64    `json:"take_profit_price"`
	StopLossPrice   float64    `json:"stop_loss_price"`
	LastPrice       float64    `json:"last_price"`
	SellAttempts    int        `json:"sell_attempts"`
	ExitReason      string     `json:"exit_reason,omitempty"`
	OpenedAt        *time.Time `json:"opened_at,omitempty"`
	LastCheckedAt   *time.Time `json:"last_checked_at,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	views := []PositionView{}
	if s.positions != nil {
		for _, p := range s.positions.Positions() {
			views = append(views, NewPositionView(p))
		}
	}
	s.writeJSON(w, views)
}

// NewPositionView converts a position for JSON output.
func NewPositionView(p *domain.Position) PositionView {
	return PositionView{
		ID:              p.ID,
		Mint:            p.Mint,
		State:           string(p.State),
		EntryPrice:      p.EntryPrice,
		Quantity:        p.Quantity,
		TakeProfitPrice: p.TakeProfitPrice,
		StopLossPrice:   p.StopLossPrice,
		LastPrice:       p.LastPrice,
		SellAttempts:    p.SellAttempts,
		ExitReason:      string(p.ExitReason),
		OpenedAt:        timePtr(p.OpenedAt),
		LastCheckedAt:   timePtr(p.LastCheckedAt),
		LastError:       p.LastError,
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("write response")
	}
}
