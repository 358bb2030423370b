package domain

import (
	"fmt"
	"time"
)

// PositionState is a node of the position lifecycle state machine.
type PositionState string

const (
	StatePendingBuy  PositionState = "PENDING_BUY"
	StateOpen        PositionState = "OPEN"
	StatePendingSell PositionState = "PENDING_SELL"
	StateClosed      PositionState = "CLOSED"
	StateAbandoned   PositionState = "ABANDONED"
	StateFailed      PositionState = "FAILED"
)

// String returns the string representation of PositionState.
func (s PositionState) String() string {
	return string(s)
}

// IsValid checks if the state is a known value.
func (s PositionState) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether no further transitions leave this state.
func (s PositionState) IsTerminal() bool {
	return s == StateClosed || s == StateAbandoned || s == StateFailed
}

// transitions is the complete edge table of the lifecycle.
var transitions = map[PositionState][]PositionState{
	StatePendingBuy:  {StateOpen, StateFailed},
	StateOpen:        {StatePendingSell},
	StatePendingSell: {StateClosed, StateOpen, StateAbandoned},
	StateClosed:      nil,
	StateAbandoned:   nil,
	StateFailed:      nil,
}

// CanTransition reports whether from -> to is an edge of the lifecycle.
func CanTransition(from, to PositionState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ExitReason explains why a position left OPEN or ended in a terminal state.
type ExitReason string

const (
	ReasonNone       ExitReason = ""
	ReasonStopLoss   ExitReason = "STOP_LOSS"
	ReasonTakeProfit ExitReason = "TAKE_PROFIT"
	ReasonTimeout    ExitReason = "TIMEOUT"
	ReasonFilled     ExitReason = "FILLED"
	ReasonRejected   ExitReason = "REJECTED"
	ReasonRetry      ExitReason = "SELL_RETRY"
	ReasonExhausted  ExitReason = "RETRIES_EXHAUSTED"
	ReasonBuyFailed  ExitReason = "BUY_FAILED"
	ReasonCapacity   ExitReason = "CAPACITY"
	ReasonShutdown   ExitReason = "SHUTDOWN"
	ReasonManual     ExitReason = "MANUAL"
)

// String returns the string representation of ExitReason.
func (r ExitReason) String() string {
	return string(r)
}

// Position is the central stateful entity, owned exclusively by the position manager.
type Position struct {
	ID        int64  // monotonic, process-local
	RunID     string // process run identifier; (RunID, ID) is the storage key
	Mint      string
	Signature string // source transaction of the signal
	State     PositionState

	EntryPrice      float64
	Quantity        float64
	TakeProfitPrice float64
	StopLossPrice   float64

	CreatedAt     time.Time
	OpenedAt      time.Time
	LastCheckedAt time.Time
	LastPrice     float64
	SellAttempts  int

	ExitReason  ExitReason
	ExitPrice   float64
	RealizedPnL float64
	ClosedAt    time.Time
	LastError   string
}

// Clone returns a copy safe to hand outside the owning goroutine.
func (p *Position) Clone() *Position {
	c := *p
	return &c
}

// Transition moves the position to a new state if the edge is legal.
// The position is left untouched on an illegal edge.
func (p *Position) Transition(to PositionState) error {
	if !CanTransition(p.State, to) {
		return fmt.Errorf("%w: position %d %s -> %s", ErrIllegalTransition, p.ID, p.State, to)
	}
	p.State = to
	return nil
}

// Transition is a journal entry for one state change of a position.
type Transition struct {
	RunID      string
	PositionID int64
	Mint       string
	From       PositionState
	To         PositionState
	Reason     ExitReason
	Price      float64
	PnL        float64
	Error      string
	At         time.Time
}

// PriceSample is one price observation taken during an exit-evaluation tick.
type PriceSample struct {
	RunID      string
	PositionID int64
	Mint       string
	Price      float64
	At         time.Time
}

// Fill is the confirmed result of an executed buy or sell.
type Fill struct {
	Price     float64
	Quantity  float64
	Timestamp time.Time
	Signature string // transaction id when known
}
