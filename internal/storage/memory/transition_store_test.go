package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

func TestTransitionStore_AppendAndList(t *testing.T) {
	store := NewTransitionStore()
	ctx := context.Background()
	at := time.Unix(1704067200, 0)

	journal := []*domain.Transition{
		{RunID: "r", PositionID: 1, Mint: "m1", From: domain.StatePendingBuy, To: domain.StateOpen, At: at},
		{RunID: "r", PositionID: 2, Mint: "m2", From: domain.StatePendingBuy, To: domain.StateFailed, Reason: domain.ReasonBuyFailed, At: at},
		{RunID: "r", PositionID: 1, Mint: "m1", From: domain.StateOpen, To: domain.StatePendingSell, Reason: domain.ReasonTakeProfit, At: at.Add(time.Second)},
	}
	for _, tr := range journal {
		if err := store.Append(ctx, tr); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	all, _ := store.List(ctx, storage.TransitionFilter{})
	if len(all) != 3 {
		t.Fatalf("Expected 3 transitions, got %d", len(all))
	}
	if all[0].PositionID != 1 || all[1].PositionID != 2 {
		t.Errorf("Equal timestamps must keep append order")
	}

	pos1, _ := store.List(ctx, storage.TransitionFilter{PositionID: 1})
	if len(pos1) != 2 || pos1[1].Reason != domain.ReasonTakeProfit {
		t.Errorf("Position filter returned %+v", pos1)
	}
}

func TestTransitionStore_RejectsInvalid(t *testing.T) {
	store := NewTransitionStore()
	err := store.Append(context.Background(), &domain.Transition{PositionID: 1, To: domain.PositionState("BOGUS")})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestTransitionStore_ConcurrentAppend(t *testing.T) {
	store := NewTransitionStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_ = store.Append(ctx, &domain.Transition{PositionID: id, To: domain.StateOpen, At: time.Now()})
		}(int64(i))
	}
	wg.Wait()

	all, _ := store.List(ctx, storage.TransitionFilter{})
	if len(all) != 50 {
		t.Errorf("Expected 50 transitions, got %d", len(all))
	}
}
