package position

import "solana-sniper/internal/domain"

// orderBook maps position id to position, iterating in insertion order.
// Owned by the manager goroutine; not safe for concurrent use.
type orderBook struct {
	order []int64
	byID  map[int64]*domain.Position
}

func newOrderBook() *orderBook {
	return &orderBook{byID: make(map[int64]*domain.Position)}
}

func (b *orderBook) add(p *domain.Position) {
	if _, exists := b.byID[p.ID]; exists {
		return
	}
	b.order = append(b.order, p.ID)
	b.byID[p.ID] = p
}

func (b *orderBook) get(id int64) (*domain.Position, bool) {
	p, ok := b.byID[id]
	return p, ok
}

func (b *orderBook) remove(id int64) {
	if _, ok := b.byID[id]; !ok {
		return
	}
	delete(b.byID, id)
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

func (b *orderBook) len() int {
	return len(b.byID)
}

// each visits positions in insertion order.
func (b *orderBook) each(fn func(*domain.Position)) {
	for _, id := range b.order {
		fn(b.byID[id])
	}
}

// snapshot returns copies of all positions in insertion order.
func (b *orderBook) snapshot() []*domain.Position {
	out := make([]*domain.Position, 0, len(b.order))
	b.each(func(p *domain.Position) {
		out = append(out, p.Clone())
	})
	return out
}
