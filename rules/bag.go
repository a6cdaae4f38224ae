package rules

import "math/rand"

// Bag is a bag randomizer: every template item is replicated Copies times,
// shuffled, and drawn without replacement until the pool is empty, at which
// point it is rebuilt and reshuffled.
type Bag struct {
	template []int
	pool     []int
	copies   int
	rng      *rand.Rand
}

func NewBag(rng *rand.Rand, copies int, items ...int) *Bag {
	b := &Bag{
		template: append([]int(nil), items...),
		copies:   copies,
		rng:      rng,
	}
	b.refill()
	return b
}

func (b *Bag) refill() {
	b.pool = b.pool[:0]
	for _, item := range b.template {
		for i := 0; i < b.copies; i++ {
			b.pool = append(b.pool, item)
		}
	}
	b.rng.Shuffle(len(b.pool), func(i, j int) {
		b.pool[i], b.pool[j] = b.pool[j], b.pool[i]
	})
}

// Next draws from the end of the pool. An empty template yields 0.
func (b *Bag) Next() int {
	if len(b.pool) == 0 {
		if len(b.template) == 0 {
			return 0
		}
		b.refill()
	}
	v := b.pool[len(b.pool)-1]
	b.pool = b.pool[:len(b.pool)-1]
	return v
}

// Remaining is the number of draws before the next refill.
func (b *Bag) Remaining() int { return len(b.pool) }
