package textmodel

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
)

// Weighted pairs a model with its relative chance of being picked.
type Weighted struct {
	Model  TextModel
	Weight float64
}

// Mixture picks one of several models at random for every text block.
// GetNextWord keeps using the model that produced the last block.
type Mixture struct {
	models []Weighted
	total  float64
	rng    *rand.Rand

	mu   sync.Mutex
	last TextModel
}

// NewMixture builds a Mixture over the models with a positive weight. A nil
// rng uses the global source.
func NewMixture(rng *rand.Rand, models ...Weighted) (*Mixture, error) {
	m := &Mixture{rng: rng}
	for _, w := range models {
		if w.Model != nil && w.Weight > 0 {
			m.models = append(m.models, w)
			m.total += w.Weight
		}
	}
	if len(m.models) == 0 {
		return nil, errors.New("textmodel: mixture needs a model with a positive weight")
	}
	return m, nil
}

func (m *Mixture) pick() TextModel {
	var u float64
	if m.rng != nil {
		u = m.rng.Float64()
	} else {
		u = rand.Float64()
	}
	u *= m.total
	for _, w := range m.models {
		u -= w.Weight
		if u < 0 {
			return w.Model
		}
	}
	return m.models[len(m.models)-1].Model
}

// GetTextBlock generates a block with a randomly picked model.
func (m *Mixture) GetTextBlock(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	model := m.pick()
	m.last = model
	m.mu.Unlock()
	return model.GetTextBlock(ctx, prompt)
}

// GetNextWord continues with the model that produced the last block.
func (m *Mixture) GetNextWord(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.last == nil {
		m.last = m.pick()
	}
	model := m.last
	m.mu.Unlock()
	return model.GetNextWord(ctx)
}
