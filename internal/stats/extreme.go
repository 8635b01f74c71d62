package stats

import (
	"database/sql"
	"math"
	"time"
)

// Extreme is a value with the moment it occurred. RunnerUp holds the
// next-best value seen, which is the record the winner displaced when the
// winner arrived last.
type Extreme struct {
	Value    float64   `json:"value"`
	At       time.Time `json:"at"`
	RunnerUp *Extreme  `json:"runner_up,omitempty"`
}

// tracker keeps the best and second-best values offered to it. Ties keep
// whichever was offered first.
type tracker struct {
	higher bool
	best   *Extreme
	runner *Extreme
}

func (t *tracker) better(a, b float64) bool {
	if t.higher {
		return a > b
	}
	return a < b
}

func (t *tracker) offer(e Extreme) {
	e.RunnerUp = nil
	switch {
	case t.best == nil:
		t.best = &e
	case t.better(e.Value, t.best.Value):
		t.runner, t.best = t.best, &e
	case t.runner == nil || t.better(e.Value, t.runner.Value):
		t.runner = &e
	}
}

// merge folds in a tracker built from records that came after ours.
func (t *tracker) merge(o tracker) {
	if o.best != nil {
		t.offer(*o.best)
	}
	if o.runner != nil {
		t.offer(*o.runner)
	}
}

func (t tracker) get() *Extreme {
	if t.best == nil {
		return nil
	}
	out := *t.best
	if t.runner != nil {
		r := *t.runner
		out.RunnerUp = &r
	}
	return &out
}

// Sums are kept in micro-units so that merging partial results in any
// grouping gives bit-identical totals.
type fixed int64

const fixedScale = 1e6

func toFixed(v float64) fixed {
	return fixed(math.Round(v * fixedScale))
}

func (f fixed) float() float64 {
	return float64(f) / fixedScale
}

// Mean averages the non-null values added to it.
type Mean struct {
	sum fixed
	n   int
}

func (m *Mean) Add(v sql.NullFloat64) {
	if !v.Valid {
		return
	}
	m.sum += toFixed(v.Float64)
	m.n++
}

func (m *Mean) addValue(v float64) {
	m.Add(sql.NullFloat64{Float64: v, Valid: true})
}

func (m *Mean) merge(o Mean) {
	m.sum += o.sum
	m.n += o.n
}

// Value reports false when nothing was added.
func (m Mean) Value() (float64, bool) {
	if m.n == 0 {
		return 0, false
	}
	return m.sum.float() / float64(m.n), true
}

func (m Mean) Count() int { return m.n }

func (m Mean) Sum() float64 { return m.sum.float() }

func (m Mean) ptr() *float64 {
	v, ok := m.Value()
	if !ok {
		return nil
	}
	return &v
}
