// Package markov implements a discrete environment-state predictor driven by
// a row-stochastic transition matrix.
package markov

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
)

var (
	// ErrConstruction reports an unusable model definition. It is only ever
	// returned from New.
	ErrConstruction = errors.New("invalid markov model")
	// ErrStateOutOfRange reports a state index outside the configured states.
	ErrStateOutOfRange = errors.New("state index out of range")
)

// rowSumTolerance is the allowed deviation of a transition row from 1.0.
const rowSumTolerance = 1e-4

// RandomSource supplies uniform samples in [0, 1). *rand.Rand from
// math/rand/v2 satisfies it.
type RandomSource interface {
	Float64() float64
}

type globalSource struct{}

func (globalSource) Float64() float64 { return rand.Float64() }

// Option configures an EnvironmentModel.
type Option func(*EnvironmentModel)

// WithRandomSource sets the source used by PredictNextState.
func WithRandomSource(src RandomSource) Option {
	return func(m *EnvironmentModel) {
		if src != nil {
			m.rng = src
		}
	}
}

// WithSeed uses a deterministic PCG source seeded with seed.
func WithSeed(seed uint64) Option {
	return func(m *EnvironmentModel) {
		m.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// EnvironmentModel predicts how the operating environment evolves between
// control cycles. It is owned by a single loop and is not safe for
// concurrent use.
type EnvironmentModel struct {
	states  []string
	index   map[string]int
	matrix  [][]float64
	current int
	rng     RandomSource
}

// New validates and builds a model. Every row of matrix must have one entry
// per state and sum to 1 within 1e-4, and initial must index a state.
// Violations wrap ErrConstruction.
func New(states []string, matrix [][]float64, initial int, opts ...Option) (*EnvironmentModel, error) {
	if len(states) == 0 {
		return nil, fmt.Errorf("%w: no states", ErrConstruction)
	}
	if len(states) != len(matrix) {
		return nil, fmt.Errorf("%w: %d states but %d matrix rows", ErrConstruction, len(states), len(matrix))
	}

	index := make(map[string]int, len(states))
	for i, s := range states {
		if _, dup := index[s]; dup {
			return nil, fmt.Errorf("%w: duplicate state %q", ErrConstruction, s)
		}
		index[s] = i
	}

	rows := make([][]float64, len(matrix))
	for i, row := range matrix {
		if len(row) != len(states) {
			return nil, fmt.Errorf("%w: row %d has %d entries, want %d", ErrConstruction, i, len(row), len(states))
		}
		sum := 0.0
		for j, p := range row {
			if p < 0 || math.IsNaN(p) {
				return nil, fmt.Errorf("%w: row %d entry %d is %v", ErrConstruction, i, j, p)
			}
			sum += p
		}
		if math.Abs(sum-1.0) >= rowSumTolerance {
			return nil, fmt.Errorf("%w: row %d sums to %v, want 1.0", ErrConstruction, i, sum)
		}
		rows[i] = append([]float64(nil), row...)
	}

	if initial < 0 || initial >= len(states) {
		return nil, fmt.Errorf("%w: initial state %d not in [0, %d)", ErrConstruction, initial, len(states))
	}

	m := &EnvironmentModel{
		states:  append([]string(nil), states...),
		index:   index,
		matrix:  rows,
		current: initial,
		rng:     globalSource{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// MustNew is like New but panics on error. Use it only for compiled-in
// definitions.
func MustNew(states []string, matrix [][]float64, initial int, opts ...Option) *EnvironmentModel {
	m, err := New(states, matrix, initial, opts...)
	if err != nil {
		panic(err)
	}
	return m
}

// PredictNextState samples the next state from the current state's row. If
// rounding leaves the sample above the cumulative mass the current state is
// returned.
func (m *EnvironmentModel) PredictNextState() int {
	sample := m.rng.Float64()
	cumulative := 0.0
	for next, p := range m.matrix[m.current] {
		cumulative += p
		if sample < cumulative {
			return next
		}
	}
	return m.current
}

// UpdateState moves to observed when it is non-nil, otherwise to a sampled
// prediction.
func (m *EnvironmentModel) UpdateState(observed *int) error {
	if observed == nil {
		m.Advance()
		return nil
	}
	return m.Observe(*observed)
}

// Observe sets the current state after bounds checking.
func (m *EnvironmentModel) Observe(state int) error {
	if err := m.checkIndex(state); err != nil {
		return err
	}
	m.current = state
	return nil
}

// Advance moves to a sampled next state and returns it.
func (m *EnvironmentModel) Advance() int {
	m.current = m.PredictNextState()
	return m.current
}

// MostLikelyNextState is the argmax of the current row. The lowest index
// wins ties.
func (m *EnvironmentModel) MostLikelyNextState() int {
	row := m.matrix[m.current]
	best := 0
	for i := 1; i < len(row); i++ {
		if row[i] > row[best] {
			best = i
		}
	}
	return best
}

// CurrentIndex returns the current state index.
func (m *EnvironmentModel) CurrentIndex() int { return m.current }

// CurrentState returns the current state name.
func (m *EnvironmentModel) CurrentState() string { return m.states[m.current] }

// NumStates returns the number of configured states.
func (m *EnvironmentModel) NumStates() int { return len(m.states) }

// States returns a copy of the state names in index order.
func (m *EnvironmentModel) States() []string {
	return append([]string(nil), m.states...)
}

// StateName returns the name of state i.
func (m *EnvironmentModel) StateName(i int) (string, error) {
	if err := m.checkIndex(i); err != nil {
		return "", err
	}
	return m.states[i], nil
}

// StateIndex looks a state up by name.
func (m *EnvironmentModel) StateIndex(name string) (int, bool) {
	i, ok := m.index[name]
	return i, ok
}

// TransitionProbability is the probability of moving from the current state
// to target.
func (m *EnvironmentModel) TransitionProbability(target int) (float64, error) {
	if err := m.checkIndex(target); err != nil {
		return 0, err
	}
	return m.matrix[m.current][target], nil
}

// Row returns a copy of the transition row for state i.
func (m *EnvironmentModel) Row(i int) ([]float64, error) {
	if err := m.checkIndex(i); err != nil {
		return nil, err
	}
	return append([]float64(nil), m.matrix[i]...), nil
}

func (m *EnvironmentModel) checkIndex(i int) error {
	if i < 0 || i >= len(m.states) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrStateOutOfRange, i, len(m.states))
	}
	return nil
}

func (m *EnvironmentModel) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "current state: %s (%d)\n", m.CurrentState(), m.current)
	b.WriteString("transition probabilities:\n")
	for i, from := range m.states {
		fmt.Fprintf(&b, "  from %s:", from)
		for j, p := range m.matrix[i] {
			fmt.Fprintf(&b, " %s=%.2f", m.states[j], p)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
