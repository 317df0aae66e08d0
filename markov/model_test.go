package markov

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// sequence replays fixed samples, cycling when exhausted.
type sequence struct {
	vals []float64
	i    int
}

func (s *sequence) Float64() float64 {
	v := s.vals[s.i%len(s.vals)]
	s.i++
	return v
}

func threeStates() ([]string, [][]float64) {
	return []string{"clear", "rain", "fog"}, [][]float64{
		{0.7, 0.2, 0.1},
		{0.3, 0.4, 0.3},
		{0.2, 0.3, 0.5},
	}
}

func TestNewValidModel(t *testing.T) {
	states, matrix := threeStates()
	m, err := New(states, matrix, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := m.CurrentState(); got != "clear" {
		t.Fatalf("CurrentState = %q, want clear", got)
	}
	p, err := m.TransitionProbability(1)
	if err != nil || p != 0.2 {
		t.Fatalf("TransitionProbability(1) = %v, %v; want 0.2", p, err)
	}
}

func TestNewRejectsBadDefinitions(t *testing.T) {
	cases := map[string]struct {
		states  []string
		matrix  [][]float64
		initial int
	}{
		"extra row": {
			states:  []string{"clear", "rain"},
			matrix:  [][]float64{{0.7, 0.3}, {0.4, 0.6}, {0.2, 0.8}},
			initial: 0,
		},
		"row sums to 1.2": {
			states:  []string{"clear", "rain"},
			matrix:  [][]float64{{0.7, 0.5}, {0.4, 0.6}},
			initial: 0,
		},
		"short row": {
			states:  []string{"clear", "rain"},
			matrix:  [][]float64{{1.0}, {0.4, 0.6}},
			initial: 0,
		},
		"initial out of range": {
			states:  []string{"clear", "rain"},
			matrix:  [][]float64{{0.5, 0.5}, {0.4, 0.6}},
			initial: 2,
		},
		"negative initial": {
			states:  []string{"clear", "rain"},
			matrix:  [][]float64{{0.5, 0.5}, {0.4, 0.6}},
			initial: -1,
		},
		"negative probability": {
			states:  []string{"clear", "rain"},
			matrix:  [][]float64{{1.5, -0.5}, {0.4, 0.6}},
			initial: 0,
		},
		"duplicate state": {
			states:  []string{"clear", "clear"},
			matrix:  [][]float64{{0.5, 0.5}, {0.4, 0.6}},
			initial: 0,
		},
		"empty": {},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := New(tc.states, tc.matrix, tc.initial); !errors.Is(err, ErrConstruction) {
				t.Fatalf("New error = %v, want ErrConstruction", err)
			}
		})
	}
}

func TestNewToleratesRounding(t *testing.T) {
	_, err := New([]string{"a", "b"}, [][]float64{{0.33333, 0.66666}, {0.5, 0.5}}, 1)
	if err != nil {
		t.Fatalf("New with row sum 0.99999: %v", err)
	}
}

func TestNewCopiesInputs(t *testing.T) {
	states, matrix := threeStates()
	m := MustNew(states, matrix, 0)
	matrix[0][0] = 0
	states[0] = "mutated"

	if p, _ := m.TransitionProbability(0); p != 0.7 {
		t.Fatalf("model aliased caller matrix: p = %v", p)
	}
	if m.CurrentState() != "clear" {
		t.Fatalf("model aliased caller states")
	}
}

func TestMustNewPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("MustNew did not panic")
		}
	}()
	MustNew([]string{"a"}, [][]float64{{0.5}}, 0)
}

func TestUpdateState(t *testing.T) {
	states, matrix := threeStates()
	m := MustNew(states, matrix, 0, WithRandomSource(&sequence{vals: []float64{0.95}}))

	rain := 1
	if err := m.UpdateState(&rain); err != nil {
		t.Fatalf("UpdateState(1): %v", err)
	}
	if m.CurrentState() != "rain" {
		t.Fatalf("CurrentState = %q, want rain", m.CurrentState())
	}

	bad := 3
	if err := m.UpdateState(&bad); !errors.Is(err, ErrStateOutOfRange) {
		t.Fatalf("UpdateState(3) error = %v, want ErrStateOutOfRange", err)
	}
	if m.CurrentIndex() != 1 {
		t.Fatalf("failed update changed state to %d", m.CurrentIndex())
	}

	// From rain, 0.95 lands in the last bucket (cumulative 0.7..1.0).
	if err := m.UpdateState(nil); err != nil {
		t.Fatalf("UpdateState(nil): %v", err)
	}
	if m.CurrentState() != "fog" {
		t.Fatalf("CurrentState after prediction = %q, want fog", m.CurrentState())
	}
}

func TestPredictNextStateWalksRow(t *testing.T) {
	states, matrix := threeStates()
	cases := []struct {
		sample float64
		want   int
	}{
		{0.0, 0},
		{0.69, 0},
		{0.7, 1},
		{0.89, 1},
		{0.9, 2},
		{0.999, 2},
	}
	for _, tc := range cases {
		m := MustNew(states, matrix, 0, WithRandomSource(&sequence{vals: []float64{tc.sample}}))
		if got := m.PredictNextState(); got != tc.want {
			t.Fatalf("PredictNextState(sample=%v) = %d, want %d", tc.sample, got, tc.want)
		}
		if m.CurrentIndex() != 0 {
			t.Fatalf("PredictNextState mutated the current state")
		}
	}
}

func TestPredictNextStateFallsBackToCurrent(t *testing.T) {
	// Row sums to 0.99995, inside tolerance, so a sample of 0.99999 trips no
	// bucket.
	m := MustNew([]string{"a", "b"}, [][]float64{{0.5, 0.5}, {0.49995, 0.5}}, 1,
		WithRandomSource(&sequence{vals: []float64{0.99999}}))
	if got := m.PredictNextState(); got != 1 {
		t.Fatalf("PredictNextState = %d, want current state 1", got)
	}
}

func TestMostLikelyNextState(t *testing.T) {
	states, matrix := threeStates()
	m := MustNew(states, matrix, 0)
	for i, want := range []int{0, 1, 2} {
		_ = m.Observe(i)
		if got := m.MostLikelyNextState(); got != want {
			t.Fatalf("from %d MostLikelyNextState = %d, want %d", i, got, want)
		}
	}

	tied := MustNew([]string{"a", "b", "c"}, [][]float64{{0.4, 0.4, 0.2}, {0.2, 0.4, 0.4}, {1, 0, 0}}, 0)
	if got := tied.MostLikelyNextState(); got != 0 {
		t.Fatalf("tie MostLikelyNextState = %d, want first index 0", got)
	}
	_ = tied.Observe(1)
	if got := tied.MostLikelyNextState(); got != 1 {
		t.Fatalf("tie MostLikelyNextState = %d, want first index 1", got)
	}
}

func TestStateLookups(t *testing.T) {
	m := NewDefault()
	if n := m.NumStates(); n != 7 {
		t.Fatalf("NumStates = %d, want 7", n)
	}
	i, ok := m.StateIndex(StateUrbanCanyon)
	if !ok || i != 4 {
		t.Fatalf("StateIndex(urban_canyon) = %d, %v", i, ok)
	}
	name, err := m.StateName(6)
	if err != nil || name != StateMountainous {
		t.Fatalf("StateName(6) = %q, %v", name, err)
	}
	if _, err := m.StateName(7); !errors.Is(err, ErrStateOutOfRange) {
		t.Fatalf("StateName(7) error = %v", err)
	}
	if _, err := m.TransitionProbability(-1); !errors.Is(err, ErrStateOutOfRange) {
		t.Fatalf("TransitionProbability(-1) error = %v", err)
	}
	if _, ok := m.StateIndex("snow"); ok {
		t.Fatalf("StateIndex(snow) found")
	}
}

func TestString(t *testing.T) {
	states, matrix := threeStates()
	s := MustNew(states, matrix, 2).String()
	if !strings.HasPrefix(s, "current state: fog (2)") {
		t.Fatalf("String() = %q", s)
	}
	if !strings.Contains(s, "from rain: clear=0.30 rain=0.40 fog=0.30") {
		t.Fatalf("String() missing rain row: %q", s)
	}
}

func TestDefaultRowsSumToOne(t *testing.T) {
	m := NewDefault()
	for i := range m.NumStates() {
		row, err := m.Row(i)
		if err != nil {
			t.Fatalf("Row(%d): %v", i, err)
		}
		sum := 0.0
		for _, p := range row {
			sum += p
		}
		if math.Abs(sum-1) > rowSumTolerance {
			t.Fatalf("row %d sums to %v", i, sum)
		}
	}
}

func TestPredictionDistributionMatchesRow(t *testing.T) {
	const draws = 100_000

	m := NewDefault(WithSeed(42))
	for from := range m.NumStates() {
		if err := m.Observe(from); err != nil {
			t.Fatal(err)
		}
		counts := make([]int, m.NumStates())
		for range draws {
			counts[m.PredictNextState()]++
		}

		row, _ := m.Row(from)
		for to, p := range row {
			got := float64(counts[to]) / draws
			// Five standard deviations of a binomial proportion.
			tol := 5 * math.Sqrt(p*(1-p)/draws)
			if math.Abs(got-p) > tol+1e-3 {
				t.Fatalf("from %d to %d: empirical %.4f, configured %.4f", from, to, got, p)
			}
		}
	}
}

func TestModelProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("prediction is always a valid index", prop.ForAll(
		func(seed uint64, start int) bool {
			m := NewDefault(WithSeed(seed))
			if err := m.Observe(start); err != nil {
				return false
			}
			for range 50 {
				next := m.Advance()
				if next < 0 || next >= m.NumStates() {
					return false
				}
			}
			return true
		},
		gen.UInt64(),
		gen.IntRange(0, 6),
	))

	properties.Property("normalised random rows construct and sum to one", prop.ForAll(
		func(weights []float64) bool {
			n := len(weights)
			states := make([]string, n)
			matrix := make([][]float64, n)
			total := 0.0
			for _, w := range weights {
				total += w
			}
			for i := range n {
				states[i] = string(rune('a' + i))
				row := make([]float64, n)
				for j, w := range weights {
					row[(i+j)%n] = w / total
				}
				matrix[i] = row
			}
			m, err := New(states, matrix, 0)
			if err != nil {
				return false
			}
			for i := range n {
				row, _ := m.Row(i)
				sum := 0.0
				for _, p := range row {
					sum += p
				}
				if math.Abs(sum-1) > rowSumTolerance {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(5, gen.Float64Range(0.01, 10)),
	))

	properties.Property("rows off by more than tolerance are rejected", prop.ForAll(
		func(excess float64) bool {
			_, err := New([]string{"a", "b"}, [][]float64{{0.5, 0.5 + excess}, {0.5, 0.5}}, 0)
			return errors.Is(err, ErrConstruction)
		},
		gen.Float64Range(0.001, 5),
	))

	properties.TestingRun(t)
}
