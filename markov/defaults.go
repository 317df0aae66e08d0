package markov

// Environment state labels of the default model. The OODA classifier and
// decision rules refer to these names.
const (
	StateClear       = "clear"
	StateLightRain   = "light_rain"
	StateHeavyRain   = "heavy_rain"
	StateFog         = "fog"
	StateUrbanCanyon = "urban_canyon"
	StateForest      = "forest"
	StateMountainous = "mountainous"
)

// DefaultEnvironmentStates returns the seven default environment labels in
// matrix order.
func DefaultEnvironmentStates() []string {
	return []string{
		StateClear,
		StateLightRain,
		StateHeavyRain,
		StateFog,
		StateUrbanCanyon,
		StateForest,
		StateMountainous,
	}
}

// DefaultTransitionMatrix returns transition probabilities matching
// DefaultEnvironmentStates. Weather states drift towards neighbouring
// weather; terrain states are sticky.
func DefaultTransitionMatrix() [][]float64 {
	return [][]float64{
		{0.70, 0.10, 0.05, 0.05, 0.05, 0.03, 0.02},
		{0.20, 0.50, 0.20, 0.05, 0.02, 0.02, 0.01},
		{0.10, 0.30, 0.40, 0.10, 0.05, 0.03, 0.02},
		{0.10, 0.10, 0.10, 0.50, 0.10, 0.05, 0.05},
		{0.05, 0.05, 0.05, 0.05, 0.70, 0.05, 0.05},
		{0.05, 0.05, 0.05, 0.05, 0.05, 0.70, 0.05},
		{0.05, 0.05, 0.05, 0.05, 0.05, 0.05, 0.70},
	}
}

// NewDefault builds the default seven-state model starting in clear.
func NewDefault(opts ...Option) *EnvironmentModel {
	return MustNew(DefaultEnvironmentStates(), DefaultTransitionMatrix(), 0, opts...)
}
