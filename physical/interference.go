package physical

import (
	"fmt"
	"math"
)

// EmissionKind is the category of electromagnetic emission.
type EmissionKind int

const (
	EmissionMagnetic EmissionKind = iota
	EmissionElectrical
	EmissionRadioFrequency
)

func (k EmissionKind) String() string {
	switch k {
	case EmissionMagnetic:
		return "magnetic"
	case EmissionElectrical:
		return "electrical"
	case EmissionRadioFrequency:
		return "rf"
	default:
		return "unknown"
	}
}

// EmissionType identifies an emission category. RF emissions are further
// distinguished by carrier frequency; FrequencyMHz is zero otherwise.
type EmissionType struct {
	Kind         EmissionKind
	FrequencyMHz uint32
}

var (
	Magnetic   = EmissionType{Kind: EmissionMagnetic}
	Electrical = EmissionType{Kind: EmissionElectrical}
)

// RadioFrequency is an RF emission at the given carrier.
func RadioFrequency(mhz uint32) EmissionType {
	return EmissionType{Kind: EmissionRadioFrequency, FrequencyMHz: mhz}
}

func (e EmissionType) String() string {
	if e.Kind == EmissionRadioFrequency {
		return fmt.Sprintf("rf-%dmhz", e.FrequencyMHz)
	}
	return e.Kind.String()
}

// EmissionSource is a component that radiates interference.
type EmissionSource struct {
	Component ComponentID
	Type      EmissionType
	// Strength is relative, roughly 0-10.
	Strength float64
	// FalloffRate is the exponent of the inverse-power distance law.
	FalloffRate float64
}

// EmcProfile holds the emission sources of an airframe and how sensitive
// each component is to each emission type.
type EmcProfile struct {
	Sources        []EmissionSource
	Susceptibility map[ComponentID]map[EmissionType]float64
}

// NewEmcProfile returns an empty profile.
func NewEmcProfile() *EmcProfile {
	return &EmcProfile{
		Susceptibility: make(map[ComponentID]map[EmissionType]float64),
	}
}

// AddSource appends an emission source.
func (p *EmcProfile) AddSource(src EmissionSource) {
	p.Sources = append(p.Sources, src)
}

// SetSusceptibility records how strongly component reacts to emission.
func (p *EmcProfile) SetSusceptibility(component ComponentID, emission EmissionType, factor float64) {
	if p.Susceptibility == nil {
		p.Susceptibility = make(map[ComponentID]map[EmissionType]float64)
	}
	m, ok := p.Susceptibility[component]
	if !ok {
		m = make(map[EmissionType]float64)
		p.Susceptibility[component] = m
	}
	m[emission] = factor
}

func (p *EmcProfile) susceptibility(component ComponentID, emission EmissionType) float64 {
	if m, ok := p.Susceptibility[component]; ok {
		return m[emission]
	}
	return 0
}

// minEmissionDistanceCm keeps co-located components from producing an
// infinite intensity.
const minEmissionDistanceCm = 0.1

// ImmunityFactor scales raw interference by how well the medium rejects it.
func ImmunityFactor(ct ConnectionType) float64 {
	switch ct.Kind() {
	case ConnectionCopper:
		if ct.Shielded {
			return 0.2
		}
		return 1.0
	case ConnectionFiberOptic:
		return 0.01
	case ConnectionPcbTrace:
		return 0.5
	case ConnectionWireless:
		return 1.5
	default:
		return 1.0
	}
}

// CalculateInterferenceImpact scores every connection in topology by the
// interference reaching its endpoints. For each source not located at an
// endpoint, the worse of the two endpoint contributions is accumulated;
// the total is then scaled by the connection's immunity factor. Scores are
// unitless and only meaningful relative to each other.
func (p *EmcProfile) CalculateInterferenceImpact(topology *Topology) map[PairKey]float64 {
	impact := make(map[PairKey]float64)
	if topology == nil {
		return impact
	}

	for _, conn := range topology.Connections() {
		fromComp, okFrom := topology.Component(conn.From)
		toComp, okTo := topology.Component(conn.To)
		if !okFrom || !okTo {
			continue
		}

		total := 0.0
		for _, src := range p.Sources {
			if src.Component == conn.From || src.Component == conn.To {
				continue
			}
			srcComp, ok := topology.Component(src.Component)
			if !ok {
				continue
			}

			atFrom := intensity(src, srcComp.Position.DistanceTo(fromComp.Position)) *
				p.susceptibility(conn.From, src.Type)
			atTo := intensity(src, srcComp.Position.DistanceTo(toComp.Position)) *
				p.susceptibility(conn.To, src.Type)

			total += math.Max(atFrom, atTo)
		}

		impact[NewPairKey(conn.From, conn.To)] = total * ImmunityFactor(conn.Type)
	}

	return impact
}

func intensity(src EmissionSource, distanceCm float64) float64 {
	if distanceCm < minEmissionDistanceCm {
		distanceCm = minEmissionDistanceCm
	}
	return src.Strength / math.Pow(distanceCm, src.FalloffRate)
}
