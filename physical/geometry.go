package physical

import "math"

// Position is a component location relative to the airframe centre, in
// centimetres. X runs forward/backward, Y left/right and Z up/down.
type Position struct {
	X, Y, Z float64
}

// DistanceTo returns the straight-line distance between two positions.
func (p Position) DistanceTo(other Position) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	dz := p.Z - other.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Dimensions is the bounding-box estimate of the airframe in centimetres.
type Dimensions struct {
	WidthCm  float64
	LengthCm float64
	HeightCm float64
}

// grow widens d so that it covers pos, measured as full extent from the
// centre on each axis independently.
func (d Dimensions) grow(pos Position) Dimensions {
	return Dimensions{
		WidthCm:  math.Max(d.WidthCm, math.Abs(pos.Y)*2),
		LengthCm: math.Max(d.LengthCm, math.Abs(pos.X)*2),
		HeightCm: math.Max(d.HeightCm, math.Abs(pos.Z)*2),
	}
}
