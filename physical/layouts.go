package physical

import "fmt"

// motorPositions are the arm tips of the reference quadcopter:
// front-right, front-left, back-left, back-right.
var motorPositions = [4]Position{
	{X: 7, Y: 7},
	{X: 7, Y: -7},
	{X: -7, Y: -7},
	{X: -7, Y: 7},
}

// MotorCount is the number of motor controllers on the reference layout.
const MotorCount = len(motorPositions)

// QuadcopterLayout builds the reference quadcopter topology: avionics at
// the centre, sensors forward, battery aft and four motor controllers on
// the arms.
func QuadcopterLayout() (*Topology, error) {
	t := NewTopology()

	for _, c := range []Component{
		{ID: FlightController, Position: Position{}, WeightG: 30, PowerMW: 500, HeatC: 10},
		{ID: MainProcessor, Position: Position{X: 2}, WeightG: 50, PowerMW: 2000, HeatC: 20},
		{ID: PowerDistribution, Position: Position{X: -2, Z: -1}, WeightG: 40, PowerMW: 100, HeatC: 15},
		{ID: Battery, Position: Position{X: -5, Z: -2}, WeightG: 200, PowerMW: 0, HeatC: 5},
		{ID: GPS, Position: Position{Z: 3}, WeightG: 15, PowerMW: 80, HeatC: 2},
		{ID: IMU, Position: Position{X: 0.5}, WeightG: 10, PowerMW: 50, HeatC: 1},
		{ID: Camera, Position: Position{X: 5, Z: -2}, WeightG: 35, PowerMW: 350, HeatC: 5},
		{ID: Lidar, Position: Position{X: 4, Z: -1}, WeightG: 60, PowerMW: 800, HeatC: 8},
		{ID: RadioLink, Position: Position{Z: 2}, WeightG: 20, PowerMW: 1000, HeatC: 12},
		{ID: CommunicationHub, Position: Position{X: 1}, WeightG: 15, PowerMW: 300, HeatC: 4},
	} {
		t.AddComponent(c)
	}
	for i, pos := range motorPositions {
		t.AddComponent(Component{ID: MotorController(i), Position: pos, WeightG: 25, PowerMW: 250, HeatC: 15})
	}
	t.AddComponent(Component{ID: SensorHub, Position: Position{X: 3}, WeightG: 20, PowerMW: 150, HeatC: 3})

	type link struct {
		from, to ComponentID
		ct       ConnectionType
	}
	links := []link{
		{FlightController, MainProcessor, PcbTrace(20, 2)},
		{FlightController, IMU, PcbTrace(10, 1)},
		{FlightController, PowerDistribution, Copper(22, 4, true)},
		{PowerDistribution, Battery, Copper(18, 2, true)},
	}
	for i := range motorPositions {
		links = append(links,
			link{FlightController, MotorController(i), Copper(24, 3, false)},
			link{PowerDistribution, MotorController(i), Copper(20, 2, false)},
		)
	}
	links = append(links,
		link{MainProcessor, SensorHub, PcbTrace(25, 2)},
		link{MainProcessor, CommunicationHub, PcbTrace(30, 2)},
		link{CommunicationHub, RadioLink, Copper(24, 6, true)},
		link{SensorHub, Camera, Copper(26, 8, false)},
		link{SensorHub, Lidar, Copper(24, 6, true)},
		link{SensorHub, GPS, Copper(26, 4, true)},
		link{GPS, RadioLink, Wireless(1575, 100)},
	)

	for _, l := range links {
		if err := t.Connect(l.from, l.to, l.ct); err != nil {
			return nil, fmt.Errorf("quadcopter layout: %w", err)
		}
	}
	return t, nil
}

// QuadcopterEMCProfile returns the emission sources and susceptibilities
// matching QuadcopterLayout.
func QuadcopterEMCProfile() *EmcProfile {
	p := NewEmcProfile()

	for i := range motorPositions {
		p.AddSource(EmissionSource{Component: MotorController(i), Type: Magnetic, Strength: 8, FalloffRate: 2})
	}
	p.AddSource(EmissionSource{Component: RadioLink, Type: RadioFrequency(2400), Strength: 7, FalloffRate: 2})
	p.AddSource(EmissionSource{Component: PowerDistribution, Type: Electrical, Strength: 6, FalloffRate: 1.8})

	p.SetSusceptibility(GPS, RadioFrequency(2400), 0.9)
	p.SetSusceptibility(IMU, Magnetic, 0.8)
	for _, id := range []ComponentID{FlightController, MainProcessor, SensorHub, Camera, Lidar} {
		p.SetSusceptibility(id, Electrical, 0.5)
	}

	return p
}
