package physical

import "fmt"

// ComponentID identifies a node in the airframe topology.
type ComponentID string

const (
	FlightController  ComponentID = "FlightController"
	MainProcessor     ComponentID = "MainProcessor"
	PowerDistribution ComponentID = "PowerDistribution"
	GPS               ComponentID = "GPS"
	IMU               ComponentID = "IMU"
	Camera            ComponentID = "Camera"
	Lidar             ComponentID = "Lidar"
	Radar             ComponentID = "Radar"
	RadioLink         ComponentID = "RadioLink"
	Battery           ComponentID = "Battery"
	SensorHub         ComponentID = "SensorHub"
	CommunicationHub  ComponentID = "CommunicationHub"
)

// MotorController returns the ID of the i-th motor controller.
func MotorController(i int) ComponentID {
	return ComponentID(fmt.Sprintf("MotorController-%d", i))
}

// Component is a physical part placed on the airframe.
type Component struct {
	ID       ComponentID
	Position Position
	WeightG  float64
	PowerMW  float64
	// HeatC is the temperature rise the component contributes when running.
	HeatC float64
}
