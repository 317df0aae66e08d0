package model

import "time"

// StandardGravity is the IMU z-axis reading of a level, stationary airframe.
const StandardGravity = 9.81

// IMUReading is one inertial sample.
type IMUReading struct {
	Accel     Vec3
	Gyro      Vec3
	Timestamp time.Time
}

// LevelIMU returns the reading of a level airframe at rest.
func LevelIMU(at time.Time) IMUReading {
	return IMUReading{Accel: Vec3{Z: StandardGravity}, Timestamp: at}
}

// GPSPosition is a geodetic fix.
type GPSPosition struct {
	Latitude  float64
	Longitude float64
	AltitudeM float64
	// AccuracyM is the horizontal accuracy estimate, used as measurement
	// variance by the position filter.
	AccuracyM float64
}

// PayloadStatus is the power draw and state reported by the payload.
type PayloadStatus struct {
	PowerW      float64
	Operational bool
}

// SensorData is one observation snapshot.
type SensorData struct {
	IMU              IMUReading
	GPS              *GPSPosition
	LidarRangeM      *float64
	RadarContacts    []RadarContact
	OperatorMessages int
	Payload          PayloadStatus
}

// HasGPSFix reports whether the snapshot carries a GPS position.
func (d SensorData) HasGPSFix() bool { return d.GPS != nil }
