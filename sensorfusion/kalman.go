package sensorfusion

import (
	"math"

	"github.com/signalsfoundry/uav-ooda-simulator/model"
)

// KalmanConfig tunes the position filter.
type KalmanConfig struct {
	ProcessNoise float64
	// SensorWeights weights IMU and GPS contributions. Reserved for the
	// weighted variant of the filter.
	SensorWeights [2]float64
}

// DefaultKalmanConfig is a moderately trusting filter.
func DefaultKalmanConfig() KalmanConfig {
	return KalmanConfig{ProcessNoise: 0.1, SensorWeights: [2]float64{0.5, 0.5}}
}

// GPSMeasurement is a GPS fix projected into the filter's frame.
type GPSMeasurement struct {
	Position model.Vec3
	Variance float64
}

// KalmanFilter is a scalar-covariance filter that dead-reckons on IMU
// acceleration and corrects on GPS fixes.
type KalmanFilter struct {
	state      model.Vec3
	covariance float64
	cfg        KalmanConfig
}

// NewKalmanFilter starts at the origin with unit covariance.
func NewKalmanFilter(cfg KalmanConfig) *KalmanFilter {
	return &KalmanFilter{covariance: 1.0, cfg: cfg}
}

// Update runs one predict step from imu over dt seconds and, when gps is
// non-nil, one correction step.
func (k *KalmanFilter) Update(imu model.IMUReading, gps *GPSMeasurement, dt float64) {
	k.state = k.state.Add(imu.Accel.Scale(dt))
	k.covariance += k.cfg.ProcessNoise

	if gps == nil {
		return
	}
	gain := k.covariance / (k.covariance + gps.Variance)
	k.state = k.state.Add(gps.Position.Sub(k.state).Scale(gain))
	k.covariance *= 1 - gain
}

// Estimate returns the current position and a certainty in [0, 1].
func (k *KalmanFilter) Estimate() (model.Vec3, float64) {
	return k.state, clampUnit(1 - k.covariance)
}

// PositionEstimate is the output of Fuse.
type PositionEstimate struct {
	Position  model.Vec3
	Certainty float64
}

// fuseStep is the integration step used by Fuse, in seconds.
const fuseStep = 0.1

// Fuse runs a fresh filter over a single snapshot. GPS latitude, longitude
// and altitude are taken as x, y and z, and the fix accuracy as variance.
func Fuse(data model.SensorData, cfg KalmanConfig) PositionEstimate {
	kf := NewKalmanFilter(cfg)

	var gps *GPSMeasurement
	if data.GPS != nil {
		gps = &GPSMeasurement{
			Position: model.Vec3{X: data.GPS.Latitude, Y: data.GPS.Longitude, Z: data.GPS.AltitudeM},
			Variance: data.GPS.AccuracyM,
		}
	}
	kf.Update(data.IMU, gps, fuseStep)

	pos, certainty := kf.Estimate()
	return PositionEstimate{Position: pos, Certainty: certainty}
}

func clampUnit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
