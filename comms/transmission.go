package comms

import (
	"math"
	"time"

	"github.com/signalsfoundry/uav-ooda-simulator/model"
	"github.com/signalsfoundry/uav-ooda-simulator/physical"
)

// RadioPath is the internal route an outbound message takes from the
// processor to the antenna.
var RadioPath = []physical.ComponentID{
	physical.MainProcessor,
	physical.CommunicationHub,
	physical.RadioLink,
}

// FallbackRadioPathLatency is used when no topology is attached or the
// radio path is not fully connected.
const FallbackRadioPathLatency = 150 * time.Microsecond

const speedOfLightMps = 299_792_458.0

// Nominal air rates for links whose configuration does not state one.
const (
	mavlinkRateMbps  = 0.25
	militaryRateMbps = 10.0
	loraBandwidthHz  = 125_000.0
	loraCodingRate   = 4.0 / 5.0
)

// DataRateMbps returns the nominal air data rate of a link.
func DataRateMbps(lt model.LinkType) float64 {
	switch lt.Kind() {
	case model.LinkMAVLink:
		return mavlinkRateMbps
	case model.LinkLoRa:
		sf := float64(lt.SpreadingFactor)
		if sf <= 0 {
			return 0
		}
		bps := sf * loraBandwidthHz / float64(uint(1)<<lt.SpreadingFactor) * loraCodingRate
		return bps / 1e6
	case model.LinkWiFiDirect:
		return float64(lt.BandwidthMbps)
	case model.LinkMilitaryEncrypted:
		return militaryRateMbps
	default:
		return 0
	}
}

// BaseLossProbability is the per-message loss a link suffers on air,
// independent of the airframe wiring.
func BaseLossProbability(lt model.LinkType) float64 {
	switch lt.Kind() {
	case model.LinkMAVLink:
		return 0.01
	case model.LinkLoRa:
		return 0.05
	case model.LinkWiFiDirect:
		return 0.02
	case model.LinkMilitaryEncrypted:
		return 0.005
	default:
		return 1
	}
}

// Transmission is the estimated cost of sending one message.
type Transmission struct {
	Link model.LinkType
	// Internal is the processor-to-antenna latency.
	Internal time.Duration
	// Serialization is the time to clock the payload onto the air.
	Serialization time.Duration
	// Propagation is the over-the-air flight time.
	Propagation time.Duration
	// LossProbability combines wiring reliability and link loss.
	LossProbability float64
	// UsedFallback is set when the internal path could not be resolved.
	UsedFallback bool
}

// Total is the end-to-end latency.
func (t Transmission) Total() time.Duration {
	return t.Internal + t.Serialization + t.Propagation
}

// EstimateTransmission estimates the latency and loss of sending a message
// of size bytes over the primary link to a receiver rangeM metres away.
func (h *Hub) EstimateTransmission(size int, rangeM float64) Transmission {
	h.mu.RLock()
	lt := h.primary.Type
	topo := h.topology
	h.mu.RUnlock()

	tx := Transmission{Link: lt}

	pathReliability := 100.0
	if topo != nil {
		lat, errLat := topo.PathLatency(RadioPath)
		rel, errRel := topo.PathReliability(RadioPath)
		if errLat == nil && errRel == nil {
			tx.Internal = time.Duration(lat)
			pathReliability = rel
		} else {
			tx.Internal = FallbackRadioPathLatency
			tx.UsedFallback = true
		}
	} else {
		tx.Internal = FallbackRadioPathLatency
		tx.UsedFallback = true
	}

	if rate := DataRateMbps(lt); rate > 0 && size > 0 {
		seconds := float64(size*8) / (rate * 1e6)
		tx.Serialization = time.Duration(math.Round(seconds * float64(time.Second)))
	}
	if rangeM > 0 {
		tx.Propagation = time.Duration(math.Round(rangeM / speedOfLightMps * float64(time.Second)))
	}

	delivered := (pathReliability / 100.0) * (1 - BaseLossProbability(lt))
	tx.LossProbability = 1 - delivered
	return tx
}
