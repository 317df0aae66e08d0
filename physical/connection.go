package physical

import (
	"fmt"
	"math"
)

// ConnectionKind is the physical medium of a connection.
type ConnectionKind int

const (
	ConnectionCopper ConnectionKind = iota
	ConnectionFiberOptic
	ConnectionPcbTrace
	ConnectionWireless
)

func (k ConnectionKind) String() string {
	switch k {
	case ConnectionCopper:
		return "copper"
	case ConnectionFiberOptic:
		return "fiber"
	case ConnectionPcbTrace:
		return "pcb"
	case ConnectionWireless:
		return "wireless"
	default:
		return "unknown"
	}
}

// ConnectionType describes how two components are physically joined. Only
// the fields of the active Kind are meaningful; build values with Copper,
// FiberOptic, PcbTrace or Wireless.
type ConnectionType struct {
	kind ConnectionKind

	// Copper
	Gauge    int // AWG, lower is thicker
	Wires    int
	Shielded bool

	// FiberOptic
	SingleMode    bool
	BandwidthGbps float64

	// PcbTrace
	WidthMils int
	Layers    int

	// Wireless
	FrequencyMHz float64
	TxPowerMW    float64
}

// Copper is a copper cable of the given AWG gauge.
func Copper(gauge, wires int, shielded bool) ConnectionType {
	return ConnectionType{kind: ConnectionCopper, Gauge: gauge, Wires: wires, Shielded: shielded}
}

// FiberOptic is an optical link with the given capacity.
func FiberOptic(singleMode bool, bandwidthGbps float64) ConnectionType {
	return ConnectionType{kind: ConnectionFiberOptic, SingleMode: singleMode, BandwidthGbps: bandwidthGbps}
}

// PcbTrace is a board trace crossing the given number of layers.
func PcbTrace(widthMils, layers int) ConnectionType {
	return ConnectionType{kind: ConnectionPcbTrace, WidthMils: widthMils, Layers: layers}
}

// Wireless is a radio hop at the given carrier frequency and transmit power.
func Wireless(frequencyMHz, txPowerMW float64) ConnectionType {
	return ConnectionType{kind: ConnectionWireless, FrequencyMHz: frequencyMHz, TxPowerMW: txPowerMW}
}

// Kind reports the medium variant.
func (ct ConnectionType) Kind() ConnectionKind { return ct.kind }

func (ct ConnectionType) validate() error {
	switch ct.kind {
	case ConnectionCopper:
		if ct.Wires <= 0 {
			return fmt.Errorf("%w: copper needs at least one wire", ErrInvalidConnection)
		}
	case ConnectionFiberOptic:
		if ct.BandwidthGbps <= 0 {
			return fmt.Errorf("%w: fiber bandwidth must be positive", ErrInvalidConnection)
		}
	case ConnectionPcbTrace:
		if ct.WidthMils <= 0 || ct.Layers < 1 {
			return fmt.Errorf("%w: pcb trace needs positive width and at least one layer", ErrInvalidConnection)
		}
	case ConnectionWireless:
		if ct.TxPowerMW <= 0 || ct.FrequencyMHz <= 0 {
			return fmt.Errorf("%w: wireless needs positive frequency and transmit power", ErrInvalidConnection)
		}
	default:
		return fmt.Errorf("%w: unknown connection kind %d", ErrInvalidConnection, ct.kind)
	}
	return nil
}

// Connection is a derived physical link between two components. Metrics
// are computed once from the ConnectionType and the endpoint distance.
type Connection struct {
	Type ConnectionType
	From ComponentID
	To   ComponentID

	LengthCm        float64
	MaxDataRateMbps float64
	LatencyNsPerCm  float64
	// ErrorRate is bit errors per 10^9 bits.
	ErrorRate float64
	PowerMW   float64
}

// referenceMessageBits is the size of the message used to express
// reliability as a percentage (1 KiB).
const referenceMessageBits = 1024 * 8

// Latency returns the propagation delay across the connection in nanoseconds.
func (c *Connection) Latency() float64 {
	return c.LengthCm * c.LatencyNsPerCm
}

// Reliability returns the probability, as a percentage in [0, 100], that a
// 1 KiB message crosses the connection without a bit error.
func (c *Connection) Reliability() float64 {
	pBit := c.ErrorRate / 1e9
	if pBit <= 0 {
		return 100
	}
	if pBit >= 1 {
		return 0
	}
	return clampPercent(math.Pow(1-pBit, referenceMessageBits) * 100)
}

func newConnection(from, to ComponentID, ct ConnectionType, distance float64) *Connection {
	c := &Connection{Type: ct, From: from, To: to, LengthCm: distance}

	switch ct.kind {
	case ConnectionCopper:
		resistancePerCm := copperResistancePerCm(ct.Gauge)
		errorMultiplier := 1.0
		if ct.Shielded {
			errorMultiplier = 0.2
		}
		c.MaxDataRateMbps = copperBaseRateMbps(ct.Gauge) * (float64(ct.Wires) / 4.0)
		c.LatencyNsPerCm = 0.5
		c.ErrorRate = 0.1 * distance * resistancePerCm * errorMultiplier
		c.PowerMW = distance * resistancePerCm * 10.0

	case ConnectionFiberOptic:
		modeFactor := 0.01
		if ct.SingleMode {
			modeFactor = 0.001
		}
		c.MaxDataRateMbps = ct.BandwidthGbps * 1000.0
		c.LatencyNsPerCm = 0.33
		c.ErrorRate = modeFactor * distance / 100.0
		// Transceiver pair draw, independent of length.
		c.PowerMW = 50.0

	case ConnectionPcbTrace:
		crossLayerPenalty := float64(ct.Layers-1) * 0.1
		c.MaxDataRateMbps = (float64(ct.WidthMils) / 10.0) * 1000.0
		c.LatencyNsPerCm = 0.3 + crossLayerPenalty
		c.ErrorRate = 0.001 * distance / 10.0 * crossLayerPenalty
		c.PowerMW = distance * 0.1 * (10.0 / float64(ct.WidthMils))

	case ConnectionWireless:
		freqFactor := ct.FrequencyMHz / 1000.0
		c.MaxDataRateMbps = wirelessRateMbps(ct.FrequencyMHz)
		c.LatencyNsPerCm = 0.33
		c.ErrorRate = (distance * freqFactor) / ct.TxPowerMW * 10.0
		c.PowerMW = ct.TxPowerMW
	}

	return c
}

func copperResistancePerCm(gauge int) float64 {
	switch gauge {
	case 22:
		return 0.0005
	case 24:
		return 0.0008
	case 26:
		return 0.0013
	default:
		return 0.001
	}
}

func copperBaseRateMbps(gauge int) float64 {
	switch gauge {
	case 22:
		return 100
	case 24:
		return 50
	case 26:
		return 25
	default:
		return 10
	}
}

func wirelessRateMbps(frequencyMHz float64) float64 {
	switch {
	case frequencyMHz < 1000:
		return 10
	case frequencyMHz < 2500:
		return 54
	case frequencyMHz < 6000:
		return 1200
	default:
		return 3000
	}
}

func clampPercent(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// PairKey is the order-independent key of a connection. A is always the
// lexically smaller ID.
type PairKey struct {
	A, B ComponentID
}

// NewPairKey canonicalises an endpoint pair.
func NewPairKey(x, y ComponentID) PairKey {
	if y < x {
		x, y = y, x
	}
	return PairKey{A: x, B: y}
}

func (k PairKey) String() string {
	return string(k.A) + "<->" + string(k.B)
}
