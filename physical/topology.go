package physical

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrComponentMissing  = errors.New("component not registered")
	ErrNoConnection      = errors.New("no connection between components")
	ErrPathTooShort      = errors.New("path must contain at least two components")
	ErrInvalidConnection = errors.New("invalid connection")
)

// Topology is the physical layout of one airframe: components, the
// connections derived between them, and running mass/power totals.
//
// A Topology is assembled once during configuration and is read-mostly
// afterwards. Methods are safe for concurrent use.
type Topology struct {
	mu sync.RWMutex

	components  map[ComponentID]*Component
	order       []ComponentID
	connections map[PairKey]*Connection
	connOrder   []PairKey

	// adjacency is rebuilt lazily after Connect and reused by ShortestPath.
	adjacency map[ComponentID][]neighbor

	totalWeightG float64
	totalPowerMW float64
	dimensions   Dimensions
}

type neighbor struct {
	id   ComponentID
	conn *Connection
}

// NewTopology returns an empty topology.
func NewTopology() *Topology {
	return &Topology{
		components:  make(map[ComponentID]*Component),
		connections: make(map[PairKey]*Connection),
	}
}

// AddComponent registers c and grows the mass, power and bounding-box totals.
// Re-adding an existing ID replaces the component: its connections are
// re-derived from the new position and the bounding box is recomputed.
func (t *Topology) AddComponent(c Component) {
	t.mu.Lock()
	defer t.mu.Unlock()

	comp := c
	prev, replaced := t.components[c.ID]
	t.components[c.ID] = &comp

	if !replaced {
		t.order = append(t.order, c.ID)
		t.totalWeightG += c.WeightG
		t.totalPowerMW += c.PowerMW
		t.dimensions = t.dimensions.grow(c.Position)
		return
	}

	t.totalWeightG += c.WeightG - prev.WeightG
	t.totalPowerMW += c.PowerMW - prev.PowerMW

	t.dimensions = Dimensions{}
	for _, id := range t.order {
		t.dimensions = t.dimensions.grow(t.components[id].Position)
	}

	for _, key := range t.connOrder {
		old := t.connections[key]
		if old.From != c.ID && old.To != c.ID {
			continue
		}
		src, dst := t.components[old.From], t.components[old.To]
		conn := newConnection(old.From, old.To, old.Type, src.Position.DistanceTo(dst.Position))
		t.totalPowerMW += conn.PowerMW - old.PowerMW
		t.connections[key] = conn
	}
	t.adjacency = nil
}

// Connect derives a connection of the given type between two registered
// components and stores it under the pair's canonical key. A second call
// for the same pair replaces the earlier connection.
func (t *Topology) Connect(from, to ComponentID, ct ConnectionType) error {
	if err := ct.validate(); err != nil {
		return fmt.Errorf("connect %s to %s: %w", from, to, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	src, ok := t.components[from]
	if !ok {
		return fmt.Errorf("%w: %s", ErrComponentMissing, from)
	}
	dst, ok := t.components[to]
	if !ok {
		return fmt.Errorf("%w: %s", ErrComponentMissing, to)
	}

	conn := newConnection(from, to, ct, src.Position.DistanceTo(dst.Position))

	key := NewPairKey(from, to)
	if prev, exists := t.connections[key]; exists {
		t.totalPowerMW -= prev.PowerMW
	} else {
		t.connOrder = append(t.connOrder, key)
	}
	t.connections[key] = conn
	t.totalPowerMW += conn.PowerMW
	t.adjacency = nil

	return nil
}

// Component returns the component with the given ID.
func (t *Topology) Component(id ComponentID) (Component, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.components[id]
	if !ok {
		return Component{}, false
	}
	return *c, true
}

// HasComponent reports whether id is registered.
func (t *Topology) HasComponent(id ComponentID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.components[id]
	return ok
}

// Components returns all components in registration order.
func (t *Topology) Components() []Component {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Component, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.components[id])
	}
	return out
}

// Connection returns the connection between a and b regardless of the
// order they were connected in.
func (t *Topology) Connection(a, b ComponentID) (*Connection, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.connections[NewPairKey(a, b)]
	return c, ok
}

// Connections returns all connections in the order they were first made.
func (t *Topology) Connections() []*Connection {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*Connection, 0, len(t.connOrder))
	for _, key := range t.connOrder {
		out = append(out, t.connections[key])
	}
	return out
}

// TotalWeightG is the summed component mass in grams.
func (t *Topology) TotalWeightG() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totalWeightG
}

// TotalPowerMW is the summed component and connection power draw.
func (t *Topology) TotalPowerMW() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totalPowerMW
}

// Dimensions returns the current bounding-box estimate.
func (t *Topology) Dimensions() Dimensions {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dimensions
}

// Summary is a compact description of a topology for logs and metrics.
type Summary struct {
	Components   int
	Connections  int
	TotalWeightG float64
	TotalPowerMW float64
	Dimensions   Dimensions
}

// Summary reports counts and totals.
func (t *Topology) Summary() Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Summary{
		Components:   len(t.components),
		Connections:  len(t.connections),
		TotalWeightG: t.totalWeightG,
		TotalPowerMW: t.totalPowerMW,
		Dimensions:   t.dimensions,
	}
}

// PathLatency sums the propagation latency in nanoseconds along path. Every
// consecutive pair must be connected.
func (t *Topology) PathLatency(path []ComponentID) (float64, error) {
	hops, err := t.resolvePath(path)
	if err != nil {
		return 0, err
	}
	total := 0.0
	for _, c := range hops {
		total += c.Latency()
	}
	return total, nil
}

// PathReliability composes per-hop reliability along path and returns the
// end-to-end percentage in [0, 100].
func (t *Topology) PathReliability(path []ComponentID) (float64, error) {
	hops, err := t.resolvePath(path)
	if err != nil {
		return 0, err
	}
	fraction := 1.0
	for _, c := range hops {
		fraction *= c.Reliability() / 100.0
	}
	return clampPercent(fraction * 100.0), nil
}

func (t *Topology) resolvePath(path []ComponentID) ([]*Connection, error) {
	if len(path) < 2 {
		return nil, ErrPathTooShort
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	hops := make([]*Connection, 0, len(path)-1)
	for i := 0; i < len(path)-1; i++ {
		c, ok := t.connections[NewPairKey(path[i], path[i+1])]
		if !ok {
			return nil, fmt.Errorf("%w: %s and %s", ErrNoConnection, path[i], path[i+1])
		}
		hops = append(hops, c)
	}
	return hops, nil
}

// neighbours returns the adjacency lists, building them on first use after
// a change. Callers must not hold the lock.
func (t *Topology) neighbours() map[ComponentID][]neighbor {
	t.mu.RLock()
	adj := t.adjacency
	t.mu.RUnlock()
	if adj != nil {
		return adj
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.adjacency == nil {
		t.adjacency = make(map[ComponentID][]neighbor, len(t.components))
		for _, key := range t.connOrder {
			c := t.connections[key]
			t.adjacency[c.From] = append(t.adjacency[c.From], neighbor{id: c.To, conn: c})
			t.adjacency[c.To] = append(t.adjacency[c.To], neighbor{id: c.From, conn: c})
		}
	}
	return t.adjacency
}
