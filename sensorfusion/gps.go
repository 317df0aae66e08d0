package sensorfusion

import (
	"sync"

	"github.com/signalsfoundry/uav-ooda-simulator/model"
)

// StaticGPS is a GPS receiver whose fix is set by the caller. The zero value
// has no fix.
type StaticGPS struct {
	mu  sync.RWMutex
	fix *model.GPSPosition
}

// NewStaticGPS returns a receiver holding pos.
func NewStaticGPS(pos model.GPSPosition) *StaticGPS {
	return &StaticGPS{fix: &pos}
}

// Fix returns a copy of the current fix, or nil.
func (g *StaticGPS) Fix() *model.GPSPosition {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.fix == nil {
		return nil
	}
	p := *g.fix
	return &p
}

func (g *StaticGPS) Set(pos model.GPSPosition) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fix = &pos
}

// Lose drops the fix.
func (g *StaticGPS) Lose() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fix = nil
}
