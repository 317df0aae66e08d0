package comms

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/signalsfoundry/uav-ooda-simulator/model"
	"github.com/signalsfoundry/uav-ooda-simulator/physical"
	"github.com/signalsfoundry/uav-ooda-simulator/timectrl"
)

var epoch = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

func TestNewHub(t *testing.T) {
	lt := model.MAVLink(2, 1000)
	hub := NewHub(lt, true)

	if got := hub.PrimaryLink(); got.Type != lt || !got.Encrypted {
		t.Fatalf("PrimaryLink() = %+v", got)
	}
	if len(hub.BackupLinks()) != 0 || len(hub.Operators()) != 0 || len(hub.RadarContacts()) != 0 {
		t.Fatalf("new hub is not empty")
	}
	if hub.Topology() != nil {
		t.Fatalf("new hub has a topology")
	}
}

func TestAdjustLinks(t *testing.T) {
	cases := []struct {
		p    Priority
		want model.LinkType
	}{
		{PriorityHigh, model.WiFiDirect(100, 36)},
		{PriorityMedium, model.MAVLink(2, 500)},
		{PriorityLow, model.LoRa(915, 10)},
	}
	clock := timectrl.NewVirtualClock(epoch)
	hub := NewHub(model.MilitaryEncrypted(30, "AES256-SHA256"), true, WithClock(clock))
	for _, tc := range cases {
		clock.Advance(time.Second)
		hub.AdjustLinks(tc.p)
		got := hub.PrimaryLink()
		if got.Type != tc.want {
			t.Fatalf("AdjustLinks(%v) primary = %v, want %v", tc.p, got.Type, tc.want)
		}
		if !got.LastActive.Equal(clock.Now()) {
			t.Fatalf("LastActive = %v, want %v", got.LastActive, clock.Now())
		}
		if !got.Encrypted {
			t.Fatalf("AdjustLinks dropped encryption flag")
		}
		if hub.Priority() != tc.p {
			t.Fatalf("Priority() = %v, want %v", hub.Priority(), tc.p)
		}
	}
}

func TestProcessCycle(t *testing.T) {
	hub := NewHub(model.MAVLink(2, 500), false)
	cases := []struct {
		cycle time.Duration
		want  Priority
	}{
		{50 * time.Millisecond, PriorityHigh},
		{99 * time.Millisecond, PriorityHigh},
		{100 * time.Millisecond, PriorityMedium},
		{300 * time.Millisecond, PriorityMedium},
		{500 * time.Millisecond, PriorityLow},
		{2 * time.Second, PriorityLow},
	}
	for _, tc := range cases {
		if got := hub.ProcessCycle(tc.cycle); got != tc.want {
			t.Fatalf("ProcessCycle(%v) = %v, want %v", tc.cycle, got, tc.want)
		}
	}
	if hub.PrimaryLink().Type.Kind() != model.LinkLoRa {
		t.Fatalf("slow cycle did not switch to LoRa")
	}
}

func TestOperatorsAndHeartbeats(t *testing.T) {
	clock := timectrl.NewVirtualClock(epoch)
	hub := NewHub(model.MAVLink(2, 500), false, WithClock(clock))
	lt := model.MAVLink(2, 500)

	hub.AddOperator("op-1", 5, []model.LinkType{lt})
	clock.Advance(3 * time.Second)
	hub.AddOperator("op-2", 2, nil)

	ops := hub.Operators()
	if len(ops) != 2 || ops[0].ID != "op-1" || ops[0].ClearanceLevel != 5 || ops[0].AssignedLinks[0] != lt {
		t.Fatalf("Operators() = %+v", ops)
	}
	if got := hub.ActiveOperators(5 * time.Second); got != 2 {
		t.Fatalf("ActiveOperators = %d, want 2", got)
	}

	clock.Advance(3 * time.Second)
	if got := hub.ActiveOperators(5 * time.Second); got != 1 {
		t.Fatalf("ActiveOperators after 6s = %d, want 1", got)
	}

	if err := hub.Heartbeat("op-1"); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if got := hub.ActiveOperators(5 * time.Second); got != 2 {
		t.Fatalf("ActiveOperators after heartbeat = %d, want 2", got)
	}
	if err := hub.Heartbeat("nobody"); !errors.Is(err, ErrUnknownOperator) {
		t.Fatalf("Heartbeat(nobody) error = %v", err)
	}
}

func TestRadarContactsAreCopied(t *testing.T) {
	hub := NewHub(model.MAVLink(2, 500), false)
	hub.AddRadarContact(model.RadarContact{DistanceM: 100, RelativeSpeedMps: 10})
	hub.SetRadarContacts([]model.RadarContact{{DistanceM: 1}, {DistanceM: 2}})

	got := hub.RadarContacts()
	if len(got) != 2 {
		t.Fatalf("RadarContacts len = %d, want 2", len(got))
	}
	got[0].DistanceM = 999
	if hub.RadarContacts()[0].DistanceM != 1 {
		t.Fatalf("RadarContacts returned internal slice")
	}

	hub.ClearRadarContacts()
	if len(hub.RadarContacts()) != 0 {
		t.Fatalf("ClearRadarContacts left contacts")
	}
}

func TestLogBeaconStampsTime(t *testing.T) {
	clock := timectrl.NewVirtualClock(epoch)
	hub := NewHub(model.LoRa(915, 10), false, WithClock(clock))
	hub.LogBeacon(model.NavigationBeacon{ID: "b1", Position: [2]float64{1, 2}, SignalStrength: 0.95})

	b := hub.Beacons()
	if len(b) != 1 || b[0].ID != "b1" || !b[0].ReceivedAt.Equal(epoch) {
		t.Fatalf("Beacons() = %+v", b)
	}
}

func TestSetTopology(t *testing.T) {
	topo := physical.NewTopology()
	hub := NewHub(model.MAVLink(2, 500), false)
	hub.SetTopology(topo)
	if hub.Topology() != topo {
		t.Fatalf("Topology() not the attached topology")
	}
	if NewHub(model.MAVLink(2, 500), false, WithTopology(topo)).Topology() != topo {
		t.Fatalf("WithTopology not applied")
	}
}

func TestEstimateTransmissionWithoutTopology(t *testing.T) {
	hub := NewHub(model.WiFiDirect(100, 36), false)
	tx := hub.EstimateTransmission(1250, 0)

	if !tx.UsedFallback || tx.Internal != FallbackRadioPathLatency {
		t.Fatalf("Internal = %v fallback=%v, want %v fallback", tx.Internal, tx.UsedFallback, FallbackRadioPathLatency)
	}
	// 10000 bits at 100 Mbps.
	if tx.Serialization != 100*time.Microsecond {
		t.Fatalf("Serialization = %v, want 100µs", tx.Serialization)
	}
	if tx.Propagation != 0 {
		t.Fatalf("Propagation = %v, want 0", tx.Propagation)
	}
	if math.Abs(tx.LossProbability-0.02) > 1e-12 {
		t.Fatalf("LossProbability = %v, want 0.02", tx.LossProbability)
	}
	if tx.Total() != tx.Internal+tx.Serialization {
		t.Fatalf("Total() = %v", tx.Total())
	}
}

func TestEstimateTransmissionUsesTopology(t *testing.T) {
	topo, err := physical.QuadcopterLayout()
	if err != nil {
		t.Fatalf("QuadcopterLayout: %v", err)
	}
	hub := NewHub(model.MAVLink(2, 500), false, WithTopology(topo))

	tx := hub.EstimateTransmission(0, 3000)
	if tx.UsedFallback {
		t.Fatalf("radio path should resolve on the reference layout")
	}
	want, _ := topo.PathLatency(RadioPath)
	if tx.Internal != time.Duration(want) {
		t.Fatalf("Internal = %v, want %v", tx.Internal, time.Duration(want))
	}
	// 3 km at c is about 10µs.
	if tx.Propagation < 9*time.Microsecond || tx.Propagation > 11*time.Microsecond {
		t.Fatalf("Propagation = %v, want ~10µs", tx.Propagation)
	}
	if tx.LossProbability < 0.01 || tx.LossProbability >= 1 {
		t.Fatalf("LossProbability = %v", tx.LossProbability)
	}
}

func TestEstimateTransmissionFallsBackOnBrokenPath(t *testing.T) {
	topo := physical.NewTopology()
	topo.AddComponent(physical.Component{ID: physical.MainProcessor})
	hub := NewHub(model.MAVLink(2, 500), false, WithTopology(topo))

	if tx := hub.EstimateTransmission(10, 0); !tx.UsedFallback || tx.Internal != FallbackRadioPathLatency {
		t.Fatalf("broken path did not fall back: %+v", tx)
	}
}

func TestDataRate(t *testing.T) {
	if got := DataRateMbps(model.LoRa(915, 10)); math.Abs(got-0.0009765625) > 1e-12 {
		t.Fatalf("LoRa SF10 rate = %v", got)
	}
	if got := DataRateMbps(model.LoRa(915, 0)); got != 0 {
		t.Fatalf("LoRa SF0 rate = %v, want 0", got)
	}
	if got := DataRateMbps(model.WiFiDirect(54, 6)); got != 54 {
		t.Fatalf("WiFi rate = %v", got)
	}
}

func TestQoSForPriority(t *testing.T) {
	hi := QoSForPriority(PriorityHigh)
	if hi.Name != "critical_control" || hi.Reliability != Reliable || !hi.History.KeepAll || hi.Deadline != 5*time.Millisecond {
		t.Fatalf("high priority QoS = %+v", hi)
	}
	med := QoSForPriority(PriorityMedium)
	if med.Name != "default" || med.History.Depth != 10 || med.LivelinessLease != time.Second {
		t.Fatalf("medium priority QoS = %+v", med)
	}
	lo := QoSForPriority(PriorityLow)
	if lo.Reliability != BestEffort || lo.History.Depth != 5 || lo.LivelinessLease != 5*time.Second {
		t.Fatalf("low priority QoS = %+v", lo)
	}

	hub := NewHub(model.MAVLink(2, 500), false)
	hub.AdjustLinks(PriorityHigh)
	if hub.QoS().Name != "critical_control" {
		t.Fatalf("hub QoS = %+v", hub.QoS())
	}
}
