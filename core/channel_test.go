package core

import (
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/signalsfoundry/rf-propagation-sim/model"
	"github.com/signalsfoundry/rf-propagation-sim/rfmath"
)

func newTx(t *testing.T, pos rfmath.Vec3, freq, power float64) *model.TransmitterEntity {
	t.Helper()
	tx := model.NewTransmitter("tx")
	tx.SetPosition(pos)
	tx.SetCarrierFrequency(freq)
	tx.SetPower(power)
	return tx
}

func newRx(t *testing.T, pos rfmath.Vec3, sensitivity float64) *model.ReceiverEntity {
	t.Helper()
	rx := model.NewReceiver("rx")
	rx.SetPosition(pos)
	rx.SetSensitivity(sensitivity)
	return rx
}

// concreteWall is an unbounded 20 cm concrete slab at x.
func concreteWall(t *testing.T, id string, x float64) *model.WallEntity {
	t.Helper()
	return newWall(t, id, fmt.Sprintf(`
position: [%g, 0, 0]
normal: [1, 0, 0]
thickness: 0.2
relative_permittivity: 5.31
conductivity: 0.0326
`, x))
}

func newWall(t *testing.T, id, cfg string) *model.WallEntity {
	t.Helper()
	w := model.NewWall(id)
	if err := w.ApplyConfiguration(cfg); err != nil {
		t.Fatalf("wall %s: %v", id, err)
	}
	return w
}

func TestFreeSpacePathLossAt10m(t *testing.T) {
	ch := NewRFChannel("ch")
	tx := newTx(t, rfmath.V3(0, 0, 0), 2.4e9, 20)
	rx := newRx(t, rfmath.V3(10, 0, 0), -80)

	loss := ch.PathLoss(tx, rx)
	if math.Abs(loss-60.05) > 0.1 {
		t.Fatalf("PathLoss = %.3f dB, want ~60.05", loss)
	}
	if received := tx.Power() - loss; received <= rx.Sensitivity() {
		t.Fatalf("received %.2f dBm does not exceed sensitivity", received)
	}

	res := ch.Evaluate(tx, rx)
	if !res.Viable || res.Quality != LinkQualityExcellent || res.Obstructions != 0 {
		t.Fatalf("Evaluate = %+v", res)
	}
	if res.FadingPower != 1 || res.FadingDb != 0 {
		t.Fatalf("free-space fading = %v (%v dB), want exactly 1", res.FadingPower, res.FadingDb)
	}
	if math.Abs(res.ReceivedPowerDbm-(20-loss)) > 1e-12 {
		t.Fatalf("received power = %v", res.ReceivedPowerDbm)
	}
}

func TestPathLossMonotonicInDistance(t *testing.T) {
	ch := NewRFChannel("ch")
	ch.AddObstacle(concreteWall(t, "w", 5))
	tx := newTx(t, rfmath.Vec3{}, 2.4e9, 20)

	prev := -1.0
	for d := 0.5; d < 40; d += 0.75 {
		loss := ch.PathLoss(tx, newRx(t, rfmath.V3(d, 0, 0), -90))
		if loss < prev {
			t.Fatalf("path loss decreased at %.2f m: %.3f < %.3f", d, loss, prev)
		}
		prev = loss
	}
}

func TestAddingWallNeverDecreasesPathLoss(t *testing.T) {
	tx := newTx(t, rfmath.V3(0, 0, 1), 5.8e9, 20)
	rx := newRx(t, rfmath.V3(12, 3, 1), -90)
	ch := NewRFChannel("ch")

	walls := []*model.WallEntity{
		concreteWall(t, "a", 4),
		newWall(t, "glass", "position: [8, 0, 0]\nnormal: [1, 0.2, 0]\nthickness: 0.01\nrelative_permittivity: 6.3\n"),
		newWall(t, "behind", "position: [-3, 0, 0]\nnormal: [1, 0, 0]\nthickness: 0.3\nrelative_permittivity: 4\nconductivity: 0.1\n"),
		newWall(t, "small", "position: [6, 20, 0]\nnormal: [1, 0, 0]\nthickness: 0.3\nrelative_permittivity: 4\nwidth: 1\nheight: 1\n"),
	}
	prev := ch.PathLoss(tx, rx)
	for _, w := range walls {
		ch.AddObstacle(w)
		loss := ch.PathLoss(tx, rx)
		if loss < prev {
			t.Fatalf("adding %s decreased path loss %.4f -> %.4f", w.ID(), prev, loss)
		}
		prev = loss
	}
}

func TestWallPenaltyAndDelay(t *testing.T) {
	tx := newTx(t, rfmath.Vec3{}, 2.4e9, 20)
	rx := newRx(t, rfmath.V3(10, 0, 0), -90)

	free := NewRFChannel("free")
	walled := NewRFChannel("walled")
	walled.AddObstacle(concreteWall(t, "concrete", 5))

	penalty := walled.PathLoss(tx, rx) - free.PathLoss(tx, rx)
	if penalty < 3 || penalty > 10 {
		t.Fatalf("concrete penalty = %.2f dB, want a few dB", penalty)
	}

	freeDelay := free.PropagationDelay(tx, rx)
	if math.Abs(freeDelay-10/rfmath.SpeedOfLight) > 1e-18 {
		t.Fatalf("free-space delay = %v", freeDelay)
	}
	extra := walled.PropagationDelay(tx, rx) - freeDelay
	// 20 cm at n ≈ 2.3 adds roughly 0.26 m of vacuum-equivalent path.
	if extra < 0.2/rfmath.SpeedOfLight || extra > 0.35/rfmath.SpeedOfLight {
		t.Fatalf("wall delay = %v s", extra)
	}

	res := walled.Evaluate(tx, rx)
	if res.Obstructions != 1 {
		t.Fatalf("obstructions = %d", res.Obstructions)
	}
}

func TestMaterialOrdering(t *testing.T) {
	cases := []struct {
		name   string
		lower  Obstacle
		higher Obstacle
	}{
		{
			name:   "conductivity",
			lower:  Obstacle{Thickness: 0.2, RelativePermittivity: 5, Conductivity: 0.01},
			higher: Obstacle{Thickness: 0.2, RelativePermittivity: 5, Conductivity: 0.1},
		},
		{
			name:   "lossless permittivity",
			lower:  Obstacle{Thickness: 0.1, RelativePermittivity: 2},
			higher: Obstacle{Thickness: 0.1, RelativePermittivity: 7},
		},
		{
			name:   "thickness",
			lower:  Obstacle{Thickness: 0.1, RelativePermittivity: 5, Conductivity: 0.05},
			higher: Obstacle{Thickness: 0.4, RelativePermittivity: 5, Conductivity: 0.05},
		},
	}
	for _, tc := range cases {
		lo := newMaterial(tc.lower, 2.4e9).penaltyDb(1)
		hi := newMaterial(tc.higher, 2.4e9).penaltyDb(1)
		if !(hi > lo) {
			t.Errorf("%s: penalty %.3f should exceed %.3f", tc.name, hi, lo)
		}
	}

	vacuum := newMaterial(Obstacle{Thickness: 1, RelativePermittivity: 1}, 2.4e9)
	if p := vacuum.penaltyDb(0.3); p != 0 {
		t.Fatalf("vacuum slab penalty = %v", p)
	}
	if d := vacuum.extraDelay(0.3); d != 0 {
		t.Fatalf("vacuum slab delay = %v", d)
	}
}

func TestDelayZeroOnlyWhenCoincident(t *testing.T) {
	ch := NewRFChannel("ch")
	tx := newTx(t, rfmath.V3(1, 2, 3), 2.4e9, 0)
	if d := ch.PropagationDelay(tx, newRx(t, rfmath.V3(1, 2, 3), -90)); d != 0 {
		t.Fatalf("coincident delay = %v", d)
	}
	if d := ch.PropagationDelay(tx, newRx(t, rfmath.V3(1, 2, 3.001), -90)); !(d > 0) {
		t.Fatalf("separated delay = %v", d)
	}
}

func TestCoincidentDelayIgnoresRegisteredWalls(t *testing.T) {
	ch := NewRFChannel("ch")
	ch.AddObstacle(concreteWall(t, "slab", 5))
	ch.AddObstacle(concreteWall(t, "under", 1))

	for _, pos := range []rfmath.Vec3{rfmath.V3(1, 2, 3), rfmath.V3(5, 0, 0)} {
		tx := newTx(t, pos, 2.4e9, 0)
		res := ch.Evaluate(tx, newRx(t, pos, -90))
		if res.DelaySeconds != 0 || res.Obstructions != 0 {
			t.Fatalf("coincident at %+v: delay=%v obstructions=%d, want 0/0", pos, res.DelaySeconds, res.Obstructions)
		}
	}

	tx := newTx(t, rfmath.V3(0, 0, 0), 2.4e9, 0)
	rx := newRx(t, rfmath.V3(10, 0, 0), -90)
	if d, free := ch.PropagationDelay(tx, rx), 10/rfmath.SpeedOfLight; !(d > free) {
		t.Fatalf("delay through walls = %v, want more than free-space %v", d, free)
	}
}

func TestGenerationTracksObstacleChanges(t *testing.T) {
	ch := NewRFChannel("ch")
	if ch.Generation() != 0 {
		t.Fatalf("new channel generation = %d", ch.Generation())
	}
	w := concreteWall(t, "w", 5)

	ch.AddObstacle(w)
	afterAdd := ch.Generation()
	if afterAdd == 0 {
		t.Fatalf("AddObstacle did not advance the generation")
	}
	if got := ch.ReplaceObstacles([]model.Wall{w}); got != afterAdd {
		t.Fatalf("identical replace moved generation %d -> %d", afterAdd, got)
	}
	other := concreteWall(t, "other", 7)
	afterReplace := ch.ReplaceObstacles([]model.Wall{other})
	if afterReplace <= afterAdd || afterReplace != ch.Generation() {
		t.Fatalf("replace generation = %d (channel %d), want above %d", afterReplace, ch.Generation(), afterAdd)
	}
	ch.ClearObstacles()
	afterClear := ch.Generation()
	if afterClear <= afterReplace {
		t.Fatalf("ClearObstacles did not advance the generation")
	}
	if ch.RemoveObstacle("missing") || ch.Generation() != afterClear {
		t.Fatalf("removing an absent wall changed the generation")
	}
}

func TestFadingPowerBounds(t *testing.T) {
	tx := newTx(t, rfmath.V3(0, 0, 1.5), 2.4e9, 20)
	ch := NewRFChannel("ch")

	for x := 1.0; x < 20; x += 0.37 {
		if fp := ch.FadingPower(tx, newRx(t, rfmath.V3(x, 1, 1.5), -90)); fp != 1 {
			t.Fatalf("fading without obstacles = %v, want exactly 1", fp)
		}
	}

	// Walls on both sides of the corridor produce reflections.
	ch.AddObstacle(newWall(t, "north", "position: [0, 3, 0]\nnormal: [0, 1, 0]\nthickness: 0.15\nrelative_permittivity: 4.5\nconductivity: 0.02\n"))
	ch.AddObstacle(newWall(t, "south", "position: [0, -3, 0]\nnormal: [0, -1, 0]\nthickness: 0.15\nrelative_permittivity: 4.5\nconductivity: 0.02\n"))
	ch.AddObstacle(concreteWall(t, "end", 12))

	sawFade := false
	for x := 1.0; x < 20; x += 0.37 {
		fp := ch.FadingPower(tx, newRx(t, rfmath.V3(x, 1, 1.5), -90))
		if fp < 0 || fp > 1 || math.IsNaN(fp) {
			t.Fatalf("fading at x=%.2f = %v, outside [0, 1]", x, fp)
		}
		if fp < 0.999 {
			sawFade = true
		}
	}
	if !sawFade {
		t.Fatalf("reflections never reduced fading power")
	}
}

func TestObstacleReplacementDoesNotDoubleCount(t *testing.T) {
	tx := newTx(t, rfmath.Vec3{}, 2.4e9, 20)
	rx := newRx(t, rfmath.V3(10, 0, 0), -90)
	ch := NewRFChannel("ch")
	w := concreteWall(t, "w", 5)

	ch.AddObstacle(w)
	once := ch.PathLoss(tx, rx)
	ch.AddObstacle(w)
	if twice := ch.PathLoss(tx, rx); twice != once {
		t.Fatalf("re-adding wall changed loss %.4f -> %.4f", once, twice)
	}
	if ids := ch.Obstacles(); len(ids) != 1 || ids[0] != "w" {
		t.Fatalf("Obstacles = %v", ids)
	}

	ch.ClearObstacles()
	free := NewRFChannel("free")
	if ch.PathLoss(tx, rx) != free.PathLoss(tx, rx) || ch.PropagationDelay(tx, rx) != free.PropagationDelay(tx, rx) {
		t.Fatalf("ClearObstacles did not restore free-space values")
	}
}

func TestChannelHoldsSnapshotsNotWalls(t *testing.T) {
	tx := newTx(t, rfmath.Vec3{}, 2.4e9, 20)
	rx := newRx(t, rfmath.V3(10, 0, 0), -90)
	ch := NewRFChannel("ch")
	w := concreteWall(t, "w", 5)
	ch.AddObstacle(w)
	before := ch.PathLoss(tx, rx)

	// Moving the wall out of the path is only seen after a resync.
	if err := w.ApplyConfiguration("position: [50, 0, 0]\nnormal: [1, 0, 0]\nthickness: 0.2\n"); err != nil {
		t.Fatal(err)
	}
	if got := ch.PathLoss(tx, rx); got != before {
		t.Fatalf("channel observed wall mutation without resync")
	}
	ch.ReplaceObstacles([]model.Wall{w})
	if got := ch.PathLoss(tx, rx); got >= before {
		t.Fatalf("resync kept stale geometry: %.3f >= %.3f", got, before)
	}

	if !ch.RemoveObstacle("w") || ch.RemoveObstacle("w") {
		t.Fatalf("RemoveObstacle should report presence exactly once")
	}
	if len(ch.Obstacles()) != 0 {
		t.Fatalf("obstacles remain after removal")
	}
}

func TestBoundedWallExtent(t *testing.T) {
	tx := newTx(t, rfmath.V3(0, 0, 1), 2.4e9, 20)
	ch := NewRFChannel("ch")
	ch.AddObstacle(newWall(t, "door", "position: [5, 0, 1]\nnormal: [1, 0, 0]\nthickness: 0.05\nrelative_permittivity: 3\nconductivity: 0.01\nwidth: 1\nheight: 2\n"))

	through := ch.Evaluate(tx, newRx(t, rfmath.V3(10, 0, 1), -90))
	around := ch.Evaluate(tx, newRx(t, rfmath.V3(10, 4, 1), -90))
	if through.Obstructions != 1 || around.Obstructions != 0 {
		t.Fatalf("obstructions through=%d around=%d", through.Obstructions, around.Obstructions)
	}
}

func TestDegenerateInputsStayFinite(t *testing.T) {
	ch := NewRFChannel("ch")
	ch.AddObstacle(concreteWall(t, "w", 0))

	zeroFreq := newTx(t, rfmath.Vec3{}, 0, 20)
	rx := newRx(t, rfmath.Vec3{}, -90)
	res := ch.Evaluate(zeroFreq, rx)
	for name, v := range map[string]float64{
		"path loss": res.PathLossDb,
		"delay":     res.DelaySeconds,
		"fading":    res.FadingPower,
		"rx power":  res.ReceivedPowerDbm,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("%s = %v for coincident zero-frequency link", name, v)
		}
	}
	if res.PathLossDb != 0 || res.DelaySeconds != 0 {
		t.Fatalf("coincident link: loss=%v delay=%v", res.PathLossDb, res.DelaySeconds)
	}

	// A wall sitting exactly on an endpoint is touched, not crossed.
	onPlane := newRx(t, rfmath.V3(0, 5, 0), -90)
	if got := ch.Evaluate(newTx(t, rfmath.V3(-5, 0, 0), 2.4e9, 0), onPlane).Obstructions; got != 0 {
		t.Fatalf("endpoint on plane counted as crossing")
	}
}

func TestConcurrentQueriesMatchSequential(t *testing.T) {
	ch := NewRFChannel("ch", WithFading(FadingConfig{Mode: FadingSeeded, Seed: 42, KFactor: 4, CorrelationWavelengths: 0.5}))
	ch.AddObstacle(concreteWall(t, "a", 3))
	ch.AddObstacle(newWall(t, "b", "position: [0, 4, 0]\nnormal: [0, 1, 0]\nthickness: 0.1\nrelative_permittivity: 3\n"))

	tx := newTx(t, rfmath.V3(0, 0, 1), 2.4e9, 20)
	var receivers []*model.ReceiverEntity
	for i := 0; i < 64; i++ {
		receivers = append(receivers, newRx(t, rfmath.V3(float64(i)*0.31+0.5, 1.2, 1), -90))
	}
	want := make([]LinkResult, len(receivers))
	for i, rx := range receivers {
		want[i] = ch.Evaluate(tx, rx)
	}

	got := make([]LinkResult, len(receivers))
	var wg sync.WaitGroup
	for i, rx := range receivers {
		wg.Add(1)
		go func(i int, rx *model.ReceiverEntity) {
			defer wg.Done()
			got[i] = ch.Evaluate(tx, rx)
		}(i, rx)
	}
	wg.Wait()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("receiver %d: concurrent %+v != sequential %+v", i, got[i], want[i])
		}
	}
}

func TestSeededFading(t *testing.T) {
	cfg := FadingConfig{Mode: FadingSeeded, Seed: 7, KFactor: 2, CorrelationWavelengths: 0.5}
	ch, err := NewRFChannelWithConfig("seeded", cfg)
	if err != nil {
		t.Fatalf("NewRFChannelWithConfig: %v", err)
	}
	tx := newTx(t, rfmath.Vec3{}, 2.4e9, 20)
	rx := newRx(t, rfmath.V3(7, 2, 0), -90)
	if fp := ch.FadingPower(tx, rx); fp != 1 {
		t.Fatalf("seeded fading without obstacles = %v", fp)
	}

	ch.AddObstacle(concreteWall(t, "w", 3))
	first := ch.FadingPower(tx, rx)
	if first < 0 || first > 1 {
		t.Fatalf("seeded fading = %v", first)
	}
	for i := 0; i < 10; i++ {
		if again := ch.FadingPower(tx, rx); again != first {
			t.Fatalf("seeded fading not repeatable: %v != %v", again, first)
		}
	}

	twin, _ := NewRFChannelWithConfig("twin", cfg)
	twin.AddObstacle(concreteWall(t, "w", 3))
	if twin.FadingPower(tx, rx) != first {
		t.Fatalf("same seed produced different fading")
	}
}

func TestFadingConfigValidation(t *testing.T) {
	if _, err := NewRFChannelWithConfig("bad", FadingConfig{Mode: "rayleigh", KFactor: 1, CorrelationWavelengths: 1}); err == nil {
		t.Fatalf("unknown mode accepted")
	}
	if _, err := NewRFChannelWithConfig("bad", FadingConfig{Mode: FadingSeeded, KFactor: 0, CorrelationWavelengths: 1}); err == nil {
		t.Fatalf("zero k-factor accepted")
	}
	if mode, err := ParseFadingMode(" Seeded "); err != nil || mode != FadingSeeded {
		t.Fatalf("ParseFadingMode = %v, %v", mode, err)
	}
	ch := NewRFChannel("ch", WithFading(FadingConfig{Mode: FadingSeeded}))
	if ch.Fading().Mode != FadingDeterministic {
		t.Fatalf("invalid fading option should keep the default")
	}
}

func TestClassifyLinkByMargin(t *testing.T) {
	cases := map[float64]LinkQuality{
		-0.1: LinkQualityDown,
		0:    LinkQualityPoor,
		7:    LinkQualityFair,
		15:   LinkQualityGood,
		40:   LinkQualityExcellent,
	}
	for margin, want := range cases {
		if got := classifyLinkByMargin(margin); got != want {
			t.Errorf("classify(%v) = %s, want %s", margin, got, want)
		}
	}
}
