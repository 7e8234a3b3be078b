package scene

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/signalsfoundry/rf-propagation-sim/config"
	"github.com/signalsfoundry/rf-propagation-sim/model"
)

// recorder collects step events across systems and objects.
type recorder struct{ events []string }

func (r *recorder) add(format string, args ...any) {
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

type stubObject struct {
	id  string
	rec *recorder
}

func (o *stubObject) ID() string                      { return o.id }
func (o *stubObject) Type() string                    { return "stub" }
func (o *stubObject) ApplyConfiguration(string) error { return nil }
func (o *stubObject) Step(dt float64)                 { o.rec.add("obj:%s:%g", o.id, dt) }
func (o *stubObject) Reset()                          { o.rec.add("reset:%s", o.id) }

type stubSystem struct {
	name     string
	rec      *recorder
	initErr  error
	inits    int
	detaches int
	reloads  []string
	resets   int
	lastSeen int
}

func (s *stubSystem) Name() string { return s.name }

func (s *stubSystem) Initialize(sc Scene) error {
	s.inits++
	s.lastSeen = sc.Len()
	return s.initErr
}

func (s *stubSystem) Step(sc Scene, dt float64) {
	s.rec.add("sys:%s:%g", s.name, dt)
	s.lastSeen = sc.Len()
}

func (s *stubSystem) OnConfigurationReload(src string) { s.reloads = append(s.reloads, src) }
func (s *stubSystem) Reset()                           { s.resets++ }
func (s *stubSystem) Detach(Scene)                     { s.detaches++ }

func TestAddObjectRejectsDuplicates(t *testing.T) {
	s := New("lab")
	if err := s.AddObject(model.NewTransmitter("tx")); err != nil {
		t.Fatalf("AddObject: %v", err)
	}
	before := s.Revision()

	for name, obj := range map[string]model.SimulationObject{
		"duplicate": model.NewReceiver("tx"),
		"nil":       nil,
		"empty id":  &stubObject{},
	} {
		if err := s.AddObject(obj); !errors.Is(err, model.ErrInvalidArgument) {
			t.Fatalf("%s: err = %v, want ErrInvalidArgument", name, err)
		}
	}
	if s.Len() != 1 || s.Revision() != before {
		t.Fatalf("rejected adds mutated the scene: len=%d rev=%d", s.Len(), s.Revision())
	}
}

func TestObjectsKeepInsertionOrder(t *testing.T) {
	s := New("lab")
	for _, id := range []string{"c", "a", "b"} {
		if err := s.AddObject(model.NewReceiver(id)); err != nil {
			t.Fatal(err)
		}
	}
	if !s.RemoveObject("a") {
		t.Fatalf("RemoveObject(a) = false")
	}
	if s.RemoveObject("a") {
		t.Fatalf("second RemoveObject(a) = true")
	}
	if err := s.AddObject(model.NewReceiver("a")); err != nil {
		t.Fatal(err)
	}

	var ids []string
	for _, obj := range s.Objects() {
		ids = append(ids, obj.ID())
	}
	if !reflect.DeepEqual(ids, []string{"c", "b", "a"}) {
		t.Fatalf("order = %v", ids)
	}

	view := s.Objects()
	view[0] = nil
	if first, _ := s.Object("c"); first == nil || s.Objects()[0] == nil {
		t.Fatalf("Objects returned the internal slice")
	}

	s.Clear()
	if s.Len() != 0 || len(s.Objects()) != 0 {
		t.Fatalf("Clear left %d objects", s.Len())
	}
}

func TestStepRunsSystemsBeforeObjects(t *testing.T) {
	rec := &recorder{}
	s := New("lab")
	for _, id := range []string{"o1", "o2"} {
		if err := s.AddObject(&stubObject{id: id, rec: rec}); err != nil {
			t.Fatal(err)
		}
	}
	for _, name := range []string{"second", "first"} {
		if err := s.AttachSystem(&stubSystem{name: name, rec: rec}); err != nil {
			t.Fatal(err)
		}
	}

	s.Step(0.25)
	want := []string{"sys:second:0.25", "sys:first:0.25", "obj:o1:0.25", "obj:o2:0.25"}
	if !reflect.DeepEqual(rec.events, want) {
		t.Fatalf("events = %v, want %v", rec.events, want)
	}
}

func TestAttachSystem(t *testing.T) {
	s := New("lab")
	sys := &stubSystem{name: "prop", rec: &recorder{}}
	if err := s.AttachSystem(sys); err != nil {
		t.Fatal(err)
	}
	if sys.inits != 1 {
		t.Fatalf("Initialize called %d times", sys.inits)
	}
	if err := s.AttachSystem(&stubSystem{name: "prop"}); !errors.Is(err, model.ErrInvalidArgument) {
		t.Fatalf("duplicate system err = %v", err)
	}
	if err := s.AttachSystem(nil); !errors.Is(err, model.ErrInvalidArgument) {
		t.Fatalf("nil system err = %v", err)
	}

	boom := errors.New("boom")
	if err := s.AttachSystem(&stubSystem{name: "broken", initErr: boom}); !errors.Is(err, boom) {
		t.Fatalf("failing Initialize err = %v", err)
	}
	if got := len(s.Systems()); got != 1 {
		t.Fatalf("systems attached = %d, want 1", got)
	}
	s.Step(1)
	if sys.inits != 1 {
		t.Fatalf("Step re-initialized the system")
	}
}

func TestResetResetsObjectsAndSystems(t *testing.T) {
	rec := &recorder{}
	s := New("lab")
	if err := s.AddObject(&stubObject{id: "o", rec: rec}); err != nil {
		t.Fatal(err)
	}
	sys := &stubSystem{name: "prop", rec: rec}
	if err := s.AttachSystem(sys); err != nil {
		t.Fatal(err)
	}
	s.Reset()
	if !reflect.DeepEqual(rec.events, []string{"reset:o"}) || sys.resets != 1 {
		t.Fatalf("events=%v resets=%d", rec.events, sys.resets)
	}
	if s.Len() != 1 {
		t.Fatalf("Reset removed objects")
	}
}

const labScene = `
name: lab
objects:
  - type: transmitter
    id: ap
    spec: {position: [0, 0, 2], frequency_hz: 2.4e9, power_dbm: 20}
  - type: receiver
    spec: {position: [10, 0, 1], sensitivity_dbm: -80}
  - type: wall
    id: partition
    spec: {position: [5, 0, 0], normal: [1, 0, 0], thickness: 0.1, relative_permittivity: 4}
`

func TestLoadConfiguration(t *testing.T) {
	mem := config.NewMemoryLoader()
	mem.Put("lab", []byte(labScene))
	mem.Put("broken", []byte("name: lab\nobjects:\n  - {type: transmitter, id: bad, spec: {frequency_hz: -1}}\n"))
	mem.Put("unknown", []byte("name: lab\nobjects:\n  - {type: antenna, id: a}\n"))

	s := New("lab", WithLoader(mem))
	sys := &stubSystem{name: "watch", rec: &recorder{}}
	if err := s.AttachSystem(sys); err != nil {
		t.Fatal(err)
	}

	if err := s.LoadConfiguration("lab"); err != nil {
		t.Fatalf("LoadConfiguration: %v", err)
	}
	if s.Len() != 3 {
		t.Fatalf("loaded %d objects", s.Len())
	}
	if _, ok := s.Object("receiver-2"); !ok {
		t.Fatalf("unnamed receiver did not get a positional id")
	}
	if !reflect.DeepEqual(sys.reloads, []string{"lab"}) {
		t.Fatalf("reloads = %v", sys.reloads)
	}
	if len(Transmitters(s)) != 1 || len(Receivers(s)) != 1 || len(Walls(s)) != 1 {
		t.Fatalf("capability helpers = %v", CountByType(s))
	}

	first := s.Objects()
	if err := s.LoadConfiguration("lab"); err != nil {
		t.Fatal(err)
	}
	second := s.Objects()
	for i := range first {
		if first[i].ID() != second[i].ID() {
			t.Fatalf("reload changed ids: %s vs %s", first[i].ID(), second[i].ID())
		}
	}
	tx := Transmitters(s)[0]
	if tx.CarrierFrequency() != 2.4e9 || tx.Power() != 20 {
		t.Fatalf("transmitter after reload = %v/%v", tx.CarrierFrequency(), tx.Power())
	}

	rev := s.Revision()
	for _, src := range []string{"broken", "unknown", "missing"} {
		if err := s.LoadConfiguration(src); !errors.Is(err, model.ErrConfiguration) && !errors.Is(err, model.ErrInvalidArgument) {
			t.Fatalf("LoadConfiguration(%s) err = %v", src, err)
		}
		if s.Len() != 3 || s.Revision() != rev {
			t.Fatalf("failed load %s mutated the scene", src)
		}
	}
	if _, ok := s.Object("ap"); !ok {
		t.Fatalf("failed load lost existing objects")
	}
}

func TestStagedCommitAndRollback(t *testing.T) {
	builder := func(doc config.SystemDocument) (System, error) {
		if doc.Type != "watch" {
			return nil, fmt.Errorf("%w: unknown system %q", model.ErrConfiguration, doc.Type)
		}
		return &stubSystem{name: doc.Name, rec: &recorder{}}, nil
	}
	s := New("lab", WithSystemBuilder(builder))
	if err := s.AddObject(model.NewReceiver("old")); err != nil {
		t.Fatal(err)
	}

	doc, err := config.ParseScene([]byte(labScene + "systems:\n  - type: watch\n"))
	if err != nil {
		t.Fatal(err)
	}
	staged, err := s.Prepare(doc)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if staged.Len() != 3 || s.Len() != 1 {
		t.Fatalf("Prepare mutated the scene")
	}
	if err := staged.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if s.Len() != 3 || len(s.Systems()) != 1 {
		t.Fatalf("after commit: %d objects, %d systems", s.Len(), len(s.Systems()))
	}
	sys := s.Systems()[0].(*stubSystem)
	if sys.inits != 1 || sys.lastSeen != 3 {
		t.Fatalf("system initialized %d times against %d objects", sys.inits, sys.lastSeen)
	}

	staged.Rollback()
	if _, ok := s.Object("old"); !ok || s.Len() != 1 || len(s.Systems()) != 0 {
		t.Fatalf("rollback did not restore the previous scene")
	}

	// A second load keeps an already attached system instead of doubling it.
	if err := staged.Commit(); err != nil {
		t.Fatal(err)
	}
	again, err := s.Prepare(doc)
	if err != nil {
		t.Fatal(err)
	}
	if err := again.Commit(); err != nil {
		t.Fatal(err)
	}
	if len(s.Systems()) != 1 {
		t.Fatalf("systems after reload = %d", len(s.Systems()))
	}

	bad, _ := config.ParseScene([]byte("name: lab\nsystems:\n  - type: other\n"))
	if _, err := s.Prepare(bad); !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("unknown system err = %v", err)
	}
}

func TestSystemsWithoutBuilderAreRejected(t *testing.T) {
	doc, err := config.ParseScene([]byte("name: lab\nsystems:\n  - type: propagation\n"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New("lab").Prepare(doc); !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("err = %v", err)
	}
}

func TestFailedCommitRestoresScene(t *testing.T) {
	boom := errors.New("init failed")
	s := New("lab", WithSystemBuilder(func(doc config.SystemDocument) (System, error) {
		return &stubSystem{name: doc.Name, initErr: boom}, nil
	}))
	if err := s.AddObject(model.NewReceiver("keep")); err != nil {
		t.Fatal(err)
	}
	doc, err := config.ParseScene([]byte(labScene + "systems:\n  - type: watch\n"))
	if err != nil {
		t.Fatal(err)
	}
	staged, err := s.Prepare(doc)
	if err != nil {
		t.Fatal(err)
	}
	if err := staged.Commit(); !errors.Is(err, boom) || !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("Commit err = %v", err)
	}
	if _, ok := s.Object("keep"); !ok || s.Len() != 1 || len(s.Systems()) != 0 {
		t.Fatalf("failed commit left the scene modified")
	}
}

func TestFailedCommitDetachesEarlierSystems(t *testing.T) {
	built := make(map[string]*stubSystem)
	s := New("lab", WithSystemBuilder(func(doc config.SystemDocument) (System, error) {
		sys := &stubSystem{name: doc.Name, rec: &recorder{}}
		if doc.Name == "broken" {
			sys.initErr = errors.New("init failed")
		}
		built[doc.Name] = sys
		return sys, nil
	}))
	doc, err := config.ParseScene([]byte(labScene + "systems:\n  - {type: watch, name: first}\n  - {type: watch, name: broken}\n"))
	if err != nil {
		t.Fatal(err)
	}
	staged, err := s.Prepare(doc)
	if err != nil {
		t.Fatal(err)
	}
	if err := staged.Commit(); err == nil {
		t.Fatalf("Commit succeeded with a failing system")
	}
	first := built["first"]
	if first.inits != 1 || first.detaches != 1 {
		t.Fatalf("first system: inits=%d detaches=%d, want 1/1", first.inits, first.detaches)
	}
	if len(s.Systems()) != 0 || s.Len() != 0 {
		t.Fatalf("failed commit left %d systems and %d objects", len(s.Systems()), s.Len())
	}
}

func TestRecommitAfterRollbackInitializesOncePerAttach(t *testing.T) {
	var sys *stubSystem
	s := New("lab", WithSystemBuilder(func(doc config.SystemDocument) (System, error) {
		sys = &stubSystem{name: doc.Name, rec: &recorder{}}
		return sys, nil
	}))
	doc, err := config.ParseScene([]byte(labScene + "systems:\n  - type: watch\n"))
	if err != nil {
		t.Fatal(err)
	}
	staged, err := s.Prepare(doc)
	if err != nil {
		t.Fatal(err)
	}
	for round := 1; round <= 3; round++ {
		if err := staged.Commit(); err != nil {
			t.Fatalf("commit %d: %v", round, err)
		}
		if attached := sys.inits - sys.detaches; attached != 1 {
			t.Fatalf("commit %d: inits=%d detaches=%d", round, sys.inits, sys.detaches)
		}
		staged.Rollback()
		if sys.inits != sys.detaches {
			t.Fatalf("rollback %d left the system attached: inits=%d detaches=%d", round, sys.inits, sys.detaches)
		}
	}
}
