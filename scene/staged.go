package scene

import (
	"fmt"
	"strings"

	"github.com/signalsfoundry/rf-propagation-sim/config"
	"github.com/signalsfoundry/rf-propagation-sim/model"
)

// Staged is a fully validated replacement for a scene's contents that has
// not been installed yet. Nothing observable changes until Commit.
type Staged struct {
	scene   *RFScene
	order   []string
	objects map[string]model.SimulationObject
	systems []System

	committed bool
	attached  []System
	prev      snapshot
}

type snapshot struct {
	order    []string
	objects  map[string]model.SimulationObject
	systems  []System
	revision uint64
}

// Prepare builds and configures every object in doc, and every system the
// scene does not already have, without touching the scene. Objects without
// an ID get "<type>-<n>" from their document position so repeated loads
// produce the same IDs.
func (s *RFScene) Prepare(doc config.SceneDocument) (*Staged, error) {
	st := &Staged{
		scene:   s,
		objects: make(map[string]model.SimulationObject, len(doc.Objects)),
	}
	for i, od := range doc.Objects {
		id := od.ID
		if id == "" {
			id = fmt.Sprintf("%s-%d", strings.ToLower(od.Type), i+1)
		}
		if _, dup := st.objects[id]; dup {
			return nil, fmt.Errorf("%w: scene %q: duplicate object id %q", model.ErrInvalidArgument, s.name, id)
		}
		body, err := od.Serialized()
		if err != nil {
			return nil, fmt.Errorf("%w: scene %q: %w", model.ErrConfiguration, s.name, err)
		}
		obj, err := s.factory.Build(od.Type, id, body)
		if err != nil {
			return nil, fmt.Errorf("scene %q: object %q: %w", s.name, id, err)
		}
		st.objects[id] = obj
		st.order = append(st.order, id)
	}

	if len(doc.Systems) > 0 && s.builder == nil {
		return nil, fmt.Errorf("%w: scene %q declares systems but has no system builder", model.ErrConfiguration, s.name)
	}
	seen := make(map[string]bool, len(doc.Systems))
	for i, sd := range doc.Systems {
		sys, err := s.builder(sd)
		if err != nil {
			return nil, fmt.Errorf("scene %q: systems[%d]: %w", s.name, i, err)
		}
		if seen[sys.Name()] {
			return nil, fmt.Errorf("%w: scene %q: duplicate system %q", model.ErrInvalidArgument, s.name, sys.Name())
		}
		seen[sys.Name()] = true
		if !s.hasSystem(sys.Name()) {
			st.systems = append(st.systems, sys)
		}
	}
	return st, nil
}

// Len is the number of staged objects.
func (st *Staged) Len() int { return len(st.order) }

// Commit installs the staged objects and attaches the staged systems. If a
// system fails to initialize, systems attached so far are detached, the
// scene is restored and the error returned.
func (st *Staged) Commit() error {
	if st.committed {
		return nil
	}
	s := st.scene
	st.prev = snapshot{
		order:    s.order,
		objects:  s.objects,
		systems:  s.systems,
		revision: s.revision,
	}

	s.order = st.order
	s.objects = st.objects
	s.systems = append([]System(nil), s.systems...)
	s.revision++
	st.attached = st.attached[:0]
	for _, sys := range st.systems {
		if err := s.AttachSystem(sys); err != nil {
			st.restore()
			return fmt.Errorf("%w: scene %q: %w", model.ErrConfiguration, s.name, err)
		}
		st.attached = append(st.attached, sys)
	}
	st.committed = true
	return nil
}

// Rollback undoes a successful Commit. It is a no-op otherwise. The staged
// contents can be committed again afterwards.
func (st *Staged) Rollback() {
	if !st.committed {
		return
	}
	st.restore()
	st.committed = false
}

func (st *Staged) restore() {
	s := st.scene
	for i := len(st.attached) - 1; i >= 0; i-- {
		if d, ok := st.attached[i].(Detacher); ok {
			d.Detach(s)
		}
	}
	st.attached = st.attached[:0]
	s.order = st.prev.order
	s.objects = st.prev.objects
	s.systems = st.prev.systems
	// A fresh revision, not the old one, so systems that cached the
	// staged geometry resync.
	s.revision = max(s.revision, st.prev.revision) + 1
}
