package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/rf-propagation-sim/config"
	"github.com/signalsfoundry/rf-propagation-sim/core"
	"github.com/signalsfoundry/rf-propagation-sim/internal/logging"
	"github.com/signalsfoundry/rf-propagation-sim/model"
	"github.com/signalsfoundry/rf-propagation-sim/scene"
	"github.com/signalsfoundry/rf-propagation-sim/systems"
)

// stager is implemented by scenes that support staged replacement.
type stager interface {
	scene.Scene
	Prepare(doc config.SceneDocument) (*scene.Staged, error)
	NotifyReload(sourceID string)
}

type stagedScene struct {
	target stager
	staged *scene.Staged
	isNew  bool
}

type channelChange struct {
	ch     *core.RFChannel
	fading core.FadingConfig
}

// LoadConfiguration implements Engine. The source is resolved by the
// engine's loader and parsed as an engine document. Every channel, scene
// and system is built and validated before anything is installed; if any
// step fails the engine is unchanged. Loading the same document twice
// yields the same state: scenes and channels are matched by name and ID,
// objects are replaced, and systems already attached are kept.
func (e *RFEngine) LoadConfiguration(ctx context.Context, sourceID string) (err error) {
	ctx, span := e.tracer.Start(ctx, "engine.LoadConfiguration",
		trace.WithAttributes(attribute.String("source", sourceID)))
	defer func() {
		if err != nil {
			recordSpanError(span, err)
			e.log.Warn(ctx, "configuration rejected", logging.String("source", sourceID), logging.Err(err))
		}
		if e.metrics != nil {
			e.metrics.ObserveConfigurationLoad(err)
		}
		span.End()
	}()

	data, err := e.loader.Load(sourceID)
	if err != nil {
		return fmt.Errorf("%w: load %q: %w", model.ErrConfiguration, sourceID, err)
	}
	doc, err := config.ParseEngine(data)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", model.ErrConfiguration, sourceID, err)
	}
	run, err := RunConfigFromDocument(doc.Run)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", model.ErrConfiguration, sourceID, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	newChannels, changes, err := e.stageChannels(doc.Channels)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", model.ErrConfiguration, sourceID, err)
	}
	e.pending = newChannels
	defer func() { e.pending = nil }()

	staged, err := e.stageScenes(doc.Scenes)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", model.ErrConfiguration, sourceID, err)
	}

	for i, st := range staged {
		if err := st.staged.Commit(); err != nil {
			for j := i - 1; j >= 0; j-- {
				staged[j].staged.Rollback()
			}
			return fmt.Errorf("%w: %q: %w", model.ErrConfiguration, sourceID, err)
		}
	}

	// Nothing below can fail.
	for id, ch := range newChannels {
		e.channels[id] = ch
	}
	for _, c := range changes {
		_ = c.ch.SetFading(c.fading)
	}
	for _, st := range staged {
		if st.isNew {
			e.scenes = append(e.scenes, st.target)
		}
		st.target.NotifyReload(sourceID)
	}
	if doc.ActiveScene != "" {
		_ = e.setActiveLocked(e.sceneByNameLocked(doc.ActiveScene))
	}
	e.run = run
	e.hasRun = true

	e.log.Info(ctx, "configuration loaded",
		logging.String("source", sourceID),
		logging.Int("channels", len(doc.Channels)),
		logging.Int("scenes", len(doc.Scenes)),
	)
	span.SetAttributes(
		attribute.Int("channels", len(doc.Channels)),
		attribute.Int("scenes", len(doc.Scenes)),
	)
	return nil
}

// stageChannels builds channels that do not exist yet and records fading
// changes for those that do.
func (e *RFEngine) stageChannels(docs []config.ChannelDocument) (map[string]*core.RFChannel, []channelChange, error) {
	created := make(map[string]*core.RFChannel)
	var changes []channelChange
	for _, cd := range docs {
		fading, err := fadingFromDocument(cd.Fading)
		if err != nil {
			return nil, nil, fmt.Errorf("channel %q: %w", cd.ID, err)
		}
		if existing, ok := e.channels[cd.ID]; ok {
			if existing.Fading() != fading {
				changes = append(changes, channelChange{ch: existing, fading: fading})
			}
			continue
		}
		ch, err := core.NewRFChannelWithConfig(cd.ID, fading, core.WithLogger(e.base))
		if err != nil {
			return nil, nil, fmt.Errorf("channel %q: %w", cd.ID, err)
		}
		created[cd.ID] = ch
	}
	return created, changes, nil
}

func fadingFromDocument(d config.FadingDocument) (core.FadingConfig, error) {
	cfg := core.DefaultFadingConfig()
	mode, err := core.ParseFadingMode(d.Mode)
	if err != nil {
		return cfg, err
	}
	cfg.Mode = mode
	if d.Seed != nil {
		cfg.Seed = *d.Seed
	}
	if d.KFactor != nil {
		cfg.KFactor = *d.KFactor
	}
	if d.CorrelationWavelengths != nil {
		cfg.CorrelationWavelengths = *d.CorrelationWavelengths
	}
	return cfg, cfg.Validate()
}

// stageScenes prepares every scene section against an existing scene of
// the same name or a new one.
func (e *RFEngine) stageScenes(docs []config.SceneDocument) ([]stagedScene, error) {
	out := make([]stagedScene, 0, len(docs))
	for _, sd := range docs {
		var target stager
		isNew := false
		if existing := e.sceneByNameLocked(sd.Name); existing != nil {
			st, ok := existing.(stager)
			if !ok {
				return nil, fmt.Errorf("scene %q does not support configuration loading", sd.Name)
			}
			target = st
		} else {
			target = e.newScene(sd.Name)
			isNew = true
		}
		staged, err := target.Prepare(sd)
		if err != nil {
			return nil, err
		}
		out = append(out, stagedScene{target: target, staged: staged, isNew: isNew})
	}
	return out, nil
}

// newScene builds a scene wired to the engine's loader, logger and
// system registry.
func (e *RFEngine) newScene(name string) *scene.RFScene {
	deps := systems.Dependencies{
		Channel: e.lookupChannel,
		Logger:  e.base,
		Links:   e.links,
	}
	return scene.New(name,
		scene.WithLogger(e.base),
		scene.WithLoader(e.loader),
		scene.WithSystemBuilder(e.systems.Builder(deps)),
	)
}
