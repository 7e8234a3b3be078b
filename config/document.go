package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalidDocument wraps every parse and validation failure.
var ErrInvalidDocument = errors.New("config: invalid document")

// EngineDocument is the top-level configuration of an engine.
type EngineDocument struct {
	Channels    []ChannelDocument `yaml:"channels"`
	Scenes      []SceneDocument   `yaml:"scenes"`
	ActiveScene string            `yaml:"active_scene,omitempty"`
	Run         RunDocument       `yaml:"run"`
}

// ChannelDocument declares a shared RF channel.
type ChannelDocument struct {
	ID     string         `yaml:"id"`
	Fading FadingDocument `yaml:"fading"`
}

// FadingDocument mirrors the channel fading options. Unset fields take the
// embedded defaults.
type FadingDocument struct {
	Mode                   string   `yaml:"mode"`
	Seed                   *int64   `yaml:"seed,omitempty"`
	KFactor                *float64 `yaml:"k_factor,omitempty"`
	CorrelationWavelengths *float64 `yaml:"correlation_wavelengths,omitempty"`
}

// SceneDocument declares one scene's objects and systems. Objects are
// created in document order and systems attached in document order.
type SceneDocument struct {
	Name    string           `yaml:"name"`
	Objects []ObjectDocument `yaml:"objects"`
	Systems []SystemDocument `yaml:"systems"`
}

// ObjectDocument declares one simulation object. Spec is handed verbatim
// to the object's ApplyConfiguration.
type ObjectDocument struct {
	Type string    `yaml:"type"`
	ID   string    `yaml:"id"`
	Spec yaml.Node `yaml:"spec"`
}

// SystemDocument declares a simulation system attached to a scene.
type SystemDocument struct {
	Type              string `yaml:"type"`
	Name              string `yaml:"name,omitempty"`
	Channel           string `yaml:"channel,omitempty"`
	Workers           *int   `yaml:"workers,omitempty"`
	ParallelThreshold *int   `yaml:"parallel_threshold,omitempty"`
}

// RunDocument configures the orchestration loop.
type RunDocument struct {
	Name          string  `yaml:"name"`
	TimeStep      float64 `yaml:"time_step"`
	Duration      float64 `yaml:"duration"`
	MaxIterations int     `yaml:"max_iterations"`
}

// Defaults holds the embedded baseline values.
type Defaults struct {
	Channel struct {
		Fading FadingDocument `yaml:"fading"`
	} `yaml:"channel"`
	Run    RunDocument `yaml:"run"`
	System struct {
		Workers           int `yaml:"workers"`
		ParallelThreshold int `yaml:"parallel_threshold"`
	} `yaml:"system"`
}

var loadDefaults = sync.OnceValues(func() (Defaults, error) {
	var d Defaults
	if err := yaml.Unmarshal(defaultsYAML, &d); err != nil {
		return Defaults{}, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	return d, nil
})

// EmbeddedDefaults returns the parsed embedded defaults.
func EmbeddedDefaults() (Defaults, error) { return loadDefaults() }

// Serialized renders the object spec as YAML. An absent spec renders as
// the empty string.
func (o ObjectDocument) Serialized() (string, error) {
	if o.Spec.Kind == 0 {
		return "", nil
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&o.Spec); err != nil {
		return "", fmt.Errorf("render %s %q spec: %w", o.Type, o.ID, err)
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ParseEngine decodes an engine document over the embedded defaults.
// Unknown fields are rejected.
func ParseEngine(data []byte) (EngineDocument, error) {
	d, err := loadDefaults()
	if err != nil {
		return EngineDocument{}, err
	}
	doc := EngineDocument{Run: d.Run}
	if err := decodeStrict(data, &doc); err != nil {
		return EngineDocument{}, fmt.Errorf("%w: engine document: %w", ErrInvalidDocument, err)
	}
	for i := range doc.Channels {
		doc.Channels[i].Fading = doc.Channels[i].Fading.withDefaults(d.Channel.Fading)
	}
	for i := range doc.Scenes {
		doc.Scenes[i].applySystemDefaults(d)
	}
	if err := doc.validate(); err != nil {
		return EngineDocument{}, fmt.Errorf("%w: engine document: %w", ErrInvalidDocument, err)
	}
	return doc, nil
}

// ParseScene decodes a single scene document.
func ParseScene(data []byte) (SceneDocument, error) {
	d, err := loadDefaults()
	if err != nil {
		return SceneDocument{}, err
	}
	var doc SceneDocument
	if err := decodeStrict(data, &doc); err != nil {
		return SceneDocument{}, fmt.Errorf("%w: scene document: %w", ErrInvalidDocument, err)
	}
	doc.applySystemDefaults(d)
	if err := doc.validate(); err != nil {
		return SceneDocument{}, fmt.Errorf("%w: scene %q: %w", ErrInvalidDocument, doc.Name, err)
	}
	return doc, nil
}

func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("document is empty")
		}
		return err
	}
	return nil
}

func (f FadingDocument) withDefaults(d FadingDocument) FadingDocument {
	if f.Mode == "" {
		f.Mode = d.Mode
	}
	if f.Seed == nil {
		f.Seed = d.Seed
	}
	if f.KFactor == nil {
		f.KFactor = d.KFactor
	}
	if f.CorrelationWavelengths == nil {
		f.CorrelationWavelengths = d.CorrelationWavelengths
	}
	return f
}

func (s *SceneDocument) applySystemDefaults(d Defaults) {
	for i := range s.Systems {
		sys := &s.Systems[i]
		if sys.Workers == nil {
			w := d.System.Workers
			sys.Workers = &w
		}
		if sys.ParallelThreshold == nil {
			p := d.System.ParallelThreshold
			sys.ParallelThreshold = &p
		}
		if sys.Name == "" {
			sys.Name = strings.ToLower(sys.Type)
		}
	}
}

func (e EngineDocument) validate() error {
	channels := make(map[string]bool, len(e.Channels))
	for i, ch := range e.Channels {
		if ch.ID == "" {
			return fmt.Errorf("channels[%d]: id is required", i)
		}
		if channels[ch.ID] {
			return fmt.Errorf("channels[%d]: duplicate channel id %q", i, ch.ID)
		}
		channels[ch.ID] = true
	}

	scenes := make(map[string]bool, len(e.Scenes))
	for i, s := range e.Scenes {
		if err := s.validate(); err != nil {
			return fmt.Errorf("scenes[%d]: %w", i, err)
		}
		if scenes[s.Name] {
			return fmt.Errorf("scenes[%d]: duplicate scene name %q", i, s.Name)
		}
		scenes[s.Name] = true
		for j, sys := range s.Systems {
			if sys.Channel != "" && !channels[sys.Channel] {
				return fmt.Errorf("scenes[%d].systems[%d]: unknown channel %q", i, j, sys.Channel)
			}
		}
	}
	if e.ActiveScene != "" && !scenes[e.ActiveScene] {
		return fmt.Errorf("active_scene %q is not declared", e.ActiveScene)
	}
	return nil
}

func (s SceneDocument) validate() error {
	if s.Name == "" {
		return errors.New("scene name is required")
	}
	ids := make(map[string]bool, len(s.Objects))
	for i, o := range s.Objects {
		if o.Type == "" {
			return fmt.Errorf("objects[%d]: type is required", i)
		}
		if o.ID == "" {
			continue
		}
		if ids[o.ID] {
			return fmt.Errorf("objects[%d]: duplicate object id %q", i, o.ID)
		}
		ids[o.ID] = true
	}
	for i, sys := range s.Systems {
		if sys.Type == "" {
			return fmt.Errorf("systems[%d]: type is required", i)
		}
	}
	return nil
}
