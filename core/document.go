package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/switchgear-simulator/model"
)

// DocumentVersion tags the persisted network layout. Documents without a
// version are read as this version.
const DocumentVersion = "switchgear/v1"

var (
	ErrUnsupportedVersion = errors.New("unsupported document version")
	ErrInvalidDocument    = errors.New("invalid document")
	ErrUnknownFormat      = errors.New("unknown document format")
)

// Format selects the document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the encoding from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, path)
	}
}

// Document is the persisted network: devices with their settings,
// connections and interlock rules. Faults and pending commands are runtime
// state and are never part of it.
type Document struct {
	Version     string          `json:"version" yaml:"version"`
	Name        string          `json:"name,omitempty" yaml:"name,omitempty"`
	Devices     []DeviceDoc     `json:"devices" yaml:"devices"`
	Connections []ConnectionDoc `json:"connections" yaml:"connections"`
	Interlocks  []RuleDoc       `json:"interlocks,omitempty" yaml:"interlocks,omitempty"`
}

type DeviceDoc struct {
	ID              string         `json:"id" yaml:"id"`
	Name            string         `json:"name,omitempty" yaml:"name,omitempty"`
	Kind            string         `json:"kind" yaml:"kind"`
	State           string         `json:"state,omitempty" yaml:"state,omitempty"`
	SourceEnergized bool           `json:"sourceEnergized,omitempty" yaml:"sourceEnergized,omitempty"`
	Health          string         `json:"health,omitempty" yaml:"health,omitempty"`
	IsolationTagged bool           `json:"isolationTagged,omitempty" yaml:"isolationTagged,omitempty"`
	Protection      *ProtectionDoc `json:"protection,omitempty" yaml:"protection,omitempty"`
	Power           *PowerDoc      `json:"power,omitempty" yaml:"power,omitempty"`
}

// ProtectionDoc carries durations as milliseconds.
type ProtectionDoc struct {
	DAREnabled   bool  `json:"dar" yaml:"dar"`
	Attempts     int   `json:"attempts,omitempty" yaml:"attempts,omitempty"`
	DeadTimeMs   int64 `json:"deadTimeMs,omitempty" yaml:"deadTimeMs,omitempty"`
	SettleTimeMs int64 `json:"settleTimeMs,omitempty" yaml:"settleTimeMs,omitempty"`
	Lockout      bool  `json:"lockout,omitempty" yaml:"lockout,omitempty"`
	AutoIsolate  bool  `json:"autoIsolate,omitempty" yaml:"autoIsolate,omitempty"`
}

type PowerDoc struct {
	P float64 `json:"p" yaml:"p"`
	Q float64 `json:"q" yaml:"q"`
}

type ConnectionDoc struct {
	ID        string  `json:"id" yaml:"id"`
	From      string  `json:"from" yaml:"from"`
	To        string  `json:"to" yaml:"to"`
	BusGroup  string  `json:"busGroup,omitempty" yaml:"busGroup,omitempty"`
	RatingMVA float64 `json:"ratingMVA,omitempty" yaml:"ratingMVA,omitempty"`
}

type RuleDoc struct {
	ID              string `json:"id" yaml:"id"`
	Device          string `json:"device" yaml:"device"`
	Target          string `json:"target" yaml:"target"`
	ConditionDevice string `json:"conditionDevice" yaml:"conditionDevice"`
	ConditionState  string `json:"conditionState" yaml:"conditionState"`
}

// DecodeDocument reads a document in the given format and checks its version.
func DecodeDocument(r io.Reader, f Format) (*Document, error) {
	var doc Document
	switch f {
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode json document: %w", err)
		}
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode yaml document: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
	if doc.Version == "" {
		doc.Version = DocumentVersion
	}
	if doc.Version != DocumentVersion {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVersion, doc.Version)
	}
	return &doc, nil
}

// EncodeDocument writes doc in the given format.
func EncodeDocument(w io.Writer, doc *Document, f Format) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
}

// ReadDocumentFile opens path and decodes it by extension.
func ReadDocumentFile(path string) (*Document, error) {
	f, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return DecodeDocument(fh, f)
}

// Validate reports every structural problem found in doc.
func (doc *Document) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidDocument}, args...)...))
	}

	kinds := make(map[string]model.Kind, len(doc.Devices))
	for i, d := range doc.Devices {
		if d.ID == "" {
			add("device #%d has no id", i)
			continue
		}
		if _, dup := kinds[d.ID]; dup {
			add("duplicate device id %q", d.ID)
			continue
		}
		k := model.Kind(d.Kind)
		kinds[d.ID] = k
		if !k.Valid() {
			add("device %q has unknown kind %q", d.ID, d.Kind)
			continue
		}
		if d.State != "" {
			if !k.Switching() {
				add("device %q of kind %s cannot have a state", d.ID, k)
			} else if !model.SwitchState(d.State).Valid() {
				add("device %q has unknown state %q", d.ID, d.State)
			}
		}
		if d.Protection != nil {
			if !k.Protected() {
				add("device %q of kind %s cannot carry protection", d.ID, k)
			} else if d.Protection.Attempts < 0 || d.Protection.DeadTimeMs < 0 || d.Protection.SettleTimeMs < 0 {
				add("device %q has negative protection settings", d.ID)
			}
		}
		switch model.Health(d.Health) {
		case "", model.HealthOK, model.HealthFailed, model.HealthDestroyed:
		default:
			add("device %q has unknown health %q", d.ID, d.Health)
		}
	}

	conns := make(map[string]struct{}, len(doc.Connections))
	for i, c := range doc.Connections {
		if c.ID == "" {
			add("connection #%d has no id", i)
			continue
		}
		if _, dup := conns[c.ID]; dup {
			add("duplicate connection id %q", c.ID)
			continue
		}
		conns[c.ID] = struct{}{}
		for _, end := range []string{c.From, c.To} {
			if _, ok := kinds[end]; !ok {
				add("connection %q references unknown device %q", c.ID, end)
			}
		}
		if c.From == c.To {
			add("connection %q loops on %q", c.ID, c.From)
		}
		if c.RatingMVA < 0 {
			add("connection %q has negative rating", c.ID)
		}
	}

	rules := make(map[string]struct{}, len(doc.Interlocks))
	for i, r := range doc.Interlocks {
		if r.ID == "" {
			add("interlock #%d has no id", i)
			continue
		}
		if _, dup := rules[r.ID]; dup {
			add("duplicate interlock id %q", r.ID)
			continue
		}
		rules[r.ID] = struct{}{}
		for _, id := range []string{r.Device, r.ConditionDevice} {
			k, ok := kinds[id]
			if !ok {
				add("interlock %q references unknown device %q", r.ID, id)
			} else if !k.Switching() {
				add("interlock %q references non-switching device %q", r.ID, id)
			}
		}
		if !model.SwitchState(r.Target).Valid() || !model.SwitchState(r.ConditionState).Valid() {
			add("interlock %q has unknown state", r.ID)
		}
	}
	return errors.Join(errs...)
}

// Build validates doc and loads it into a fresh Network.
func (doc *Document) Build() (*Network, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	n := NewNetwork()
	for _, d := range doc.Devices {
		if err := n.AddDevice(d.toModel()); err != nil {
			return nil, err
		}
	}
	for _, c := range doc.Connections {
		if err := n.AddConnection(model.Connection{
			ID: c.ID, From: c.From, To: c.To, BusGroup: c.BusGroup, RatingMVA: c.RatingMVA,
		}); err != nil {
			return nil, err
		}
	}
	for _, r := range doc.Interlocks {
		if err := n.AddRule(model.InterlockRule{
			ID:              r.ID,
			Device:          r.Device,
			Target:          model.SwitchState(r.Target),
			ConditionDevice: r.ConditionDevice,
			ConditionState:  model.SwitchState(r.ConditionState),
		}); err != nil {
			return nil, err
		}
	}
	return n, nil
}

func (d DeviceDoc) toModel() model.Device {
	out := model.Device{
		ID:              d.ID,
		Name:            d.Name,
		Kind:            model.Kind(d.Kind),
		State:           model.SwitchState(d.State),
		SourceEnergized: d.SourceEnergized,
		Health:          model.Health(d.Health),
		IsolationTagged: d.IsolationTagged,
	}
	if p := d.Protection; p != nil {
		out.Protection = &model.Protection{
			DAREnabled:  p.DAREnabled,
			Attempts:    p.Attempts,
			DeadTime:    time.Duration(p.DeadTimeMs) * time.Millisecond,
			SettleTime:  time.Duration(p.SettleTimeMs) * time.Millisecond,
			Lockout:     p.Lockout,
			AutoIsolate: p.AutoIsolate,
		}
	}
	if d.Power != nil {
		out.Power = &model.PowerRating{P: d.Power.P, Q: d.Power.Q}
	}
	return out
}

// DocumentFromSnapshot converts a network snapshot back into a document.
// Runtime flags such as Moving and Faulted are not persisted.
func DocumentFromSnapshot(name string, snap Snapshot) *Document {
	doc := &Document{
		Version:     DocumentVersion,
		Name:        name,
		Devices:     make([]DeviceDoc, 0, len(snap.Devices)),
		Connections: make([]ConnectionDoc, 0, len(snap.Connections)),
	}
	for _, d := range snap.Devices {
		dd := DeviceDoc{
			ID:              d.ID,
			Name:            d.Name,
			Kind:            string(d.Kind),
			State:           string(d.State),
			SourceEnergized: d.SourceEnergized,
			IsolationTagged: d.IsolationTagged,
		}
		if d.Health != model.HealthOK {
			dd.Health = string(d.Health)
		}
		if p := d.Protection; p != nil {
			dd.Protection = &ProtectionDoc{
				DAREnabled:   p.DAREnabled,
				Attempts:     p.Attempts,
				DeadTimeMs:   p.DeadTime.Milliseconds(),
				SettleTimeMs: p.SettleTime.Milliseconds(),
				Lockout:      p.Lockout,
				AutoIsolate:  p.AutoIsolate,
			}
		}
		if d.Power != nil {
			dd.Power = &PowerDoc{P: d.Power.P, Q: d.Power.Q}
		}
		doc.Devices = append(doc.Devices, dd)
	}
	for _, c := range snap.Connections {
		doc.Connections = append(doc.Connections, ConnectionDoc{
			ID: c.ID, From: c.From, To: c.To, BusGroup: c.BusGroup, RatingMVA: c.RatingMVA,
		})
	}
	for _, r := range snap.Rules {
		doc.Interlocks = append(doc.Interlocks, RuleDoc{
			ID:              r.ID,
			Device:          r.Device,
			Target:          string(r.Target),
			ConditionDevice: r.ConditionDevice,
			ConditionState:  string(r.ConditionState),
		})
	}
	return doc
}
