package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"
)

// Type tags an event on the wire
type Type string

const (
	TypeChangePhase    Type = "changePhase"
	TypeChangeDetail   Type = "changeDetail"
	TypeUpdateProgress Type = "updateProgress"
	TypeAddAlert       Type = "addAlert"
)

// Phase is a coarse stage of a run
type Phase string

const (
	PhaseDownloadModLoader Phase = "downloadModLoader"
	PhaseRemoveMods        Phase = "removeMods"
	PhaseDownloadMods      Phase = "downloadMods"
	PhaseDownloadResources Phase = "downloadResources"
	PhaseRunMigrations     Phase = "runMigrations"
	PhaseAddProfile        Phase = "addProfile"
	PhaseLaunchModLoader   Phase = "launchModLoader"
)

// Level is the severity of an alert
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
)

// Translation keys of the alerts raised by a run
const (
	AlertFailedAddProfile      = "alertOnFailedAddProfile"
	AlertFailedLaunchModLoader = "alertOnFailedLaunchModLoader"
	AlertLaunchModLoader       = "alertOnLaunchModLoader"
)

// Event is a single lifecycle notification. Only the fields that belong to Type are set.
type Event struct {
	Type           Type
	Phase          Phase
	Detail         string
	Progress       float64
	Level          Level
	TranslationKey string
}

func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case TypeChangePhase:
		return json.Marshal(struct {
			Type  Type  `json:"type"`
			Phase Phase `json:"phase"`
		}{e.Type, e.Phase})
	case TypeChangeDetail:
		return json.Marshal(struct {
			Type   Type   `json:"type"`
			Detail string `json:"detail"`
		}{e.Type, e.Detail})
	case TypeUpdateProgress:
		return json.Marshal(struct {
			Type     Type    `json:"type"`
			Progress float64 `json:"progress"`
		}{e.Type, e.Progress})
	case TypeAddAlert:
		return json.Marshal(struct {
			Type           Type   `json:"type"`
			Level          Level  `json:"level"`
			TranslationKey string `json:"translation_key"`
		}{e.Type, e.Level, e.TranslationKey})
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
}

func (e Event) String() string {
	switch e.Type {
	case TypeChangePhase:
		return fmt.Sprintf("phase %s", e.Phase)
	case TypeChangeDetail:
		return fmt.Sprintf("detail %q", e.Detail)
	case TypeUpdateProgress:
		return fmt.Sprintf("progress %.3f", e.Progress)
	case TypeAddAlert:
		return fmt.Sprintf("alert %s %s", e.Level, e.TranslationKey)
	default:
		return string(e.Type)
	}
}

// Sink receives events. A returned error is logged by the Emitter and otherwise ignored.
type Sink interface {
	Emit(Event) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(Event) error

func (f SinkFunc) Emit(e Event) error { return f(e) }

// Discard drops every event
var Discard Sink = SinkFunc(func(Event) error { return nil })

type multi []Sink

// Multi fans every event out to all sinks, in order
func Multi(sinks ...Sink) Sink {
	return multi(sinks)
}

func (m multi) Emit(e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// JSONSink writes one JSON object per line
type JSONSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{enc: json.NewEncoder(w)}
}

func (s *JSONSink) Emit(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(e)
}

// Emitter is what a run uses to publish events. Delivery failures never reach the caller.
type Emitter struct {
	sink Sink
}

// NewEmitter wraps sink. A nil sink discards events.
func NewEmitter(sink Sink) *Emitter {
	if sink == nil {
		sink = Discard
	}
	return &Emitter{sink: sink}
}

func (em *Emitter) emit(e Event) {
	if err := em.sink.Emit(e); err != nil {
		log.Warn("failed to emit installer event", "event", e, "err", err)
	}
}

func (em *Emitter) ChangePhase(p Phase) {
	em.emit(Event{Type: TypeChangePhase, Phase: p})
}

func (em *Emitter) ChangeDetail(detail string) {
	em.emit(Event{Type: TypeChangeDetail, Detail: detail})
}

func (em *Emitter) UpdateProgress(progress float64) {
	em.emit(Event{Type: TypeUpdateProgress, Progress: progress})
}

func (em *Emitter) AddAlert(level Level, key string) {
	em.emit(Event{Type: TypeAddAlert, Level: level, TranslationKey: key})
}

// Recorder keeps every event it receives
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of what was recorded
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Phases returns the recorded phase changes in order
func (r *Recorder) Phases() []Phase {
	var out []Phase
	for _, e := range r.Events() {
		if e.Type == TypeChangePhase {
			out = append(out, e.Phase)
		}
	}
	return out
}

// Progress returns the recorded progress values in order
func (r *Recorder) Progress() []float64 {
	var out []float64
	for _, e := range r.Events() {
		if e.Type == TypeUpdateProgress {
			out = append(out, e.Progress)
		}
	}
	return out
}

// Alerts returns the recorded alerts in order
func (r *Recorder) Alerts() []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == TypeAddAlert {
			out = append(out, e)
		}
	}
	return out
}
