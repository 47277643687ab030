// Package report provides the leveled progress sink every component writes
// its human-facing messages to.
//
// Components receive a Reporter at construction; nothing in the tool writes
// progress messages through a global.
package report

import (
	"fmt"
	"sync"
)

// Reporter receives leveled progress messages. Implementations decide how
// (or whether) they are rendered.
type Reporter interface {
	Step(msg string)
	Success(msg string)
	Warning(msg string)
	Error(msg string)
	Info(msg string)
}

// Level identifies the kind of a recorded message.
type Level string

const (
	LevelStep    Level = "step"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Silent discards every message.
type Silent struct{}

func (Silent) Step(string)    {}
func (Silent) Success(string) {}
func (Silent) Warning(string) {}
func (Silent) Error(string)   {}
func (Silent) Info(string)    {}

// Entry is a single recorded message.
type Entry struct {
	Level   Level
	Message string
}

// String renders the entry as "level: message".
func (e Entry) String() string {
	return fmt.Sprintf("%s: %s", e.Level, e.Message)
}

// Recorder captures messages in order. Safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) add(level Level, msg string) {
	r.mu.Lock()
	r.entries = append(r.entries, Entry{Level: level, Message: msg})
	r.mu.Unlock()
}

func (r *Recorder) Step(msg string)    { r.add(LevelStep, msg) }
func (r *Recorder) Success(msg string) { r.add(LevelSuccess, msg) }
func (r *Recorder) Warning(msg string) { r.add(LevelWarning, msg) }
func (r *Recorder) Error(msg string)   { r.add(LevelError, msg) }
func (r *Recorder) Info(msg string)    { r.add(LevelInfo, msg) }

// Entries returns a copy of everything recorded so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Messages returns the messages recorded at the given level.
func (r *Recorder) Messages(level Level) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.entries {
		if e.Level == level {
			out = append(out, e.Message)
		}
	}
	return out
}

// Count returns how many messages were recorded at the given level.
func (r *Recorder) Count(level Level) int {
	return len(r.Messages(level))
}
