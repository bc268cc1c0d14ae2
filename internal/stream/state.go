// Package stream manages in-flight streaming sessions: a bounded LRU cache
// of session state plus the merge rules that govern how partial updates
// compose while tokens are still arriving.
package stream

import (
	"sync"
	"time"

	"github.com/clonar-ai/answer-engine/internal/answer"
)

// Phase is the per-turn lifecycle stage. Phases only advance.
type Phase int

const (
	PhaseSearching Phase = iota
	PhaseAnswering
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseSearching:
		return "searching"
	case PhaseAnswering:
		return "answering"
	case PhaseDone:
		return "done"
	}
	return "unknown"
}

// State is the buffered view of one streaming turn.
type State struct {
	Phase     Phase
	Answer    string
	Sections  []answer.Section
	Sources   []answer.SourceRef
	Cards     map[string][]answer.Card
	Media     []string
	FollowUps []string
	Finalized bool
	Trace     []string
}

// Update is a partial state change. Pointer fields distinguish "absent"
// (nil, keep existing) from "explicitly empty" (clear) and "non-empty"
// (replace). Trace entries are always appended.
type Update struct {
	Phase     *Phase
	Answer    *string
	Sections  *[]answer.Section
	Sources   *[]answer.SourceRef
	Cards     *map[string][]answer.Card
	Media     *[]string
	FollowUps *[]string
	Finalized bool // one-way; false is a no-op
	Trace     []string
}

// Session is one live streaming turn. Each session carries its own lock so
// distinct sessions never contend.
type Session struct {
	ID string

	mu           sync.Mutex
	state        State
	lastActivity time.Time
}

func NewSession(id string) *Session {
	return &Session{ID: id, lastActivity: time.Now()}
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Apply merges u into the session state. Structured fields (sections,
// sources, cards, media, follow-ups) freeze once the session is finalized;
// the trace stays additive and the phase may still advance to done. A late
// update can never clobber a delivered answer.
func (s *Session) Apply(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()

	if u.Phase != nil && *u.Phase > s.state.Phase {
		s.state.Phase = *u.Phase
	}
	s.state.Trace = append(s.state.Trace, u.Trace...)

	if !s.state.Finalized {
		if u.Answer != nil {
			s.state.Answer = *u.Answer
		}
		if u.Sections != nil {
			s.state.Sections = *u.Sections
		}
		if u.Sources != nil {
			s.state.Sources = *u.Sources
		}
		if u.Cards != nil {
			s.state.Cards = *u.Cards
		}
		if u.Media != nil {
			s.state.Media = *u.Media
		}
		if u.FollowUps != nil {
			s.state.FollowUps = *u.FollowUps
		}
	}
	if u.Finalized {
		s.state.Finalized = true
	}
}

// AppendAnswer adds streamed text to the buffered answer. No-op once
// finalized.
func (s *Session) AppendAnswer(delta string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
	if !s.state.Finalized {
		s.state.Answer += delta
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) last() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}
