// Copyright 2024 The probejs Authors
// This file is part of probejs.

// Package inspector is an optional debug-protocol server: a websocket-
// speaking control surface over §5's host-installable interrupt checks,
// letting a detached client pause a running script at its next
// backward-branch poll, step it one poll at a time, and inspect its
// native call stack.
package inspector

import (
	"sync"

	"github.com/probejs/probejs/runtime"
	"github.com/probejs/probejs/vm"
)

// Session wraps one runtime.Context with pause/resume/step control,
// installed as that Context's interrupt handler. The script's own
// goroutine blocks inside poll while paused; Resume/Step/Pause are called
// from whatever goroutine is driving the inspector connection, which is
// always a different one — the running script can't service its own
// websocket frames.
type Session struct {
	ctx *runtime.Context

	mu      sync.Mutex
	paused  bool
	step    bool
	resume  chan struct{}
	onPause func()
}

// NewSession creates a Session over ctx and installs its poll as ctx's
// interrupt handler. onPause, if non-nil, is called (off the script's
// goroutine is not guaranteed — see poll) each time the script actually
// stops, so a server can push a "paused" event without the client having
// to ask.
func NewSession(ctx *runtime.Context, onPause func()) *Session {
	s := &Session{ctx: ctx, resume: make(chan struct{}), onPause: onPause}
	ctx.SetInterruptHandler(s.poll)
	return s
}

// poll runs on the script's own goroutine at every backward-branch
// interrupt check (§5). A pending single-step request pauses immediately;
// otherwise it blocks only if a client has explicitly paused the session.
func (s *Session) poll() error {
	s.mu.Lock()
	if s.step {
		s.paused = true
		s.step = false
	}
	paused := s.paused
	s.mu.Unlock()

	if !paused {
		return nil
	}
	if s.onPause != nil {
		s.onPause()
	}
	<-s.resume
	return nil
}

// Pause requests that the script stop at its next interrupt poll.
func (s *Session) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

// Resume releases a paused script. A no-op if the session isn't paused.
func (s *Session) Resume() {
	s.mu.Lock()
	if !s.paused {
		s.mu.Unlock()
		return
	}
	s.paused = false
	s.mu.Unlock()
	s.resume <- struct{}{}
}

// Step resumes a paused script but re-arms the pause for the very next
// interrupt poll, giving a single-step-over-one-poll-window granularity —
// not a true per-opcode step, since polling only happens at backward
// branches (§5).
func (s *Session) Step() {
	s.mu.Lock()
	s.step = true
	wasPaused := s.paused
	s.paused = false
	s.mu.Unlock()
	if wasPaused {
		s.resume <- struct{}{}
	}
}

// Paused reports whether a pause is in effect: set by Pause, cleared by
// Resume and Step. The script blocks on it at its next poll.
func (s *Session) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Frames returns the script's current native call stack.
func (s *Session) Frames() []vm.FrameInfo {
	return s.ctx.VM().Frames()
}
