// Package editor implements the 7-day strip editor: it renders per-habit
// day-cells from the aggregated week map and translates pointer gestures
// (click, press-drag-release) into one batched completion commit.
package editor

import (
	"context"
	"fmt"
)

// Committer is the single storage capability the editor needs. It is
// satisfied by any HabitStore backend.
type Committer interface {
	SetCompletion(ctx context.Context, ownerID, habitRef, dateKey string, done bool) error
}

// State is the gesture state of a strip.
type State int

const (
	// Idle: no pointer engagement.
	Idle State = iota
	// Painting: pointer held down, cells entered during the drag are set to
	// the paint target captured on press.
	Painting
	// Committing: pointer released, the pending batch is being applied.
	Committing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Painting:
		return "painting"
	case Committing:
		return "committing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Strip is the interactive editor for one habit's 7-day cell row. Cells are
// ordered today-first. A Strip is bound to the window it was built with;
// rebuild strips after every re-render so they track the current window.
type Strip struct {
	owner    string
	habitRef string
	window   []string
	inWindow map[string]bool
	current  map[string]bool
	store    Committer

	state       State
	paintTarget bool
	pending     map[string]bool
}

// NewStrip builds a strip for one habit. window is the ordered 7-day date
// key sequence (today first) and current holds the completed dates from the
// week map.
func NewStrip(store Committer, owner, habitRef string, window []string, current map[string]bool) *Strip {
	inWindow := make(map[string]bool, len(window))
	for _, k := range window {
		inWindow[k] = true
	}
	return &Strip{
		owner:    owner,
		habitRef: habitRef,
		window:   append([]string(nil), window...),
		inWindow: inWindow,
		current:  current,
		store:    store,
		pending:  make(map[string]bool),
	}
}

// State returns the current gesture state.
func (s *Strip) State() State { return s.state }

// Window returns the ordered date keys the strip renders, today first.
func (s *Strip) Window() []string { return append([]string(nil), s.window...) }

// CellDone reports the visual state of a cell: the optimistic pending value
// when one exists, otherwise the last rendered state.
func (s *Strip) CellDone(dateKey string) bool {
	if v, ok := s.pending[dateKey]; ok {
		return v
	}
	return s.current[dateKey]
}

// PressDown starts a paint gesture on a cell. The paint target is the
// inverse of the cell's current state; the pressed cell is painted
// immediately. Presses outside the window or during another gesture are
// ignored.
func (s *Strip) PressDown(dateKey string) {
	if s.state != Idle || !s.inWindow[dateKey] {
		return
	}
	s.paintTarget = !s.CellDone(dateKey)
	s.pending[dateKey] = s.paintTarget
	s.state = Painting
}

// EnterCell paints a cell entered mid-drag. Every cell visited during one
// drag ends at the same target value (overwrite, not toggle).
func (s *Strip) EnterCell(dateKey string) {
	if s.state != Painting || !s.inWindow[dateKey] {
		return
	}
	s.pending[dateKey] = s.paintTarget
}

// Release ends the gesture and commits the pending batch. The strip returns
// to Idle whether the commit succeeded or not; on failure the caller is
// expected to force a re-render, which is the source of truth for what
// actually persisted. A release with nothing pending is a no-op.
func (s *Strip) Release(ctx context.Context) error {
	if s.state != Painting {
		return nil
	}
	s.state = Committing

	batch := s.pending
	s.pending = make(map[string]bool)

	err := ApplyBatch(ctx, s.store, s.owner, s.habitRef, batch, s.window)

	s.state = Idle
	return err
}

// Pending returns a copy of the uncommitted paint batch.
func (s *Strip) Pending() map[string]bool {
	out := make(map[string]bool, len(s.pending))
	for k, v := range s.pending {
		out[k] = v
	}
	return out
}

// ApplyBatch applies a date->desired map through the store, one independent
// SetCompletion per in-window date. Dates outside the window are silently
// skipped with no backend call; that bounds editable history to the visible
// strip. The batch is not atomic: application stops at the first failure and
// the error reports how far it got.
func ApplyBatch(ctx context.Context, store Committer, owner, habitRef string, batch map[string]bool, window []string) error {
	inWindow := make(map[string]bool, len(window))
	for _, k := range window {
		inWindow[k] = true
	}

	applied := 0
	// Walk the window order so partial failures are deterministic.
	for _, date := range window {
		desired, ok := batch[date]
		if !ok {
			continue
		}
		if err := store.SetCompletion(ctx, owner, habitRef, date, desired); err != nil {
			return fmt.Errorf("batch commit failed after %d of %d changes (%s): %w",
				applied, countInWindow(batch, inWindow), date, err)
		}
		applied++
	}
	return nil
}

func countInWindow(batch map[string]bool, inWindow map[string]bool) int {
	n := 0
	for date := range batch {
		if inWindow[date] {
			n++
		}
	}
	return n
}
