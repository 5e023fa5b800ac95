// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import (
	"strings"
	"time"
)

// AdBreakStatus is the lifecycle state of an AdBreak.
type AdBreakStatus string

const (
	AdBreakScheduled AdBreakStatus = "SCHEDULED"
	AdBreakTriggered AdBreakStatus = "TRIGGERED"
	AdBreakCompleted AdBreakStatus = "COMPLETED"
	AdBreakCancelled AdBreakStatus = "CANCELLED"
)

// Terminal reports whether no further transition is allowed.
func (s AdBreakStatus) Terminal() bool {
	return s == AdBreakCompleted || s == AdBreakCancelled
}

// ParseAdBreakStatus accepts any casing.
func ParseAdBreakStatus(s string) (AdBreakStatus, bool) {
	st := AdBreakStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case AdBreakScheduled, AdBreakTriggered, AdBreakCompleted, AdBreakCancelled:
		return st, true
	}
	return "", false
}

// AdBreakTransitions lists every allowed edge of the ad-break lifecycle.
var AdBreakTransitions = []struct{ From, To AdBreakStatus }{
	{AdBreakScheduled, AdBreakTriggered},
	{AdBreakScheduled, AdBreakCancelled},
	{AdBreakTriggered, AdBreakCompleted},
}

// CanTransitionAdBreak reports whether from -> to is an allowed edge.
func CanTransitionAdBreak(from, to AdBreakStatus) bool {
	for _, tr := range AdBreakTransitions {
		if tr.From == from && tr.To == to {
			return true
		}
	}
	return false
}

// Defaults applied to ad breaks created without explicit values.
const (
	DefaultBreakDuration = 600 * time.Second
	DefaultAutoReturn    = 600 * time.Second
	DefaultProviderName  = "YourProvider"
	DefaultProviderID    = "0x1"
	DefaultSCTE35PID     = 500
	MaxPreRollDuration   = 10 * time.Second
)

// FirstEventID is the first splice event ID handed out on a fresh store.
const FirstEventID uint32 = 100000

// AdBreak is a scheduled advertisement insertion.
type AdBreak struct {
	ID              string
	StreamID        string
	Name            string
	ScheduledTime   time.Time
	Duration        time.Duration
	AdID            string
	Description     string
	ProviderName    string
	ProviderID      string
	AutoReturn      time.Duration
	PreRollDuration time.Duration
	CrashOut        bool
	SCTE35PID       int

	Status      AdBreakStatus
	EventID     *uint32
	TriggeredAt *time.Time
	CompletedAt *time.Time
	// ReturnDueAt is the persisted due time of the pending return timer.
	ReturnDueAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ApplyDefaults fills unset optional fields.
func (b *AdBreak) ApplyDefaults() {
	if b.ProviderName == "" {
		b.ProviderName = DefaultProviderName
	}
	if b.ProviderID == "" {
		b.ProviderID = DefaultProviderID
	}
	if b.SCTE35PID == 0 {
		b.SCTE35PID = DefaultSCTE35PID
	}
}

// BreakLength is the time between CUE-OUT and the natural CUE-IN.
func (b *AdBreak) BreakLength() time.Duration {
	return b.Duration + b.PreRollDuration
}

// ReturnDue derives when the natural CUE-IN is due.
func (b *AdBreak) ReturnDue() (time.Time, bool) {
	if b.ReturnDueAt != nil {
		return *b.ReturnDueAt, true
	}
	if b.TriggeredAt != nil {
		return b.TriggeredAt.Add(b.BreakLength()), true
	}
	return time.Time{}, false
}

// Clone returns a deep copy.
func (b *AdBreak) Clone() *AdBreak {
	if b == nil {
		return nil
	}
	c := *b
	c.EventID = cloneU32(b.EventID)
	c.TriggeredAt = cloneTime(b.TriggeredAt)
	c.CompletedAt = cloneTime(b.CompletedAt)
	c.ReturnDueAt = cloneTime(b.ReturnDueAt)
	return &c
}

// AdBreakPatch is a partial update. Nil fields are left unchanged.
type AdBreakPatch struct {
	Status      *AdBreakStatus
	EventID     *uint32
	TriggeredAt *time.Time
	CompletedAt *time.Time
	ReturnDueAt *time.Time
	// ClearReturnDue removes ReturnDueAt once the return timer is gone.
	ClearReturnDue bool
	CrashOut       *bool
}

// Apply writes the patch onto b and stamps UpdatedAt.
func (p AdBreakPatch) Apply(b *AdBreak, now time.Time) {
	if p.Status != nil {
		b.Status = *p.Status
	}
	if p.EventID != nil {
		b.EventID = cloneU32(p.EventID)
	}
	if p.TriggeredAt != nil {
		b.TriggeredAt = cloneTime(p.TriggeredAt)
	}
	if p.CompletedAt != nil {
		b.CompletedAt = cloneTime(p.CompletedAt)
	}
	if p.ReturnDueAt != nil {
		b.ReturnDueAt = cloneTime(p.ReturnDueAt)
	}
	if p.ClearReturnDue {
		b.ReturnDueAt = nil
	}
	if p.CrashOut != nil {
		b.CrashOut = *p.CrashOut
	}
	b.UpdatedAt = now
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneU32(v *uint32) *uint32 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

// Check rejects a patch whose status change is not in AdBreakTransitions.
func (p AdBreakPatch) Check(b *AdBreak) error {
	if p.Status == nil || *p.Status == b.Status {
		return nil
	}
	if !CanTransitionAdBreak(b.Status, *p.Status) {
		return &TransitionError{Entity: "ad break", ID: b.ID, From: string(b.Status), To: string(*p.Status)}
	}
	return nil
}
