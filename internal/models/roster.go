package models

import (
	"fmt"
	"math"
	"time"
)

// RosterEntry is one enrolled identity available for face matching.
type RosterEntry struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Descriptor []float32 `json:"-"`
	AvatarURL  string    `json:"avatar_url,omitempty"`
}

// HasDescriptor reports whether the entry can take part in matching.
func (e RosterEntry) HasDescriptor() bool {
	return len(e.Descriptor) > 0
}

// NewRosterEntry validates a roster row. dim is the oracle output length;
// a nil descriptor is accepted (the entry is skipped by the matcher) but
// a descriptor of the wrong length or with non-finite values is rejected.
func NewRosterEntry(id, name string, descriptor []float32, avatarURL string, dim int) (RosterEntry, error) {
	if id == "" {
		return RosterEntry{}, invalid("roster entry", "id", "is empty")
	}
	if name == "" {
		return RosterEntry{}, invalid("roster entry", "name", "is empty")
	}
	if descriptor != nil {
		if len(descriptor) != dim {
			return RosterEntry{}, invalid("roster entry", "descriptor",
				fmt.Sprintf("has length %d, want %d", len(descriptor), dim))
		}
		for _, v := range descriptor {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				return RosterEntry{}, invalid("roster entry", "descriptor", "contains a non-finite value")
			}
		}
	}
	return RosterEntry{ID: id, Name: name, Descriptor: descriptor, AvatarURL: avatarURL}, nil
}

// MatchResult is the outcome of one face match against the roster.
type MatchResult struct {
	Entry    *RosterEntry
	Distance float64
}

// Found reports whether an entry was accepted.
func (m MatchResult) Found() bool {
	return m.Entry != nil
}

// LiveSample is the result of one descriptor extraction. A nil Descriptor
// means no face was found in the frame.
type LiveSample struct {
	Descriptor []float32
	BBox       [4]float32
	Timestamp  time.Time
}

// HasFace reports whether a face was detected.
func (s LiveSample) HasFace() bool {
	return s.Descriptor != nil
}
