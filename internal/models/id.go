package models

import (
	"strings"

	"github.com/google/uuid"
)

const idSegmentLength = 8

// NewIDSegment returns a short random hex segment.
func NewIDSegment() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:idSegmentLength]
}

// NewPrefixedID returns "<prefix>-<segment>", or just the segment when
// prefix is empty.
func NewPrefixedID(prefix string) string {
	segment := NewIDSegment()
	if prefix == "" {
		return segment
	}
	return prefix + "-" + segment
}

// IsPersistableID reports whether id is a server-side UUID. Strategies with
// other ids only exist as local drafts.
func IsPersistableID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil && len(id) == 36
}
