// Package models defines the entity kinds, skill sets and recommendation results.
package models

import (
	"fmt"
	"time"
)

// Kind identifies which side of the marketplace an entity belongs to.
type Kind string

const (
	// KindPosting is a job posting. Postings are eligible while active.
	KindPosting Kind = "posting"
	// KindCandidate is a job seeker. Candidates are eligible while open to work.
	KindCandidate Kind = "candidate"
)

// Kinds lists every entity kind in a stable order.
var Kinds = []Kind{KindPosting, KindCandidate}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindPosting || k == KindCandidate
}

// Opposite returns the kind that k is matched against.
func (k Kind) Opposite() Kind {
	if k == KindPosting {
		return KindCandidate
	}
	return KindPosting
}

// ParseKind accepts singular and plural spellings ("posting", "postings").
func ParseKind(s string) (Kind, error) {
	switch s {
	case "posting", "postings", "project", "projects":
		return KindPosting, nil
	case "candidate", "candidates", "seeker", "seekers":
		return KindCandidate, nil
	default:
		return "", fmt.Errorf("unknown entity kind: %q (supported: posting, candidate)", s)
	}
}

// Entity is the data-access view of a posting or candidate: its raw skill
// names and whether it is currently eligible for matching.
type Entity struct {
	ID        int64     `json:"id" yaml:"id" db:"id"`
	Kind      Kind      `json:"kind" yaml:"-" db:"kind"`
	Eligible  bool      `json:"eligible" yaml:"eligible" db:"eligible"`
	Skills    []string  `json:"skills" yaml:"skills" db:"skills"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-" db:"updated_at"`
}

// SkillSet is one entity's raw skill names, as supplied by the data-access layer.
type SkillSet struct {
	EntityID int64
	Skills   []string
}
