package entitlement

import (
	"fmt"
	"strings"
)

// SubjectKind tells whether a subject is a single user or a team.
type SubjectKind string

const (
	KindUser SubjectKind = "user"
	KindTeam SubjectKind = "team"
)

func (k SubjectKind) Valid() bool {
	return k == KindUser || k == KindTeam
}

// Subject is the entity quota and plans are evaluated against.
type Subject struct {
	Kind SubjectKind `json:"kind"`
	ID   string      `json:"id"`
}

// UserSubject returns the subject of a single user.
func UserSubject(id string) Subject { return Subject{Kind: KindUser, ID: id} }

// TeamSubject returns the subject of a team.
func TeamSubject(id string) Subject { return Subject{Kind: KindTeam, ID: id} }

// Key returns the canonical "kind:id" form used for counters and cache entries.
func (s Subject) Key() string {
	return string(s.Kind) + ":" + s.ID
}

func (s Subject) String() string { return s.Key() }

// IsZero reports whether s is unset.
func (s Subject) IsZero() bool { return s.Kind == "" && s.ID == "" }

// Validate checks the kind and id.
func (s Subject) Validate() error {
	if !s.Kind.Valid() || strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("%w: %q", ErrInvalidSubject, s.Key())
	}
	return nil
}

// ParseSubject converts a "kind:id" key back into a Subject.
func ParseSubject(key string) (Subject, error) {
	kind, id, ok := strings.Cut(key, ":")
	s := Subject{Kind: SubjectKind(kind), ID: id}
	if !ok {
		return Subject{}, fmt.Errorf("%w: %q", ErrInvalidSubject, key)
	}
	if err := s.Validate(); err != nil {
		return Subject{}, err
	}
	return s, nil
}

// Principal is the caller identity supplied by the session layer.
type Principal struct {
	UserID string `json:"user_id"`
	TeamID string `json:"team_id,omitempty"`
}

func (p Principal) Validate() error {
	if strings.TrimSpace(p.UserID) == "" {
		return ErrInvalidPrincipal
	}
	return nil
}

// User returns the principal's own subject.
func (p Principal) User() Subject { return UserSubject(p.UserID) }

// Team returns the principal's team subject and whether there is one.
func (p Principal) Team() (Subject, bool) {
	if p.TeamID == "" {
		return Subject{}, false
	}
	return TeamSubject(p.TeamID), true
}
