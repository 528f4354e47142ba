// Package idgen generates opaque message identities used to de-duplicate
// frames a broker may deliver more than once.
package idgen

import (
	"fmt"
	"strings"
)

// Supported generator kinds.
const (
	KindUUID  = "uuid"
	KindULID  = "ulid"
	KindKSUID = "ksuid"
)

// Generator produces unique string identifiers.
type Generator interface {
	Generate() (string, error)
	Validate(id string) (bool, string) // (valid, reason)
}

// New returns the generator for kind. An empty kind selects UUID.
func New(kind string) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindUUID:
		return NewUUIDGenerator(), nil
	case KindULID:
		return NewULIDGenerator(), nil
	case KindKSUID:
		return NewKSUIDGenerator(), nil
	default:
		return nil, fmt.Errorf("unknown id generator %q", kind)
	}
}

// Func adapts a plain function to Generator. Validate accepts any non-empty id.
type Func func() (string, error)

func (f Func) Generate() (string, error) { return f() }

func (f Func) Validate(id string) (bool, string) {
	if id == "" {
		return false, "empty id"
	}
	return true, ""
}
