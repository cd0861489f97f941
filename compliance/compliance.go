// Package compliance selects how strictly the lifecycle workflow gates its steps.
package compliance

import (
	"fmt"
	"strings"
)

// Mode selects workflow gating.
//
// Permissive runs the workflow as a diagnostic: a failed or unconfirmed
// verification does not prevent revocation, but every skip and failure is
// reported. Strict refuses to revoke a credential that was not verified in
// the same run.
type Mode int

const (
	Permissive Mode = iota
	Strict
)

func (m Mode) String() string {
	switch m {
	case Permissive:
		return "permissive"
	case Strict:
		return "strict"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses "permissive" or "strict". The empty string is Permissive.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "permissive":
		return Permissive, nil
	case "strict":
		return Strict, nil
	default:
		return Permissive, fmt.Errorf("compliance: unknown mode %q", s)
	}
}

// GatesRevocation reports whether revocation requires a prior verification.
func (m Mode) GatesRevocation() bool { return m == Strict }
