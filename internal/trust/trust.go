// Package trust decides whether a document's embedded scripts may run and
// which capability set the external script runtime should expose. It never
// executes script itself.
package trust

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrStoreUnavailable reports that the persistent trust store cannot be read
// or written. Decisions made while the store is unavailable are kept for the
// session only.
var ErrStoreUnavailable = errors.New("trust store unavailable")

// Decision is the per-file script execution state.
type Decision int

const (
	NotYetDecided Decision = iota
	Allowed
	Denied
)

func (d Decision) String() string {
	switch d {
	case Allowed:
		return "allowed"
	case Denied:
		return "denied"
	default:
		return "not-yet-decided"
	}
}

// ParseDecision is the inverse of String.
func ParseDecision(s string) (Decision, error) {
	switch s {
	case "allowed":
		return Allowed, nil
	case "denied":
		return Denied, nil
	case "not-yet-decided":
		return NotYetDecided, nil
	default:
		return NotYetDecided, fmt.Errorf("trust: unknown decision %q", s)
	}
}

// MarshalText encodes the decision as its string form.
func (d Decision) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText decodes the string form produced by MarshalText.
func (d *Decision) UnmarshalText(text []byte) error {
	parsed, err := ParseDecision(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Record is one stored trust decision for a file identity.
type Record struct {
	FileID     string    `json:"file_id"`
	Decision   Decision  `json:"decision"`
	Persistent bool      `json:"persistent"`
	DecidedAt  time.Time `json:"decided_at"`
}

// Store persists trust records. Put must be flushed to durable storage before
// it returns so a crash immediately after an allow-permanently cannot revert
// the decision to prompting.
type Store interface {
	Load(ctx context.Context) ([]Record, error)
	Put(ctx context.Context, rec Record) error
	Delete(ctx context.Context, fileID string) error
	Close() error
}

// Prompt outcomes accepted by RecordPromptOutcome.
const (
	PromptAllow            = "allow"
	PromptAllowPermanently = "allow-permanently"
	PromptDeny             = "deny"
)
