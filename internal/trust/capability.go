package trust

import "fmt"

// Level selects how much of the host environment scripts may touch.
type Level string

const (
	LevelStrict     Level = "strict"
	LevelStandard   Level = "standard"
	LevelPermissive Level = "permissive"
)

// ParseLevel validates a security level read from configuration.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case LevelStrict, LevelStandard, LevelPermissive:
		return Level(s), nil
	}
	return "", fmt.Errorf("trust: unknown security level %q", s)
}

// Capability names one primitive the script runtime may expose.
type Capability string

const (
	CapMath        Capability = "math"
	CapJSON        Capability = "json"
	CapDatetime    Capability = "datetime"
	CapCollections Capability = "collections"
	CapPromise     Capability = "promise"
	CapFetch       Capability = "fetch"
)

// ResolveCapabilities returns the ordered capability allowlist for a level.
// Each level strictly extends the previous one, and unknown levels resolve
// to the strict set. The result is a fresh slice on every call.
func ResolveCapabilities(level Level) []Capability {
	caps := []Capability{CapMath, CapJSON}
	if level != LevelStandard && level != LevelPermissive {
		return caps
	}
	caps = append(caps, CapDatetime, CapCollections, CapPromise)
	if level != LevelPermissive {
		return caps
	}
	return append(caps, CapFetch)
}

// CapabilityNames converts a capability list to plain strings for transport.
func CapabilityNames(caps []Capability) []string {
	out := make([]string, len(caps))
	for i, c := range caps {
		out[i] = string(c)
	}
	return out
}
