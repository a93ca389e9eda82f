package diag

import "fmt"

// Level is a lint's configured severity (spec.md §4.J).
type Level uint8

const (
	Allow Level = iota
	Warn
	Deny
	Forbid
)

func (l Level) String() string {
	switch l {
	case Allow:
		return "allow"
	case Warn:
		return "warn"
	case Deny:
		return "deny"
	case Forbid:
		return "forbid"
	default:
		return "unknown"
	}
}

// ParseLevel parses one of the four level names.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "allow":
		return Allow, nil
	case "warn":
		return Warn, nil
	case "deny":
		return Deny, nil
	case "forbid":
		return Forbid, nil
	default:
		return 0, fmt.Errorf("diag: unknown lint level %q", s)
	}
}

// Table is one lint configuration table: lint name -> configured
// level. A workspace-level Table and a member-level Table are combined
// by Resolve.
type Table map[string]Level

// Resolve computes lint's effective level for one package, given the
// workspace-level table (may be nil) and the package's own table (may
// be nil), honoring the member's "inherit" opt-in and the rule that
// `forbid` can never be downgraded by a finer-grained (member-level)
// setting.
//
// `inherit` models the manifest's `lints.workspace = true` opt-in: a
// member that does not set it uses only its own table, ignoring the
// workspace table entirely.
func Resolve(lint string, workspace, member Table, inherit bool) Level {
	var base Level
	if inherit && workspace != nil {
		base = workspace[lint]
	}
	if member == nil {
		return base
	}
	ownLevel, ownSet := member[lint]
	if !ownSet {
		return base
	}
	if base == Forbid {
		// forbid is not overridable by a finer-grained setting,
		// regardless of what the member requests.
		return Forbid
	}
	return ownLevel
}

// ToKind maps an effective lint level to the diagnostic Kind it should
// be emitted as, and whether it should be emitted at all (Allow
// suppresses the diagnostic entirely).
func (l Level) ToKind() (kind Kind, emit bool) {
	switch l {
	case Allow:
		return 0, false
	case Warn:
		return KindWarning, true
	case Deny, Forbid:
		return KindError, true
	default:
		return 0, false
	}
}
