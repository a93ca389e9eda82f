// Package diag implements the structured diagnostic event stream:
// typed errors/warnings/notes/help with spans and suggestions,
// deduplicated across parallel build workers, plus the lint-level
// engine that governs whether a triggered lint becomes one of those
// (spec.md §4.J, component J).
//
// Grounded on the teacher's errors.go typed-error-value pattern
// (noVersionError, et al. -- small structs with an Error() string and
// enough fields for a caller to switch on) and, for the level
// vocabulary itself, spec.md §4.J directly. No pack library models
// structured diagnostics with suggestions; the typed-value shape below
// is the idiom the teacher already uses for everything else in errors.go.
package diag

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Kind classifies one diagnostic event.
type Kind uint8

const (
	KindError Kind = iota
	KindWarning
	KindNote
	KindHelp
)

func (k Kind) String() string {
	switch k {
	case KindError:
		return "error"
	case KindWarning:
		return "warning"
	case KindNote:
		return "note"
	case KindHelp:
		return "help"
	default:
		return "unknown"
	}
}

// Span is the primary source location a diagnostic points at. File may
// be empty for a diagnostic with no precise location (e.g. a whole-
// manifest or whole-resolution problem).
type Span struct {
	File string
	Line int
	Col  int
}

func (s Span) String() string {
	if s.File == "" {
		return ""
	}
	if s.Line == 0 {
		return s.File
	}
	if s.Col == 0 {
		return fmt.Sprintf("%s:%d", s.File, s.Line)
	}
	return fmt.Sprintf("%s:%d:%d", s.File, s.Line, s.Col)
}

// Diagnostic is one structured event.
type Diagnostic struct {
	Kind        Kind
	Code        string // lint/error code, e.g. "links-clash"; "" if none
	Message     string
	Primary     Span
	Suggestions []string
}

func (d Diagnostic) String() string {
	var b strings.Builder
	b.WriteString(d.Kind.String())
	if d.Code != "" {
		fmt.Fprintf(&b, "[%s]", d.Code)
	}
	b.WriteString(": ")
	b.WriteString(d.Message)
	if loc := d.Primary.String(); loc != "" {
		fmt.Fprintf(&b, " (%s)", loc)
	}
	for _, s := range d.Suggestions {
		fmt.Fprintf(&b, "\n  help: %s", s)
	}
	return b.String()
}

// dedupKey identifies diagnostics that should be collapsed into one
// when emitted identically by multiple parallel units (spec.md §4.J:
// "a shared dependency warns once per dependent").
func (d Diagnostic) dedupKey() string {
	return fmt.Sprintf("%d|%s|%s|%s", d.Kind, d.Code, d.Message, d.Primary.String())
}

// Sink collects diagnostics from however many concurrent workers emit
// them, deduplicating identical ones and preserving first-seen order
// for everything else. Safe for concurrent use.
type Sink struct {
	mu    sync.Mutex
	seen  map[string]bool
	order []Diagnostic
}

// NewSink returns an empty Sink.
func NewSink() *Sink {
	return &Sink{seen: make(map[string]bool)}
}

// Emit records d unless an identical diagnostic (same kind, code,
// message, and primary span) has already been recorded. Returns true if
// this was a new diagnostic.
func (s *Sink) Emit(d Diagnostic) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := d.dedupKey()
	if s.seen[k] {
		return false
	}
	s.seen[k] = true
	s.order = append(s.order, d)
	return true
}

// All returns every distinct diagnostic recorded so far, in emission
// order.
func (s *Sink) All() []Diagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Diagnostic, len(s.order))
	copy(out, s.order)
	return out
}

// Errors returns only the KindError diagnostics.
func (s *Sink) Errors() []Diagnostic {
	var out []Diagnostic
	for _, d := range s.All() {
		if d.Kind == KindError {
			out = append(out, d)
		}
	}
	return out
}

// HasErrors reports whether any KindError diagnostic was recorded.
func (s *Sink) HasErrors() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.order {
		if d.Kind == KindError {
			return true
		}
	}
	return false
}

// SortBySpan orders the sink's recorded diagnostics by (file, line,
// col), for stable presentation; diagnostics with no span sort last,
// preserving their relative emission order.
func (s *Sink) SortBySpan() []Diagnostic {
	all := s.All()
	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i].Primary, all[j].Primary
		if (a.File == "") != (b.File == "") {
			return a.File != ""
		}
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Col < b.Col
	})
	return all
}
