package rewrite

import "fmt"

// Outcome classifies what happened at a site. Values are ordered by
// severity so the worst of several outcomes is their maximum.
type Outcome uint8

const (
	// Unchanged means the site needed no rewrite.
	Unchanged Outcome = iota
	// Rewritten means a reference now points somewhere else.
	Rewritten
	// Warning marks a known incompatible pattern that is tolerated; the
	// module still loads but the caller should surface the message.
	Warning
	// Fatal marks a reference that cannot be satisfied; the module must not
	// be loaded.
	Fatal
)

func (o Outcome) String() string {
	switch o {
	case Unchanged:
		return "unchanged"
	case Rewritten:
		return "rewritten"
	case Warning:
		return "incompatible-warning"
	case Fatal:
		return "incompatible-fatal"
	default:
		return fmt.Sprintf("Outcome(%d)", o)
	}
}

// ParseOutcome converts a severity name as used in rule tables.
func ParseOutcome(s string) (Outcome, error) {
	switch s {
	case "unchanged":
		return Unchanged, nil
	case "rewritten":
		return Rewritten, nil
	case "warning", "incompatible-warning":
		return Warning, nil
	case "fatal", "incompatible-fatal":
		return Fatal, nil
	default:
		return Unchanged, fmt.Errorf("invalid outcome: %q (expected: warning|fatal)", s)
	}
}

// Loadable reports whether a module with this overall outcome may load.
func (o Outcome) Loadable() bool {
	return o < Fatal
}

// Incompatible reports whether o is one of the incompatibility outcomes.
func (o Outcome) Incompatible() bool {
	return o >= Warning
}

// Worst returns the more severe of a and b.
func Worst(a, b Outcome) Outcome {
	if b > a {
		return b
	}
	return a
}
