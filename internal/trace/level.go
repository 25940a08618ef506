package trace

import (
	"fmt"
	"strings"
)

// Level bounds which scopes reach a sink.
type Level uint8

const (
	LevelOff    Level = iota // no tracing
	LevelError               // defects only
	LevelPhase               // batch and module boundaries
	LevelDetail              // plus methods and type definitions
	LevelDebug               // plus every site
)

var levelNames = [...]string{"off", "error", "phase", "detail", "debug"}

// finest is the finest regular scope each level lets through.
var finest = [...]Scope{LevelPhase: ScopeModule, LevelDetail: ScopeMethod, LevelDebug: ScopeSite}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "unknown"
}

// ParseLevel accepts a level name in any case.
func ParseLevel(s string) (Level, error) {
	for i, name := range levelNames {
		if strings.EqualFold(s, name) {
			return Level(i), nil
		}
	}
	return LevelOff, fmt.Errorf("invalid trace level: %q (expected: %s)", s, strings.Join(levelNames[:], "|"))
}

// ShouldEmit reports whether events of scope pass l. Defects pass every
// level above off.
func (l Level) ShouldEmit(scope Scope) bool {
	switch {
	case l == LevelOff || int(l) >= len(levelNames):
		return false
	case scope == ScopeError:
		return true
	case l == LevelError:
		return false
	}
	return scope <= finest[l]
}
