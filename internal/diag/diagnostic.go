package diag

import "strings"

type Diagnostic struct {
	Severity Severity
	Code     Code
	Message  string
	Module   string
	Site     string
	Rule     string
	Notes    []string
}

// Location renders "module: site", omitting empty parts.
func (d Diagnostic) Location() string {
	switch {
	case d.Module == "":
		return d.Site
	case d.Site == "":
		return d.Module
	default:
		return d.Module + ": " + d.Site
	}
}

// Line renders the diagnostic on one line, notes excluded.
func (d Diagnostic) Line() string {
	var sb strings.Builder
	sb.WriteString(d.Severity.String())
	sb.WriteString(" " + d.Code.ID())
	if loc := d.Location(); loc != "" {
		sb.WriteString(" " + loc)
	}
	sb.WriteString(": " + d.Message)
	if d.Rule != "" {
		sb.WriteString(" [" + d.Rule + "]")
	}
	return sb.String()
}
