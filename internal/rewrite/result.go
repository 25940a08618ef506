package rewrite

// SiteResult records what one rule did at one site.
type SiteResult struct {
	Site        string
	Kind        SiteKind
	Rule        string
	Outcome     Outcome
	Original    string // full name before any rule ran
	Replacement string // full name after the pass, empty if unchanged
	Message     string
}

// MethodResult aggregates the sites of one method. Method is empty for the
// type-level sites of Type.
type MethodResult struct {
	Type    string
	Method  string
	Outcome Outcome
	Sites   []SiteResult
}

// Name renders "Type::Method", or just the type for type-level results.
func (r *MethodResult) Name() string {
	if r.Method == "" {
		return r.Type
	}
	return r.Type + "::" + r.Method
}

func (r *MethodResult) add(s SiteResult) {
	r.Sites = append(r.Sites, s)
	r.Outcome = Worst(r.Outcome, s.Outcome)
}

// ModuleResult is the report of one pass over a module. It never decides
// whether the module loads; callers use Outcome for that.
type ModuleResult struct {
	Module  string
	Outcome Outcome
	Methods []MethodResult
}

func (r *ModuleResult) add(m MethodResult) {
	r.Methods = append(r.Methods, m)
	r.Outcome = Worst(r.Outcome, m.Outcome)
}

// Loadable reports whether the pass found nothing fatal.
func (r *ModuleResult) Loadable() bool {
	return r.Outcome.Loadable()
}

// Count returns the number of site results with outcome o.
func (r *ModuleResult) Count(o Outcome) int {
	n := 0
	for _, m := range r.Methods {
		for _, s := range m.Sites {
			if s.Outcome == o {
				n++
			}
		}
	}
	return n
}

// Sites returns every site result at or above min, in pass order.
func (r *ModuleResult) Sites(minOutcome Outcome) []SiteResult {
	var out []SiteResult
	for _, m := range r.Methods {
		for _, s := range m.Sites {
			if s.Outcome >= minOutcome {
				out = append(out, s)
			}
		}
	}
	return out
}

// Method finds the result for typeName::method.
func (r *ModuleResult) Method(typeName, method string) (*MethodResult, bool) {
	for i := range r.Methods {
		if r.Methods[i].Type == typeName && r.Methods[i].Method == method {
			return &r.Methods[i], true
		}
	}
	return nil, false
}
