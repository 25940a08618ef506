package ruleset

// table mirrors the TOML layout of a rule file.
type table struct {
	Meta          metaTable       `toml:"meta"`
	ReplaceType   []replaceType   `toml:"replace_type"`
	ReplaceMember []replaceMember `toml:"replace_member"`
	Redirect      []redirect      `toml:"redirect"`
	Find          []find          `toml:"find"`
	RetargetScope []retarget      `toml:"retarget_scope"`
	Missing       *missing        `toml:"missing"`
	Facade        []facadeTable   `toml:"facade"`
}

type metaTable struct {
	Name     string   `toml:"name"`
	Reserved []string `toml:"reserved"`
}

type replaceType struct {
	From         string   `toml:"from"`
	To           string   `toml:"to"`
	Scope        string   `toml:"scope"`
	PlatformOnly bool     `toml:"platform_only"`
	WhenArgs     []string `toml:"when_args"`
}

type replaceMember struct {
	Type   string `toml:"type"`
	Kind   string `toml:"kind"`
	Name   string `toml:"name"`
	ToType string `toml:"to_type"`
	ToName string `toml:"to_name"`
}

type redirect struct {
	Type    string   `toml:"type"`
	Facade  string   `toml:"facade"`
	Members []string `toml:"members"`
}

type find struct {
	Type     string   `toml:"type"`
	Members  []string `toml:"members"`
	Severity string   `toml:"severity"`
	Message  string   `toml:"message"`
}

type retarget struct {
	From string `toml:"from"`
	To   string `toml:"to"`
}

type missing struct {
	Scopes []string `toml:"scopes"`
}

type facadeTable struct {
	Name   string         `toml:"name"`
	Host   string         `toml:"host"`
	Scope  string         `toml:"scope"`
	Method []facadeMethod `toml:"method"`
}

type facadeMethod struct {
	Name         string   `toml:"name"`
	Static       bool     `toml:"static"`
	Return       string   `toml:"return"`
	Params       []string `toml:"params"`
	Target       string   `toml:"target"`
	TargetReturn string   `toml:"target_return"`
	TargetParams []string `toml:"target_params"`
}
