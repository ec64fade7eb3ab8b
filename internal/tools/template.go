package tools

import "strings"

// Template placeholders understood in tool argument lists.
const (
	VarInput    = "input"
	VarOutput   = "output"
	VarFilter   = "filter"
	VarSet      = "set"
	VarLang     = "lang"
	VarSkipFile = "skip_file"
	VarProject  = "project"
)

// ExpandArgs substitutes {name} placeholders. Unknown placeholders are kept.
func ExpandArgs(args []string, vars map[string]string) []string {
	if len(vars) == 0 {
		return append([]string(nil), args...)
	}
	pairs := make([]string, 0, len(vars)*2)
	for key, value := range vars {
		pairs = append(pairs, "{"+key+"}", value)
	}
	replacer := strings.NewReplacer(pairs...)
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = replacer.Replace(arg)
	}
	return out
}
