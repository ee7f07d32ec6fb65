package template

import (
	"sort"
	"strings"

	"github.com/dukex/flowstudio/pkg/protocol"
)

// Substitute replaces every {name} placeholder with the matching variable.
// Unknown placeholders are left untouched.
func Substitute(text string, variables map[string]any) string {
	if text == "" || len(variables) == 0 {
		return text
	}

	names := make([]string, 0, len(variables))
	for name := range variables {
		names = append(names, name)
	}

	// Deterministic when one value contains another placeholder.
	sort.Strings(names)

	pairs := make([]string, 0, len(names)*2)
	for _, name := range names {
		pairs = append(pairs, "{"+name+"}", protocol.Stringify(variables[name]))
	}

	return strings.NewReplacer(pairs...).Replace(text)
}
