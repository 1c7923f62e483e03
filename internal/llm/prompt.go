package llm

import (
	"sort"
	"strings"
)

// RenderPrompt substitutes {name} placeholders. Braces that do not name a
// supplied variable, such as the JSON examples in the templates, are left as is.
func RenderPrompt(tpl string, vars map[string]string) string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "{"+k+"}", vars[k])
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}
