package stage

import "strings"

// substituteVariables replaces {{name}} placeholders with their bound values.
// Unbound placeholders are left untouched so misconfigurations stay visible.
func substituteVariables(text string, values map[string]string) string {
	if text == "" || len(values) == 0 {
		return text
	}
	for name, value := range values {
		text = strings.ReplaceAll(text, "{{"+name+"}}", value)
	}
	return text
}
