package prompt

import (
	"fmt"
	"strings"
	"text/template"
)

// Expand renders a text/template against the variables produced by an
// upstream step. The input is usually a JSON object payload, so templates
// reference fields as {{.title}}, {{.random_words}} and so on.
func Expand(tmpl string, input any) (string, error) {
	t, err := template.New("step").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	var buf strings.Builder
	if err := t.Execute(&buf, input); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return buf.String(), nil
}
