// Package render substitutes subject fields into cadence step templates.
//
// Templates reference fields as {{name}}, {{company}}, and so on. Missing
// fields render as the empty string; rendering never fails.
package render

import (
	"regexp"
	"strings"

	"github.com/salesloop/salesloop/internal/models"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)

// Render substitutes the subject's fields into the template.
func Render(template string, subject models.Subject) string {
	if !strings.Contains(template, "{{") {
		return template
	}
	return placeholderPattern.ReplaceAllStringFunc(template, func(m string) string {
		name := placeholderPattern.FindStringSubmatch(m)[1]
		return subject.Field(name)
	})
}

// Step renders a cadence step's subject and body for the given prospect.
func Step(step models.CadenceStep, subject models.Subject) (renderedSubject, renderedBody string) {
	return Render(step.TemplateSubject, subject), Render(step.TemplateBody, subject)
}
