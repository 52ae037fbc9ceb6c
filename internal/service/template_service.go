package service

import (
	"strings"

	"github.com/unclebandit/prospect-outreach/internal/model"
)

// RenderTemplate replaces every {key} in template with data[key].
func RenderTemplate(template string, data map[string]string) string {
	result := template
	for k, v := range data {
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}

// ProspectFields is the placeholder set a campaign template may use.
// Missing values render as empty strings.
func ProspectFields(p *model.Prospect) map[string]string {
	return map[string]string{
		"first_name":   p.FirstName,
		"last_name":    p.LastName,
		"company_name": p.CompanyName,
		"title":        p.Title,
	}
}

// RenderProspectMessage personalizes template for p.
func RenderProspectMessage(template string, p *model.Prospect) string {
	return strings.TrimSpace(RenderTemplate(template, ProspectFields(p)))
}
