package notify

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"
)

// Имена шаблонов писем
const (
	TemplateNewRequest          = "new_request"
	TemplateRequestConfirmation = "request_confirmation"
	TemplateResponse            = "response"
	TemplateExpired             = "expired"
	TemplateCancelled           = "cancelled"
	TemplateNewSuggestion       = "new_suggestion"
	TemplateChangesRequested    = "changes_requested"
	TemplateSuggestionAccepted  = "suggestion_accepted"
	TemplateRefundRequested     = "refund_requested"
	TemplateRefundResolved      = "refund_resolved"
	TemplateNewMessage          = "new_message"
	TemplateItinerary           = "itinerary"
)

var subjects = map[string]string{
	TemplateNewRequest:          `New custom date request from {{.RequestorName}}`,
	TemplateRequestConfirmation: `Your custom date request to {{.TastemakerName}} was sent`,
	TemplateResponse:            `{{.TastemakerName}} {{.Status}} your custom date request`,
	TemplateExpired:             `Your custom date request to {{.TastemakerName}} expired`,
	TemplateCancelled:           `{{.RequestorName}} cancelled their custom date request`,
	TemplateNewSuggestion:       `{{.TastemakerName}} sent you a {{if eq .Status "revised"}}revised {{end}}date itinerary`,
	TemplateChangesRequested:    `{{.RequestorName}} requested changes to your itinerary`,
	TemplateSuggestionAccepted:  `{{.RequestorName}} accepted your itinerary`,
	TemplateRefundRequested:     `Refund requested for a custom date`,
	TemplateRefundResolved:      `Custom date refund {{if .Accepted}}accepted{{else}}denied{{end}}`,
	TemplateNewMessage:          `New message about your custom date`,
	TemplateItinerary:           `Your date itinerary`,
}

//go:embed templates/*.html
var templateFiles embed.FS

// MailData данные для шаблонов писем
type MailData struct {
	RecipientName  string
	RequestorName  string
	TastemakerName string
	CustomDateID   string
	BeginsAt       time.Time
	NumStops       int
	Cost           int64 // в центах
	Status         string
	Reason         string
	Message        string
	Accepted       bool
	URL            string
}

// Dollars форматирует центы: 4664 -> "$46.64"
func Dollars(cents int64) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}

type Templates struct {
	bodies   map[string]*htmltemplate.Template
	subjects map[string]*texttemplate.Template
}

// LoadTemplates разбирает встроенные шаблоны
func LoadTemplates() (*Templates, error) {
	funcs := htmltemplate.FuncMap{"dollars": Dollars}

	layout, err := htmltemplate.New("layout.html").Funcs(funcs).ParseFS(templateFiles, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	t := &Templates{
		bodies:   make(map[string]*htmltemplate.Template, len(subjects)),
		subjects: make(map[string]*texttemplate.Template, len(subjects)),
	}

	for name, subject := range subjects {
		clone, err := layout.Clone()
		if err != nil {
			return nil, fmt.Errorf("clone layout: %w", err)
		}
		body, err := clone.ParseFS(templateFiles, "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		t.bodies[name] = body

		subj, err := texttemplate.New(name).Parse(subject)
		if err != nil {
			return nil, fmt.Errorf("parse %s subject: %w", name, err)
		}
		t.subjects[name] = subj
	}

	return t, nil
}

// Render возвращает тему и HTML письма
func (t *Templates) Render(name string, data MailData) (string, string, error) {
	body, ok := t.bodies[name]
	if !ok {
		return "", "", fmt.Errorf("unknown email template %q", name)
	}

	var subject strings.Builder
	if err := t.subjects[name].Execute(&subject, data); err != nil {
		return "", "", fmt.Errorf("render %s subject: %w", name, err)
	}

	var html bytes.Buffer
	if err := body.ExecuteTemplate(&html, "layout", data); err != nil {
		return "", "", fmt.Errorf("render %s: %w", name, err)
	}

	return subject.String(), html.String(), nil
}
