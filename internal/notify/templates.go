package notify

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/redmonkez12/go-account-service/templates"
)

const (
	verificationTemplate  = "verification_code.html"
	passwordResetTemplate = "password_reset.html"
)

type verificationData struct {
	Name             string
	Code             int
	ExpiresInMinutes int
}

type passwordResetData struct {
	ResetURL         string
	ExpiresInMinutes int
}

func parseTemplates() (*template.Template, error) {
	tmpl, err := template.ParseFS(templates.EmailFS, "email/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}
	return tmpl, nil
}

func render(tmpl *template.Template, name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
