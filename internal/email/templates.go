package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

type baseEmailData struct {
	Title   string
	Heading string
}

type quoteRequestItem struct {
	PartNumber  string
	Description string
	Quantity    int
}

type quoteRequestEmailData struct {
	baseEmailData
	SupplierName     string
	OrganizationName string
	Items            []quoteRequestItem
}

type escalationEmailData struct {
	baseEmailData
	SupplierName string
	CallID       string
	Reason       string
}

func renderEmailTemplate(name string, data any) (string, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/"+name)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render email template %s: %w", name, err)
	}
	return buf.String(), nil
}
