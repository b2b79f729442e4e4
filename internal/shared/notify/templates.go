package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

var subjects = map[Kind]string{
	KindVerification:  "Confirm your email address",
	KindWelcome:       "Welcome to Mutual Funds",
	KindPasswordReset: "Reset your password",
}

// Render 渲染邮件主题与 HTML 正文
func Render(ev EmailEvent) (subject, body string, err error) {
	subject, ok := subjects[ev.Kind]
	if !ok {
		return "", "", fmt.Errorf("unknown email kind %q", ev.Kind)
	}
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, string(ev.Kind)+".html", ev); err != nil {
		return "", "", fmt.Errorf("render %s: %w", ev.Kind, err)
	}
	return subject, buf.String(), nil
}
