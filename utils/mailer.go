package utils

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"gopkg.in/gomail.v2"

	"taskfolio/config"
	"taskfolio/models"
)

type EmailData struct {
	To        string
	Subject   string
	HTMLBody  string
	TextBody  string
	FromName  string
	FromEmail string
}

// Mailer delivers a rendered email.
type Mailer interface {
	Send(data EmailData) error
}

type SMTPMailer struct {
	dialer    *gomail.Dialer
	fromEmail string
	fromName  string
}

func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		dialer:    gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
	}
}

func (m *SMTPMailer) Send(data EmailData) error {
	if data.FromEmail == "" {
		data.FromEmail = m.fromEmail
	}
	if data.FromName == "" {
		data.FromName = m.fromName
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", data.FromEmail, data.FromName)
	msg.SetHeader("To", data.To)
	msg.SetHeader("Subject", data.Subject)
	if data.TextBody != "" {
		msg.SetBody("text/plain", data.TextBody)
		if data.HTMLBody != "" {
			msg.AddAlternative("text/html", data.HTMLBody)
		}
	} else {
		msg.SetBody("text/html", data.HTMLBody)
	}

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("error sending email: %w", err)
	}
	return nil
}

type reminderLine struct {
	Title string
	Due   string
}

type reminderData struct {
	Name   string
	Count  int
	Plural string
	Tasks  []reminderLine
}

var reminderHTML = htmltemplate.Must(htmltemplate.New("reminder_html").Parse(`<!doctype html>
<html>
  <body>
    <p>Hello {{.Name}},</p>
    <p>You have the following pending task{{.Plural}}:</p>
    <ul>
    {{- range .Tasks}}
      <li><strong>{{.Title}}</strong> <em>({{.Due}})</em></li>
    {{- end}}
    </ul>
    <p>Please complete them when you can.</p>
  </body>
</html>`))

var reminderText = texttemplate.Must(texttemplate.New("reminder_text").Parse(`Hello {{.Name}},

You have the following pending task{{.Plural}}:

{{range .Tasks}}- {{.Title}} ({{.Due}})
{{end}}
Please complete them when you can.
`))

// RenderReminder builds the pending-task reminder for one user.
func RenderReminder(user models.User, tasks []models.Task) (EmailData, error) {
	data := reminderData{Name: user.Username, Count: len(tasks)}
	if len(tasks) != 1 {
		data.Plural = "s"
	}
	for _, t := range tasks {
		due := "no due date"
		if t.DueDate != nil {
			due = "due: " + t.DueDate.Format("Mon Jan 02 2006")
		}
		data.Tasks = append(data.Tasks, reminderLine{Title: t.Title, Due: due})
	}

	var html, text bytes.Buffer
	if err := reminderHTML.Execute(&html, data); err != nil {
		return EmailData{}, fmt.Errorf("error executing template: %w", err)
	}
	if err := reminderText.Execute(&text, data); err != nil {
		return EmailData{}, fmt.Errorf("error executing template: %w", err)
	}

	return EmailData{
		To:       user.Email,
		Subject:  fmt.Sprintf("Task Reminder: You have %d pending task%s", data.Count, data.Plural),
		HTMLBody: html.String(),
		TextBody: strings.TrimSpace(text.String()) + "\n",
	}, nil
}
