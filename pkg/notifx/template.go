package notifx

import (
	"bytes"
	htmltemplate "html/template"
	"sync"
	texttemplate "text/template"
)

// Template is the source of one email. Subject and Text are text templates;
// HTML is escaped as HTML. HTML may be empty.
type Template struct {
	Subject string
	Text    string
	HTML    string
}

type compiled struct {
	subject *texttemplate.Template
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

// TemplateRegistry holds parsed templates by name.
type TemplateRegistry struct {
	mu        sync.RWMutex
	templates map[string]compiled
}

func NewTemplateRegistry() *TemplateRegistry {
	return &TemplateRegistry{templates: make(map[string]compiled)}
}

func (r *TemplateRegistry) Register(name string, t Template) error {
	var c compiled
	var err error
	if c.subject, err = texttemplate.New(name + ".subject").Parse(t.Subject); err != nil {
		return ErrRegistry.NewWithCause(CodeTemplateInvalid, err).WithDetail("template", name)
	}
	if c.text, err = texttemplate.New(name + ".text").Parse(t.Text); err != nil {
		return ErrRegistry.NewWithCause(CodeTemplateInvalid, err).WithDetail("template", name)
	}
	if t.HTML != "" {
		if c.html, err = htmltemplate.New(name + ".html").Parse(t.HTML); err != nil {
			return ErrRegistry.NewWithCause(CodeTemplateInvalid, err).WithDetail("template", name)
		}
	}

	r.mu.Lock()
	r.templates[name] = c
	r.mu.Unlock()
	return nil
}

// Render produces a message with Subject and bodies filled in. Recipients
// are left to the caller.
func (r *TemplateRegistry) Render(name string, data any) (EmailMessage, error) {
	r.mu.RLock()
	c, ok := r.templates[name]
	r.mu.RUnlock()
	if !ok {
		return EmailMessage{}, ErrRegistry.New(CodeTemplateNotFound).WithDetail("template", name)
	}

	var subject, text, html bytes.Buffer
	if err := c.subject.Execute(&subject, data); err != nil {
		return EmailMessage{}, renderErr(name, err)
	}
	if err := c.text.Execute(&text, data); err != nil {
		return EmailMessage{}, renderErr(name, err)
	}
	if c.html != nil {
		if err := c.html.Execute(&html, data); err != nil {
			return EmailMessage{}, renderErr(name, err)
		}
	}

	return EmailMessage{
		Subject:  subject.String(),
		TextBody: text.String(),
		HTMLBody: html.String(),
	}, nil
}

func renderErr(name string, err error) error {
	return ErrRegistry.NewWithCause(CodeTemplateRender, err).WithDetail("template", name)
}
