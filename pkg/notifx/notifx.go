// Package notifx sends transactional email through a pluggable provider.
package notifx

import "context"

// Sender delivers a validated message.
type Sender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// Mailer fills in the sender address, renders templates and hands the
// result to a Sender.
type Mailer struct {
	sender    Sender
	from      string
	templates *TemplateRegistry
}

func NewMailer(sender Sender, from string) *Mailer {
	return &Mailer{
		sender:    sender,
		from:      from,
		templates: NewTemplateRegistry(),
	}
}

// Templates exposes the registry so callers can register their own.
func (m *Mailer) Templates() *TemplateRegistry { return m.templates }

func (m *Mailer) Send(ctx context.Context, msg EmailMessage) error {
	if msg.From == "" {
		msg.From = m.from
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	return m.sender.Send(ctx, msg)
}

// SendTemplate renders the named template with data and sends it to the
// given recipients.
func (m *Mailer) SendTemplate(ctx context.Context, name string, data any, to ...string) error {
	msg, err := m.templates.Render(name, data)
	if err != nil {
		return err
	}
	msg.To = to
	return m.Send(ctx, msg)
}
