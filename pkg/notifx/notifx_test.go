package notifx_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abraxas-365/nexus-iam/pkg/errx"
	"github.com/Abraxas-365/nexus-iam/pkg/notifx"
)

type captureSender struct {
	sent []notifx.EmailMessage
}

func (c *captureSender) Send(_ context.Context, msg notifx.EmailMessage) error {
	c.sent = append(c.sent, msg)
	return nil
}

func TestMailerFillsSenderAndValidates(t *testing.T) {
	capture := &captureSender{}
	m := notifx.NewMailer(capture, "security@nexus.test")
	ctx := context.Background()

	err := m.Send(ctx, notifx.EmailMessage{To: []string{"alice@example.com"}, Subject: "hi", TextBody: "body"})
	require.NoError(t, err)
	require.Len(t, capture.sent, 1)
	assert.Equal(t, "security@nexus.test", capture.sent[0].From)

	err = m.Send(ctx, notifx.EmailMessage{Subject: "hi", TextBody: "body"})
	assert.True(t, errx.IsCode(err, notifx.CodeInvalidMessage))

	err = m.Send(ctx, notifx.EmailMessage{To: []string{"alice@example.com"}, Subject: "hi"})
	assert.True(t, errx.IsCode(err, notifx.CodeInvalidMessage))
	assert.Len(t, capture.sent, 1)
}

func TestSendTemplateEscapesHTMLOnly(t *testing.T) {
	capture := &captureSender{}
	m := notifx.NewMailer(capture, "security@nexus.test")
	require.NoError(t, m.Templates().Register("welcome", notifx.Template{
		Subject: "Welcome {{.Name}}",
		Text:    "Hello {{.Name}}",
		HTML:    "<p>Hello {{.Name}}</p>",
	}))

	err := m.SendTemplate(context.Background(), "welcome", map[string]string{"Name": "<Bob>"}, "bob@example.com")
	require.NoError(t, err)

	msg := capture.sent[0]
	assert.Equal(t, []string{"bob@example.com"}, msg.To)
	assert.Equal(t, "Welcome <Bob>", msg.Subject)
	assert.Equal(t, "Hello <Bob>", msg.TextBody)
	assert.Equal(t, "<p>Hello &lt;Bob&gt;</p>", msg.HTMLBody)
}

func TestUnknownOrBrokenTemplate(t *testing.T) {
	m := notifx.NewMailer(&captureSender{}, "security@nexus.test")

	err := m.SendTemplate(context.Background(), "missing", nil, "bob@example.com")
	assert.True(t, errx.IsCode(err, notifx.CodeTemplateNotFound))

	err = m.Templates().Register("broken", notifx.Template{Subject: "{{.Name", Text: "x"})
	assert.True(t, errx.IsCode(err, notifx.CodeTemplateInvalid))
}
