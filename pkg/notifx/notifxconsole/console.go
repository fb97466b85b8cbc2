package notifxconsole

import (
	"context"
	"strings"

	"github.com/Abraxas-365/nexus-iam/pkg/logx"
	"github.com/Abraxas-365/nexus-iam/pkg/notifx"
)

// Sender writes emails to the log instead of delivering them. Used when no
// email provider is configured.
type Sender struct{}

func NewSender() *Sender { return &Sender{} }

var _ notifx.Sender = (*Sender)(nil)

func (Sender) Send(ctx context.Context, msg notifx.EmailMessage) error {
	logx.WithContext(ctx).WithFields(logx.Fields{
		"from":    msg.From,
		"to":      strings.Join(msg.To, ", "),
		"subject": msg.Subject,
	}).Info("email (console provider)")
	if msg.TextBody != "" {
		logx.Debugf("email text body:\n%s", msg.TextBody)
	}
	return nil
}
