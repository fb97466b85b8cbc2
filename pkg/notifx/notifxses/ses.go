package notifxses

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/Abraxas-365/nexus-iam/pkg/notifx"
)

// SESAPI is the slice of the SES client the sender uses.
type SESAPI interface {
	SendEmail(ctx context.Context, in *ses.SendEmailInput, opts ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// Sender delivers email through AWS SES.
type Sender struct {
	client    SESAPI
	configSet string
}

var _ notifx.Sender = (*Sender)(nil)

// NewSender wraps an SES client. configSet may be empty.
func NewSender(client SESAPI, configSet string) *Sender {
	return &Sender{client: client, configSet: configSet}
}

func (s *Sender) Send(ctx context.Context, msg notifx.EmailMessage) error {
	in := &ses.SendEmailInput{
		Source:      aws.String(msg.From),
		Destination: &types.Destination{ToAddresses: msg.To},
		Message: &types.Message{
			Subject: content(msg.Subject),
			Body:    &types.Body{},
		},
	}
	if msg.TextBody != "" {
		in.Message.Body.Text = content(msg.TextBody)
	}
	if msg.HTMLBody != "" {
		in.Message.Body.Html = content(msg.HTMLBody)
	}
	if msg.ReplyTo != "" {
		in.ReplyToAddresses = []string{msg.ReplyTo}
	}
	if s.configSet != "" {
		in.ConfigurationSetName = aws.String(s.configSet)
	}

	if _, err := s.client.SendEmail(ctx, in); err != nil {
		return ErrRegistry.NewWithCause(CodeSendFailed, err).
			WithDetail("subject", msg.Subject).
			WithDetail("recipients", len(msg.To))
	}
	return nil
}

func content(s string) *types.Content {
	return &types.Content{Data: aws.String(s), Charset: aws.String("UTF-8")}
}
