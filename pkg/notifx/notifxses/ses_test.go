package notifxses

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abraxas-365/nexus-iam/pkg/errx"
	"github.com/Abraxas-365/nexus-iam/pkg/notifx"
)

type fakeSES struct {
	in  *ses.SendEmailInput
	err error
}

func (f *fakeSES) SendEmail(_ context.Context, in *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSendBuildsSESInput(t *testing.T) {
	client := &fakeSES{}
	s := NewSender(client, "iam-alerts")

	err := s.Send(context.Background(), notifx.EmailMessage{
		From:     "security@nexus.test",
		To:       []string{"alice@example.com"},
		ReplyTo:  "support@nexus.test",
		Subject:  "Your password was changed",
		TextBody: "text",
	})
	require.NoError(t, err)

	in := client.in
	assert.Equal(t, "security@nexus.test", aws.ToString(in.Source))
	assert.Equal(t, []string{"alice@example.com"}, in.Destination.ToAddresses)
	assert.Equal(t, []string{"support@nexus.test"}, in.ReplyToAddresses)
	assert.Equal(t, "iam-alerts", aws.ToString(in.ConfigurationSetName))
	assert.Equal(t, "text", aws.ToString(in.Message.Body.Text.Data))
	assert.Nil(t, in.Message.Body.Html)
}

func TestSendWrapsProviderError(t *testing.T) {
	s := NewSender(&fakeSES{err: errors.New("throttled")}, "")

	err := s.Send(context.Background(), notifx.EmailMessage{
		From: "a@b.c", To: []string{"d@e.f"}, Subject: "s", TextBody: "t",
	})
	assert.True(t, errx.IsCode(err, CodeSendFailed))
	assert.Equal(t, errx.TypeExternal, errx.TypeOf(err))
}
