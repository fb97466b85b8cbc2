package notifx

// EmailMessage is one outgoing email. At least one of TextBody and HTMLBody
// must be set.
type EmailMessage struct {
	From     string   `json:"from"`
	To       []string `json:"to"`
	ReplyTo  string   `json:"reply_to,omitempty"`
	Subject  string   `json:"subject"`
	TextBody string   `json:"text_body,omitempty"`
	HTMLBody string   `json:"html_body,omitempty"`
}

// Validate checks the fields every provider needs.
func (m EmailMessage) Validate() error {
	switch {
	case len(m.To) == 0:
		return ErrRegistry.NewWithMessage(CodeInvalidMessage, "no recipients")
	case m.From == "":
		return ErrRegistry.NewWithMessage(CodeInvalidMessage, "no sender")
	case m.Subject == "":
		return ErrRegistry.NewWithMessage(CodeInvalidMessage, "empty subject")
	case m.TextBody == "" && m.HTMLBody == "":
		return ErrRegistry.NewWithMessage(CodeInvalidMessage, "empty body")
	}
	return nil
}
