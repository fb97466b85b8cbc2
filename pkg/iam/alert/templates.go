package alert

import "github.com/Abraxas-365/nexus-iam/pkg/notifx"

const footer = `

If this was not you, reset your password and contact your administrator.`

var templates = map[Kind]notifx.Template{
	KindPasswordChanged: {
		Subject: "Your password was changed",
		Text:    "Hi {{.Name}},\n\nThe password on your account was changed at {{.OccurredAt}}." + footer,
	},
	KindAccountLocked: {
		Subject: "Your account was locked",
		Text: "Hi {{.Name}},\n\nYour account was locked at {{.OccurredAt}} after repeated failed sign-in attempts." +
			"{{with index .Details \"locked_until\"}} It unlocks at {{.}}.{{end}}" + footer,
	},
	KindTwoFactorEnabled: {
		Subject: "Two-factor authentication enabled",
		Text:    "Hi {{.Name}},\n\nTwo-factor authentication was turned on for your account at {{.OccurredAt}}." + footer,
	},
	KindTwoFactorDisabled: {
		Subject: "Two-factor authentication disabled",
		Text:    "Hi {{.Name}},\n\nTwo-factor authentication was turned off for your account at {{.OccurredAt}}." + footer,
	},
	KindAPIKeyCreated: {
		Subject: "New API key created",
		Text: "Hi {{.Name}},\n\nAn API key{{with index .Details \"api_key_name\"}} named \"{{.}}\"{{end}}" +
			" was created on your account at {{.OccurredAt}}." + footer,
	},
}

func templateName(k Kind) string { return "alert." + string(k) }

func registerTemplates(r *notifx.TemplateRegistry) error {
	for kind, t := range templates {
		if err := r.Register(templateName(kind), t); err != nil {
			return err
		}
	}
	return nil
}
