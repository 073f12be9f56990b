package notifier

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/dmitrymomot/subflow/pkg/email"
)

// EmailNotifier renders lifecycle notifications as HTML emails.
type EmailNotifier struct {
	sender email.EmailSender
}

// NewEmailNotifier creates a notifier over the given email sender.
// Panics on a nil sender to fail fast during initialization.
func NewEmailNotifier(sender email.EmailSender) *EmailNotifier {
	if sender == nil {
		panic("notifier: EmailSender is required")
	}
	return &EmailNotifier{sender: sender}
}

var tmpl = template.Must(template.New("notifications").Parse(`
{{define "activated"}}<p>Your <strong>{{.PlanName}}</strong> subscription is active until {{.Date}}. Enjoy!</p>{{end}}
{{define "auto_renew_on"}}<p>Auto-renew is now <strong>enabled</strong> for your subscription.</p>{{end}}
{{define "auto_renew_off"}}<p>Auto-renew is now <strong>disabled</strong> for your subscription. It will not renew automatically.</p>{{end}}
{{define "canceled"}}<p>Your subscription has been canceled. You keep premium access until {{.Date}}.</p>{{end}}
{{define "renewal_reminder"}}<p>Your <strong>{{.PlanName}}</strong> subscription renews on {{.Date}}.</p>{{end}}
{{define "expiry_reminder"}}<p>Your <strong>{{.PlanName}}</strong> subscription expires on {{.Date}}. Renew to keep premium access.</p>{{end}}
{{define "expired"}}<p>Your subscription has expired. Premium access has been removed.</p>{{end}}
`))

type templateData struct {
	PlanName string
	Date     string
}

func (n *EmailNotifier) send(ctx context.Context, to, subject, tag, templateName string, data templateData) error {
	var body bytes.Buffer
	if err := tmpl.ExecuteTemplate(&body, templateName, data); err != nil {
		return fmt.Errorf("render %s notification: %w", templateName, err)
	}
	return n.sender.SendEmail(ctx, email.SendEmailParams{
		SendTo:   to,
		Subject:  subject,
		BodyHTML: body.String(),
		Tag:      tag,
	})
}

func formatDate(t time.Time) string {
	return t.UTC().Format("January 2, 2006")
}

func (n *EmailNotifier) SubscriptionActivated(ctx context.Context, to, planName string, expiresAt time.Time) error {
	return n.send(ctx, to, "Your subscription is active", "subscription-activated", "activated",
		templateData{PlanName: planName, Date: formatDate(expiresAt)})
}

func (n *EmailNotifier) AutoRenewChanged(ctx context.Context, to string, enabled bool) error {
	name := "auto_renew_off"
	if enabled {
		name = "auto_renew_on"
	}
	return n.send(ctx, to, "Auto-renew updated", "auto-renew-changed", name, templateData{})
}

func (n *EmailNotifier) SubscriptionCanceled(ctx context.Context, to string, accessUntil time.Time) error {
	return n.send(ctx, to, "Your subscription is canceled", "subscription-canceled", "canceled",
		templateData{Date: formatDate(accessUntil)})
}

func (n *EmailNotifier) RenewalReminder(ctx context.Context, to, planName string, renewsAt time.Time) error {
	return n.send(ctx, to, "Your subscription renews soon", "renewal-reminder", "renewal_reminder",
		templateData{PlanName: planName, Date: formatDate(renewsAt)})
}

func (n *EmailNotifier) ExpiryReminder(ctx context.Context, to, planName string, expiresAt time.Time) error {
	return n.send(ctx, to, "Your subscription expires soon", "expiry-reminder", "expiry_reminder",
		templateData{PlanName: planName, Date: formatDate(expiresAt)})
}

func (n *EmailNotifier) SubscriptionExpired(ctx context.Context, to string) error {
	return n.send(ctx, to, "Your subscription has expired", "subscription-expired", "expired",
		templateData{})
}

var _ Notifier = (*EmailNotifier)(nil)
