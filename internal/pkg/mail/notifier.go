package mail

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ReportFox/app/models"
)

// Message is one outbound email.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Dispatcher hands a message to a delivery mechanism. Failures are the
// dispatcher's problem, callers never block on or react to them.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message)
}

// DirectDispatcher sends inline and logs failures.
type DirectDispatcher struct {
	Sender Sender
}

func (d DirectDispatcher) Dispatch(ctx context.Context, msg Message) {
	if err := d.Sender.Send(ctx, msg.To, msg.Subject, msg.Body); err != nil {
		log.Errorf("[Mail] Failed to send %q to %s: %v", msg.Subject, msg.To, err)
	}
}

// Notifier composes the application's transactional emails.
type Notifier struct {
	dispatcher  Dispatcher
	frontendURL string
	currency    string
}

func NewNotifier(d Dispatcher, frontendURL, currency string) *Notifier {
	return &Notifier{dispatcher: d, frontendURL: strings.TrimRight(frontendURL, "/"), currency: strings.ToUpper(currency)}
}

func (n *Notifier) link(path, token, email string) string {
	q := url.Values{}
	q.Set("token", token)
	q.Set("email", email)
	return fmt.Sprintf("%s%s?%s", n.frontendURL, path, q.Encode())
}

func (n *Notifier) SendVerification(ctx context.Context, u *models.User, token string) {
	n.dispatcher.Dispatch(ctx, Message{
		To:      u.Email,
		Subject: "Verify Your Email",
		Body:    fmt.Sprintf("Hello %s,\n\nClick this link to verify your email: %s\nThis link expires in 24 hours.", u.Name, n.link("/auth/verify-email", token, u.Email)),
	})
}

func (n *Notifier) SendLoginLink(ctx context.Context, u *models.User, token string) {
	n.dispatcher.Dispatch(ctx, Message{
		To:      u.Email,
		Subject: "Your Login Link",
		Body:    fmt.Sprintf("Click this link to log in: %s\nThis link expires in 10 minutes.", n.link("/auth/email-login", token, u.Email)),
	})
}

func (n *Notifier) SendPasswordReset(ctx context.Context, u *models.User, token string) {
	n.dispatcher.Dispatch(ctx, Message{
		To:      u.Email,
		Subject: "Reset Your Password",
		Body:    fmt.Sprintf("Click this link to reset your password: %s\nThis link expires in 1 hour.", n.link("/auth/reset-password", token, u.Email)),
	})
}

func (n *Notifier) OrderCreated(ctx context.Context, client *models.User, order *models.Order) {
	n.dispatcher.Dispatch(ctx, Message{
		To:      client.Email,
		Subject: "Order Confirmation - " + order.OrderNumber,
		Body: fmt.Sprintf("Dear %s,\n\nYour order %s has been received.\n%s\nTotal: %s %s\n\nComplete your payment within 30 minutes to secure your reports.",
			client.Name, order.OrderNumber, n.lines(order), n.currency, models.FormatCents(order.TotalCents)),
	})
}

func (n *Notifier) PaymentSucceeded(ctx context.Context, client *models.User, order *models.Order) {
	n.dispatcher.Dispatch(ctx, Message{
		To:      client.Email,
		Subject: "Payment Received - " + order.OrderNumber,
		Body: fmt.Sprintf("Dear %s,\n\nWe received your payment of %s %s for order %s.\n%s\nYour reports are now available in your dashboard: %s/dashboard/purchases",
			client.Name, n.currency, models.FormatCents(order.TotalCents), order.OrderNumber, n.lines(order), n.frontendURL),
	})
}

func (n *Notifier) lines(order *models.Order) string {
	var b strings.Builder
	for _, l := range order.Lines {
		title := fmt.Sprintf("Report #%d", l.ReportID)
		if l.Report != nil {
			title = l.Report.Title
		}
		fmt.Fprintf(&b, "- %s: %s %s\n", title, n.currency, models.FormatCents(l.UnitPriceCents))
	}
	return b.String()
}
