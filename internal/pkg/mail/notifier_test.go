package mail

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ReportFox/app/models"
)

type recordingDispatcher struct {
	msgs []Message
}

func (r *recordingDispatcher) Dispatch(_ context.Context, msg Message) {
	r.msgs = append(r.msgs, msg)
}

type failingSender struct{ calls int }

func (f *failingSender) Send(context.Context, string, string, string) error {
	f.calls++
	return errors.New("smtp down")
}

func TestVerificationLinkCarriesTokenAndEmail(t *testing.T) {
	rec := &recordingDispatcher{}
	n := NewNotifier(rec, "https://shop.example/", "kes")

	n.SendVerification(context.Background(), &models.User{Name: "Jane", Email: "jane+1@example.com"}, "tok-123")

	require.Len(t, rec.msgs, 1)
	msg := rec.msgs[0]
	assert.Equal(t, "jane+1@example.com", msg.To)

	idx := strings.Index(msg.Body, "https://shop.example/auth/verify-email?")
	require.GreaterOrEqual(t, idx, 0)
	raw := strings.Fields(msg.Body[idx:])[0]
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "tok-123", u.Query().Get("token"))
	assert.Equal(t, "jane+1@example.com", u.Query().Get("email"))
}

func TestPaymentSucceededListsLines(t *testing.T) {
	rec := &recordingDispatcher{}
	n := NewNotifier(rec, "https://shop.example", "kes")

	order := &models.Order{
		OrderNumber: "ORD-ABCDEF123456",
		TotalCents:  35000,
		Lines: []models.OrderLine{
			{ReportID: 1, UnitPriceCents: 10000, Report: &models.Report{Title: "Market Outlook"}},
			{ReportID: 2, UnitPriceCents: 25000},
		},
	}
	n.PaymentSucceeded(context.Background(), &models.User{Name: "Jane", Email: "jane@example.com"}, order)

	require.Len(t, rec.msgs, 1)
	body := rec.msgs[0].Body
	assert.Contains(t, body, "KES 350.00")
	assert.Contains(t, body, "Market Outlook")
	assert.Contains(t, body, "Report #2")
}

func TestDirectDispatcherSwallowsErrors(t *testing.T) {
	s := &failingSender{}
	d := DirectDispatcher{Sender: s}

	assert.NotPanics(t, func() {
		d.Dispatch(context.Background(), Message{To: "x@example.com", Subject: "s", Body: "b"})
	})
	assert.Equal(t, 1, s.calls)
}
