package jobqueue

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ReportFox/internal/pkg/mail"
)

// MailDispatcher queues outbound mail so request handlers never wait on
// SMTP. When Redis is unreachable it falls back to sending inline.
type MailDispatcher struct {
	queue    *Queue
	fallback mail.Dispatcher
}

func NewMailDispatcher(q *Queue, sender mail.Sender) *MailDispatcher {
	q.Handle(JobTypeSendMail, mailHandler(sender))
	return &MailDispatcher{queue: q, fallback: mail.DirectDispatcher{Sender: sender}}
}

func (d *MailDispatcher) Dispatch(ctx context.Context, msg mail.Message) {
	payload := MailJobPayload{To: msg.To, Subject: msg.Subject, Body: msg.Body}
	if _, err := d.queue.EnqueueJob(ctx, JobTypeSendMail, payload.ToMap()); err != nil {
		log.Warnf("[Mail] Queue unavailable, sending %q inline: %v", msg.Subject, err)
		d.fallback.Dispatch(ctx, msg)
	}
}

func mailHandler(sender mail.Sender) HandlerFunc {
	return func(ctx context.Context, job *Job) error {
		p, err := MailJobPayloadFromMap(job.Payload)
		if err != nil {
			return fmt.Errorf("decode mail payload: %w", err)
		}
		return sender.Send(ctx, p.To, p.Subject, p.Body)
	}
}
