// Package mailbox is the mail side of the reconciliation run: it lists report
// messages over IMAP and submits requests and exports over SMTP.
package mailbox

import (
	"context"
	"sort"
	"strings"
	"time"

	"tank-location-sync/internal/errs"
	imapclient "tank-location-sync/internal/imap"
	"tank-location-sync/internal/logging"
	"tank-location-sync/internal/mailparse"
	"tank-location-sync/internal/models"
)

// Sender submits composed mail
type Sender interface {
	Send(ctx context.Context, to []string, subject, body string) error
	SendAttachment(ctx context.Context, to []string, subject, body, path string) error
}

// Transport implements the mail operations used by the workflow
type Transport struct {
	cfg       models.EmailConfig
	subject   string
	newClient func() imapclient.Client
	sender    Sender
}

// NewTransport creates a Transport. Request messages are sent to
// cfg.ReportAddress with subject as their subject line.
func NewTransport(cfg models.EmailConfig, subject string, newClient func() imapclient.Client, sender Sender) *Transport {
	return &Transport{
		cfg:       cfg,
		subject:   subject,
		newClient: newClient,
		sender:    sender,
	}
}

// List returns the messages whose subject contains subjectContains and that
// were received strictly after receivedAfter, oldest first.
func (t *Transport) List(ctx context.Context, subjectContains string, receivedAfter time.Time) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := t.newClient()
	if err := c.Connect(t.cfg.Imap); err != nil {
		return nil, errs.Transport(err, "connecting to mailbox")
	}
	defer func() {
		if err := c.Close(); err != nil {
			logging.Log.Warnf("Error closing IMAP connection: %v", err)
		}
	}()

	if err := c.Login(t.cfg.Login, t.cfg.Password); err != nil {
		return nil, errs.Transport(err, "mailbox login")
	}
	if err := c.SelectMailbox(t.cfg.MailBox); err != nil {
		return nil, errs.Transport(err, "selecting mailbox "+t.cfg.MailBox)
	}

	uids, err := c.SearchSince(subjectContains, receivedAfter)
	if err != nil {
		return nil, errs.Transport(err, "searching mailbox")
	}
	if len(uids) == 0 {
		return nil, nil
	}

	fetched, err := c.FetchMessages(uids)
	if err != nil {
		return nil, errs.Transport(err, "fetching messages")
	}

	messages := make([]models.Message, 0, len(fetched))
	for _, raw := range fetched {
		msg, err := mailparse.Parse(raw)
		if err != nil {
			logging.Log.WithField("uid", raw.Uid).Errorf("Error parsing message: %v", err)
			return nil, err
		}
		if !qualifies(msg, subjectContains, receivedAfter) {
			logging.Log.WithField("trace_id", msg.TraceID).
				Debugf("Message UID %d skipped (subject %q, received %v)", msg.UID, msg.Subject, msg.ReceivedAt)
			continue
		}
		messages = append(messages, *msg)
	}

	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].ReceivedAt.Equal(messages[j].ReceivedAt) {
			return messages[i].UID < messages[j].UID
		}
		return messages[i].ReceivedAt.Before(messages[j].ReceivedAt)
	})

	logging.Log.Infof("Found %d messages matching %q after %v", len(messages), subjectContains, receivedAfter.Format(time.RFC3339))
	return messages, nil
}

// qualifies re-checks the server side search, which matches subjects loosely
// and only has day granularity on dates.
func qualifies(msg *models.Message, subjectContains string, receivedAfter time.Time) bool {
	if !strings.Contains(msg.Subject, subjectContains) {
		return false
	}
	return msg.ReceivedAt.After(receivedAfter)
}

// Send mails text to the report address
func (t *Transport) Send(ctx context.Context, text string) error {
	if err := t.sender.Send(ctx, []string{t.cfg.ReportAddress}, t.subject, text); err != nil {
		return errs.Transport(err, "sending request to "+t.cfg.ReportAddress)
	}
	logging.Log.Infof("Request sent to %s", t.cfg.ReportAddress)
	return nil
}

// SendWithAttachment mails the file at path to recipient
func (t *Transport) SendWithAttachment(ctx context.Context, path, recipient, subject, body string) error {
	if err := t.sender.SendAttachment(ctx, []string{recipient}, subject, body, path); err != nil {
		return errs.Transport(err, "sending attachment to "+recipient)
	}
	logging.Log.Infof("Attachment %s sent to %s", path, recipient)
	return nil
}
