package mailparse

import (
	"io"
	"mime"

	"tank-location-sync/internal/errs"
	imapclient "tank-location-sync/internal/imap"
	"tank-location-sync/internal/mimetext"
	"tank-location-sync/internal/models"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-message/charset"
	"github.com/google/uuid"
)

// Parse turns a fetched IMAP message into a models.Message, resolving its text body
func Parse(msg *imap.Message) (*models.Message, error) {
	r := msg.GetBody(imapclient.BodySection())
	if r == nil {
		return nil, errs.Transport(io.EOF, "message body missing")
	}

	body, _, err := mimetext.ExtractFrom(r)
	if err != nil {
		return nil, err
	}

	email := &models.Message{
		UID:        msg.Uid,
		Body:       body,
		ReceivedAt: msg.InternalDate,
		TraceID:    uuid.New().String(),
	}

	if msg.Envelope != nil {
		subject, err := DecodeHeader(msg.Envelope.Subject)
		if err != nil {
			// keep the raw subject, matching still works on ASCII markers
			subject = msg.Envelope.Subject
		}
		email.Subject = subject
	}

	return email, nil
}

var wordDecoder = &mime.WordDecoder{CharsetReader: charset.Reader}

// DecodeHeader decodes MIME-encoded headers (e.g., "=?UTF-8?B?...?=") to plain text
func DecodeHeader(encoded string) (string, error) {
	decoded, err := wordDecoder.DecodeHeader(encoded)
	if err != nil {
		return "", err
	}
	return decoded, nil
}
