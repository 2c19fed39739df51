package smtp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
)

// SendFunc matches go-smtp SendMail and SendMailTLS
type SendFunc func(addr string, a sasl.Client, from string, to []string, r io.Reader) error

// Sender submits messages through an authenticated SMTP relay
type Sender struct {
	addr     string
	login    string
	password string
	send     SendFunc
	now      func() time.Time
}

// NewSender creates a Sender. implicitTLS selects port-465 style TLS instead of STARTTLS.
func NewSender(addr, login, password string, implicitTLS bool) *Sender {
	send := gosmtp.SendMail
	if implicitTLS {
		send = gosmtp.SendMailTLS
	}
	return &Sender{
		addr:     addr,
		login:    login,
		password: password,
		send:     send,
		now:      time.Now,
	}
}

// Send submits a plain text message
func (s *Sender) Send(ctx context.Context, to []string, subject, body string) error {
	msg, err := s.composePlain(to, subject, body)
	if err != nil {
		return err
	}
	return s.submit(ctx, to, msg)
}

// SendAttachment submits a message with a text body and the file at path attached
func (s *Sender) SendAttachment(ctx context.Context, to []string, subject, body, path string) error {
	msg, err := s.composeWithAttachment(to, subject, body, path)
	if err != nil {
		return err
	}
	return s.submit(ctx, to, msg)
}

func (s *Sender) submit(ctx context.Context, to []string, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	auth := sasl.NewPlainClient("", s.login, s.password)
	if err := s.send(s.addr, auth, s.login, to, bytes.NewReader(msg)); err != nil {
		return fmt.Errorf("SMTP submit to %s: %w", s.addr, err)
	}
	return nil
}

func (s *Sender) header(to []string, subject string) (mail.Header, error) {
	var h mail.Header
	h.SetDate(s.now())
	h.SetAddressList("From", []*mail.Address{{Address: s.login}})

	rcpts := make([]*mail.Address, 0, len(to))
	for _, addr := range to {
		rcpts = append(rcpts, &mail.Address{Address: addr})
	}
	h.SetAddressList("To", rcpts)
	h.SetSubject(subject)
	if err := h.GenerateMessageID(); err != nil {
		return h, fmt.Errorf("generating message id: %w", err)
	}
	return h, nil
}

func (s *Sender) composePlain(to []string, subject, body string) ([]byte, error) {
	h, err := s.header(to, subject)
	if err != nil {
		return nil, err
	}
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("creating message writer: %w", err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		return nil, fmt.Errorf("writing message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing message body: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *Sender) composeWithAttachment(to []string, subject, body, path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening attachment: %w", err)
	}
	defer func() { _ = f.Close() }()

	h, err := s.header(to, subject)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("creating message writer: %w", err)
	}

	var th mail.InlineHeader
	th.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	tw, err := mw.CreateSingleInline(th)
	if err != nil {
		return nil, fmt.Errorf("creating text part: %w", err)
	}
	if _, err := io.WriteString(tw, body); err != nil {
		return nil, fmt.Errorf("writing text part: %w", err)
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("closing text part: %w", err)
	}

	name := filepath.Base(path)
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	var ah mail.AttachmentHeader
	ah.SetContentType(contentType, nil)
	ah.SetFilename(name)
	aw, err := mw.CreateAttachment(ah)
	if err != nil {
		return nil, fmt.Errorf("creating attachment part: %w", err)
	}
	if _, err := io.Copy(aw, f); err != nil {
		return nil, fmt.Errorf("writing attachment: %w", err)
	}
	if err := aw.Close(); err != nil {
		return nil, fmt.Errorf("closing attachment: %w", err)
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing message: %w", err)
	}
	return buf.Bytes(), nil
}
