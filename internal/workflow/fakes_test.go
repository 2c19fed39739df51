package workflow

import (
	"context"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"tank-location-sync/internal/errs"
	"tank-location-sync/internal/models"
)

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(d time.Duration) {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
}

type attachment struct {
	path, recipient, subject, body string
	content                        string
}

type fakeMail struct {
	inbox    []models.Message
	sent     []string
	attached []attachment
	listErr  error
	// onSend lets a test deliver replies while requests go out
	onSend func(m *fakeMail, text string)
}

func (m *fakeMail) List(ctx context.Context, subjectContains string, receivedAfter time.Time) ([]models.Message, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []models.Message
	for _, msg := range m.inbox {
		if strings.Contains(msg.Subject, subjectContains) && msg.ReceivedAt.After(receivedAfter) {
			out = append(out, msg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	return out, nil
}

func (m *fakeMail) Send(ctx context.Context, text string) error {
	m.sent = append(m.sent, text)
	if m.onSend != nil {
		m.onSend(m, text)
	}
	return nil
}

func (m *fakeMail) SendWithAttachment(ctx context.Context, path, recipient, subject, body string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	m.attached = append(m.attached, attachment{path, recipient, subject, body, string(data)})
	return nil
}

// memLedger holds the tank list, the column list and the result table
type memLedger struct {
	tanks   []models.Record
	fields  models.FieldSet
	control models.ControlRow
	rows    []models.RemoteRow
	files   []models.ExportableFile
}

func (l *memLedger) ReadRecords(ctx context.Context, table models.TableRef) ([]models.Record, error) {
	return l.tanks, nil
}

func (l *memLedger) ReadFieldSet(ctx context.Context, table models.TableRef) (models.FieldSet, error) {
	return l.fields, nil
}

func (l *memLedger) ReadControlRow(ctx context.Context, table models.TableRef) (models.ControlRow, error) {
	return l.control, nil
}

func (l *memLedger) ReadAllRows(ctx context.Context, table models.TableRef) ([]models.RemoteRow, error) {
	out := make([]models.RemoteRow, len(l.rows))
	for i, r := range l.rows {
		values := make(map[string]string, len(r.Values))
		for k, v := range r.Values {
			values[k] = v
		}
		out[i] = models.RemoteRow{Table: table, Number: r.Number, Values: values}
	}
	return out, nil
}

func (l *memLedger) Insert(ctx context.Context, table models.TableRef, values map[string]string) error {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	l.rows = append(l.rows, models.RemoteRow{Number: len(l.rows) + 4, Values: copied})
	return nil
}

func (l *memLedger) Update(ctx context.Context, row models.RemoteRow, fields map[string]string, token string) error {
	for i := range l.rows {
		if l.rows[i].Number == row.Number {
			for k, v := range fields {
				l.rows[i].Values[k] = v
			}
			return nil
		}
	}
	return errs.NotFound("row")
}

func (l *memLedger) ListFiles(ctx context.Context) ([]models.ExportableFile, error) {
	return l.files, nil
}

func (l *memLedger) Download(ctx context.Context, link string, w io.Writer) error {
	_, err := io.WriteString(w, "xlsx from "+link)
	return err
}

func (l *memLedger) value(key, column string) string {
	for _, r := range l.rows {
		if r.Values["A"] == key {
			return r.Values[column]
		}
	}
	return ""
}
