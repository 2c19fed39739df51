package workflow

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"tank-location-sync/internal/errs"
	"tank-location-sync/internal/models"
	"tank-location-sync/internal/report"
)

const keyField = "ДАННЫЕ О ВАГОНЕ"

var start = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func testConfig() models.WorkflowConfig {
	return models.WorkflowConfig{
		Marker:          "1392",
		ChunkSize:       150,
		ChunkPause:      5 * time.Second,
		Wait:            10 * time.Minute,
		FreshnessWindow: time.Hour,
		MaxAttempts:     3,
		Tanks:           models.TableRef{Spreadsheet: "Dislocation", Sheet: "Tanks"},
		TankKey:         "wagon",
		Result:          models.TableRef{Spreadsheet: "Dislocation", Sheet: "Result"},
		ResultKey:       keyField,
		ControlRow:      3,
		Columns:         models.TableRef{Spreadsheet: "Dislocation", Sheet: "Columns"},
		Delimiter:       ";",
	}
}

func testExport() models.ExportConfig {
	return models.ExportConfig{
		Title:     "Dislocation",
		MimeType:  "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Extension: ".xlsx",
		Recipient: "service@example.com",
		Subject:   "Дислокация",
		Body:      "Смотрите вложение",
	}
}

func tanks(n int) []models.Record {
	recs := make([]models.Record, 0, n)
	for i := 0; i < n; i++ {
		recs = append(recs, models.Record{"wagon": fmt.Sprintf("5%07d", i)})
	}
	return recs
}

func newLedger(tankCount int) *memLedger {
	return &memLedger{
		tanks:   tanks(tankCount),
		fields:  models.FieldSet{keyField: "4", "СТАНЦИЯ": "7"},
		control: models.ControlRow{"A": "4", "B": "7"},
		files: []models.ExportableFile{
			{ID: "1", Title: "Dislocation copy", ExportLinks: map[string]string{testExport().MimeType: "link-copy"}},
			{ID: "2", Title: "Dislocation", ExportLinks: map[string]string{testExport().MimeType: "link-main"}},
		},
	}
}

func newOrchestrator(mail *fakeMail, ledger *memLedger, clock *fakeClock) *Orchestrator {
	cfg := testConfig()
	return New(cfg, testExport(), mail, ledger,
		report.Delimited{Delimiter: cfg.Delimiter},
		report.Overlay{BaselineKey: cfg.TankKey, ReportKey: cfg.ResultKey},
		clock)
}

func reportBody(station string, ids ...string) string {
	var b strings.Builder
	b.WriteString("Справка 1392\n" + keyField + ";СТАНЦИЯ\n")
	for _, id := range ids {
		b.WriteString(id + ";" + station + "\n")
	}
	return b.String()
}

func TestChunk(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{0, 0},
		{1, 1},
		{149, 1},
		{150, 1},
		{151, 2},
		{300, 2},
		{301, 3},
	}

	for _, tt := range tests {
		ids := make([]string, tt.n)
		for i := range ids {
			ids[i] = fmt.Sprint(i)
		}
		chunks := Chunk(ids, 150)
		if len(chunks) != tt.want {
			t.Errorf("Chunk(%d ids) = %d chunks, want %d", tt.n, len(chunks), tt.want)
		}
		total := 0
		for _, c := range chunks {
			if len(c) == 0 || len(c) > 150 {
				t.Errorf("Chunk(%d ids) produced a chunk of %d", tt.n, len(c))
			}
			total += len(c)
		}
		if total != tt.n {
			t.Errorf("Chunk(%d ids) lost ids, got %d", tt.n, total)
		}
	}
}

func TestSendBatch(t *testing.T) {
	mail := &fakeMail{}
	ledger := newLedger(151)
	ledger.tanks = append(ledger.tanks, models.Record{"wagon": "  "}, models.Record{"owner": "x"})
	clock := &fakeClock{now: start}
	o := newOrchestrator(mail, ledger, clock)

	sent, err := o.SendBatch(context.Background())
	if err != nil {
		t.Fatalf("SendBatch() error: %v", err)
	}
	if sent != 2 || len(mail.sent) != 2 {
		t.Fatalf("Expected 2 messages, got %d (%d sent)", sent, len(mail.sent))
	}
	if lines := strings.Split(mail.sent[0], "\n"); len(lines) != 150 || lines[0] != "50000000" {
		t.Errorf("First chunk should hold 150 newline-joined ids, got %d", len(lines))
	}
	if mail.sent[1] != "50000150" {
		t.Errorf("Unexpected second chunk %q", mail.sent[1])
	}
	if len(clock.sleeps) != 1 || clock.sleeps[0] != 5*time.Second {
		t.Errorf("Expected one 5s pause between chunks, got %v", clock.sleeps)
	}
}

func TestSendBatch_NoTanks(t *testing.T) {
	mail := &fakeMail{}
	o := newOrchestrator(mail, newLedger(0), &fakeClock{now: start})

	sent, err := o.SendBatch(context.Background())
	if err != nil {
		t.Fatalf("SendBatch() error: %v", err)
	}
	if sent != 0 || len(mail.sent) != 0 {
		t.Errorf("Expected nothing sent, got %d", sent)
	}
}

func TestCheckCount(t *testing.T) {
	tests := []struct {
		name       string
		replies    int
		sent       int
		wantResent bool
		wantSends  int
		wantSleeps int
		wantState  State
	}{
		{name: "all replies", replies: 2, sent: 2, wantResent: false, wantSends: 0, wantSleeps: 0, wantState: StateCheckCount},
		{name: "more replies", replies: 3, sent: 2, wantResent: false, wantSends: 0, wantSleeps: 0, wantState: StateCheckCount},
		{name: "one missing", replies: 1, sent: 2, wantResent: true, wantSends: 2, wantSleeps: 2, wantState: StateWait},
		{name: "none arrived", replies: 0, sent: 2, wantResent: true, wantSends: 2, wantSleeps: 2, wantState: StateWait},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{now: start}
			mail := &fakeMail{}
			for i := 0; i < tt.replies; i++ {
				mail.inbox = append(mail.inbox, models.Message{
					UID: uint32(i + 1), Subject: "Справка 1392", ReceivedAt: start.Add(-time.Duration(i+1) * time.Minute),
				})
			}
			// a stale reply outside the freshness window never counts
			mail.inbox = append(mail.inbox, models.Message{UID: 99, Subject: "1392", ReceivedAt: start.Add(-2 * time.Hour)})

			o := newOrchestrator(mail, newLedger(151), clock)
			resent, err := o.CheckCount(context.Background(), tt.sent)
			if err != nil {
				t.Fatalf("CheckCount() error: %v", err)
			}
			if resent != tt.wantResent {
				t.Errorf("resent = %v, want %v", resent, tt.wantResent)
			}
			if len(mail.sent) != tt.wantSends {
				t.Errorf("Expected %d corrective messages, got %d", tt.wantSends, len(mail.sent))
			}
			// one chunk pause plus the wait
			if len(clock.sleeps) != tt.wantSleeps {
				t.Errorf("Expected %d sleeps, got %v", tt.wantSleeps, clock.sleeps)
			}
			if tt.wantResent && clock.sleeps[len(clock.sleeps)-1] != 10*time.Minute {
				t.Errorf("Expected corrective wait of 10m, got %v", clock.sleeps)
			}
			if o.State() != tt.wantState {
				t.Errorf("State() = %s, want %s", o.State(), tt.wantState)
			}
		})
	}
}

func TestReconcile_OldestWins(t *testing.T) {
	clock := &fakeClock{now: start}
	mail := &fakeMail{inbox: []models.Message{
		{UID: 2, Subject: "Справка 1392", Body: reportBody("Kyiv", "50000000"), ReceivedAt: start.Add(-5 * time.Minute), TraceID: "m2"},
		{UID: 1, Subject: "Справка 1392", Body: reportBody("Fastiv", "50000000", "50000001"), ReceivedAt: start.Add(-30 * time.Minute), TraceID: "m1"},
	}}
	ledger := newLedger(2)
	o := newOrchestrator(mail, ledger, clock)

	sum, err := o.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile() error: %v", err)
	}
	if sum.Messages != 2 {
		t.Errorf("Expected 2 reports processed, got %d", sum.Messages)
	}
	if got := ledger.value("50000000", "B"); got != "Fastiv" {
		t.Errorf("Expected the oldest report to win with Fastiv, got %q", got)
	}
	if got := ledger.value("50000001", "B"); got != "Fastiv" {
		t.Errorf("Expected 50000001 at Fastiv, got %q", got)
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	clock := &fakeClock{now: start}
	mail := &fakeMail{inbox: []models.Message{
		{UID: 1, Subject: "1392", Body: reportBody("Lviv", "50000000", "50000001", "50000002"), ReceivedAt: start.Add(-time.Minute)},
	}}
	ledger := newLedger(3)
	o := newOrchestrator(mail, ledger, clock)

	first, err := o.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("first Reconcile() error: %v", err)
	}
	rows := len(ledger.rows)

	second, err := o.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("second Reconcile() error: %v", err)
	}
	if len(ledger.rows) != rows {
		t.Errorf("Row count changed from %d to %d", rows, len(ledger.rows))
	}
	if first.Inserted != 3 || second.Inserted != 0 || second.Updated != 3 {
		t.Errorf("Unexpected summaries %+v then %+v", first, second)
	}
}

func TestReconcile_ParseErrorAborts(t *testing.T) {
	mail := &fakeMail{inbox: []models.Message{
		{UID: 1, Subject: "1392", Body: reportBody("Lviv", "50000000"), ReceivedAt: start.Add(-2 * time.Minute)},
		{UID: 2, Subject: "1392", Body: "no table here", ReceivedAt: start.Add(-time.Minute)},
	}}
	ledger := newLedger(1)
	o := newOrchestrator(mail, ledger, &fakeClock{now: start})

	_, err := o.Reconcile(context.Background())
	if !errs.IsParse(err) {
		t.Fatalf("Expected parse error, got %v", err)
	}
	if len(ledger.rows) != 0 {
		t.Errorf("Nothing should be written after the newest report fails, got %d rows", len(ledger.rows))
	}
}

func TestExport(t *testing.T) {
	mail := &fakeMail{}
	ledger := newLedger(1)
	o := newOrchestrator(mail, ledger, &fakeClock{now: start})

	title, err := o.Export(context.Background())
	if err != nil {
		t.Fatalf("Export() error: %v", err)
	}
	if title != "Dislocation" {
		t.Errorf("Unexpected title %q", title)
	}
	if len(mail.attached) != 1 {
		t.Fatalf("Expected one attachment, got %d", len(mail.attached))
	}
	a := mail.attached[0]
	if a.content != "xlsx from link-main" {
		t.Errorf("Expected exact title match to be exported, got %q", a.content)
	}
	if !strings.HasSuffix(a.path, "Dislocation.xlsx") {
		t.Errorf("Unexpected attachment path %q", a.path)
	}
	if a.recipient != "service@example.com" || a.subject != "Дислокация" || a.body != "Смотрите вложение" {
		t.Errorf("Unexpected attachment envelope %+v", a)
	}
	if _, err := os.Stat(a.path); !os.IsNotExist(err) {
		t.Errorf("Expected temp file to be removed, stat err = %v", err)
	}
}

func TestExport_NotFound(t *testing.T) {
	tests := []struct {
		name  string
		files []models.ExportableFile
	}{
		{name: "no such title", files: []models.ExportableFile{{Title: "Other"}}},
		{name: "no export link", files: []models.ExportableFile{{Title: "Dislocation", ExportLinks: map[string]string{"application/pdf": "x"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mail := &fakeMail{}
			ledger := newLedger(1)
			ledger.files = tt.files
			o := newOrchestrator(mail, ledger, &fakeClock{now: start})

			_, err := o.Export(context.Background())
			if !errs.IsNotFound(err) {
				t.Errorf("Expected not found, got %v", err)
			}
			if len(mail.attached) != 0 {
				t.Error("Nothing should be mailed")
			}
		})
	}
}

func TestRun(t *testing.T) {
	clock := &fakeClock{now: start}
	mail := &fakeMail{}
	uid := uint32(0)
	mail.onSend = func(m *fakeMail, text string) {
		uid++
		ids := strings.Split(text, "\n")
		m.inbox = append(m.inbox, models.Message{
			UID: uid, Subject: "Справка 1392", Body: reportBody("Fastiv", ids...),
			ReceivedAt: clock.now.Add(time.Minute), TraceID: fmt.Sprint(uid),
		})
	}
	ledger := newLedger(160)
	o := newOrchestrator(mail, ledger, clock)

	out, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if o.State() != StateDone {
		t.Errorf("Expected done state, got %s", o.State())
	}
	if out.Sent != 2 || out.Resent {
		t.Errorf("Unexpected outcome %+v", out)
	}
	if out.Messages != 2 || out.Inserted != 160 {
		t.Errorf("Expected 2 reports and 160 inserted rows, got %+v", out)
	}
	if out.Exported != "Dislocation" || len(mail.attached) != 1 {
		t.Errorf("Expected export to be mailed, got %+v", out)
	}
	want := []time.Duration{5 * time.Second, 10 * time.Minute}
	if fmt.Sprint(clock.sleeps) != fmt.Sprint(want) {
		t.Errorf("Expected sleeps %v, got %v", want, clock.sleeps)
	}
}

func TestRun_ResendsOnceWhenRepliesMissing(t *testing.T) {
	clock := &fakeClock{now: start}
	mail := &fakeMail{}
	// the service never answers
	o := newOrchestrator(mail, newLedger(10), clock)

	out, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !out.Resent {
		t.Error("Expected a corrective cycle")
	}
	if len(mail.sent) != 2 {
		t.Errorf("Expected the single request to be sent twice in total, got %d", len(mail.sent))
	}
	if out.Messages != 0 || len(ledgerOf(o).rows) != 0 {
		t.Errorf("Nothing should be written without replies, got %+v", out)
	}
}

func TestRun_FailureSetsFailedState(t *testing.T) {
	mail := &fakeMail{listErr: errs.Transport(nil, "imap down")}
	o := newOrchestrator(mail, newLedger(1), &fakeClock{now: start})

	_, err := o.Run(context.Background())
	if !errs.IsTransport(err) {
		t.Errorf("Expected transport error, got %v", err)
	}
	if o.State() != StateFailed {
		t.Errorf("Expected failed state, got %s", o.State())
	}
}

func TestLatest(t *testing.T) {
	mail := &fakeMail{inbox: []models.Message{
		{UID: 1, Subject: "1392", Body: reportBody("Old", "50000000"), ReceivedAt: start.Add(-20 * time.Minute)},
		{UID: 2, Subject: "1392", Body: reportBody("New", "50000000"), ReceivedAt: start.Add(-10 * time.Minute)},
	}}
	o := newOrchestrator(mail, newLedger(1), &fakeClock{now: start})

	msg, recs, err := o.Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest() error: %v", err)
	}
	if msg.UID != 2 || len(recs) != 1 || recs[0]["СТАНЦИЯ"] != "New" {
		t.Errorf("Expected newest report, got uid %d %v", msg.UID, recs)
	}

	empty := newOrchestrator(&fakeMail{}, newLedger(1), &fakeClock{now: start})
	if _, _, err := empty.Latest(context.Background()); !errs.IsNotFound(err) {
		t.Errorf("Expected not found without reports, got %v", err)
	}
}

func ledgerOf(o *Orchestrator) *memLedger {
	return o.store.(*memLedger)
}
