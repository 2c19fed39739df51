package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"tank-location-sync/internal/models"
)

const baseYAML = `email:
  imap: "imap.test.com:993"
  smtp: "smtp.test.com:587"
  login: "reports@example.com"
  password: "testpass"
  reportAddress: "autoinform@example.com"
google:
  credentialsFile: "service-account.json"
workflow:
  tanks:
    spreadsheet: "Dislocation"
    sheet: "tanks"
  tankKey: "wagon"
  result:
    spreadsheet: "Dislocation"
    sheet: "result"
  resultKey: "TANK DATA"
  columns:
    spreadsheet: "Dislocation"
    sheet: "columns"
export:
  recipient: "service@example.com"
  subject: "Dislocation"
`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Remove(tmpFile.Name())
	})

	if _, err := tmpFile.Write([]byte(content)); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	_ = tmpFile.Close()
	return tmpFile.Name()
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeTemp(t, baseYAML))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Email.Imap != "imap.test.com:993" {
		t.Errorf("Expected imap 'imap.test.com:993', got '%s'", cfg.Email.Imap)
	}

	if cfg.Workflow.Result.Sheet != "result" {
		t.Errorf("Expected result sheet 'result', got '%s'", cfg.Workflow.Result.Sheet)
	}

	if cfg.Export.Title != "Dislocation" {
		t.Errorf("Expected export title to default to the result spreadsheet, got '%s'", cfg.Export.Title)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeTemp(t, baseYAML))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	wf := cfg.Workflow
	if wf.ChunkSize != 150 {
		t.Errorf("Expected chunkSize 150, got %d", wf.ChunkSize)
	}
	if wf.Wait != 10*time.Minute {
		t.Errorf("Expected wait 10m, got %v", wf.Wait)
	}
	if wf.FreshnessWindow != time.Hour {
		t.Errorf("Expected freshnessWindow 1h, got %v", wf.FreshnessWindow)
	}
	if wf.MaxAttempts != 3 {
		t.Errorf("Expected maxAttempts 3, got %d", wf.MaxAttempts)
	}
	if wf.Marker != "1392" {
		t.Errorf("Expected marker '1392', got '%s'", wf.Marker)
	}
	if wf.ControlRow != 3 {
		t.Errorf("Expected controlRow 3, got %d", wf.ControlRow)
	}
	if cfg.Export.MimeType != XlsxMimeType {
		t.Errorf("Expected xlsx export, got '%s'", cfg.Export.MimeType)
	}
	if wf.Columns.Spreadsheet != "Dislocation" {
		t.Errorf("Expected columns spreadsheet to default to the result spreadsheet, got '%s'", wf.Columns.Spreadsheet)
	}
	if cfg.Mileage.Current != "ПРОБЕГ-ТЕКУЩИЙ" || cfg.Mileage.UpdatedAt != "ПРОБЕГ-ОБНОВЛЕННО" {
		t.Errorf("Unexpected mileage columns %+v", cfg.Mileage)
	}
}

func TestLoad_OverridesDurations(t *testing.T) {
	content := strings.Replace(baseYAML, "workflow:\n", "workflow:\n  wait: 30s\n  freshnessWindow: 2h\n", 1)

	cfg, err := Load(writeTemp(t, content))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Workflow.Wait != 30*time.Second {
		t.Errorf("Expected wait 30s, got %v", cfg.Workflow.Wait)
	}
	if cfg.Workflow.FreshnessWindow != 2*time.Hour {
		t.Errorf("Expected freshnessWindow 2h, got %v", cfg.Workflow.FreshnessWindow)
	}
}

func TestValidate_MissingFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *models.Config)
		wantErr string
	}{
		{
			name:    "Missing imap",
			mutate:  func(cfg *models.Config) { cfg.Email.Imap = "" },
			wantErr: "email.imap",
		},
		{
			name:    "Missing result key",
			mutate:  func(cfg *models.Config) { cfg.Workflow.ResultKey = "" },
			wantErr: "workflow.resultKey",
		},
		{
			name:    "Control row on header",
			mutate:  func(cfg *models.Config) { cfg.Workflow.ControlRow = 1 },
			wantErr: "controlRow",
		},
		{
			name:    "Zero attempts",
			mutate:  func(cfg *models.Config) { cfg.Workflow.MaxAttempts = -1 },
			wantErr: "maxAttempts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeTemp(t, baseYAML))
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}
			tt.mutate(cfg)

			err = Validate(cfg)
			if err == nil {
				t.Fatalf("Validate() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}
