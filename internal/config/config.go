package config

import (
	"fmt"
	"os"
	"time"

	"tank-location-sync/internal/models"

	"gopkg.in/yaml.v2"
)

// XlsxMimeType is the export format of the consolidated spreadsheet
const XlsxMimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Load reads the configuration from the specified YAML file, fills in defaults and validates it
func Load(filepath string) (*models.Config, error) {
	configFile, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := yaml.Unmarshal(configFile, &config); err != nil {
		return nil, err
	}

	ApplyDefaults(&config)
	if err := Validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// ApplyDefaults fills every zero-valued tunable with its standard value
func ApplyDefaults(cfg *models.Config) {
	wf := &cfg.Workflow
	if wf.Marker == "" {
		wf.Marker = "1392"
	}
	if wf.ChunkSize == 0 {
		wf.ChunkSize = 150
	}
	if wf.ChunkPause == 0 {
		wf.ChunkPause = 5 * time.Second
	}
	if wf.Wait == 0 {
		wf.Wait = 10 * time.Minute
	}
	if wf.FreshnessWindow == 0 {
		wf.FreshnessWindow = time.Hour
	}
	if wf.MaxAttempts == 0 {
		wf.MaxAttempts = 3
	}
	if wf.ControlRow == 0 {
		wf.ControlRow = 3
	}
	if wf.Delimiter == "" {
		wf.Delimiter = ";"
	}
	if cfg.Email.MailBox == "" {
		cfg.Email.MailBox = "INBOX"
	}
	if cfg.Export.MimeType == "" {
		cfg.Export.MimeType = XlsxMimeType
	}
	if cfg.Export.Extension == "" {
		cfg.Export.Extension = ".xlsx"
	}
	if cfg.Export.Title == "" {
		cfg.Export.Title = cfg.Workflow.Result.Spreadsheet
	}
	if wf.Columns.Spreadsheet == "" {
		wf.Columns.Spreadsheet = wf.Result.Spreadsheet
	}
	m := &cfg.Mileage
	if m.Current == "" {
		m.Current = "ПРОБЕГ-ТЕКУЩИЙ"
	}
	if m.Date == "" {
		m.Date = "ПРОБЕГ-ДАТА"
	}
	if m.Rest == "" {
		m.Rest = "ПРОБЕГ-ОСТАЛОСЬ"
	}
	if m.UpdatedAt == "" {
		m.UpdatedAt = "ПРОБЕГ-ОБНОВЛЕННО"
	}
	if cfg.Journal.Path == "" {
		cfg.Journal.Path = "journal.db"
	}
}

// Validate rejects configurations the saga cannot run with
func Validate(cfg *models.Config) error {
	required := []struct {
		name  string
		value string
	}{
		{"email.imap", cfg.Email.Imap},
		{"email.smtp", cfg.Email.Smtp},
		{"email.login", cfg.Email.Login},
		{"email.reportAddress", cfg.Email.ReportAddress},
		{"google.credentialsFile", cfg.Google.CredentialsFile},
		{"workflow.tanks.spreadsheet", cfg.Workflow.Tanks.Spreadsheet},
		{"workflow.tanks.sheet", cfg.Workflow.Tanks.Sheet},
		{"workflow.tankKey", cfg.Workflow.TankKey},
		{"workflow.result.spreadsheet", cfg.Workflow.Result.Spreadsheet},
		{"workflow.result.sheet", cfg.Workflow.Result.Sheet},
		{"workflow.resultKey", cfg.Workflow.ResultKey},
		{"workflow.columns.sheet", cfg.Workflow.Columns.Sheet},
		{"export.recipient", cfg.Export.Recipient},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("config: %s is required", r.name)
		}
	}

	if cfg.Workflow.ChunkSize < 1 {
		return fmt.Errorf("config: workflow.chunkSize must be positive, got %d", cfg.Workflow.ChunkSize)
	}
	if cfg.Workflow.MaxAttempts < 1 {
		return fmt.Errorf("config: workflow.maxAttempts must be positive, got %d", cfg.Workflow.MaxAttempts)
	}
	if cfg.Workflow.ControlRow < 2 {
		return fmt.Errorf("config: workflow.controlRow must be below the header row, got %d", cfg.Workflow.ControlRow)
	}
	if cfg.Workflow.FreshnessWindow < 0 {
		return fmt.Errorf("config: workflow.freshnessWindow must not be negative")
	}
	return nil
}
