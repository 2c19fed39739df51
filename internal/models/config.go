package models

import "time"

// Config represents the application configuration
type Config struct {
	LogLevel string         `yaml:"logLevel"`
	Email    EmailConfig    `yaml:"email"`
	Google   GoogleConfig   `yaml:"google"`
	Workflow WorkflowConfig `yaml:"workflow"`
	Export   ExportConfig   `yaml:"export"`
	Mileage  MileageConfig  `yaml:"mileage"`
	Journal  JournalConfig  `yaml:"journal"`
}

// EmailConfig represents IMAP/SMTP mailbox configuration
type EmailConfig struct {
	Imap     string `yaml:"imap"`
	Smtp     string `yaml:"smtp"`
	SmtpTLS  bool   `yaml:"smtpTLS"` // implicit TLS instead of STARTTLS
	Login    string `yaml:"login"`
	Password string `yaml:"password"`
	MailBox  string `yaml:"mailbox"`

	// ReportAddress receives the tank number requests
	ReportAddress string `yaml:"reportAddress"`
}

// GoogleConfig holds the service account used for the spreadsheet and drive APIs
type GoogleConfig struct {
	CredentialsFile string `yaml:"credentialsFile"`
}

// WorkflowConfig drives the send / check / reconcile saga
type WorkflowConfig struct {
	Marker          string        `yaml:"marker"`
	ChunkSize       int           `yaml:"chunkSize"`
	ChunkPause      time.Duration `yaml:"chunkPause"`
	Wait            time.Duration `yaml:"wait"`
	FreshnessWindow time.Duration `yaml:"freshnessWindow"`
	MaxAttempts     int           `yaml:"maxAttempts"`

	// Tanks holds the baseline tank list; TankKey is its key column header
	Tanks   TableRef `yaml:"tanks"`
	TankKey string   `yaml:"tankKey"`

	// Result is the table written by the upsert engine
	Result     TableRef `yaml:"result"`
	ResultKey  string   `yaml:"resultKey"`
	ControlRow int      `yaml:"controlRow"`

	// Columns lists logical field -> control identifier
	Columns TableRef `yaml:"columns"`

	// Report parsing
	Delimiter string `yaml:"delimiter"`
}

// ExportConfig describes which file gets exported and where it is mailed
type ExportConfig struct {
	Title     string `yaml:"title"`
	MimeType  string `yaml:"mimeType"`
	Extension string `yaml:"extension"`
	Recipient string `yaml:"recipient"`
	Subject   string `yaml:"subject"`
	Body      string `yaml:"body"`
}

// MileageConfig names the columns touched by the mileage writer
type MileageConfig struct {
	Current   string `yaml:"current"`
	Date      string `yaml:"date"`
	Rest      string `yaml:"rest"`
	UpdatedAt string `yaml:"updatedAt"`
}

// JournalConfig locates the local run journal
type JournalConfig struct {
	Path string `yaml:"path"`
}
