package models

// WildcardVersion is the version token that bypasses the optimistic lock
// check on update.
const WildcardVersion = "*"

// TableRef identifies a worksheet inside a spreadsheet
type TableRef struct {
	Spreadsheet string `yaml:"spreadsheet"`
	Sheet       string `yaml:"sheet"`
}

func (t TableRef) String() string {
	return t.Spreadsheet + "/" + t.Sheet
}

// RemoteRow is a snapshot of a single table row
type RemoteRow struct {
	Table   TableRef
	Number  int               // 1-based sheet row number
	Version string            // token derived from the row content at read time
	Values  map[string]string // physical column -> value
}

// ExportableFile is a remote document that can be exported in other formats
type ExportableFile struct {
	ID          string
	Title       string
	ExportLinks map[string]string // MIME type -> download link
}
