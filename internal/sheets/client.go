package sheets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"tank-location-sync/internal/errs"
	"tank-location-sync/internal/logging"
	"tank-location-sync/internal/models"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

const spreadsheetMimeType = "application/vnd.google-apps.spreadsheet"

// valueInputOption stores values as given, so keys and dates keep their text form
const valueInputOption = "RAW"

// API is the narrow set of remote calls the Store is built on
type API interface {
	FindSpreadsheet(ctx context.Context, title string) (string, error)
	SheetTitles(ctx context.Context, spreadsheetID string) ([]string, error)
	GetValues(ctx context.Context, spreadsheetID, a1Range string) ([][]interface{}, error)
	AppendRow(ctx context.Context, spreadsheetID, a1Range string, row []interface{}) error
	UpdateCells(ctx context.Context, spreadsheetID string, cells map[string]string) error
	ListFiles(ctx context.Context) ([]models.ExportableFile, error)
	Download(ctx context.Context, link string, w io.Writer) error
}

// GoogleAPI talks to Sheets v4 and Drive v3 with a service account
type GoogleAPI struct {
	sheets *sheetsapi.Service
	drive  *drive.Service
	http   *http.Client
	cb     *gobreaker.CircuitBreaker
}

// NewGoogleAPI authenticates with the service account key at credentialsFile
func NewGoogleAPI(ctx context.Context, credentialsFile string) (*GoogleAPI, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("reading credentials file: %w", err)
	}

	creds, err := google.CredentialsFromJSON(ctx, data, sheetsapi.SpreadsheetsScope, drive.DriveReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}

	sheetsSvc, err := sheetsapi.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, errs.Transport(err, "creating sheets service")
	}
	driveSvc, err := drive.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, errs.Transport(err, "creating drive service")
	}

	return &GoogleAPI{
		sheets: sheetsSvc,
		drive:  driveSvc,
		http:   oauth2.NewClient(ctx, creds.TokenSource),
		cb:     newBreaker("google-api"),
	}, nil
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			_, ok := err.(*nonCircuitError)
			return ok
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Log.Warnf("Circuit breaker %s: state changed from %s to %s", name, from.String(), to.String())
		},
	})
}

// execute runs fn behind the breaker and maps its failure into the error taxonomy
func (g *GoogleAPI) execute(operation string, fn func() error) error {
	_, err := g.cb.Execute(func() (interface{}, error) {
		if err := fn(); err != nil {
			if !tripsBreaker(err) {
				return nil, &nonCircuitError{err: err}
			}
			return nil, err
		}
		return nil, nil
	})
	if nce, ok := err.(*nonCircuitError); ok {
		err = nce.err
	}
	if err != nil {
		logging.Log.WithField("operation", operation).
			Debugf("Google API call failed (breaker %s): %v", g.cb.State().String(), err)
	}
	return mapError(err, operation)
}

// FindSpreadsheet resolves a spreadsheet title to its file id
func (g *GoogleAPI) FindSpreadsheet(ctx context.Context, title string) (string, error) {
	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false",
		strings.ReplaceAll(title, "'", "\\'"), spreadsheetMimeType)

	var list *drive.FileList
	err := g.execute("find spreadsheet "+title, func() error {
		var err error
		list, err = g.drive.Files.List().Q(q).Fields("files(id, name)").Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", err
	}
	for _, f := range list.Files {
		if f.Name == title {
			return f.Id, nil
		}
	}
	return "", errs.NotFound("spreadsheet " + title + " not found")
}

// SheetTitles lists the worksheet titles of a spreadsheet
func (g *GoogleAPI) SheetTitles(ctx context.Context, spreadsheetID string) ([]string, error) {
	var ss *sheetsapi.Spreadsheet
	err := g.execute("get spreadsheet", func() error {
		var err error
		ss, err = g.sheets.Spreadsheets.Get(spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	titles := make([]string, 0, len(ss.Sheets))
	for _, s := range ss.Sheets {
		if s.Properties != nil {
			titles = append(titles, s.Properties.Title)
		}
	}
	return titles, nil
}

// GetValues reads the formatted values of a range
func (g *GoogleAPI) GetValues(ctx context.Context, spreadsheetID, a1Range string) ([][]interface{}, error) {
	var vr *sheetsapi.ValueRange
	err := g.execute("read "+a1Range, func() error {
		var err error
		vr, err = g.sheets.Spreadsheets.Values.Get(spreadsheetID, a1Range).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	return vr.Values, nil
}

// AppendRow adds row below the last row of the table found at a1Range
func (g *GoogleAPI) AppendRow(ctx context.Context, spreadsheetID, a1Range string, row []interface{}) error {
	body := &sheetsapi.ValueRange{Values: [][]interface{}{row}}
	return g.execute("append "+a1Range, func() error {
		_, err := g.sheets.Spreadsheets.Values.Append(spreadsheetID, a1Range, body).
			ValueInputOption(valueInputOption).
			InsertDataOption("INSERT_ROWS").
			Context(ctx).Do()
		return err
	})
}

// UpdateCells writes each A1 cell -> value in one batch
func (g *GoogleAPI) UpdateCells(ctx context.Context, spreadsheetID string, cells map[string]string) error {
	req := batchUpdateRequest(cells)
	return g.execute("update cells", func() error {
		_, err := g.sheets.Spreadsheets.Values.BatchUpdate(spreadsheetID, req).Context(ctx).Do()
		return err
	})
}

// ListFiles lists every file visible to the service account with its export links
func (g *GoogleAPI) ListFiles(ctx context.Context) ([]models.ExportableFile, error) {
	var files []models.ExportableFile
	err := g.execute("list files", func() error {
		files = files[:0]
		return g.drive.Files.List().
			Q("trashed = false").
			Fields(googleapi.Field("nextPageToken, files(id, name, exportLinks)")).
			Pages(ctx, func(page *drive.FileList) error {
				for _, f := range page.Files {
					files = append(files, models.ExportableFile{
						ID:          f.Id,
						Title:       f.Name,
						ExportLinks: f.ExportLinks,
					})
				}
				return nil
			})
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// Download streams the content behind an export link into w
func (g *GoogleAPI) Download(ctx context.Context, link string, w io.Writer) error {
	return g.execute("download export", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
		if err != nil {
			return err
		}
		resp, err := g.http.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		if err := googleapi.CheckResponse(resp); err != nil {
			return err
		}
		_, err = io.Copy(w, resp.Body)
		return err
	})
}

func batchUpdateRequest(cells map[string]string) *sheetsapi.BatchUpdateValuesRequest {
	req := &sheetsapi.BatchUpdateValuesRequest{ValueInputOption: valueInputOption}
	for cell, value := range cells {
		req.Data = append(req.Data, &sheetsapi.ValueRange{
			Range:  cell,
			Values: [][]interface{}{{value}},
		})
	}
	return req
}
