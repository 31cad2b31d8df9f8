package google

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fintrack/internal/core"
	"fintrack/internal/log"
	ports "fintrack/internal/sheets"
)

const (
	DefaultSheetName  = "Transactions"
	defaultCacheTTL   = 5 * time.Minute
	valueInputRaw     = "RAW"
	lastColumn        = "F"
	firstDataRowIndex = 2
)

// Config selects the spreadsheet and the service account used to reach it.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string
	logger        *log.Logger

	// Row index of the id column. Rebuilt from the sheet when it expires or
	// after any failed write.
	mu                 sync.Mutex
	rowByID            map[string]int
	nextRow            int
	headerChecked      bool
	cacheExpiresAt     time.Time
	cacheValidDuration time.Duration
}

// Ensure interface conformance
var (
	_ ports.Mirror    = (*Client)(nil)
	_ ports.RowLister = (*Client)(nil)
)

// New creates a Sheets client authenticated with service-account
// credentials from cfg.
func New(ctx context.Context, cfg Config) (*Client, error) {
	httpClient, err := serviceAccountClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewWithOptions(ctx, cfg, goption.WithHTTPClient(httpClient))
}

// NewWithOptions creates a client from explicit API options, bypassing the
// credential lookup.
func NewWithOptions(ctx context.Context, cfg Config, opts ...goption.ClientOption) (*Client, error) {
	id := strings.TrimSpace(cfg.SpreadsheetID)
	if id == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	sheet := strings.TrimSpace(cfg.SheetName)
	if sheet == "" {
		sheet = DefaultSheetName
	}

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{
		svc:                svc,
		spreadsheetID:      id,
		sheet:              sheet,
		logger:             log.Default().WithComponent(log.ComponentSheets),
		cacheValidDuration: defaultCacheTTL,
	}, nil
}

// serviceAccountClient builds an authorised HTTP client from inline JSON or
// a key file, falling back to GOOGLE_APPLICATION_CREDENTIALS.
func serviceAccountClient(ctx context.Context, cfg Config) (*http.Client, error) {
	credentialsJSON, err := loadCredentials(cfg)
	if err != nil {
		return nil, err
	}
	creds, err := google.CredentialsFromJSON(ctx, credentialsJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}
	base := context.WithValue(ctx, oauth2.HTTPClient, newHTTPClientWithPooling())
	return oauth2.NewClient(base, creds.TokenSource), nil
}

func loadCredentials(cfg Config) ([]byte, error) {
	inline := strings.TrimSpace(cfg.CredentialsJSON)
	file := strings.TrimSpace(cfg.CredentialsFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		return []byte(inline), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// newHTTPClientWithPooling is the transport under the OAuth client, tuned
// for many small requests to one host.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

// Upsert writes tx over the row holding its id, or below the last row.
func (c *Client) Upsert(ctx context.Context, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureHeaderLocked(ctx); err != nil {
		return err
	}
	if err := c.loadIndexLocked(ctx); err != nil {
		return err
	}

	row, found := c.rowByID[tx.ID]
	if !found {
		row = c.nextRow
	}
	rng := fmt.Sprintf("%s!A%d:%s%d", c.sheet, row, lastColumn, row)
	vr := &gsheet.ValueRange{Values: [][]any{formatRow(tx)}}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption(valueInputRaw).Context(ctx).Do()
	if err != nil {
		c.invalidateLocked()
		return fmt.Errorf("write %s: %w", rng, err)
	}

	if !found {
		c.rowByID[tx.ID] = row
		c.nextRow++
	}
	c.logger.DebugContext(ctx, "Transaction mirrored",
		log.FieldTransactionID, tx.ID,
		"row", row,
		"appended", !found)
	return nil
}

// Remove blanks the row holding id. The row itself stays so the positions
// of the other rows do not shift.
func (c *Client) Remove(ctx context.Context, id string) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.loadIndexLocked(ctx); err != nil {
		return err
	}
	row, found := c.rowByID[id]
	if !found {
		return nil
	}
	rng := fmt.Sprintf("%s!A%d:%s%d", c.sheet, row, lastColumn, row)
	_, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		c.invalidateLocked()
		return fmt.Errorf("clear %s: %w", rng, err)
	}
	delete(c.rowByID, id)
	c.logger.DebugContext(ctx, "Transaction removed from mirror", log.FieldTransactionID, id, "row", row)
	return nil
}

// ListRows reads every transaction row, skipping the header, blanks and
// rows that no longer parse.
func (c *Client) ListRows(ctx context.Context) ([]core.Transaction, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:%s", c.sheet, lastColumn)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	var out []core.Transaction
	for i, row := range resp.Values {
		if i < firstDataRowIndex-1 {
			continue
		}
		tx, err := parseRow(toStrings(row))
		if errors.Is(err, errBlankRow) {
			continue
		}
		if err != nil {
			c.logger.WarnContext(ctx, "Skipping unreadable mirror row", "row", i+1, log.FieldError, err)
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

func (c *Client) ensureHeaderLocked(ctx context.Context) error {
	if c.headerChecked {
		return nil
	}
	rng := fmt.Sprintf("%s!A1:%s1", c.sheet, lastColumn)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read header %s: %w", rng, err)
	}
	if len(resp.Values) == 0 || len(resp.Values[0]) == 0 {
		header := make([]any, len(ports.Header))
		for i, h := range ports.Header {
			header[i] = h
		}
		_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{header}}).
			ValueInputOption(valueInputRaw).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("write header %s: %w", rng, err)
		}
		c.invalidateLocked()
	}
	c.headerChecked = true
	return nil
}

// loadIndexLocked maps ids in column A to their row numbers.
func (c *Client) loadIndexLocked(ctx context.Context) error {
	if c.rowByID != nil && time.Now().Before(c.cacheExpiresAt) {
		return nil
	}
	rng := fmt.Sprintf("%s!A:A", c.sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read %s: %w", rng, err)
	}
	index := make(map[string]int, len(resp.Values))
	for i, row := range resp.Values {
		if i < firstDataRowIndex-1 || len(row) == 0 {
			continue
		}
		if id := strings.TrimSpace(fmt.Sprint(row[0])); id != "" {
			index[id] = i + 1
		}
	}
	c.rowByID = index
	c.nextRow = max(len(resp.Values)+1, firstDataRowIndex)
	c.cacheExpiresAt = time.Now().Add(c.cacheValidDuration)
	return nil
}

func (c *Client) invalidateLocked() {
	c.rowByID = nil
	c.cacheExpiresAt = time.Time{}
}
