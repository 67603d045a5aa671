package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/nimasrn/report-dispatcher/internal/model"
	"github.com/nimasrn/report-dispatcher/pkg/logger"
	"github.com/valyala/fasthttp"
)

const apiSheets = "sheets"

var (
	ErrSpreadsheetID = errors.New("could not extract spreadsheet id")

	spreadsheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)
)

type SheetsConfig struct {
	BaseURL        string
	SpreadsheetURL string
	SheetName      string
	AccessToken    string
	APIKey         string
	Timeout        time.Duration
}

// SheetsSource reads the status sheet through the Sheets values API.
type SheetsSource struct {
	config        SheetsConfig
	spreadsheetID string
	client        *fasthttp.Client
	metrics       *CallMetrics
}

func ExtractSpreadsheetID(sheetURL string) (string, error) {
	m := spreadsheetIDPattern.FindStringSubmatch(sheetURL)
	if m == nil {
		return "", fmt.Errorf("%w: %s", ErrSpreadsheetID, sheetURL)
	}
	return m[1], nil
}

func NewSheetsSource(config SheetsConfig) (*SheetsSource, error) {
	id, err := ExtractSpreadsheetID(config.SpreadsheetURL)
	if err != nil {
		return nil, err
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://sheets.googleapis.com/v4"
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.SheetName == "" {
		config.SheetName = "Report main"
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}

	return &SheetsSource{
		config:        config,
		spreadsheetID: id,
		client: &fasthttp.Client{
			ReadTimeout:         config.Timeout,
			WriteTimeout:        config.Timeout,
			MaxIdleConnDuration: 60 * time.Second,
		},
		metrics: NewCallMetrics(),
	}, nil
}

func (s *SheetsSource) WithTransport(client *fasthttp.Client) *SheetsSource {
	s.client = client
	return s
}

func (s *SheetsSource) Stats() CallStats {
	return s.metrics.Stats(apiSheets)
}

func (s *SheetsSource) readRange() string {
	return fmt.Sprintf("'%s'!A:BZ", s.config.SheetName)
}

func (s *SheetsSource) Rows(ctx context.Context) ([]model.StatusRow, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	uri := fmt.Sprintf("%s/spreadsheets/%s/values/%s", s.config.BaseURL, s.spreadsheetID, url.PathEscape(s.readRange()))
	if s.config.APIKey != "" {
		uri += "?key=" + url.QueryEscape(s.config.APIKey)
	}
	req.SetRequestURI(uri)
	req.Header.SetMethod(fasthttp.MethodGet)
	if s.config.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.AccessToken)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(s.config.Timeout)
	}

	start := time.Now()
	if err := s.client.DoDeadline(req, resp, deadline); err != nil {
		s.metrics.RecordFailure()
		observe(apiSheets, "values.get", "error", time.Since(start))
		return nil, fmt.Errorf("status sheet request failed: %w", err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		s.metrics.RecordFailure()
		observe(apiSheets, "values.get", "error", time.Since(start))
		return nil, fmt.Errorf("status sheet unexpected status code: %d, body: %s", resp.StatusCode(), resp.Body())
	}

	var body struct {
		Values [][]string `json:"values"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		s.metrics.RecordFailure()
		observe(apiSheets, "values.get", "error", time.Since(start))
		return nil, fmt.Errorf("failed to unmarshal status sheet: %w", err)
	}
	s.metrics.RecordSuccess(time.Since(start).Milliseconds())
	observe(apiSheets, "values.get", "ok", time.Since(start))

	rows := ParseStatusRows(body.Values)
	logger.Debug("status rows loaded", "source", "sheets", "spreadsheet_id", s.spreadsheetID, "rows", len(rows))
	return rows, nil
}
