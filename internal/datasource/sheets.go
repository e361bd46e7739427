package datasource

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jmehdipour/data-moodboard/internal/model"
)

const sheetsBaseURL = "https://sheets.googleapis.com"

// Sheets reads a values range; resource is "<spreadsheetId>!<range>" and the first row is the header.
type Sheets struct {
	api httpAPI
}

func NewSheets(timeout time.Duration) *Sheets {
	return &Sheets{api: newHTTPAPI(model.ProviderGoogleSheets, sheetsBaseURL, timeout)}
}

func (s *Sheets) Provider() model.Provider { return model.ProviderGoogleSheets }

// the range keeps any sheet prefix: "abc!Sheet1!A1:D" reads Sheet1!A1:D of abc
func parseSheetResource(r string) (id, rng string, err error) {
	id, rng, ok := strings.Cut(strings.TrimSpace(r), "!")
	if !ok || id == "" || rng == "" {
		return "", "", fmt.Errorf("%w: want <spreadsheetId>!<range>", ErrInvalidResource)
	}
	return id, rng, nil
}

func (s *Sheets) Fetch(ctx context.Context, req Request) (model.TableData, error) {
	id, rng, err := parseSheetResource(req.Resource)
	if err != nil {
		return model.TableData{}, err
	}

	u := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s?majorDimension=ROWS&valueRenderOption=UNFORMATTED_VALUE&dateTimeRenderOption=FORMATTED_STRING",
		s.api.baseURL, url.PathEscape(id), url.PathEscape(rng))
	var out struct {
		Values [][]any `json:"values"`
	}
	if err := s.api.do(ctx, http.MethodGet, u, bearer(req.AccessToken), nil, &out); err != nil {
		return model.TableData{}, err
	}
	if len(out.Values) == 0 {
		return buildTable(nil, nil), nil
	}

	header := make([]string, len(out.Values[0]))
	for i, v := range out.Values[0] {
		name := strings.TrimSpace(fmt.Sprint(v))
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		header[i] = name
	}

	rows := capRows(out.Values[1:], req.MaxRows)
	for i, r := range rows {
		// sheets trims trailing empty cells
		if len(r) < len(header) {
			padded := make([]any, len(header))
			copy(padded, r)
			rows[i] = padded
		} else if len(r) > len(header) {
			rows[i] = r[:len(header)]
		}
	}
	return buildTable(header, rows), nil
}
