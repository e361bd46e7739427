package datasource

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jmehdipour/data-moodboard/internal/model"
)

const bigQueryBaseURL = "https://bigquery.googleapis.com"

// BigQuery runs a standard SQL query in the connection's project (AccountID).
type BigQuery struct {
	api       httpAPI
	timeoutMs int
}

func NewBigQuery(timeout time.Duration) *BigQuery {
	return &BigQuery{api: newHTTPAPI(model.ProviderBigQuery, bigQueryBaseURL, timeout), timeoutMs: int(timeout.Milliseconds())}
}

func (b *BigQuery) Provider() model.Provider { return model.ProviderBigQuery }

type bqQueryRequest struct {
	Query        string `json:"query"`
	UseLegacySQL bool   `json:"useLegacySql"`
	MaxResults   int    `json:"maxResults,omitempty"`
	TimeoutMs    int    `json:"timeoutMs,omitempty"`
}

type bqQueryResponse struct {
	JobComplete bool `json:"jobComplete"`
	Schema      struct {
		Fields []struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"fields"`
	} `json:"schema"`
	Rows []struct {
		F []struct {
			V any `json:"v"`
		} `json:"f"`
	} `json:"rows"`
}

func (b *BigQuery) Fetch(ctx context.Context, req Request) (model.TableData, error) {
	query := strings.TrimSpace(req.Resource)
	if query == "" {
		return model.TableData{}, fmt.Errorf("%w: query is required", ErrInvalidResource)
	}
	if req.AccountID == "" {
		return model.TableData{}, fmt.Errorf("%w: connection has no project", ErrInvalidResource)
	}

	u := fmt.Sprintf("%s/bigquery/v2/projects/%s/queries", b.api.baseURL, url.PathEscape(req.AccountID))
	var out bqQueryResponse
	body := bqQueryRequest{Query: query, MaxResults: req.MaxRows, TimeoutMs: b.timeoutMs}
	if err := b.api.do(ctx, http.MethodPost, u, bearer(req.AccessToken), body, &out); err != nil {
		return model.TableData{}, err
	}
	if !out.JobComplete {
		return model.TableData{}, fmt.Errorf("bigquery: query did not finish within %dms", b.timeoutMs)
	}

	names := make([]string, len(out.Schema.Fields))
	numeric := make([]bool, len(out.Schema.Fields))
	for i, f := range out.Schema.Fields {
		names[i] = f.Name
		switch f.Type {
		case "INTEGER", "INT64", "FLOAT", "FLOAT64", "NUMERIC", "BIGNUMERIC":
			numeric[i] = true
		}
	}

	rows := make([][]any, 0, len(out.Rows))
	for _, r := range out.Rows {
		row := make([]any, len(names))
		for i := range names {
			if i >= len(r.F) {
				break
			}
			row[i] = r.F[i].V
			// bigquery returns every scalar as a string
			if s, ok := r.F[i].V.(string); ok && numeric[i] {
				if f, err := strconv.ParseFloat(s, 64); err == nil {
					row[i] = f
				}
			}
		}
		rows = append(rows, row)
	}
	return buildTable(names, capRows(rows, req.MaxRows)), nil
}
