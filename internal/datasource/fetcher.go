// Package datasource imports tabular data from connected providers.
package datasource

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jmehdipour/data-moodboard/internal/binding"
	"github.com/jmehdipour/data-moodboard/internal/model"
)

var (
	ErrInvalidResource = errors.New("invalid resource")
	ErrUnsupported     = errors.New("provider does not support data sync")
	ErrBreakerOpen     = errors.New("provider temporarily unavailable")
)

// Request is one import of a resource over a connection.
type Request struct {
	AccessToken string
	AccountID   string
	Resource    string
	MaxRows     int
}

type Fetcher interface {
	Provider() model.Provider
	Fetch(ctx context.Context, req Request) (model.TableData, error)
}

// StatusError is a non-2xx upstream reply.
type StatusError struct {
	Provider model.Provider
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider=%s status=%d body=%s", e.Provider, e.Status, e.Body)
}

// Transient errors count against the breaker and are retried; caller errors are not.
func Transient(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status >= 500 || se.Status == http.StatusTooManyRequests
	}
	return !errors.Is(err, ErrInvalidResource) && !errors.Is(err, context.Canceled)
}

// httpAPI is the JSON transport shared by the REST fetchers.
type httpAPI struct {
	provider model.Provider
	baseURL  string
	client   *http.Client
}

func newHTTPAPI(p model.Provider, baseURL string, timeout time.Duration) httpAPI {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return httpAPI{provider: p, baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

const maxErrorBody = 512

func (a httpAPI) do(ctx context.Context, method, url string, headers map[string]string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	res, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return &StatusError{Provider: a.provider, Status: res.StatusCode, Body: string(b)}
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", a.provider, err)
	}
	return nil
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// buildTable infers column types from the first rows.
func buildTable(names []string, rows [][]any) model.TableData {
	cols := make([]model.Column, len(names))
	data := model.TableData{Columns: cols, Rows: rows}
	for i, n := range names {
		cols[i] = model.Column{Name: n, Type: binding.InferType(data.ColumnValues(i, 20))}
	}
	if data.Rows == nil {
		data.Rows = [][]any{}
	}
	return data
}

func capRows(rows [][]any, max int) [][]any {
	if max > 0 && len(rows) > max {
		return rows[:max]
	}
	return rows
}
