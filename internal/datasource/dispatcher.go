package datasource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmehdipour/data-moodboard/internal/model"
)

type guarded struct {
	fetcher Fetcher
	br      *Breaker
}

// Dispatcher routes imports to provider fetchers, each behind its own breaker.
type Dispatcher struct {
	fetchers    map[model.Provider]guarded
	maxAttempts int
	maxRows     int
	backoff     time.Duration
}

func NewDispatcher(fetchers []Fetcher, maxAttempts, maxRows, failThreshold int, openFor time.Duration) *Dispatcher {
	if maxAttempts < 1 {
		maxAttempts = 2
	}
	d := &Dispatcher{
		fetchers:    make(map[model.Provider]guarded, len(fetchers)),
		maxAttempts: maxAttempts,
		maxRows:     maxRows,
		backoff:     500 * time.Millisecond,
	}
	for _, f := range fetchers {
		d.fetchers[f.Provider()] = guarded{fetcher: f, br: NewBreaker(failThreshold, openFor)}
	}
	return d
}

// JobTimeout is how long one import may take when every attempt runs for the
// full perRequest timeout, including backoff between attempts and a margin
// for storing the result.
func (d *Dispatcher) JobTimeout(perRequest time.Duration) time.Duration {
	n := time.Duration(d.maxAttempts)
	return n*perRequest + d.backoff*n*(n-1)/2 + 5*time.Second
}

func (d *Dispatcher) tryOnce(ctx context.Context, g guarded, req Request) (model.TableData, error) {
	if !g.br.TryAcquire() {
		return model.TableData{}, ErrBreakerOpen
	}
	data, err := g.fetcher.Fetch(ctx, req)
	switch {
	case err == nil:
		g.br.OnSuccess()
	case ctx.Err() != nil:
		// the job ran out of time or was stopped; no verdict on the upstream
		g.br.Release()
	case Transient(err):
		g.br.OnFailure()
	default:
		// the upstream answered; the request was wrong
		g.br.OnSuccess()
	}
	return data, err
}

// Fetch imports req.Resource from provider p, retrying transient failures.
func (d *Dispatcher) Fetch(ctx context.Context, p model.Provider, req Request) (model.TableData, error) {
	g, ok := d.fetchers[p]
	if !ok {
		return model.TableData{}, fmt.Errorf("%w: %s", ErrUnsupported, p)
	}
	if req.MaxRows <= 0 || (d.maxRows > 0 && req.MaxRows > d.maxRows) {
		req.MaxRows = d.maxRows
	}

	var last error
	for i := 0; i < d.maxAttempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return model.TableData{}, ctx.Err()
			case <-time.After(d.backoff * time.Duration(i)):
			}
		}
		data, err := d.tryOnce(ctx, g, req)
		if err == nil {
			data.Rows = capRows(data.Rows, req.MaxRows)
			return data, nil
		}
		last = err
		if errors.Is(err, ErrBreakerOpen) || !Transient(err) {
			break
		}
	}
	return model.TableData{}, last
}
