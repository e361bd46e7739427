package datasource

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmehdipour/data-moodboard/internal/model"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/charge"
)

// Stripe imports charges of the connected account. The only resource is "charges".
type Stripe struct {
	backend stripe.Backend
}

// NewStripe uses backend for API calls; nil selects the default API backend.
func NewStripe(backend stripe.Backend) *Stripe {
	if backend == nil {
		backend = stripe.GetBackend(stripe.APIBackend)
	}
	return &Stripe{backend: backend}
}

func (s *Stripe) Provider() model.Provider { return model.ProviderStripe }

func (s *Stripe) Fetch(ctx context.Context, req Request) (model.TableData, error) {
	res := strings.ToLower(strings.TrimSpace(req.Resource))
	if res != "" && res != "charges" {
		return model.TableData{}, fmt.Errorf("%w: stripe supports \"charges\"", ErrInvalidResource)
	}

	// connect access tokens are secret keys scoped to the connected account
	c := charge.Client{B: s.backend, Key: req.AccessToken}
	params := &stripe.ChargeListParams{}
	params.Context = ctx
	params.Limit = stripe.Int64(100)

	rows := [][]any{}
	it := c.List(params)
	for it.Next() {
		ch := it.Charge()
		rows = append(rows, []any{
			ch.ID,
			time.Unix(ch.Created, 0).UTC().Format("2006-01-02"),
			float64(ch.Amount) / 100,
			strings.ToUpper(string(ch.Currency)),
			string(ch.Status),
			ch.Description,
		})
		if req.MaxRows > 0 && len(rows) >= req.MaxRows {
			break
		}
	}
	if err := it.Err(); err != nil {
		var se *stripe.Error
		if errors.As(err, &se) {
			return model.TableData{}, &StatusError{Provider: model.ProviderStripe, Status: se.HTTPStatusCode, Body: se.Msg}
		}
		return model.TableData{}, err
	}
	return buildTable([]string{"charge", "date", "amount", "currency", "status", "description"}, rows), nil
}
