package datasource

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jmehdipour/data-moodboard/internal/model"
)

const (
	shopifyAPIVersion = "2024-07"
	shopifyPageSize   = 250
)

// Shopify imports orders of the connected shop. The only resource is "orders".
type Shopify struct {
	api httpAPI
	// scheme is overridden in tests
	scheme string
}

func NewShopify(timeout time.Duration) *Shopify {
	return &Shopify{api: newHTTPAPI(model.ProviderShopify, "", timeout), scheme: "https"}
}

func (s *Shopify) Provider() model.Provider { return model.ProviderShopify }

type shopifyOrder struct {
	Name              string `json:"name"`
	CreatedAt         string `json:"created_at"`
	TotalPrice        string `json:"total_price"`
	Currency          string `json:"currency"`
	FinancialStatus   string `json:"financial_status"`
	FulfillmentStatus string `json:"fulfillment_status"`
	LineItems         []struct {
		Quantity int `json:"quantity"`
	} `json:"line_items"`
}

func (s *Shopify) Fetch(ctx context.Context, req Request) (model.TableData, error) {
	res := strings.ToLower(strings.TrimSpace(req.Resource))
	if res != "" && res != "orders" {
		return model.TableData{}, fmt.Errorf("%w: shopify supports \"orders\"", ErrInvalidResource)
	}
	if req.AccountID == "" {
		return model.TableData{}, fmt.Errorf("%w: connection has no shop", ErrInvalidResource)
	}

	limit := shopifyPageSize
	if req.MaxRows > 0 && req.MaxRows < limit {
		limit = req.MaxRows
	}
	u := fmt.Sprintf("%s://%s/admin/api/%s/orders.json?status=any&limit=%d", s.scheme, req.AccountID, shopifyAPIVersion, limit)

	var out struct {
		Orders []shopifyOrder `json:"orders"`
	}
	headers := map[string]string{"X-Shopify-Access-Token": req.AccessToken}
	if err := s.api.do(ctx, http.MethodGet, u, headers, nil, &out); err != nil {
		return model.TableData{}, err
	}

	rows := make([][]any, 0, len(out.Orders))
	for _, o := range out.Orders {
		items := 0
		for _, li := range o.LineItems {
			items += li.Quantity
		}
		rows = append(rows, []any{o.Name, o.CreatedAt, o.TotalPrice, o.Currency, o.FinancialStatus, o.FulfillmentStatus, items})
	}
	return buildTable([]string{"order", "created_at", "total_price", "currency", "financial_status", "fulfillment_status", "items"},
		capRows(rows, req.MaxRows)), nil
}
