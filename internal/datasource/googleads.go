package datasource

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jmehdipour/data-moodboard/internal/model"
)

const (
	googleAdsBaseURL = "https://googleads.googleapis.com"
	googleAdsVersion = "v17"

	campaignQuery = `SELECT segments.date, campaign.name, metrics.impressions, metrics.clicks, metrics.cost_micros, metrics.conversions
FROM campaign
WHERE segments.date DURING LAST_30_DAYS
ORDER BY segments.date`
)

var customerIDPattern = regexp.MustCompile(`^\d{10}$`)

// GoogleAds reads daily campaign metrics; resource is the customer id.
type GoogleAds struct {
	api            httpAPI
	developerToken string
}

func NewGoogleAds(developerToken string, timeout time.Duration) *GoogleAds {
	return &GoogleAds{api: newHTTPAPI(model.ProviderGoogleAds, googleAdsBaseURL, timeout), developerToken: developerToken}
}

func (g *GoogleAds) Provider() model.Provider { return model.ProviderGoogleAds }

type adsRow struct {
	Segments struct {
		Date string `json:"date"`
	} `json:"segments"`
	Campaign struct {
		Name string `json:"name"`
	} `json:"campaign"`
	Metrics struct {
		Impressions string  `json:"impressions"`
		Clicks      string  `json:"clicks"`
		CostMicros  string  `json:"costMicros"`
		Conversions float64 `json:"conversions"`
	} `json:"metrics"`
}

func (g *GoogleAds) Fetch(ctx context.Context, req Request) (model.TableData, error) {
	cid := strings.ReplaceAll(strings.TrimSpace(req.Resource), "-", "")
	if !customerIDPattern.MatchString(cid) {
		return model.TableData{}, fmt.Errorf("%w: customer id must be 10 digits", ErrInvalidResource)
	}

	u := fmt.Sprintf("%s/%s/customers/%s/googleAds:search", g.api.baseURL, googleAdsVersion, cid)
	headers := bearer(req.AccessToken)
	headers["developer-token"] = g.developerToken

	var out struct {
		Results []adsRow `json:"results"`
	}
	if err := g.api.do(ctx, http.MethodPost, u, headers, map[string]string{"query": campaignQuery}, &out); err != nil {
		return model.TableData{}, err
	}

	rows := make([][]any, 0, len(out.Results))
	for _, r := range out.Results {
		micros, _ := strconv.ParseFloat(r.Metrics.CostMicros, 64)
		rows = append(rows, []any{
			r.Segments.Date,
			r.Campaign.Name,
			atoi(r.Metrics.Impressions),
			atoi(r.Metrics.Clicks),
			micros / 1e6,
			r.Metrics.Conversions,
		})
	}
	return buildTable([]string{"date", "campaign", "impressions", "clicks", "cost", "conversions"}, capRows(rows, req.MaxRows)), nil
}

// int64 metrics are JSON strings in the REST API
func atoi(s string) float64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return float64(n)
}
