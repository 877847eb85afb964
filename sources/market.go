package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/poiesic/hegemon/core"
)

// MarketConnector fetches quote snapshots from a REST endpoint and
// renders them as market documents, one per company per trading day.
type MarketConnector struct {
	baseURL  string
	registry *core.Registry
	client   *http.Client
	logger   *slog.Logger
}

var _ Connector = (*MarketConnector)(nil)

// NewMarketConnector creates a market data connector. baseURL is the
// quote endpoint; the company code is passed as the "code" query parameter.
func NewMarketConnector(baseURL string, registry *core.Registry) *MarketConnector {
	return &MarketConnector{
		baseURL:  baseURL,
		registry: registry,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   slog.Default().With("component", "market-connector"),
	}
}

// ID returns the stable source identifier.
func (c *MarketConnector) ID() string {
	return "quotes:market"
}

// Type returns core.DocTypeMarket.
func (c *MarketConnector) Type() core.DocType {
	return core.DocTypeMarket
}

// quoteResponse mirrors the quote endpoint payload.
type quoteResponse struct {
	Code          string  `json:"code"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	Volume        int64   `json:"volume"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	AsOf          string  `json:"as_of"`
}

// FetchSince fetches a quote snapshot per registered company and
// returns those newer than the cursor, ascending by quote time.
func (c *MarketConnector) FetchSince(ctx context.Context, cursor string) ([]Item, string, error) {
	since := parseCursor(cursor)

	var items []Item
	for _, company := range c.registry.Companies() {
		item, ok, err := c.fetchQuote(ctx, company)
		if err != nil {
			return nil, cursor, err
		}
		if !ok || !item.Timestamp.After(since) {
			continue
		}
		items = append(items, item)
	}

	slices.SortFunc(items, func(a, b Item) int {
		if cmp := a.Timestamp.Compare(b.Timestamp); cmp != 0 {
			return cmp
		}
		return strings.Compare(a.ProviderRef, b.ProviderRef)
	})

	c.logger.Debug("fetched market quotes", "count", len(items))
	return items, cursorAfter(items, cursor), nil
}

func (c *MarketConnector) fetchQuote(ctx context.Context, company core.Company) (Item, bool, error) {
	params := url.Values{"code": {company.Code}}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return Item{}, false, fmt.Errorf("%w: %v", ErrSourceFetch, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Item{}, false, fmt.Errorf("%w: %v", ErrSourceFetch, err)
	}
	defer resp.Body.Close()

	// A company without quote data is skipped, not failed.
	if resp.StatusCode == http.StatusNotFound {
		return Item{}, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return Item{}, false, fmt.Errorf("%w: quote API returned status %d", ErrSourceFetch, resp.StatusCode)
	}

	var quote quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return Item{}, false, fmt.Errorf("%w: %v", ErrSourceFetch, err)
	}

	asOf, err := time.Parse(time.RFC3339, quote.AsOf)
	if err != nil {
		return Item{}, false, fmt.Errorf("%w: malformed quote timestamp %q", ErrSourceFetch, quote.AsOf)
	}

	return Item{
		ProviderRef: fmt.Sprintf("%s@%s", company.Code, asOf.UTC().Format(time.RFC3339)),
		CompanyCode: company.Code,
		Timestamp:   asOf,
		Content:     formatQuote(company, quote, asOf),
	}, true, nil
}

func formatQuote(company core.Company, q quoteResponse, asOf time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s market snapshot] %s (%s)\n", company.Name, asOf.Format("2006-01-02"), company.Code)
	fmt.Fprintf(&b, "Price: %.2f (%+.2f, %+.2f%%)\n", q.Price, q.Change, q.ChangePercent)
	fmt.Fprintf(&b, "Range: %.2f - %.2f, Volume: %d\n", q.Low, q.High, q.Volume)
	return b.String()
}
