// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


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

const (
	// disclosurePageCount is the maximum filings requested per company
	// per fetch. The DART API caps page_count at 100.
	disclosurePageCount = 100

	// disclosureLookback bounds the first fetch when no cursor exists.
	disclosureLookback = 90 * 24 * time.Hour
)

// DisclosurePriority classifies a filing by how strongly it signals
// a change in the company's position.
type DisclosurePriority string

const (
	// PriorityEarnings covers periodic reports and earnings filings.
	PriorityEarnings DisclosurePriority = "earnings"
	// PriorityCapital covers M&A, equity stakes, and capital changes.
	PriorityCapital DisclosurePriority = "capital"
	// PriorityContracts covers supply contracts and facility investment.
	PriorityContracts DisclosurePriority = "contracts"
	// PriorityRisk covers ownership changes and litigation.
	PriorityRisk DisclosurePriority = "risk"
	// PriorityGeneral is everything else.
	PriorityGeneral DisclosurePriority = "general"
)

// priorityKeywords maps filing report names to priorities. The report
// names are the Korean titles used by the DART filing system.
var priorityKeywords = []struct {
	priority DisclosurePriority
	words    []string
}{
	{PriorityEarnings, []string{"사업보고서", "분기보고서", "반기보고서", "영업실적", "잠정실적", "연결실적", "별도실적"}},
	{PriorityCapital, []string{"타법인주식", "타법인 주식", "출자증권", "지분취득", "지분처분", "유상증자", "무상증자", "신주발행", "자기주식취득", "자기주식처분", "자사주매입"}},
	{PriorityContracts, []string{"단일판매", "공급계약", "계약체결", "수주", "신규시설투자", "설비투자", "투자결정"}},
	{PriorityRisk, []string{"최대주주변경", "주주변경", "소송", "분쟁"}},
}

// ClassifyDisclosure assigns a priority to a filing based on its report name.
func ClassifyDisclosure(reportName string) DisclosurePriority {
	for _, group := range priorityKeywords {
		for _, word := range group.words {
			if strings.Contains(reportName, word) {
				return group.priority
			}
		}
	}
	return PriorityGeneral
}

// DisclosureConnector fetches corporate disclosure filings from a
// DART-compatible list endpoint for every company in the registry.
type DisclosureConnector struct {
	baseURL  string
	apiKey   string
	registry *core.Registry
	client   *http.Client
	logger   *slog.Logger
	now      func() time.Time
}

var _ Connector = (*DisclosureConnector)(nil)

// NewDisclosureConnector creates a disclosure connector. baseURL is the
// filing list endpoint (e.g. "https://opendart.fss.or.kr/api/list.json").
func NewDisclosureConnector(baseURL, apiKey string, registry *core.Registry) *DisclosureConnector {
	return &DisclosureConnector{
		baseURL:  baseURL,
		apiKey:   apiKey,
		registry: registry,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   slog.Default().With("component", "disclosure-connector"),
		now:      time.Now,
	}
}

// ID returns the stable source identifier.
func (c *DisclosureConnector) ID() string {
	return "dart:disclosures"
}

// Type returns core.DocTypeDisclosure.
func (c *DisclosureConnector) Type() core.DocType {
	return core.DocTypeDisclosure
}

// disclosureListResponse mirrors the DART list.json payload.
type disclosureListResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	List    []struct {
		CorpCode   string `json:"corp_code"`
		CorpName   string `json:"corp_name"`
		ReportName string `json:"report_nm"`
		ReceiptNo  string `json:"rcept_no"`
		FilerName  string `json:"flr_nm"`
		ReceiptDt  string `json:"rcept_dt"`
		Remarks    string `json:"rm"`
	} `json:"list"`
}

// FetchSince fetches filings for every registered company newer than
// the cursor, ascending by receipt date.
func (c *DisclosureConnector) FetchSince(ctx context.Context, cursor string) ([]Item, string, error) {
	since := parseCursor(cursor)
	if since.IsZero() {
		since = c.now().Add(-disclosureLookback)
	}

	var items []Item
	for _, company := range c.registry.Companies() {
		fetched, err := c.fetchCompany(ctx, company, since)
		if err != nil {
			return nil, cursor, err
		}
		items = append(items, fetched...)
	}

	slices.SortFunc(items, func(a, b Item) int {
		if cmp := a.Timestamp.Compare(b.Timestamp); cmp != 0 {
			return cmp
		}
		return strings.Compare(a.ProviderRef, b.ProviderRef)
	})

	c.logger.Debug("fetched disclosures", "count", len(items), "since", since)
	return items, cursorAfter(items, cursor), nil
}

func (c *DisclosureConnector) fetchCompany(ctx context.Context, company core.Company, since time.Time) ([]Item, error) {
	params := url.Values{
		"crtfc_key":  {c.apiKey},
		"corp_code":  {company.Code},
		"bgn_de":     {since.Format("20060102")},
		"end_de":     {c.now().Format("20060102")},
		"page_no":    {"1"},
		"page_count": {fmt.Sprintf("%d", disclosurePageCount)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceFetch, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: disclosure API returned status %d", ErrSourceFetch, resp.StatusCode)
	}

	var result disclosureListResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceFetch, err)
	}

	// Status "013" means no filings in the window, which is not an error.
	if result.Status != "000" {
		if result.Status == "013" {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: disclosure API status %s: %s", ErrSourceFetch, result.Status, result.Message)
	}

	var items []Item
	for _, filing := range result.List {
		ts, err := time.Parse("20060102", filing.ReceiptDt)
		if err != nil {
			c.logger.Warn("skipping filing with malformed receipt date",
				"receipt", filing.ReceiptNo, "date", filing.ReceiptDt)
			continue
		}
		if !ts.After(since) {
			continue
		}

		items = append(items, Item{
			ProviderRef: filing.ReceiptNo,
			CompanyCode: company.Code,
			Timestamp:   ts,
			Content:     formatFiling(company, filing.ReportName, filing.FilerName, filing.Remarks, ts),
		})
	}
	return items, nil
}

// formatFiling renders a filing into the text stored and embedded for
// retrieval. The priority label makes category searches match.
func formatFiling(company core.Company, reportName, filerName, remarks string, ts time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s disclosure] %s (%s)\n", company.Name, reportName, company.Code)
	fmt.Fprintf(&b, "Filed: %s by %s\n", ts.Format("2006-01-02"), filerName)
	fmt.Fprintf(&b, "Category: %s\n", ClassifyDisclosure(reportName))
	if remarks != "" {
		fmt.Fprintf(&b, "Remarks: %s\n", remarks)
	}
	return b.String()
}
