package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func rssBody(items string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>test feed</title>` + items + `</channel></rss>`
}

func rssItem(title, link, pubDate, description string) string {
	return fmt.Sprintf(
		`<item><title>%s</title><link>%s</link><pubDate>%s</pubDate><description>%s</description></item>`,
		title, link, pubDate, description)
}

func TestFeedConnectorFetchSince(t *testing.T) {
	older := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, rssBody(
			rssItem("Samsung expands HBM capacity", "http://news.test/a", newer.Format(time.RFC1123Z),
				"&lt;p&gt;Samsung announced&amp;nbsp;new fab lines.&lt;/p&gt;")+
				rssItem("Samsung quarterly preview", "http://news.test/b", older.Format(time.RFC1123Z), "Preview."),
		))
	}))
	defer server.Close()

	connector := NewFeedConnector([]CompanyFeed{{CompanyCode: "005930", URL: server.URL}})

	items, cursor, err := connector.FetchSince(context.Background(), "")
	if err != nil {
		t.Fatalf("FetchSince failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}

	// Ascending order
	if !items[0].Timestamp.Equal(older) || !items[1].Timestamp.Equal(newer) {
		t.Errorf("items not in ascending timestamp order: %v, %v", items[0].Timestamp, items[1].Timestamp)
	}
	if items[0].CompanyCode != "005930" {
		t.Errorf("expected company code 005930, got %s", items[0].CompanyCode)
	}

	// HTML stripped and entities decoded
	if strings.Contains(items[1].Content, "<p>") || strings.Contains(items[1].Content, "&nbsp;") {
		t.Errorf("content not cleaned: %q", items[1].Content)
	}
	if !strings.Contains(items[1].Content, "Samsung expands HBM capacity") {
		t.Errorf("content missing title: %q", items[1].Content)
	}

	if cursor != newer.Format(time.RFC3339Nano) {
		t.Errorf("expected cursor %s, got %s", newer.Format(time.RFC3339Nano), cursor)
	}
}

func TestFeedConnectorCursorFiltering(t *testing.T) {
	older := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rssBody(
			rssItem("old", "http://news.test/a", older.Format(time.RFC1123Z), "x")+
				rssItem("new", "http://news.test/b", newer.Format(time.RFC1123Z), "y"),
		))
	}))
	defer server.Close()

	connector := NewFeedConnector([]CompanyFeed{{CompanyCode: "005930", URL: server.URL}})

	cursor := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC).Format(time.RFC3339Nano)
	items, _, err := connector.FetchSince(context.Background(), cursor)
	if err != nil {
		t.Fatalf("FetchSince failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item after cursor, got %d", len(items))
	}
	if items[0].ProviderRef != "http://news.test/b" {
		t.Errorf("expected the newer entry, got %s", items[0].ProviderRef)
	}
}

func TestFeedConnectorSkipsUndatedEntries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rssBody(
			`<item><title>undated</title><link>http://news.test/u</link></item>`+
				`<item><title></title><link>http://news.test/notitle</link><pubDate>Mon, 10 Aug 2026 09:00:00 +0000</pubDate></item>`,
		))
	}))
	defer server.Close()

	connector := NewFeedConnector([]CompanyFeed{{CompanyCode: "005930", URL: server.URL}})

	items, _, err := connector.FetchSince(context.Background(), "")
	if err != nil {
		t.Fatalf("FetchSince failed: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected undated and untitled entries to be skipped, got %d items", len(items))
	}
}

func TestFeedConnectorUnreachableFeed(t *testing.T) {
	connector := NewFeedConnector([]CompanyFeed{{CompanyCode: "005930", URL: "http://127.0.0.1:1/feed"}})

	_, _, err := connector.FetchSince(context.Background(), "")
	if err == nil {
		t.Fatal("expected error for unreachable feed")
	}
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"<p>hello <b>world</b></p>", "hello world"},
		{"no tags", "no tags"},
		{"a&amp;b &lt;c&gt;", "a&b <c>"},
		{"spaced   \n out", "spaced out"},
	}
	for _, tt := range tests {
		if got := stripHTML(tt.in); got != tt.expected {
			t.Errorf("stripHTML(%q) = %q, want %q", tt.in, got, tt.expected)
		}
	}
}
