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


// Package sources provides connectors that fetch raw documents from
// external providers: corporate disclosure filings, news feeds, and
// market data snapshots.
//
// Each connector is identified by a stable source id and fetches
// incrementally from a cursor. Cursors are opaque to callers; the
// connectors in this package use RFC 3339 timestamps so that cursor
// comparison is chronological.
package sources

import (
	"context"
	"time"

	"github.com/poiesic/hegemon/core"
)

// Item is a single fetched record, not yet normalized into a RawDocument.
type Item struct {
	// ProviderRef is the provider's identifier for this record
	// (receipt number, article URL, quote id). Used for tracing only;
	// deduplication is content-based.
	ProviderRef string

	// CompanyCode is the listing code of the company this item concerns.
	CompanyCode string

	// Timestamp is the provider-reported event time.
	Timestamp time.Time

	// Content is the full text of the item.
	Content string
}

// Connector fetches items from a single external source.
// Implementations must be safe for sequential reuse; the scheduler
// guarantees at most one in-flight fetch per connector.
type Connector interface {
	// ID returns the stable source identifier, used as the watermark key.
	ID() string

	// Type returns the document type this connector produces.
	Type() core.DocType

	// FetchSince returns items strictly newer than the cursor, in
	// ascending timestamp order, together with the cursor for the next
	// fetch. An empty cursor means fetch from the beginning of the
	// provider's retention window. Failures wrap ErrSourceFetch.
	FetchSince(ctx context.Context, cursor string) ([]Item, string, error)
}

// parseCursor decodes a watermark cursor into a time. An empty or
// malformed cursor yields the zero time, which admits everything.
func parseCursor(cursor string) time.Time {
	if cursor == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, cursor)
	if err != nil {
		return time.Time{}
	}
	return t
}

// cursorAfter returns the cursor covering the given items: the latest
// item timestamp, or the previous cursor when nothing new arrived.
func cursorAfter(items []Item, previous string) string {
	if len(items) == 0 {
		return previous
	}
	latest := items[0].Timestamp
	for _, it := range items[1:] {
		if it.Timestamp.After(latest) {
			latest = it.Timestamp
		}
	}
	return latest.UTC().Format(time.RFC3339Nano)
}
