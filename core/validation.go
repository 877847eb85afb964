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


package core

import (
	"fmt"
	"time"
)

// ValidateRawDocument validates a RawDocument according to domain rules.
//
// Validation rules:
//   - Content must not be empty
//   - SourceId must not be empty
//   - Type must be a known DocType
//   - CompanyCode must resolve in the registry
//   - Timestamp must be set and not in the future
//
// NOT validated:
//   - Id (populated from the content hash by the scheduler)
//   - InsertedAt (populated by storage)
func ValidateRawDocument(doc *RawDocument, registry *Registry) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}

	if doc.Content == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyContent)
	}

	if doc.SourceId == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptySourceId)
	}

	if err := ValidateDocType(doc.Type); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	if registry != nil {
		if _, ok := registry.Resolve(doc.CompanyCode); !ok {
			return fmt.Errorf("%w: %w: %q", ErrInvalidDocument, ErrUnknownCompany, doc.CompanyCode)
		}
	}

	if !IsValidTimestamp(doc.Timestamp) {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrInvalidTimestamp)
	}

	return nil
}

// ValidateDocType validates that a DocType has a valid value.
func ValidateDocType(t DocType) error {
	if t != DocTypeDisclosure && t != DocTypeNews && t != DocTypeMarket {
		return fmt.Errorf("%w: value %d", ErrInvalidDocType, t)
	}
	return nil
}

// IsValidTimestamp checks if a timestamp is set and not in the future.
// A small grace period absorbs clock skew between providers and this host.
func IsValidTimestamp(ts time.Time) bool {
	if ts.IsZero() {
		return false
	}
	return !ts.After(time.Now().Add(5 * time.Minute))
}
