package core

import (
	"encoding/binary"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is derived from content via BLAKE2b hashing, so identical content
// always produces an identical ID.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// HashContent normalizes content and returns its content hash.
// Normalization collapses interior whitespace and trims the ends so that
// cosmetic differences between provider payloads do not defeat dedup.
func HashContent(content string) ID {
	normalized := strings.Join(strings.Fields(content), " ")
	return IDFromContent(normalized)
}

// ChunkID derives the identifier of a chunk from its document's content hash
// and the chunk's offset. Re-chunking identical content yields identical
// chunk IDs, which is the basis for the embed-once guarantee.
func ChunkID(contentHash ID, offset int) ID {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(contentHash))
	binary.LittleEndian.PutUint64(buf[8:], uint64(offset))
	h, _ := blake2b.New(8, nil)
	h.Write(buf[:])
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// DocType identifies the kind of source a document came from.
type DocType int

const (
	// DocTypeDisclosure represents regulatory disclosure filings.
	DocTypeDisclosure DocType = iota + 1
	// DocTypeNews represents news articles.
	DocTypeNews
	// DocTypeMarket represents market data snapshots.
	DocTypeMarket
)

// String returns the canonical name of the doc type.
func (t DocType) String() string {
	switch t {
	case DocTypeDisclosure:
		return "disclosure"
	case DocTypeNews:
		return "news"
	case DocTypeMarket:
		return "market"
	default:
		return "unknown"
	}
}

// ParseDocType parses a canonical doc type name.
// Returns ErrInvalidDocType for unrecognized names.
func ParseDocType(s string) (DocType, error) {
	switch s {
	case "disclosure":
		return DocTypeDisclosure, nil
	case "news":
		return DocTypeNews, nil
	case "market":
		return DocTypeMarket, nil
	default:
		return 0, ErrInvalidDocType
	}
}

// Company is immutable reference data for a tracked corporation.
// Documents reference companies by Code, never by name.
type Company struct {
	Code     string
	Name     string
	Industry string
}

// RawDocument is a single item fetched from a source connector.
// Immutable once stored.
type RawDocument struct {
	Id          ID // content hash, doubles as the storage key
	SourceId    string
	ProviderRef string
	CompanyCode string
	Type        DocType
	Timestamp   time.Time // provider-assigned publication/reception time
	Content     string
	InsertedAt  time.Time
}

// Chunk is a bounded text window of a raw document, the unit of embedding
// and retrieval. Immutable once stored.
type Chunk struct {
	Id          ID // ChunkID(document content hash, offset)
	DocumentRef ID
	CompanyCode string
	Type        DocType
	Offset      int
	Length      int
	Text        string
	Vector      []float32
	Timestamp   time.Time // inherited from the document
	InsertedAt  time.Time
}

// Watermark is a per-source cursor marking the latest fully-ingested
// position. It advances monotonically and only after a batch commits.
type Watermark struct {
	SourceId  string
	Cursor    string // RFC3339Nano timestamp of the newest committed item
	UpdatedAt time.Time
}

// RunStatus classifies the outcome of a scheduler tick.
type RunStatus int

const (
	// RunStatusSuccess means every due source completed.
	RunStatusSuccess RunStatus = iota + 1
	// RunStatusPartial means at least one source failed but others completed.
	RunStatusPartial
	// RunStatusFailed means every due source failed.
	RunStatusFailed
)

// String returns the canonical name of the run status.
func (s RunStatus) String() string {
	switch s {
	case RunStatusSuccess:
		return "success"
	case RunStatusPartial:
		return "partial"
	case RunStatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SourceRunStats records per-source counters for one scheduler tick.
type SourceRunStats struct {
	Fetched int
	New     int
	Skipped int
	Failed  int
	Err     string // last error message when the source failed
}

// RunRecord is the append-only audit record of one scheduler tick.
// Written exactly once per tick, never mutated after completion.
type RunRecord struct {
	RunId      ID
	StartedAt  time.Time
	FinishedAt time.Time
	Sources    map[string]SourceRunStats
	Status     RunStatus
}

// PredictionKind selects how a prediction target is resolved.
type PredictionKind int

const (
	// PredictionKindCompany targets a single company code.
	PredictionKindCompany PredictionKind = iota + 1
	// PredictionKindIndustry targets every company in an industry.
	PredictionKindIndustry
	// PredictionKindTrends targets the whole roster.
	PredictionKindTrends
	// PredictionKindCustom targets a free-text query.
	PredictionKindCustom
)

// PredictionRequest describes a single prediction query.
type PredictionRequest struct {
	Kind   PredictionKind
	Target string
	TopK   int
}

// Section is one titled block of a composed report.
type Section struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// PredictionResponse is a composed, structured prediction.
type PredictionResponse struct {
	Sections         []Section `json:"sections"`
	Confidence       float64   `json:"confidence"` // always in [0,1]
	SupportingChunks []ID      `json:"supporting_chunk_ids"`
	GeneratedAt      time.Time `json:"generated_at"`
	Fallback         bool      `json:"fallback"` // true when evidence was insufficient
}

// Evidence is a retrieved chunk with its composite relevance score.
type Evidence struct {
	Chunk *Chunk
	Score float64
}
