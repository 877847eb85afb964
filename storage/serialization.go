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


package storage

import (
	"sort"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"

	"github.com/poiesic/hegemon/core"
)

// Stored records use hand-written MUS codecs. Field order is part of the
// storage format; append new fields at the end only.

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, varint.Uint64.Size(uint64(id)))
	varint.Uint64.Marshal(uint64(id), buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	v, _, err := varint.Uint64.Unmarshal(data)
	return core.ID(v), err
}

func timeSize(t time.Time) int {
	return varint.Int64.Size(t.UnixMicro())
}

func marshalTime(t time.Time, bs []byte) int {
	return varint.Int64.Marshal(t.UnixMicro(), bs)
}

func unmarshalTime(bs []byte) (time.Time, int, error) {
	micros, n, err := varint.Int64.Unmarshal(bs)
	if err != nil {
		return time.Time{}, n, err
	}
	if micros == 0 {
		return time.Time{}, n, nil
	}
	return time.UnixMicro(micros).UTC(), n, nil
}

// MarshalRawDocument serializes a RawDocument to bytes.
func MarshalRawDocument(doc *core.RawDocument) []byte {
	size := varint.Uint64.Size(uint64(doc.Id)) +
		ord.String.Size(doc.SourceId) +
		ord.String.Size(doc.ProviderRef) +
		ord.String.Size(doc.CompanyCode) +
		varint.Int.Size(int(doc.Type)) +
		timeSize(doc.Timestamp) +
		ord.String.Size(doc.Content) +
		timeSize(doc.InsertedAt)

	buf := make([]byte, size)
	n := varint.Uint64.Marshal(uint64(doc.Id), buf)
	n += ord.String.Marshal(doc.SourceId, buf[n:])
	n += ord.String.Marshal(doc.ProviderRef, buf[n:])
	n += ord.String.Marshal(doc.CompanyCode, buf[n:])
	n += varint.Int.Marshal(int(doc.Type), buf[n:])
	n += marshalTime(doc.Timestamp, buf[n:])
	n += ord.String.Marshal(doc.Content, buf[n:])
	marshalTime(doc.InsertedAt, buf[n:])
	return buf
}

// UnmarshalRawDocument deserializes a RawDocument from bytes.
func UnmarshalRawDocument(data []byte) (*core.RawDocument, error) {
	var (
		doc core.RawDocument
		n   int
	)

	id, sz, err := varint.Uint64.Unmarshal(data[n:])
	if err != nil {
		return nil, err
	}
	doc.Id = core.ID(id)
	n += sz

	if doc.SourceId, sz, err = ord.String.Unmarshal(data[n:]); err != nil {
		return nil, err
	}
	n += sz
	if doc.ProviderRef, sz, err = ord.String.Unmarshal(data[n:]); err != nil {
		return nil, err
	}
	n += sz
	if doc.CompanyCode, sz, err = ord.String.Unmarshal(data[n:]); err != nil {
		return nil, err
	}
	n += sz

	typ, sz, err := varint.Int.Unmarshal(data[n:])
	if err != nil {
		return nil, err
	}
	doc.Type = core.DocType(typ)
	n += sz

	if doc.Timestamp, sz, err = unmarshalTime(data[n:]); err != nil {
		return nil, err
	}
	n += sz
	if doc.Content, sz, err = ord.String.Unmarshal(data[n:]); err != nil {
		return nil, err
	}
	n += sz
	if doc.InsertedAt, _, err = unmarshalTime(data[n:]); err != nil {
		return nil, err
	}
	return &doc, nil
}

// MarshalChunk serializes a Chunk to bytes.
func MarshalChunk(chunk *core.Chunk) []byte {
	size := varint.Uint64.Size(uint64(chunk.Id)) +
		varint.Uint64.Size(uint64(chunk.DocumentRef)) +
		ord.String.Size(chunk.CompanyCode) +
		varint.Int.Size(int(chunk.Type)) +
		varint.Int.Size(chunk.Offset) +
		varint.Int.Size(chunk.Length) +
		ord.String.Size(chunk.Text) +
		varint.Int.Size(len(chunk.Vector)) +
		timeSize(chunk.Timestamp) +
		timeSize(chunk.InsertedAt)
	for _, v := range chunk.Vector {
		size += raw.Float32.Size(v)
	}

	buf := make([]byte, size)
	n := varint.Uint64.Marshal(uint64(chunk.Id), buf)
	n += varint.Uint64.Marshal(uint64(chunk.DocumentRef), buf[n:])
	n += ord.String.Marshal(chunk.CompanyCode, buf[n:])
	n += varint.Int.Marshal(int(chunk.Type), buf[n:])
	n += varint.Int.Marshal(chunk.Offset, buf[n:])
	n += varint.Int.Marshal(chunk.Length, buf[n:])
	n += ord.String.Marshal(chunk.Text, buf[n:])
	n += varint.Int.Marshal(len(chunk.Vector), buf[n:])
	for _, v := range chunk.Vector {
		n += raw.Float32.Marshal(v, buf[n:])
	}
	n += marshalTime(chunk.Timestamp, buf[n:])
	marshalTime(chunk.InsertedAt, buf[n:])
	return buf
}

// UnmarshalChunk deserializes a Chunk from bytes.
func UnmarshalChunk(data []byte) (*core.Chunk, error) {
	var (
		chunk core.Chunk
		n     int
	)

	id, sz, err := varint.Uint64.Unmarshal(data[n:])
	if err != nil {
		return nil, err
	}
	chunk.Id = core.ID(id)
	n += sz

	ref, sz, err := varint.Uint64.Unmarshal(data[n:])
	if err != nil {
		return nil, err
	}
	chunk.DocumentRef = core.ID(ref)
	n += sz

	if chunk.CompanyCode, sz, err = ord.String.Unmarshal(data[n:]); err != nil {
		return nil, err
	}
	n += sz

	typ, sz, err := varint.Int.Unmarshal(data[n:])
	if err != nil {
		return nil, err
	}
	chunk.Type = core.DocType(typ)
	n += sz

	if chunk.Offset, sz, err = varint.Int.Unmarshal(data[n:]); err != nil {
		return nil, err
	}
	n += sz
	if chunk.Length, sz, err = varint.Int.Unmarshal(data[n:]); err != nil {
		return nil, err
	}
	n += sz
	if chunk.Text, sz, err = ord.String.Unmarshal(data[n:]); err != nil {
		return nil, err
	}
	n += sz

	dim, sz, err := varint.Int.Unmarshal(data[n:])
	if err != nil {
		return nil, err
	}
	n += sz
	if dim > 0 {
		chunk.Vector = make([]float32, dim)
		for i := 0; i < dim; i++ {
			if chunk.Vector[i], sz, err = raw.Float32.Unmarshal(data[n:]); err != nil {
				return nil, err
			}
			n += sz
		}
	}

	if chunk.Timestamp, sz, err = unmarshalTime(data[n:]); err != nil {
		return nil, err
	}
	n += sz
	if chunk.InsertedAt, _, err = unmarshalTime(data[n:]); err != nil {
		return nil, err
	}
	return &chunk, nil
}

// MarshalWatermark serializes a Watermark to bytes.
func MarshalWatermark(wm *core.Watermark) []byte {
	size := ord.String.Size(wm.SourceId) +
		ord.String.Size(wm.Cursor) +
		timeSize(wm.UpdatedAt)
	buf := make([]byte, size)
	n := ord.String.Marshal(wm.SourceId, buf)
	n += ord.String.Marshal(wm.Cursor, buf[n:])
	marshalTime(wm.UpdatedAt, buf[n:])
	return buf
}

// UnmarshalWatermark deserializes a Watermark from bytes.
func UnmarshalWatermark(data []byte) (*core.Watermark, error) {
	var (
		wm  core.Watermark
		n   int
		sz  int
		err error
	)
	if wm.SourceId, sz, err = ord.String.Unmarshal(data[n:]); err != nil {
		return nil, err
	}
	n += sz
	if wm.Cursor, sz, err = ord.String.Unmarshal(data[n:]); err != nil {
		return nil, err
	}
	n += sz
	if wm.UpdatedAt, _, err = unmarshalTime(data[n:]); err != nil {
		return nil, err
	}
	return &wm, nil
}

func sourceStatsSize(stats core.SourceRunStats) int {
	return varint.Int.Size(stats.Fetched) +
		varint.Int.Size(stats.New) +
		varint.Int.Size(stats.Skipped) +
		varint.Int.Size(stats.Failed) +
		ord.String.Size(stats.Err)
}

func marshalSourceStats(stats core.SourceRunStats, bs []byte) int {
	n := varint.Int.Marshal(stats.Fetched, bs)
	n += varint.Int.Marshal(stats.New, bs[n:])
	n += varint.Int.Marshal(stats.Skipped, bs[n:])
	n += varint.Int.Marshal(stats.Failed, bs[n:])
	n += ord.String.Marshal(stats.Err, bs[n:])
	return n
}

func unmarshalSourceStats(bs []byte) (core.SourceRunStats, int, error) {
	var (
		stats core.SourceRunStats
		n     int
		sz    int
		err   error
	)
	if stats.Fetched, sz, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return stats, n, err
	}
	n += sz
	if stats.New, sz, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return stats, n, err
	}
	n += sz
	if stats.Skipped, sz, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return stats, n, err
	}
	n += sz
	if stats.Failed, sz, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return stats, n, err
	}
	n += sz
	if stats.Err, sz, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return stats, n, err
	}
	n += sz
	return stats, n, nil
}

// MarshalRunRecord serializes a RunRecord to bytes.
// Source entries are written in sorted key order so the encoding is
// deterministic for a given record.
func MarshalRunRecord(record *core.RunRecord) []byte {
	keys := make([]string, 0, len(record.Sources))
	for k := range record.Sources {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	size := varint.Uint64.Size(uint64(record.RunId)) +
		timeSize(record.StartedAt) +
		timeSize(record.FinishedAt) +
		varint.Int.Size(int(record.Status)) +
		varint.Int.Size(len(keys))
	for _, k := range keys {
		size += ord.String.Size(k) + sourceStatsSize(record.Sources[k])
	}

	buf := make([]byte, size)
	n := varint.Uint64.Marshal(uint64(record.RunId), buf)
	n += marshalTime(record.StartedAt, buf[n:])
	n += marshalTime(record.FinishedAt, buf[n:])
	n += varint.Int.Marshal(int(record.Status), buf[n:])
	n += varint.Int.Marshal(len(keys), buf[n:])
	for _, k := range keys {
		n += ord.String.Marshal(k, buf[n:])
		n += marshalSourceStats(record.Sources[k], buf[n:])
	}
	return buf
}

// UnmarshalRunRecord deserializes a RunRecord from bytes.
func UnmarshalRunRecord(data []byte) (*core.RunRecord, error) {
	var (
		record core.RunRecord
		n      int
	)

	id, sz, err := varint.Uint64.Unmarshal(data[n:])
	if err != nil {
		return nil, err
	}
	record.RunId = core.ID(id)
	n += sz

	if record.StartedAt, sz, err = unmarshalTime(data[n:]); err != nil {
		return nil, err
	}
	n += sz
	if record.FinishedAt, sz, err = unmarshalTime(data[n:]); err != nil {
		return nil, err
	}
	n += sz

	status, sz, err := varint.Int.Unmarshal(data[n:])
	if err != nil {
		return nil, err
	}
	record.Status = core.RunStatus(status)
	n += sz

	count, sz, err := varint.Int.Unmarshal(data[n:])
	if err != nil {
		return nil, err
	}
	n += sz

	record.Sources = make(map[string]core.SourceRunStats, count)
	for i := 0; i < count; i++ {
		key, sz, err := ord.String.Unmarshal(data[n:])
		if err != nil {
			return nil, err
		}
		n += sz
		stats, sz, err := unmarshalSourceStats(data[n:])
		if err != nil {
			return nil, err
		}
		n += sz
		record.Sources[key] = stats
	}
	return &record, nil
}
