// Package codec implements the binary encoding for records held in the
// durable store.
//
// The format is deliberately a breaking-change boundary: every encoded
// value starts with a format-version byte, and bytes written by one
// process version must keep decoding for as long as that version byte is
// understood. Unknown versions surface as parsing errors, never as
// absent records.
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hyperjump/mihari/internal/apperr"
	"github.com/hyperjump/mihari/internal/ident"
	"github.com/hyperjump/mihari/internal/models"
)

// Format version bytes. Bump when the field layout changes.
const (
	queryFormatV1  = 0x01
	recordFormatV1 = 0x01
)

// EncodeQuery serializes q into the v1 binary layout:
// version, id, threshold, result_count, name, query_text.
func EncodeQuery(q *models.PersistentQuery) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(queryFormatV1)
	writeUint64(&buf, uint64(q.ID))
	writeUint64(&buf, uint64(q.ScoreThreshold))
	writeUint32(&buf, q.Results())
	writeString(&buf, q.Name)
	writeString(&buf, q.QueryText)
	return buf.Bytes(), nil
}

// DecodeQuery reverses EncodeQuery.
func DecodeQuery(data []byte) (*models.PersistentQuery, error) {
	r := bytes.NewReader(data)
	version, err := r.ReadByte()
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrParsing, "query: empty value")
	}
	if version != queryFormatV1 {
		return nil, apperr.Wrap(apperr.ErrParsing, "query: unknown format version 0x%02x", version)
	}
	var q models.PersistentQuery
	id, err := readUint64(r)
	if err != nil {
		return nil, decodeErr("query", "id", err)
	}
	q.ID = ident.QueryID(id)
	threshold, err := readUint64(r)
	if err != nil {
		return nil, decodeErr("query", "score_threshold", err)
	}
	q.ScoreThreshold = int64(threshold)
	count, err := readUint32(r)
	if err != nil {
		return nil, decodeErr("query", "result_count", err)
	}
	q.ResultCount = count
	if q.Name, err = readString(r); err != nil {
		return nil, decodeErr("query", "name", err)
	}
	if q.QueryText, err = readString(r); err != nil {
		return nil, decodeErr("query", "query_text", err)
	}
	return &q, nil
}

// EncodeRecord serializes rec into the v1 binary layout:
// version, source_query, key, document_id, score, name, spans.
func EncodeRecord(rec *models.IndexData) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(recordFormatV1)
	writeUint64(&buf, uint64(rec.SourceQuery))
	writeUint64(&buf, uint64(rec.Key))
	writeUint64(&buf, uint64(rec.DocumentID))
	writeUint64(&buf, uint64(rec.Score))
	writeString(&buf, rec.Name)
	writeUint32(&buf, uint32(len(rec.MatchIndices)))
	for _, span := range rec.MatchIndices {
		writeUint64(&buf, uint64(span[0]))
		writeUint64(&buf, uint64(span[1]))
	}
	return buf.Bytes(), nil
}

// DecodeRecord reverses EncodeRecord.
func DecodeRecord(data []byte) (*models.IndexData, error) {
	r := bytes.NewReader(data)
	version, err := r.ReadByte()
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrParsing, "record: empty value")
	}
	if version != recordFormatV1 {
		return nil, apperr.Wrap(apperr.ErrParsing, "record: unknown format version 0x%02x", version)
	}
	var rec models.IndexData
	fields := []struct {
		name string
		dst  func(uint64)
	}{
		{"source_query", func(v uint64) { rec.SourceQuery = ident.QueryID(v) }},
		{"key", func(v uint64) { rec.Key = ident.RecordID(v) }},
		{"document_id", func(v uint64) { rec.DocumentID = ident.DocumentID(v) }},
		{"score", func(v uint64) { rec.Score = int64(v) }},
	}
	for _, f := range fields {
		v, err := readUint64(r)
		if err != nil {
			return nil, decodeErr("record", f.name, err)
		}
		f.dst(v)
	}
	if rec.Name, err = readString(r); err != nil {
		return nil, decodeErr("record", "name", err)
	}
	count, err := readUint32(r)
	if err != nil {
		return nil, decodeErr("record", "span count", err)
	}
	if int(count) > r.Len()/16 {
		return nil, apperr.Wrap(apperr.ErrParsing, "record: span count %d exceeds remaining bytes", count)
	}
	if count > 0 {
		rec.MatchIndices = make([][2]int, count)
		for i := range rec.MatchIndices {
			lo, err := readUint64(r)
			if err != nil {
				return nil, decodeErr("record", "span start", err)
			}
			hi, err := readUint64(r)
			if err != nil {
				return nil, decodeErr("record", "span end", err)
			}
			rec.MatchIndices[i] = [2]int{int(lo), int(hi)}
		}
	}
	return &rec, nil
}

func decodeErr(kind, field string, err error) error {
	return apperr.Wrap(apperr.ErrParsing, "%s: %s: %v", kind, field, err)
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) {
	writeUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	if int(n) > r.Len() {
		return "", fmt.Errorf("string length %d exceeds remaining %d bytes", n, r.Len())
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
