package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/klauspost/compress/zstd"
)

var errCorruptEntry = errors.New("corrupt cache entry")

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	decoder, _ = zstd.NewReader(nil)
)

type entryMeta struct {
	Status  int         `json:"status"`
	Header  http.Header `json:"header,omitempty"`
	Expires time.Time   `json:"expires,omitzero"`
}

// Marshal encodes an entry as zstd compressed metadata followed by the body.
func Marshal(e *Entry) ([]byte, error) {
	meta, err := json.Marshal(entryMeta{
		Status:  e.Status,
		Header:  e.Header,
		Expires: e.Expires,
	})
	if err != nil {
		return nil, err
	}

	raw := make([]byte, 0, len(meta)+1+len(e.Body))
	raw = append(raw, meta...)
	raw = append(raw, '\n')
	raw = append(raw, e.Body...)
	return encoder.EncodeAll(raw, nil), nil
}

// Unmarshal decodes an entry produced by Marshal.
func Unmarshal(data []byte) (*Entry, error) {
	raw, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errCorruptEntry, err)
	}

	meta, body, ok := bytes.Cut(raw, []byte{'\n'})
	if !ok {
		return nil, errCorruptEntry
	}

	var m entryMeta
	if err := json.Unmarshal(meta, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", errCorruptEntry, err)
	}
	return &Entry{
		Status:  m.Status,
		Header:  m.Header,
		Body:    body,
		Expires: m.Expires,
	}, nil
}
