package models

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// MetaField is a single metadata entry.
type MetaField struct {
	Key   string
	Value string
}

// Meta is an insertion-ordered string map. It marshals to a JSON object
// whose keys keep that order.
type Meta []MetaField

func NewMeta(kv ...string) Meta {
	m := make(Meta, 0, len(kv)/2+4)
	for i := 0; i+1 < len(kv); i += 2 {
		m.Set(kv[i], kv[i+1])
	}
	return m
}

func (m Meta) Get(key string) (string, bool) {
	for _, f := range m {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Value returns the value for key or "".
func (m Meta) Value(key string) string {
	v, _ := m.Get(key)
	return v
}

// Set replaces key in place or appends it.
func (m *Meta) Set(key, value string) {
	for i := range *m {
		if (*m)[i].Key == key {
			(*m)[i].Value = value
			return
		}
	}
	*m = append(*m, MetaField{Key: key, Value: value})
}

// SetDefault sets key only when it is absent and reports whether it did.
func (m *Meta) SetDefault(key, value string) bool {
	if _, ok := m.Get(key); ok {
		return false
	}
	*m = append(*m, MetaField{Key: key, Value: value})
	return true
}

func (m Meta) Clone() Meta {
	if m == nil {
		return nil
	}
	out := make(Meta, len(m), len(m)+4)
	copy(out, m)
	return out
}

func (m Meta) Map() map[string]string {
	out := make(map[string]string, len(m))
	for _, f := range m {
		out[f.Key] = f.Value
	}
	return out
}

func (m Meta) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m *Meta) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("meta: invalid json")
	}
	res := gjson.ParseBytes(data)
	if res.Type == gjson.Null {
		*m = nil
		return nil
	}
	if !res.IsObject() {
		return fmt.Errorf("meta: expected object, got %s", res.Type)
	}
	out := Meta{}
	res.ForEach(func(k, v gjson.Result) bool {
		out.Set(k.String(), v.String())
		return true
	})
	*m = out
	return nil
}

// Chunk is a span of normalized text plus its provenance.
type Chunk struct {
	Text string `json:"text"`
	Meta Meta   `json:"meta"`
}

var identityKeys = [...]string{MetaSource, MetaPage, MetaSection, MetaTitle}

// StableID hashes the text and the identifying metadata. Two chunks with the
// same text, source, page, section and title share an ID.
func (c Chunk) StableID() string {
	h := sha1.New()
	h.Write([]byte(c.Text))
	for _, k := range identityKeys {
		if v := c.Meta.Value(k); v != "" {
			fmt.Fprintf(h, "|%s:%s", k, v)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
