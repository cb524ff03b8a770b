package tracker

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
)

// Params is an insertion-ordered mapping of collector parameter names to
// values. A key whose value is nil is skipped by Encode, so an absent
// parameter is omitted from the wire entirely, never sent empty.
type Params struct {
	keys   []string
	values map[string]any
}

func NewParams() *Params {
	return &Params{values: make(map[string]any)}
}

// Set stores value under key, keeping the key's first insertion position.
// Setting an existing key overwrites its value (last write wins).
func (p *Params) Set(key string, value any) {
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

func (p *Params) Get(key string) (any, bool) {
	v, ok := p.values[key]
	return v, ok
}

func (p *Params) Delete(key string) {
	if _, ok := p.values[key]; !ok {
		return
	}
	delete(p.values, key)
	for i, k := range p.keys {
		if k == key {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			break
		}
	}
}

func (p *Params) Len() int {
	return len(p.values)
}

// Keys returns the parameter names in insertion order.
func (p *Params) Keys() []string {
	return append([]string(nil), p.keys...)
}

// Encode renders the surviving entries as a form-encoded query string in
// insertion order. List- and map-valued entries are JSON-encoded first and
// then escaped like any other value. Spaces encode as '+'. An empty
// surviving set yields an empty string.
func (p *Params) Encode() string {
	var b strings.Builder
	for _, k := range p.keys {
		v := p.values[k]
		if v == nil {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(encodeValue(v))
	}
	return b.String()
}

func encodeValue(v any) string {
	switch val := v.(type) {
	case string:
		return url.QueryEscape(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		if val {
			return "1"
		}
		return "0"
	default:
		// Lists and nested mappings. Marshal cannot fail for the value
		// kinds the setters store, so a failure degrades to omission.
		data, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return url.QueryEscape(string(data))
	}
}
