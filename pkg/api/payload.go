package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"taxlab-hq/ledger/pkg/reform"
)

// HouseholdField is the payload field describing a household.
const HouseholdField = "household"

// Field is one named request value.
type Field struct {
	Name  string
	Value any
}

// Payload is the flat, ordered set of values of one request. Query
// arguments come first in the order given; JSON body fields replace query
// values of the same name in place and append new names. Levers are
// compiled in payload order.
type Payload struct {
	fields []Field
	index  map[string]int
}

// NewPayload creates a payload holding fields in order. Later fields
// replace earlier ones of the same name.
func NewPayload(fields ...Field) *Payload {
	p := &Payload{index: make(map[string]int, len(fields))}
	for _, f := range fields {
		p.Set(f.Name, f.Value)
	}
	return p
}

// Set replaces the value of name, keeping its position, or appends it.
func (p *Payload) Set(name string, value any) {
	if i, ok := p.index[name]; ok {
		p.fields[i].Value = value
		return
	}
	p.index[name] = len(p.fields)
	p.fields = append(p.fields, Field{Name: name, Value: value})
}

// Get returns the value of name.
func (p *Payload) Get(name string) (any, bool) {
	i, ok := p.index[name]
	if !ok {
		return nil, false
	}
	return p.fields[i].Value, true
}

// Has reports whether name is present.
func (p *Payload) Has(name string) bool {
	_, ok := p.index[name]
	return ok
}

// Fields returns the fields in order.
func (p *Payload) Fields() []Field {
	return append([]Field(nil), p.fields...)
}

// Len returns the number of fields.
func (p *Payload) Len() int {
	return len(p.fields)
}

// Levers returns the payload as lever values in order.
func (p *Payload) Levers() []reform.LeverValue {
	levers := make([]reform.LeverValue, len(p.fields))
	for i, f := range p.fields {
		levers[i] = reform.LeverValue{Name: f.Name, Value: f.Value}
	}
	return levers
}

// MarshalJSON encodes the payload as an object with sorted keys, so cache
// keys do not depend on field order.
func (p *Payload) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(p.fields))
	for _, f := range p.fields {
		m[f.Name] = f.Value
	}
	return json.Marshal(m)
}

// ParseRequest builds the payload of r from its query string and, for
// requests with a body, its JSON object body. The body is limited to
// maxBody bytes; zero disables the limit.
func ParseRequest(r *http.Request, maxBody int64) (*Payload, error) {
	p := NewPayload()
	if err := p.addQuery(r.URL.RawQuery); err != nil {
		return nil, err
	}

	if r.Body == nil || r.Body == http.NoBody {
		return p, nil
	}
	reader := io.Reader(r.Body)
	if maxBody > 0 {
		reader = io.LimitReader(r.Body, maxBody+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if maxBody > 0 && int64(len(body)) > maxBody {
		return nil, &RequestError{
			Message: fmt.Sprintf("request body exceeds maximum size of %d bytes", maxBody),
			Param:   "body",
			Code:    CodeRequestTooLarge,
		}
	}
	if err := p.addJSON(body); err != nil {
		return nil, err
	}
	return p, nil
}

// addQuery adds query arguments in the order they appear. A repeated
// argument keeps its first value.
func (p *Payload) addQuery(raw string) error {
	for part := range strings.SplitSeq(raw, "&") {
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		name, err := url.QueryUnescape(key)
		if err != nil {
			return &RequestError{Message: fmt.Sprintf("invalid query argument %q: %v", key, err), Param: key, Code: CodeInvalidValue}
		}
		val, err := url.QueryUnescape(value)
		if err != nil {
			return &RequestError{Message: fmt.Sprintf("invalid value for %q: %v", name, err), Param: name, Code: CodeInvalidValue}
		}
		if name == "" || p.Has(name) {
			continue
		}
		p.Set(name, val)
	}
	return nil
}

// addJSON streams the top-level object so its key order is kept.
func (p *Payload) addJSON(body []byte) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	tok, err := dec.Token()
	if err != nil {
		return invalidJSON(err)
	}
	if tok == nil {
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return &RequestError{Message: "request body must be a JSON object", Param: "body", Code: CodeInvalidJSON}
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return invalidJSON(err)
		}
		name, ok := tok.(string)
		if !ok {
			return invalidJSON(fmt.Errorf("unexpected token %v", tok))
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return invalidJSON(err)
		}
		p.Set(name, value)
	}
	if _, err := dec.Token(); err != nil {
		return invalidJSON(err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return &RequestError{Message: "invalid JSON: trailing data after object", Param: "body", Code: CodeInvalidJSON}
	}
	return nil
}

func invalidJSON(err error) error {
	return &RequestError{Message: fmt.Sprintf("invalid JSON: %v", err), Param: "body", Code: CodeInvalidJSON}
}
