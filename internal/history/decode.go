package history

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnrecognizedShape is returned when a page body carries no session
	// list in any of the known envelopes.
	ErrUnrecognizedShape = errors.New("history: unrecognized page shape")
	// ErrEmptyVIN is returned by operations that need a VIN.
	ErrEmptyVIN = errors.New("history: empty vin")
)

// Shape names the envelope a page was found in.
type Shape int

const (
	ShapeDataArray Shape = iota + 1
	ShapeDataContent
	ShapeContent
	ShapeBareArray
)

func (s Shape) String() string {
	switch s {
	case ShapeDataArray:
		return "data[]"
	case ShapeDataContent:
		return "data.content[]"
	case ShapeContent:
		return "content[]"
	case ShapeBareArray:
		return "[]"
	}
	return "unknown"
}

// Page is one decoded page of sessions. Total is the number of sessions the
// source reports across all pages, or the page length when it reports none.
type Page struct {
	Sessions []Session
	Total    int
	Shape    Shape
}

// PageError wraps a failure to fetch or decode a single page.
type PageError struct {
	Page int
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("history: page %d: %v", e.Page, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

type counts struct {
	TotalRecords  *flexFloat `json:"totalRecords"`
	TotalElements *flexFloat `json:"totalElements"`
}

type envelope struct {
	counts
	Data     json.RawMessage `json:"data"`
	Content  json.RawMessage `json:"content"`
	Metadata *counts         `json:"metadata"`
}

type dataObject struct {
	counts
	Content  json.RawMessage `json:"content"`
	Metadata *counts         `json:"metadata"`
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

// DecodePage accepts the four envelopes the session source has used:
// {data: [...]}, {data: {content: [...]}}, {content: [...]} and a bare
// array.
func DecodePage(body []byte) (Page, error) {
	body = bytes.TrimSpace(body)
	if isArray(body) {
		var sessions []Session
		if err := json.Unmarshal(body, &sessions); err != nil {
			return Page{}, fmt.Errorf("history: decoding page: %w", err)
		}
		return Page{Sessions: sessions, Total: len(sessions), Shape: ShapeBareArray}, nil
	}
	if !isObject(body) {
		return Page{}, ErrUnrecognizedShape
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Page{}, fmt.Errorf("history: decoding page: %w", err)
	}

	var (
		list  json.RawMessage
		shape Shape
		data  dataObject
	)
	switch {
	case isArray(env.Data):
		list, shape = env.Data, ShapeDataArray
	case isObject(env.Data):
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return Page{}, fmt.Errorf("history: decoding page data: %w", err)
		}
		if isArray(data.Content) {
			list, shape = data.Content, ShapeDataContent
		}
	}
	if shape == 0 && isArray(env.Content) {
		list, shape = env.Content, ShapeContent
	}
	if shape == 0 {
		return Page{}, ErrUnrecognizedShape
	}

	var sessions []Session
	if err := json.Unmarshal(list, &sessions); err != nil {
		return Page{}, fmt.Errorf("history: decoding sessions: %w", err)
	}
	return Page{Sessions: sessions, Total: totalRecords(env, data, len(sessions)), Shape: shape}, nil
}

// totalRecords takes the first positive count in precedence order: the
// metadata block, then the data object, then the top level.
func totalRecords(env envelope, data dataObject, fallback int) int {
	meta := env.Metadata
	if meta == nil {
		meta = data.Metadata
	}
	var candidates []*flexFloat
	if meta != nil {
		candidates = append(candidates, meta.TotalRecords, meta.TotalElements)
	}
	candidates = append(candidates,
		data.TotalElements, env.TotalElements,
		data.TotalRecords, env.TotalRecords,
	)
	for _, c := range candidates {
		if c != nil && *c > 0 {
			return int(*c)
		}
	}
	return fallback
}
