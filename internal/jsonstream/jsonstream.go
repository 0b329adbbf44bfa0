// Package jsonstream extracts values at configured JSON-pointer paths from
// an upstream response body delivered in incremental chunks.
package jsonstream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Extracted is one (path, value) pair surfaced by Feed. Path echoes the
// configured pattern that matched, not a concrete per-element path.
type Extracted struct {
	Path  string
	Value any
}

// Extractor incrementally parses a single JSON document fed in chunks and
// surfaces values at the configured pointer patterns. A pattern is a
// slash-separated path whose final segment may be "^" to mean "each element
// of the array at this path", e.g. "/data/^" or "/warnings".
type Extractor struct {
	patterns [][]string
	buf      []byte
	emitted  int
}

// New compiles an Extractor for the given patterns.
func New(patterns ...string) *Extractor {
	compiled := make([][]string, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, splitPattern(p))
	}
	return &Extractor{patterns: compiled}
}

func splitPattern(p string) []string {
	trimmed := p
	if len(trimmed) > 0 && trimmed[0] == '/' {
		trimmed = trimmed[1:]
	}
	if trimmed == "" {
		return nil
	}
	var segs []string
	start := 0
	for i := 0; i <= len(trimmed); i++ {
		if i == len(trimmed) || trimmed[i] == '/' {
			segs = append(segs, trimmed[start:i])
			start = i + 1
		}
	}
	return segs
}

// Feed appends chunk to the buffered response and returns every
// (path, value) pair newly extractable since the previous call. A malformed
// document returns an error; the caller must not call Feed again for this
// response after that (internal state is left consistent but further
// extraction is meaningless).
func (e *Extractor) Feed(chunk []byte) ([]Extracted, error) {
	e.buf = append(e.buf, chunk...)
	dec := json.NewDecoder(bytes.NewReader(e.buf))
	var found []Extracted
	err := walkValue(dec, e.patterns, nil, &found)
	if err != nil {
		if needsMoreData(err) {
			if len(found) > e.emitted {
				fresh := found[e.emitted:]
				e.emitted = len(found)
				return fresh, nil
			}
			return nil, nil
		}
		return nil, fmt.Errorf("jsonstream: %w", err)
	}
	fresh := found[e.emitted:]
	e.emitted = len(found)
	return fresh, nil
}

func needsMoreData(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

func matchExact(patterns [][]string, path []string) (string, bool) {
	for _, p := range patterns {
		if pathEquals(p, path) {
			return "/" + joinPath(p), true
		}
	}
	return "", false
}

func hasDescendant(patterns [][]string, path []string) bool {
	for _, p := range patterns {
		if len(p) > len(path) && pathEquals(p[:len(path)], path) {
			return true
		}
	}
	return false
}

func pathEquals(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func joinPath(segs []string) string {
	var b bytes.Buffer
	for i, s := range segs {
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(s)
	}
	return b.String()
}

func extendPath(path []string, seg string) []string {
	out := make([]string, len(path)+1)
	copy(out, path)
	out[len(path)] = seg
	return out
}

func walkValue(dec *json.Decoder, patterns [][]string, path []string, out *[]Extracted) error {
	if pat, ok := matchExact(patterns, path); ok {
		var v any
		if err := dec.Decode(&v); err != nil {
			return err
		}
		*out = append(*out, Extracted{Path: pat, Value: v})
		return nil
	}
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	delim, isDelim := tok.(json.Delim)
	if !isDelim {
		return nil
	}
	switch delim {
	case '{':
		return walkObject(dec, patterns, path, out)
	case '[':
		return walkArray(dec, patterns, path, out)
	}
	return nil
}

func walkObject(dec *json.Decoder, patterns [][]string, path []string, out *[]Extracted) error {
	interested := hasDescendant(patterns, path)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		if !interested {
			if err := skip(dec); err != nil {
				return err
			}
			continue
		}
		if err := walkValue(dec, patterns, extendPath(path, key), out); err != nil {
			return err
		}
	}
	_, err := dec.Token() // closing '}'
	return err
}

func walkArray(dec *json.Decoder, patterns [][]string, path []string, out *[]Extracted) error {
	wildcardPath := extendPath(path, "^")
	wildcardPat, wildcard := matchExact(patterns, wildcardPath)
	interested := wildcard || hasDescendant(patterns, wildcardPath)
	for dec.More() {
		switch {
		case wildcard:
			var v any
			if err := dec.Decode(&v); err != nil {
				return err
			}
			*out = append(*out, Extracted{Path: wildcardPat, Value: v})
		case interested:
			if err := walkValue(dec, patterns, wildcardPath, out); err != nil {
				return err
			}
		default:
			if err := skip(dec); err != nil {
				return err
			}
		}
	}
	_, err := dec.Token() // closing ']'
	return err
}

func skip(dec *json.Decoder) error {
	var discard json.RawMessage
	return dec.Decode(&discard)
}
