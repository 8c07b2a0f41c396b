package stats

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// ErrUnexpectedPayload is returned when the body is valid JSON of the wrong shape.
var ErrUnexpectedPayload = errors.New("upstream returned unexpected payload (expected list)")

// ParsePlayers decodes the upstream players payload. The top level must be a
// JSON array of objects; anything else is an error. Inside each object the
// parser is tolerant: bad stat values become 0 and non-object sections are
// dropped.
func ParsePlayers(data []byte) ([]PlayerRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("decode players payload: %w", err)
	}
	// The body must hold exactly one JSON value.
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			err = errors.New("unexpected data after top-level value")
		}
		return nil, fmt.Errorf("decode players payload: %w", err)
	}

	items, ok := root.([]any)
	if !ok {
		return nil, ErrUnexpectedPayload
	}

	players := make([]PlayerRecord, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: element %d is not an object", ErrUnexpectedPayload, i)
		}
		players = append(players, parsePlayer(obj))
	}
	return players, nil
}

func parsePlayer(obj map[string]any) PlayerRecord {
	p := PlayerRecord{
		UUID:  identity(obj["uuid"]),
		Name:  identity(obj["name"]),
		Stats: Sections{},
	}

	// Vanilla layout: player.stats.stats.<section>.<key>
	wrapper, _ := obj["stats"].(map[string]any)
	root, _ := wrapper["stats"].(map[string]any)

	for section, raw := range root {
		values, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		row := make(map[string]int64, len(values))
		for key, v := range values {
			row[key] = Coerce(v)
		}
		p.Stats[section] = row
	}
	return p
}

func identity(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

// Coerce converts an untrusted JSON value into a non-negative integer.
// Integers pass through, floats truncate toward zero, numeric strings are
// parsed, booleans map to 1 and 0. Everything else, and every negative
// result, is 0.
func Coerce(v any) int64 {
	var n int64
	switch t := v.(type) {
	case json.Number:
		n = coerceNumber(string(t))
	case float64:
		n = truncate(t)
	case int64:
		n = t
	case int:
		n = int64(t)
	case string:
		n = coerceString(t)
	case bool:
		if t {
			n = 1
		}
	}
	if n < 0 {
		return 0
	}
	return n
}

func coerceNumber(s string) int64 {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	} else if errors.Is(err, strconv.ErrRange) {
		return saturate(s)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0
	}
	return truncate(f)
}

func coerceString(s string) int64 {
	s = strings.TrimSpace(s)
	n, err := strconv.ParseInt(s, 10, 64)
	if err == nil {
		return n
	}
	if errors.Is(err, strconv.ErrRange) {
		return saturate(s)
	}
	return 0
}

func saturate(s string) int64 {
	if strings.HasPrefix(s, "-") {
		return 0
	}
	return math.MaxInt64
}

func truncate(f float64) int64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= 0:
		return 0
	}
	return int64(f)
}
