package ingest

import (
	"fmt"
	"math"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/agentic-research/harvest/api"
)

// DefaultHitSelector selects hit objects from a document shaped like
// {"hits": [{"file_id": 7, "set_name": "Malware"}, ...]}.
const DefaultHitSelector = "$.hits[*]"

// JSONHit is one hit decoded from an imported document.
type JSONHit struct {
	FileID   int64
	SetNames []string
	Comment  string
}

// ParseHitsJSON selects hit objects from data with a JSONPath selector
// (DefaultHitSelector when empty). Each object needs a numeric "file_id";
// "set_name" may be a string or an array of strings, and "comment" is
// optional.
func ParseHitsJSON(data []byte, selector string) ([]JSONHit, error) {
	if selector == "" {
		selector = DefaultHitSelector
	}
	x, err := jp.ParseString(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid jsonpath '%s': %w", selector, err)
	}
	root, err := oj.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse hits json: %w", err)
	}

	results := x.Get(root)
	hits := make([]JSONHit, 0, len(results))
	for i, r := range results {
		obj, ok := r.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("hit %d: expected object, got %T", i, r)
		}
		h, err := decodeHit(obj)
		if err != nil {
			return nil, fmt.Errorf("hit %d: %w", i, err)
		}
		hits = append(hits, h)
	}
	return hits, nil
}

// ImportHitsJSON parses data and writes one interesting-file hit per
// selected object. It returns the number of hits written.
func ImportHitsJSON(data []byte, selector string, w HitWriter) (int, error) {
	hits, err := ParseHitsJSON(data, selector)
	if err != nil {
		return 0, err
	}
	for _, h := range hits {
		attrs := make([]api.Attribute, 0, len(h.SetNames)+1)
		for _, name := range h.SetNames {
			attrs = append(attrs, api.Attribute{Type: api.AttrSetName, Value: name})
		}
		if h.Comment != "" {
			attrs = append(attrs, api.Attribute{Type: api.AttrComment, Value: h.Comment})
		}
		if _, err := w.AddHit(api.ArtifactInterestingFileHit, h.FileID, attrs...); err != nil {
			return 0, fmt.Errorf("write hit for file %d: %w", h.FileID, err)
		}
	}
	return len(hits), nil
}

func decodeHit(obj map[string]any) (JSONHit, error) {
	var h JSONHit
	switch v := obj["file_id"].(type) {
	case int64:
		h.FileID = v
	case float64:
		if v != math.Trunc(v) {
			return h, fmt.Errorf("file_id %v is not an integer", v)
		}
		h.FileID = int64(v)
	case nil:
		return h, fmt.Errorf("missing file_id")
	default:
		return h, fmt.Errorf("file_id has type %T, want number", v)
	}
	if h.FileID <= 0 {
		return h, fmt.Errorf("file_id %d must be positive", h.FileID)
	}

	switch v := obj["set_name"].(type) {
	case nil:
	case string:
		h.SetNames = []string{v}
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return h, fmt.Errorf("set_name entry has type %T, want string", item)
			}
			h.SetNames = append(h.SetNames, s)
		}
	default:
		return h, fmt.Errorf("set_name has type %T, want string or array", v)
	}

	if c, ok := obj["comment"].(string); ok {
		h.Comment = c
	}
	return h, nil
}
