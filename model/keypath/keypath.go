// Package keypath implements the selector syntax used by manifest routing
// rules to extract instance and correlation keys from ingress payloads, e.g.
// "order.items[0].sku".  Paths are compiled once at manifest load and
// evaluated against payload maps during kernel folds, so evaluation must stay
// allocation-light and strictly deterministic.
package keypath

import (
	"fmt"
	"strconv"

	"github.com/viant/parsly"
)

// Segment is one step of a compiled path: a map key, optionally followed by
// an element index.
type Segment struct {
	Key   string
	Index *int
}

// Path is a compiled selector.
type Path struct {
	Source   string
	Segments []Segment
}

// Parse compiles a selector in the format: key(.key)* with optional [index]
// suffixes, e.g. "order.items[0].sku".
func Parse(input string) (*Path, error) {
	if input == "" {
		return nil, fmt.Errorf("keypath cannot be empty")
	}
	cursor := parsly.NewCursor("", []byte(input), 0)
	path := &Path{Source: input}

	for {
		matched := cursor.MatchOne(identifierToken)
		if matched.Code != identifierToken.Code {
			return nil, cursor.NewError(identifierToken)
		}
		segment := Segment{Key: matched.Text(cursor)}

		// Optional [index] suffixes
		for {
			matched = cursor.MatchOne(openBracketToken)
			if matched.Code != openBracketToken.Code {
				break
			}
			matched = cursor.MatchOne(indexToken)
			if matched.Code != indexToken.Code {
				return nil, cursor.NewError(indexToken)
			}
			index, err := strconv.Atoi(matched.Text(cursor))
			if err != nil {
				return nil, fmt.Errorf("invalid index in keypath %q: %w", input, err)
			}
			matched = cursor.MatchOne(closeBracketToken)
			if matched.Code != closeBracketToken.Code {
				return nil, cursor.NewError(closeBracketToken)
			}
			if segment.Index != nil {
				path.Segments = append(path.Segments, segment)
				segment = Segment{Key: ""}
			}
			segment.Index = &index
		}
		path.Segments = append(path.Segments, segment)

		matched = cursor.MatchOne(dotToken)
		if matched.Code != dotToken.Code {
			break
		}
	}
	if cursor.Pos != cursor.InputSize {
		return nil, fmt.Errorf("unexpected trailing input in keypath %q at %d", input, cursor.Pos)
	}
	return path, nil
}

// Select evaluates the path against a payload map.  A missing key or an out
// of range index yields (nil, false) rather than an error – routing treats an
// unresolvable selector as a non-match.
func (p *Path) Select(payload map[string]interface{}) (interface{}, bool) {
	var current interface{} = payload
	for _, segment := range p.Segments {
		if segment.Key != "" {
			aMap, ok := current.(map[string]interface{})
			if !ok {
				return nil, false
			}
			current, ok = aMap[segment.Key]
			if !ok {
				return nil, false
			}
		}
		if segment.Index != nil {
			aSlice, ok := current.([]interface{})
			if !ok {
				return nil, false
			}
			index := *segment.Index
			if index < 0 || index >= len(aSlice) {
				return nil, false
			}
			current = aSlice[index]
		}
	}
	return current, true
}

// SelectString evaluates the path and coerces the result into its string
// form; numeric values format without an exponent so the same payload always
// produces the same key.
func (p *Path) SelectString(payload map[string]interface{}) (string, bool) {
	value, ok := p.Select(payload)
	if !ok || value == nil {
		return "", false
	}
	switch actual := value.(type) {
	case string:
		return actual, actual != ""
	case float64:
		return strconv.FormatFloat(actual, 'f', -1, 64), true
	case int:
		return strconv.Itoa(actual), true
	case bool:
		return strconv.FormatBool(actual), true
	}
	return fmt.Sprintf("%v", value), true
}
