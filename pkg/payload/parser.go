package payload

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"product-rec-agent/internal/entity"
)

// DefaultMessage is shown when the agent reply carries no usable message text.
const DefaultMessage = "Here are my recommendations."

// maxUnwrapDepth bounds how many envelope layers ("result", "response", double-encoded strings)
// are peeled off before giving up.
const maxUnwrapDepth = 3

// maxOpeners bounds how many '{' / '[' positions are tried in prose.
const maxOpeners = 32

// Payload is the normalized agent reply every consumer works with.
type Payload struct {
	Message             string
	Recommendations     []entity.Recommendation
	FollowUpSuggestions []string

	// Structured reports whether a JSON object or array was recovered from the raw input.
	Structured bool
}

// Parse normalizes a raw agent reply (string, []byte, decoded JSON or any JSON-marshalable value).
// It never panics and never returns nil sequences.
func Parse(raw any) Payload {
	return ParseWithFallback(raw)
}

// ParseWithFallback is Parse with an ordered list of fallback message texts, used when the reply
// is structured but has no message field. DefaultMessage is the last resort.
func ParseWithFallback(raw any, fallbacks ...string) (p Payload) {
	p = Payload{
		Recommendations:     []entity.Recommendation{},
		FollowUpSuggestions: []string{},
	}

	defer func() {
		if r := recover(); r != nil {
			p = Payload{
				Message:             plainText(raw),
				Recommendations:     []entity.Recommendation{},
				FollowUpSuggestions: []string{},
			}
			if p.Message == "" {
				p.Message = firstNonBlank(append(fallbacks, DefaultMessage)...)
			}
		}
	}()

	fields, list, text := normalize(raw, 0)

	switch {
	case fields != nil:
		p.Structured = true
		p.Message = stringField(fields, "message")
		p.Recommendations = recommendations(fields["recommendations"])
		p.FollowUpSuggestions = suggestions(fields)
	case list != nil:
		p.Structured = true
		p.Recommendations = recommendations(list)
	default:
		p.Message = text
	}

	if strings.TrimSpace(p.Message) == "" {
		p.Message = firstNonBlank(append(fallbacks, DefaultMessage)...)
	}
	return p
}

// normalize resolves raw input into either an object, an array or plain text.
func normalize(raw any, depth int) (map[string]any, []any, string) {
	switch v := raw.(type) {
	case nil:
		return nil, nil, ""
	case map[string]any:
		if depth < maxUnwrapDepth && !hasPayloadKeys(v) {
			for _, key := range []string{"result", "response", "data"} {
				if inner, ok := v[key]; ok && inner != nil {
					if f, l, t := normalize(inner, depth+1); f != nil || l != nil {
						return f, l, t
					}
				}
			}
		}
		return v, nil, ""
	case []any:
		return nil, v, ""
	case string:
		return fromText(v, depth)
	case []byte:
		return fromText(string(v), depth)
	case json.RawMessage:
		return fromText(string(v), depth)
	default:
		decoded, ok := roundTrip(v)
		if !ok {
			return nil, nil, ""
		}
		switch d := decoded.(type) {
		case string:
			return fromText(d, depth)
		case map[string]any, []any:
			return normalize(d, depth+1)
		default:
			return nil, nil, ""
		}
	}
}

func fromText(text string, depth int) (map[string]any, []any, string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, nil, ""
	}

	for _, candidate := range jsonCandidates(trimmed) {
		var decoded any
		if err := decode([]byte(candidate), &decoded); err != nil {
			continue
		}
		switch v := decoded.(type) {
		case map[string]any:
			// Prose quoting unrelated JSON stays prose.
			if f, _, _ := normalize(v, depth); hasPayloadKeys(f) {
				return f, nil, ""
			}
		case []any:
			if hasObject(v) {
				return nil, v, ""
			}
		case string:
			// Double-encoded reply: "{\"message\": ...}"
			if depth < maxUnwrapDepth {
				if f, l, _ := fromText(v, depth+1); f != nil || l != nil {
					return f, l, ""
				}
			}
		}
	}
	return nil, nil, trimmed
}

// jsonCandidates lists substrings worth trying as JSON, best guess first.
func jsonCandidates(text string) []string {
	var out []string
	if fenced, ok := fencedBlock(text); ok {
		out = append(out, fenced)
	}
	if strings.HasPrefix(text, "\"") {
		out = append(out, text)
	}

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return out
	}
	if balanced, ok := balancedSpan(text[start:]); ok {
		out = append(out, balanced)
	}

	closer := "}"
	if text[start] == '[' {
		closer = "]"
	}
	if end := strings.LastIndex(text, closer); end > start {
		out = append(out, text[start:end+1])
	}

	// Prose like "Budget {approx}: {...}" hides the payload behind a later opener.
	tried := 1
	for i := start + 1; i < len(text) && tried < maxOpeners; i++ {
		if text[i] != '{' && text[i] != '[' {
			continue
		}
		tried++
		if balanced, ok := balancedSpan(text[i:]); ok {
			out = append(out, balanced)
		}
	}
	return out
}

// fencedBlock returns the body of the first ``` code fence, dropping an optional language tag.
func fencedBlock(text string) (string, bool) {
	open := strings.Index(text, "```")
	if open < 0 {
		return "", false
	}
	rest := text[open+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 && !strings.ContainsAny(rest[:nl], "{[") {
		rest = rest[nl+1:]
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return strings.TrimSpace(rest), true
	}
	return strings.TrimSpace(rest[:end]), true
}

// balancedSpan returns the prefix of s holding one complete JSON object or array.
func balancedSpan(s string) (string, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}

func decode(data []byte, out *any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(out)
}

func hasPayloadKeys(m map[string]any) bool {
	for _, key := range []string{"message", "recommendations", "follow_up_suggestions", "followUpSuggestions"} {
		if _, ok := m[key]; ok {
			return true
		}
	}
	return false
}

func hasObject(items []any) bool {
	for _, item := range items {
		if _, ok := item.(map[string]any); ok {
			return true
		}
	}
	return false
}

func recommendations(v any) []entity.Recommendation {
	items, ok := asList(v)
	if !ok {
		return []entity.Recommendation{}
	}
	out := make([]entity.Recommendation, 0, len(items))
	for _, item := range items {
		m, ok := asObject(item)
		if !ok {
			continue
		}
		out = append(out, entity.Recommendation{
			ProductName:  stringField(m, "product_name"),
			Description:  stringField(m, "description"),
			Price:        stringField(m, "price"),
			MatchReason:  stringField(m, "match_reason"),
			Promotion:    stringField(m, "promotion"),
			IndustryTags: stringList(m["industry_tags"]),
			UseCaseTags:  stringList(m["use_case_tags"]),
		})
	}
	return out
}

func suggestions(m map[string]any) []string {
	for _, key := range []string{"follow_up_suggestions", "followUpSuggestions"} {
		if v, ok := m[key]; ok {
			return stringList(v)
		}
	}
	return []string{}
}

// stringField reads a scalar field, rendering numbers and booleans as text.
func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func stringList(v any) []string {
	if typed, ok := v.([]string); ok {
		return append([]string{}, typed...)
	}
	items, ok := asList(v)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// asList reads a JSON array, including typed Go slices such as []map[string]any or
// []entity.Recommendation handed over by in-process callers.
func asList(v any) ([]any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case []any:
		return t, true
	case string, map[string]any:
		return nil, false
	}
	decoded, ok := roundTrip(v)
	if !ok {
		return nil, false
	}
	items, ok := decoded.([]any)
	return items, ok
}

func asObject(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case nil, string:
		return nil, false
	case map[string]any:
		return t, true
	}
	decoded, ok := roundTrip(v)
	if !ok {
		return nil, false
	}
	m, ok := decoded.(map[string]any)
	return m, ok
}

func roundTrip(v any) (any, bool) {
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var decoded any
	if err := decode(buf, &decoded); err != nil {
		return nil, false
	}
	return decoded, true
}

func plainText(raw any) string {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	case []byte:
		return strings.TrimSpace(string(v))
	default:
		return ""
	}
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
