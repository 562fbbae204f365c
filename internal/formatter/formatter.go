// Package formatter extracts structured objects from free-form LLM replies
// and coerces loosely typed fields into canonical shapes.
package formatter

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/xaenox/x-agent/internal/failure"
)

const ellipsis = "..."

var (
	codeFence     = regexp.MustCompile("```json\\s*|\\s*```")
	tagSeparators = regexp.MustCompile(`[\s,]+`)
	topicSplit    = regexp.MustCompile(`[\n,]+`)
)

// snippet returns the text between the first '{' and the last '}' inclusive.
func snippet(payload string) (string, error) {
	clean := strings.TrimSpace(codeFence.ReplaceAllString(payload, ""))

	start := strings.Index(clean, "{")
	end := strings.LastIndex(clean, "}")
	if start == -1 || end == -1 || end <= start {
		return "", failure.Malformed("no JSON object found in response", nil)
	}
	return clean[start : end+1], nil
}

// ExtractJSONObject parses the single JSON object embedded in payload.
func ExtractJSONObject(payload string) (map[string]any, error) {
	var out map[string]any
	if err := ExtractInto(payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ExtractInto decodes the JSON object embedded in payload into dst.
func ExtractInto(payload string, dst any) error {
	s, err := snippet(payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(s), dst); err != nil {
		return failure.Malformed("JSON parse failed: "+err.Error(), err)
	}
	return nil
}

// NormalizeHashtags turns a list or a whitespace/comma separated string into
// tags carrying exactly one leading '#'.
func NormalizeHashtags(raw any) []string {
	var tokens []string
	switch v := raw.(type) {
	case nil:
	case []string:
		tokens = v
	case []any:
		tokens = make([]string, 0, len(v))
		for _, item := range v {
			tokens = append(tokens, EnsureString(item))
		}
	case string:
		tokens = tagSeparators.Split(v, -1)
	default:
		tokens = tagSeparators.Split(EnsureString(v), -1)
	}

	tags := make([]string, 0, len(tokens))
	for _, token := range tokens {
		token = strings.TrimSpace(strings.ReplaceAll(token, "#", ""))
		if token == "" {
			continue
		}
		tags = append(tags, "#"+token)
	}
	return tags
}

// EnsureString coerces any decoded JSON value into display text.
func EnsureString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case map[string]any:
		for _, key := range []string{"text", "content", "url"} {
			if inner, ok := v[key]; ok && truthy(inner) {
				return EnsureString(inner)
			}
		}
		return marshal(v)
	case []any:
		return marshal(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case bool:
		return x
	case float64:
		return x != 0
	}
	return true
}

func marshal(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// LimitText caps a string at limit runes, appending an ellipsis when cut.
// Non-string values yield an empty string.
func LimitText(value any, limit int) string {
	s, ok := value.(string)
	if !ok {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	cut := strings.TrimRightFunc(string(runes[:limit]), unicode.IsSpace)
	return cut + ellipsis
}

// Truncate cuts s to at most limit runes without any marker.
func Truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// KeyTopics accepts a list of topics or a newline/comma separated string.
func KeyTopics(raw any) []string {
	var items []string
	switch v := raw.(type) {
	case []any:
		for _, item := range v {
			items = append(items, EnsureString(item))
		}
	case []string:
		items = v
	case string:
		items = topicSplit.Split(v, -1)
	}

	topics := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			topics = append(topics, item)
		}
	}
	return topics
}
