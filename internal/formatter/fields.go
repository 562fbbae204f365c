package formatter

import (
	"bytes"
	"encoding/json"
)

// Text is a tolerant string field. Any JSON value decodes into it through
// EnsureString; Present is false for a missing key or an explicit null.
type Text struct {
	Value   string
	Present bool
}

func (t *Text) UnmarshalJSON(data []byte) error {
	*t = Text{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	t.Value = EnsureString(v)
	t.Present = true
	return nil
}

// Or returns the field value, or def when the field was absent.
func (t Text) Or(def string) string {
	if !t.Present {
		return def
	}
	return t.Value
}

// Tags keeps the raw hashtag value until it is normalized.
type Tags struct {
	Raw     any
	Present bool
}

func (t *Tags) UnmarshalJSON(data []byte) error {
	*t = Tags{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(data, &t.Raw); err != nil {
		return err
	}
	t.Present = true
	return nil
}

// Normalize returns the normalized tags, falling back to seeds when absent.
func (t Tags) Normalize(seeds []string) []string {
	if !t.Present {
		return NormalizeHashtags(seeds)
	}
	return NormalizeHashtags(t.Raw)
}

// Topics keeps the raw key topic value until it is normalized.
type Topics struct {
	Raw any
}

func (t *Topics) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &t.Raw)
}

func (t Topics) Normalize() []string {
	return KeyTopics(t.Raw)
}
