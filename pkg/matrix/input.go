package matrix

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// summaryKey is the field carrying the tender summary in the user content.
const summaryKey = "oppsummering"

//go:embed sample_summary.txt
var sampleSummary string

// SampleSummary returns the built-in tender summary.
func SampleSummary() string { return strings.TrimSpace(sampleSummary) }

// BuildUserContent merges the tender summary and the top-level fields of the
// consultant profile document into one JSON object. The summary comes first;
// a profile field with the same name is dropped.
func BuildUserContent(summary string, profiles []byte) (string, error) {
	if !gjson.ValidBytes(profiles) {
		return "", errors.New("consultant profiles are not valid JSON")
	}
	doc := gjson.ParseBytes(profiles)
	if !doc.IsObject() {
		return "", errors.New("consultant profiles must be a JSON object")
	}

	encoded, err := json.Marshal(summary)
	if err != nil {
		return "", fmt.Errorf("encode summary: %w", err)
	}

	var b strings.Builder
	b.WriteString(`{"` + summaryKey + `":`)
	b.Write(encoded)
	doc.ForEach(func(key, value gjson.Result) bool {
		if key.String() == summaryKey {
			return true
		}
		b.WriteString(",")
		b.WriteString(key.Raw)
		b.WriteString(":")
		b.WriteString(value.Raw)
		return true
	})
	b.WriteString("}")
	return b.String(), nil
}

// SystemInstructions appends the matrix schema to the base instructions.
func SystemInstructions(base string) (string, error) {
	schema, err := Schema()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(base) + "\n\nSvaret skal være et JSON-objekt som følger dette skjemaet:\n" + string(schema), nil
}
