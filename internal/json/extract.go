// Package json extracts JSON from LLM responses, which often wrap it in
// markdown fences or surrounding commentary.
package json

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var fencedBlockRe = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

// Extract finds the JSON object portion of a response string. It tries, in
// order: every ```json fenced block (largest first), the whole response,
// then every balanced {...} region (largest first).
func Extract(response string) (string, error) {
	// Fenced blocks first; models that add commentary almost always fence
	// the actual payload.
	var blocks []string
	for _, m := range fencedBlockRe.FindAllStringSubmatch(response, -1) {
		blocks = append(blocks, m[1])
	}
	sort.Slice(blocks, func(i, j int) bool { return len(blocks[i]) > len(blocks[j]) })
	for _, b := range blocks {
		if isObject(b) {
			return b, nil
		}
	}

	trimmed := strings.TrimSpace(response)
	if isObject(trimmed) {
		return trimmed, nil
	}

	var candidates []string
	for start := 0; ; {
		idx := strings.Index(response[start:], "{")
		if idx < 0 {
			break
		}
		idx += start
		if region, ok := balancedRegion(response, idx); ok {
			candidates = append(candidates, region)
		}
		start = idx + 1
	}
	sort.Slice(candidates, func(i, j int) bool { return len(candidates[i]) > len(candidates[j]) })
	for _, c := range candidates {
		if isObject(c) {
			return c, nil
		}
	}

	preview := response
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return "", fmt.Errorf("no valid JSON object in response: %q", preview)
}

// Unmarshal extracts and parses the JSON object in a response.
func Unmarshal(response string, out any) error {
	jsonStr, err := Extract(response)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(jsonStr), out); err != nil {
		return fmt.Errorf("unmarshal extracted JSON: %w", err)
	}
	return nil
}

func isObject(s string) bool {
	var obj map[string]json.RawMessage
	return json.Unmarshal([]byte(s), &obj) == nil
}

// balancedRegion returns the substring from idx through its matching close
// brace. Brace counting, not full parsing; candidates are validated by
// isObject afterward.
func balancedRegion(s string, idx int) (string, bool) {
	depth := 0
	for i := idx; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[idx : i+1], true
			}
		}
	}
	return "", false
}
