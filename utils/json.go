package utils

import (
	"encoding/json"
	"errors"
	"strings"
)

// ParseJSONFromLLMResponse recovers the JSON document inside a model
// reply. Models wrap JSON in markdown fences or surrounding prose, so the
// raw text is tried first, then a fenced block, then the outermost braces
// or brackets.
func ParseJSONFromLLMResponse(content string) (interface{}, error) {
	for _, candidate := range jsonCandidates(strings.TrimSpace(content)) {
		var parsed interface{}
		if err := json.Unmarshal([]byte(candidate), &parsed); err == nil {
			return parsed, nil
		}
	}
	return nil, errors.New("no JSON found in model response")
}

func jsonCandidates(content string) []string {
	candidates := []string{content}
	if fenced := insideCodeFence(content); fenced != "" {
		candidates = append(candidates, fenced)
	}
	if obj := outermost(content, '{', '}'); obj != "" {
		candidates = append(candidates, obj)
	}
	if arr := outermost(content, '[', ']'); arr != "" {
		candidates = append(candidates, arr)
	}
	return candidates
}

// insideCodeFence returns the body of the first ``` block, tolerating a
// language tag after the opening fence
func insideCodeFence(content string) string {
	open := strings.Index(content, "```")
	if open < 0 {
		return ""
	}
	rest := content[open+3:]
	end := strings.Index(rest, "```")
	if end < 0 {
		return ""
	}
	body := rest[:end]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		// drop the language tag line
		body = body[nl+1:]
	}
	return strings.TrimSpace(body)
}

// outermost returns the widest span between an opening and closing
// delimiter, or "" when the pair is absent or inverted
func outermost(content string, open, close byte) string {
	start := strings.IndexByte(content, open)
	end := strings.LastIndexByte(content, close)
	if start < 0 || end <= start {
		return ""
	}
	return content[start : end+1]
}

// ExtractTagsFromJSON pulls the tag list out of a parsed model reply,
// accepting either {"tags": [...]} or a bare array. Blank entries are
// dropped; maxTags of 0 means unlimited.
func ExtractTagsFromJSON(parsed interface{}, maxTags int) []string {
	var raw []interface{}
	switch v := parsed.(type) {
	case map[string]interface{}:
		raw, _ = v["tags"].([]interface{})
	case []interface{}:
		raw = v
	}

	var tags []string
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			tags = append(tags, s)
		}
	}

	if maxTags > 0 && len(tags) > maxTags {
		tags = tags[:maxTags]
	}
	return tags
}
