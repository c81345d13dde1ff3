package plan

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// fenceRE matches a fenced code block that opens the response, with an
// optional language tag, and captures everything up to the last closing fence.
var fenceRE = regexp.MustCompile("(?s)^```[\\w+-]*(.*)```")

// Extract turns raw model output into a Plan.
//
// The only error is ErrEmptyResponse. Output that does not parse as a plan
// object yields a Plan with no actions whose Reply is the unmodified raw text,
// so the operator always sees something.
func Extract(raw string) (*Plan, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, ErrEmptyResponse
	}

	if strings.HasPrefix(text, "```") {
		if m := fenceRE.FindStringSubmatch(text); m != nil {
			text = strings.TrimSpace(m[1])
		}
	}

	// Models sometimes wrap the object in commentary despite instructions.
	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start != -1 && end > start {
		text = text[start : end+1]
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return &Plan{
			Actions:  []ActionRequest{},
			Reply:    raw,
			ParseErr: fmt.Errorf("%w: %v", ErrMalformedResponse, err),
		}, nil
	}

	p := &Plan{Actions: parseActions(doc["actions"])}
	if reply, ok := doc["reply"].(string); ok {
		p.Reply = reply
	}
	return p, nil
}

// parseActions reads the actions array. Anything that is not an array yields
// no actions; array elements that are not objects are dropped.
func parseActions(v any) []ActionRequest {
	items, ok := v.([]any)
	if !ok {
		return []ActionRequest{}
	}

	actions := make([]ActionRequest, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		actions = append(actions, parseAction(obj))
	}
	return actions
}

// parseAction accepts parameters both flat beside "tool" and nested under a
// "parameters" object. Flat keys win when both are given.
func parseAction(obj map[string]any) ActionRequest {
	req := ActionRequest{Parameters: make(map[string]any)}
	req.Tool, _ = obj["tool"].(string)

	if nested, ok := obj["parameters"].(map[string]any); ok {
		for k, v := range nested {
			req.Parameters[k] = v
		}
	}
	for k, v := range obj {
		if k == "tool" || k == "parameters" {
			continue
		}
		req.Parameters[k] = v
	}
	return req
}
