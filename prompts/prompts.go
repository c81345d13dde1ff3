// Package prompts provides the embedded system prompt and operator
// reference documents.
package prompts

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed data/*.md
var content embed.FS

// ToolDocsPlaceholder is replaced with the generated tool list.
const ToolDocsPlaceholder = "{{TOOL_DOCS}}"

// Available topics (without .md extension)
var topics = []string{
	"system",
	"vim-cmd",
}

// Lookup retrieves an embedded document by topic.
// Topic names are case-insensitive and the .md extension is optional.
func Lookup(topic string) (string, error) {
	topic = strings.ToLower(strings.TrimSuffix(topic, ".md"))

	data, err := content.ReadFile("data/" + topic + ".md")
	if err != nil {
		return "", fmt.Errorf("prompt not found: %s (available: %s)", topic, strings.Join(topics, ", "))
	}
	return string(data), nil
}

// List returns all available topics.
func List() []string {
	return topics
}

// System returns the system prompt with toolDocs substituted for the
// placeholder. A non-blank override replaces the embedded default; it is
// used verbatim apart from the same substitution.
func System(override, toolDocs string) string {
	tmpl := override
	if strings.TrimSpace(tmpl) == "" {
		tmpl = mustLookup("system")
	}
	return strings.Replace(tmpl, ToolDocsPlaceholder, strings.TrimRight(toolDocs, "\n"), 1)
}

func mustLookup(topic string) string {
	doc, err := Lookup(topic)
	if err != nil {
		panic(err)
	}
	return doc
}
