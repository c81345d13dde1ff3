package repl

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/x/ansi"
	"github.com/perbu/esxiops/plan"
	"github.com/perbu/esxiops/tools"
)

// RenderPlan formats the model's reply and its planned actions as markdown.
func RenderPlan(p *plan.Plan) string {
	if p == nil {
		return ""
	}

	var md strings.Builder
	if p.Reply != "" {
		md.WriteString(p.Reply)
		md.WriteString("\n\n")
	}
	if len(p.Actions) == 0 {
		return strings.TrimRight(md.String(), "\n")
	}

	md.WriteString("| # | Tool | Parameters |\n")
	md.WriteString("|---|------|------------|\n")
	for i, action := range p.Actions {
		fmt.Fprintf(&md, "| %d | `%s` | %s |\n", i+1, action.Tool,
			strings.ReplaceAll(formatParameters(action.Parameters), "|", `\|`))
	}
	return strings.TrimRight(md.String(), "\n")
}

// FormatResult renders one action result as a single status line.
func FormatResult(res tools.Result) string {
	switch res.Outcome {
	case tools.OutcomeSuccess:
		return "[OK] " + res.Output
	case tools.OutcomeUnsupported:
		return fmt.Sprintf("[WARN] Unknown tool: %s", res.Tool)
	default:
		return fmt.Sprintf("[ERROR] Tool '%s' failed: %v", res.Tool, res.Err)
	}
}

// formatParameters formats a parameter map for display, sorted by key.
func formatParameters(params map[string]any) string {
	if len(params) == 0 {
		return "(none)"
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		valueStr := fmt.Sprintf("%v", params[k])
		if ansi.StringWidth(valueStr) > 50 {
			valueStr = ansi.Truncate(valueStr, 50, "...")
		}
		parts = append(parts, fmt.Sprintf("%s=%s", k, valueStr))
	}
	return strings.Join(parts, ", ")
}

// renderMarkdown renders text through r, falling back to plain text.
func renderMarkdown(r *glamour.TermRenderer, text string) string {
	if r != nil {
		rendered, err := r.Render(text)
		if err == nil {
			return strings.Trim(rendered, "\n")
		}
	}
	return text
}
