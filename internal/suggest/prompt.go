package suggest

import (
	"fmt"
	"strings"

	"github.com/ppiankov/patchpilot/internal/model"
	"github.com/ppiankov/patchpilot/internal/redact"
)

const systemPrompt = "You are a senior software engineer specialized in code review and security analysis."

// BuildPrompt renders the user prompt for one finding. Secrets in the
// snippet are redacted first.
func BuildPrompt(f model.Finding) string {
	snippet, _ := redact.String(f.CodeSnippet)

	var b strings.Builder
	b.WriteString("Analyze this code issue and provide a professional, actionable solution.\n\n")
	fmt.Fprintf(&b, "Issue Type: %s\n", f.Category)
	fmt.Fprintf(&b, "Severity: %s\n", f.Severity)
	fmt.Fprintf(&b, "Title: %s\n", f.Title)
	fmt.Fprintf(&b, "Description: %s\n", f.Description)
	fmt.Fprintf(&b, "File: %s\n", f.FilePath)
	fmt.Fprintf(&b, "Line: %d\n", f.LineNumber)
	fmt.Fprintf(&b, "Code:\n```\n%s\n```\n\n", snippet)
	b.WriteString("Provide:\n")
	b.WriteString("1. Root cause analysis (2-3 sentences)\n")
	b.WriteString("2. Security/Performance impact (if applicable)\n")
	b.WriteString("3. Exact fix with code example\n")
	b.WriteString("4. Best practice recommendation\n")
	b.WriteString("5. Prevention tips for the future\n")
	b.WriteString("\nBe concise, technical, and actionable. Format the response in clear sections.")
	return b.String()
}
