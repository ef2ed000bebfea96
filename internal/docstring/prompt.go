package docstring

import (
	"strings"
)

const promptHeader = `You are a senior software engineer.

Generate JSDoc-style docstrings ONLY for the functions listed below.

STRICT RULES:
- Output VALID JSON ONLY
- Do NOT wrap in markdown
- Do NOT use backticks
- Do NOT add explanations
- Keys must exactly match function names
- Do NOT include functions not listed
- Do NOT infer functions outside the given code
- If a function returns a Promise, explicitly document it as asynchronous
`

const promptFooter = `
Expected output:
{
  "functionName": "Docstring text"
}
`

// BuildPrompt renders the generation prompt for req.
func BuildPrompt(req Request) string {
	fileName := strings.TrimSpace(req.FileName)
	if fileName == "" {
		fileName = "unknown"
	}

	var b strings.Builder
	b.WriteString(promptHeader)
	b.WriteString("\nFile: ")
	b.WriteString(fileName)
	b.WriteString("\n\nFunctions:\n")
	b.WriteString(strings.Join(req.Functions, ", "))
	b.WriteString("\n\nCode:\n")
	b.WriteString(req.Code)
	b.WriteString("\n")
	b.WriteString(promptFooter)
	return b.String()
}
