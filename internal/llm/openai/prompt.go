package openai

import (
	"strings"

	"studio-backend/internal/llm"
	"studio-backend/internal/shared/telemetry"
)

// Message represents an OpenAI chat message.
type Message struct {
	Role    string
	Content string
}

// BuildPrompt creates the chat messages for an enhancement request.
func BuildPrompt(input llm.EnhanceInput) []Message {
	system, ok := llm.PromptTemplate(input.Kind)
	if !ok {
		telemetry.Warn("llm.unknown_kind", map[string]any{"kind": input.Kind})
	}
	return []Message{
		{Role: "system", Content: strings.TrimSpace(system)},
		{Role: "user", Content: buildUserPrompt(input)},
	}
}

func buildUserPrompt(input llm.EnhanceInput) string {
	var b strings.Builder
	if style := strings.TrimSpace(input.Style); style != "" {
		b.WriteString("Style: ")
		b.WriteString(style)
		b.WriteString("\n")
	}
	if engine := strings.TrimSpace(input.Engine); engine != "" {
		b.WriteString("Target model: ")
		b.WriteString(engine)
		b.WriteString("\n")
	}
	b.WriteString("Prompt:\n")
	b.WriteString(strings.TrimSpace(input.Prompt))
	return b.String()
}
