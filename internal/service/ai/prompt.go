package ai

import (
	"fmt"
	"strings"

	"github.com/spectraflex/omnichat/internal/service/rag"
)

// buildSystemPrompt renders the concierge instructions plus the retrieved
// catalog context.
func buildSystemPrompt(matches []rag.Match) string {
	var builder strings.Builder
	builder.WriteString("You are Spectraflex Gear Concierge. ")
	builder.WriteString("Answer only about Spectraflex products. ")
	builder.WriteString("If unsure, say you don't know. ")
	builder.WriteString("When you recommend a specific purchasable variant from the context, ")
	builder.WriteString("cite it inline as {v:<variant-id>} so the widget can offer add-to-cart.\n\n")

	builder.WriteString("Context:\n")
	if len(matches) == 0 {
		builder.WriteString("NO_MATCH")
		return builder.String()
	}

	for _, m := range matches {
		builder.WriteString(fmt.Sprintf("- %s (/%s) score=%.2f", m.Metadata.Title, m.Metadata.Handle, m.Score))
		if len(m.Metadata.VariantIDs) > 0 {
			builder.WriteString(" variants=" + strings.Join(m.Metadata.VariantIDs, ","))
		}
		builder.WriteString("\n")
	}
	return strings.TrimRight(builder.String(), "\n")
}
