package kb

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"call-kb-go/internal/types"
)

// RenderMarkdown produces the human-oriented FAQ document. Entries keep the
// KB JSON order so the two forms stay structurally consistent.
func RenderMarkdown(entries []types.KBEntry) []byte {
	var b strings.Builder
	b.WriteString("# Knowledge Base\n\n")
	for _, entry := range entries {
		fmt.Fprintf(&b, "## %s\n\n", entry.Question)
		fmt.Fprintf(&b, "**Answer:**\n\n%s\n\n", entry.Answer)
		fmt.Fprintf(&b, "Source calls: %d", len(entry.SourceCallIDs))
		if entry.PendingReview {
			b.WriteString(" · pending review")
		}
		b.WriteString("\n\n")
	}
	return []byte(b.String())
}

// RenderYAML produces the YAML form of the KB beside the JSON one.
func RenderYAML(entries []types.KBEntry) ([]byte, error) {
	out, err := yaml.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("marshal kb yaml: %w", err)
	}
	return out, nil
}
