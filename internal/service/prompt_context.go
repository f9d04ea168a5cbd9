package service

import (
	"fmt"
	"strings"
	"time"

	"persona-engine/internal/domain"
)

// renderPromptBlock arma el bloque estructurado que se antepone al prompt de generacion.
func renderPromptBlock(pc domain.PromptContext, now time.Time) string {
	var b strings.Builder

	if pc.Reinforcement != "" {
		b.WriteString("=== CHARACTER ===\n")
		b.WriteString(pc.Reinforcement)
		b.WriteString("\n\n")
	}

	b.WriteString("=== RELATIONSHIP ===\n")
	b.WriteString(pc.Guidance)
	b.WriteString("\n")
	for _, m := range pc.Relationship.NewMilestones {
		fmt.Fprintf(&b, "Milestone just reached: %s\n", m.Message)
	}
	b.WriteString("\n")

	e := pc.Emotion
	b.WriteString("=== USER EMOTION ===\n")
	fmt.Fprintf(&b, "Detected: %s (confidence %.2f, intensity %.2f, trend %s).\n", e.Emotion, e.Confidence, e.Intensity, e.Trend)
	if len(e.Secondary) > 0 {
		parts := make([]string, 0, len(e.Secondary))
		for _, s := range e.Secondary {
			parts = append(parts, fmt.Sprintf("%s %.2f", s.Emotion, s.Confidence))
		}
		fmt.Fprintf(&b, "Also present: %s.\n", strings.Join(parts, ", "))
	}

	if len(pc.Memories) > 0 {
		b.WriteString("\n=== MEMORIES ===\n")
		for _, m := range pc.Memories {
			fmt.Fprintf(&b, "- [%s] %s (last recalled %s)\n", m.Memory.Type, m.Memory.Content, humanizeSince(now.Sub(m.Memory.LastAccessedAt)))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
