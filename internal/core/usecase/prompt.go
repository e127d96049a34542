package usecase

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kirillkom/paperflow/internal/core/domain"
)

const (
	similarityQuerySnippet = 200
	promptPreviewChars     = 1500
)

func buildSimilarityQuery(filename, text string) string {
	return strings.TrimSpace(filename + " " + truncateRunes(text, similarityQuerySnippet))
}

func buildSimilarityPrompt(filename, text string, matches []domain.ExemplarMatch, taxonomy domain.Taxonomy) string {
	var neighbours strings.Builder
	for idx, m := range matches {
		neighbours.WriteString(fmt.Sprintf("%d. category=%s file=%s similarity=%.3f\n", idx+1, m.Label, m.SourceFilename, m.Score))
	}

	return fmt.Sprintf(`You classify business documents.
The most similar reference documents are:
%s
Document filename: %s
Document preview:
%s

Answer with a JSON object {"label": "<label>"} where <label> is exactly one of: %s.
No other keys, no explanation.`,
		neighbours.String(), filename, truncateRunes(text, promptPreviewChars), joinLabels(taxonomy))
}

func buildReasoningOnlyPrompt(filename, text string, taxonomy domain.Taxonomy) string {
	return fmt.Sprintf(`You classify business documents.
Document filename: %s
Document preview:
%s

Answer with a JSON object {"label": "<label>"} where <label> is exactly one of: %s.
Use "other" when none applies. No other keys, no explanation.`,
		filename, truncateRunes(text, promptPreviewChars), joinLabels(taxonomy))
}

// ParseLabel accepts {"label": "x"}, a JSON string or a bare word. Anything that is
// not exactly one allowed label is reported as domain.ErrUnparsableLabel.
func ParseLabel(raw string, taxonomy domain.Taxonomy) (domain.Label, error) {
	candidate := strings.TrimSpace(stripCodeFence(raw))
	switch {
	case strings.HasPrefix(candidate, "{"):
		var payload struct {
			Label *string `json:"label"`
		}
		if err := json.Unmarshal([]byte(candidate), &payload); err != nil {
			return "", domain.WrapError(domain.ErrUnparsableLabel, "parse reasoning output", err)
		}
		if payload.Label == nil {
			return "", domain.WrapError(domain.ErrUnparsableLabel, "parse reasoning output", fmt.Errorf("missing label key in %q", truncateRunes(candidate, 120)))
		}
		candidate = *payload.Label
	case strings.HasPrefix(candidate, `"`):
		var s string
		if err := json.Unmarshal([]byte(candidate), &s); err == nil {
			candidate = s
		}
	}

	label, ok := taxonomy.Normalize(candidate)
	if !ok {
		return "", domain.WrapError(domain.ErrUnparsableLabel, "parse reasoning output", fmt.Errorf("%q is not an allowed label", truncateRunes(candidate, 120)))
	}
	return label, nil
}

func stripCodeFence(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimPrefix(trimmed, "json")
	return strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
}

func joinLabels(taxonomy domain.Taxonomy) string {
	labels := taxonomy.Labels()
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		parts = append(parts, string(l))
	}
	return strings.Join(parts, ", ")
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
