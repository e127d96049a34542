package domain

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

type Label string

const (
	LabelInvoice   Label = "invoice"
	LabelPayroll   Label = "payroll"
	LabelContract  Label = "contract"
	LabelReceipt   Label = "receipt"
	LabelStatement Label = "statement"
	LabelOther     Label = "other"
)

type ConfidenceTier string

const (
	TierHigh   ConfidenceTier = "high"
	TierMedium ConfidenceTier = "medium"
	TierLow    ConfidenceTier = "low"
)

type Method string

const (
	MethodSimilarityReasoning Method = "similarity+reasoning"
	MethodReasoningOnly       Method = "reasoning-only"
	MethodKeywordFallback     Method = "keyword-fallback"
)

type Classification struct {
	Label    Label           `json:"label"`
	Tier     ConfidenceTier  `json:"tier"`
	Method   Method          `json:"method"`
	Evidence []ExemplarMatch `json:"evidence,omitempty"`
	Reason   string          `json:"reason,omitempty"`
}

// Category is one taxonomy entry with the keywords the deterministic fallback matches on.
type Category struct {
	Label    Label    `json:"label" yaml:"label"`
	Keywords []string `json:"keywords" yaml:"keywords"`
}

// Taxonomy is the closed label vocabulary. LabelOther is implicit and always allowed.
type Taxonomy struct {
	Categories []Category `json:"categories" yaml:"categories"`
}

func DefaultTaxonomy() Taxonomy {
	return Taxonomy{Categories: []Category{
		{Label: LabelInvoice, Keywords: []string{"invoice", "facture", "bill", "factuur"}},
		{Label: LabelPayroll, Keywords: []string{"payroll", "paie", "fiche de paie", "salaire", "salary", "gongzi"}},
		{Label: LabelContract, Keywords: []string{"contract", "contrat", "agreement", "accord"}},
		{Label: LabelReceipt, Keywords: []string{"receipt", "reçu", "recu", "recibo"}},
		{Label: LabelStatement, Keywords: []string{"statement", "relevé", "releve", "bank", "bancaire"}},
	}}
}

// Labels returns the allowed labels in taxonomy order, ending with LabelOther.
func (t Taxonomy) Labels() []Label {
	out := make([]Label, 0, len(t.Categories)+1)
	for _, c := range t.Categories {
		if c.Label == LabelOther {
			continue
		}
		out = append(out, c.Label)
	}
	return append(out, LabelOther)
}

func (t Taxonomy) Contains(label Label) bool {
	for _, l := range t.Labels() {
		if l == label {
			return true
		}
	}
	return false
}

// Normalize maps raw backend output onto a label. Only an exact match after
// trimming quotes, punctuation and case is accepted.
func (t Taxonomy) Normalize(raw string) (Label, bool) {
	cleaned := strings.TrimFunc(strings.ToLower(strings.TrimSpace(raw)), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	if cleaned == "" {
		return "", false
	}
	label := Label(cleaned)
	if !t.Contains(label) {
		return "", false
	}
	return label, true
}

// MatchKeywords returns the first category whose keyword occurs in text.
func (t Taxonomy) MatchKeywords(text string) (Label, bool) {
	lowered := strings.ToLower(text)
	if strings.TrimSpace(lowered) == "" {
		return "", false
	}
	for _, c := range t.Categories {
		for _, kw := range c.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" && strings.Contains(lowered, kw) {
				return c.Label, true
			}
		}
	}
	return "", false
}

func (t Taxonomy) Validate() error {
	if len(t.Categories) == 0 {
		return WrapError(ErrInvalidInput, "validate taxonomy", errEmptyTaxonomy)
	}
	seen := make(map[Label]struct{}, len(t.Categories))
	for _, c := range t.Categories {
		name := strings.TrimSpace(string(c.Label))
		if name == "" || name != strings.ToLower(name) || strings.ContainsAny(name, " /\\") {
			return WrapError(ErrInvalidInput, "validate taxonomy", &labelError{label: c.Label})
		}
		if _, ok := seen[c.Label]; ok {
			return WrapError(ErrInvalidInput, "validate taxonomy", &labelError{label: c.Label, duplicate: true})
		}
		seen[c.Label] = struct{}{}
	}
	return nil
}

var errEmptyTaxonomy = errors.New("taxonomy has no categories")

type labelError struct {
	label     Label
	duplicate bool
}

func (e *labelError) Error() string {
	if e.duplicate {
		return fmt.Sprintf("duplicate label %q", e.label)
	}
	return fmt.Sprintf("invalid label %q", e.label)
}
