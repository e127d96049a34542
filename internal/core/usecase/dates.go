package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/paperflow/internal/core/domain"
	"github.com/kirillkom/paperflow/internal/core/ports"
)

const datePromptPreviewChars = 800

var monthNames = map[string]time.Month{
	"janvier": time.January, "january": time.January,
	"février": time.February, "fevrier": time.February, "february": time.February,
	"mars": time.March, "march": time.March,
	"avril": time.April, "april": time.April,
	"mai": time.May, "may": time.May,
	"juin": time.June, "june": time.June,
	"juillet": time.July, "july": time.July,
	"août": time.August, "aout": time.August, "august": time.August,
	"septembre": time.September, "september": time.September,
	"octobre": time.October, "october": time.October,
	"novembre": time.November, "november": time.November,
	"décembre": time.December, "decembre": time.December, "december": time.December,
}

var (
	isoDatePattern       = regexp.MustCompile(`\b((?:19|20)\d{2})[-_](\d{2})[-_](\d{2})\b`)
	europeanDatePattern  = regexp.MustCompile(`\b(\d{1,2})[/.](\d{1,2})[/.]((?:19|20)\d{2})\b`)
	isoNamePattern       = regexp.MustCompile(`((?:19|20)\d{2})[-_](\d{2})[-_](\d{2})`)
	compactDatePattern   = regexp.MustCompile(`((?:19|20)\d{2})(\d{2})(\d{2})`)
	monthYearPattern     = regexp.MustCompile(`(?i)(?:\b(\d{1,2})(?:er)?\s+)?\b(` + monthAlternation() + `)\b[\s_-]*((?:19|20)\d{2})\b`)
	yearOnlyNamePattern  = regexp.MustCompile(`(?:^|[_\-\s])((?:19|20)\d{2})(?:[_\-\s]|$)`)
	filenameSeparatorsRe = regexp.MustCompile(`[_\-.]+`)
)

func monthAlternation() string {
	names := make([]string, 0, len(monthNames))
	for name := range monthNames {
		names = append(names, regexp.QuoteMeta(name))
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return strings.Join(names, "|")
}

// DateResolver picks the effective date of a document: content first, then the
// filename, then the ingestion time. With a reasoning backend the content date
// is asked of the backend before the patterns are tried.
type DateResolver struct {
	now func() time.Time

	backend ports.ReasoningBackend
	timeout time.Duration
	logger  *slog.Logger
}

func NewDateResolver() *DateResolver {
	return &DateResolver{now: time.Now}
}

// NewReasoningDateResolver returns a resolver that asks backend for the document
// date first. A nil backend gives the pattern-only resolver.
func NewReasoningDateResolver(backend ports.ReasoningBackend, timeout time.Duration, logger *slog.Logger) *DateResolver {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DateResolver{now: time.Now, backend: backend, timeout: timeout, logger: logger}
}

// ResolveContext is Resolve preceded by the reasoning stage. Backend failures,
// timeouts and answers that are not a plausible date fall through to Resolve.
func (r *DateResolver) ResolveContext(ctx context.Context, filename, text string, receivedAt time.Time) time.Time {
	if r.backend != nil && strings.TrimSpace(text) != "" {
		d, found, err := r.fromReasoning(ctx, filename, text)
		switch {
		case err != nil:
			r.logger.Warn("date_reasoning_failed", "filename", filename, "error", err)
		case found:
			return d
		}
	}
	return r.Resolve(filename, text, receivedAt)
}

func (r *DateResolver) Resolve(filename, text string, receivedAt time.Time) time.Time {
	if d, ok := r.fromText(text); ok {
		return d
	}
	if d, ok := r.fromFilename(filename); ok {
		return d
	}
	if !receivedAt.IsZero() {
		return receivedAt.UTC()
	}
	return r.now().UTC()
}

func (r *DateResolver) fromText(text string) (time.Time, bool) {
	if strings.TrimSpace(text) == "" {
		return time.Time{}, false
	}
	head := truncateRunes(text, 4000)
	if m := isoDatePattern.FindStringSubmatch(head); m != nil {
		if d, ok := r.build(m[1], m[2], m[3]); ok {
			return d, true
		}
	}
	if m := europeanDatePattern.FindStringSubmatch(head); m != nil {
		if d, ok := r.build(m[3], m[2], m[1]); ok {
			return d, true
		}
	}
	return r.fromMonthName(head)
}

func (r *DateResolver) fromFilename(filename string) (time.Time, bool) {
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if m := compactDatePattern.FindStringSubmatch(stem); m != nil {
		if d, ok := r.build(m[1], m[2], m[3]); ok {
			return d, true
		}
	}
	if m := isoNamePattern.FindStringSubmatch(stem); m != nil {
		if d, ok := r.build(m[1], m[2], m[3]); ok {
			return d, true
		}
	}
	spaced := filenameSeparatorsRe.ReplaceAllString(stem, " ")
	if d, ok := r.fromMonthName(spaced); ok {
		return d, true
	}
	if m := yearOnlyNamePattern.FindStringSubmatch(stem); m != nil {
		return r.build(m[1], "01", "01")
	}
	return time.Time{}, false
}

func (r *DateResolver) fromMonthName(text string) (time.Time, bool) {
	m := monthYearPattern.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	month, ok := monthNames[strings.ToLower(m[2])]
	if !ok {
		return time.Time{}, false
	}
	day := m[1]
	if day == "" {
		day = "01"
	}
	return r.build(m[3], strconv.Itoa(int(month)), day)
}

// build validates the calendar date and rejects dates far in the future.
func (r *DateResolver) build(year, month, day string) (time.Time, bool) {
	y, errY := strconv.Atoi(year)
	mo, errM := strconv.Atoi(month)
	d, errD := strconv.Atoi(day)
	if errY != nil || errM != nil || errD != nil {
		return time.Time{}, false
	}
	if mo < 1 || mo > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d || t.Month() != time.Month(mo) {
		return time.Time{}, false
	}
	if t.After(r.now().UTC().AddDate(1, 0, 0)) {
		return time.Time{}, false
	}
	return t, true
}

func (r *DateResolver) fromReasoning(ctx context.Context, filename, text string) (time.Time, bool, error) {
	raw, err := askBackend(ctx, r.backend, r.timeout, buildDatePrompt(filename, text))
	if err != nil {
		return time.Time{}, false, err
	}
	return r.ParseDate(raw)
}

func buildDatePrompt(filename, text string) string {
	return fmt.Sprintf(`You extract the main date of a business document.
Document filename: %s
Document preview:
%s

Use the invoice, payment, billing, payroll period or contract date. Ignore due dates.
When only a month is given, use its first day.
Answer with a JSON object {"date": "YYYY-MM-DD"}, or {"date": null} when no date applies.
No other keys, no explanation.`,
		filename, truncateRunes(text, datePromptPreviewChars))
}

// ParseDate accepts exactly {"date": "YYYY-MM-DD"} or {"date": null}. A null date
// reports found=false without error; anything else is an error.
func (r *DateResolver) ParseDate(raw string) (time.Time, bool, error) {
	const op = "parse date output"
	candidate := strings.TrimSpace(stripCodeFence(raw))
	var payload map[string]*string
	if err := json.Unmarshal([]byte(candidate), &payload); err != nil {
		return time.Time{}, false, domain.WrapError(domain.ErrInvalidInput, op, err)
	}
	value, ok := payload["date"]
	if !ok || len(payload) != 1 {
		return time.Time{}, false, domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("expected only a date key in %q", truncateRunes(candidate, 120)))
	}
	if value == nil {
		return time.Time{}, false, nil
	}
	parsed, err := time.Parse("2006-01-02", *value)
	if err != nil {
		return time.Time{}, false, domain.WrapError(domain.ErrInvalidInput, op, err)
	}
	if parsed.Year() < 1900 {
		return time.Time{}, false, domain.WrapError(domain.ErrInvalidInput, op, errors.New("date before 1900"))
	}
	if parsed.After(r.now().UTC().AddDate(1, 0, 0)) {
		return time.Time{}, false, domain.WrapError(domain.ErrInvalidInput, op, errors.New("date too far in the future"))
	}
	return parsed, true, nil
}
