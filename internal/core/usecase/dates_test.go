package usecase

import (
	"context"
	"strings"
	"testing"
	"time"
)

func fixedResolver() *DateResolver {
	return &DateResolver{now: func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }}
}

func reasoningResolver(backend *reasonerFake) *DateResolver {
	r := NewReasoningDateResolver(backend, 50*time.Millisecond, nil)
	r.now = fixedResolver().now
	return r
}

func TestResolveContextAsksBackendBeforePatterns(t *testing.T) {
	backend := &reasonerFake{response: "```json\n{\"date\": \"2024-02-15\"}\n```"}
	r := reasoningResolver(backend)

	got := r.ResolveContext(context.Background(), "facture.pdf", "Echeance 01/04/2024, emise le 15 fevrier 2024", time.Time{})
	if want := time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if len(backend.prompts) != 1 || !strings.Contains(backend.prompts[0], `{"date": "YYYY-MM-DD"}`) {
		t.Fatalf("unexpected prompts %q", backend.prompts)
	}
}

func TestResolveContextFallsBackToPatterns(t *testing.T) {
	content := "Date de facturation : 14/03/2024"
	want := time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)
	cases := map[string]*reasonerFake{
		"backend error":    {err: errBackendDown},
		"timeout":          {block: true},
		"not json":         {response: "March 14th"},
		"extra keys":       {response: `{"date": "2024-03-14", "confidence": 0.4}`},
		"wrong layout":     {response: `{"date": "14/03/2024"}`},
		"impossible day":   {response: `{"date": "2024-02-31"}`},
		"far future":       {response: `{"date": "2031-01-01"}`},
		"no date found":    {response: `{"date": null}`},
		"missing date key": {response: `{"label": "invoice"}`},
	}
	for name, backend := range cases {
		t.Run(name, func(t *testing.T) {
			got := reasoningResolver(backend).ResolveContext(context.Background(), "scan.pdf", content, time.Time{})
			if !got.Equal(want) {
				t.Fatalf("got %v, want %v", got, want)
			}
		})
	}
}

func TestResolveContextSkipsBackendWithoutText(t *testing.T) {
	backend := &reasonerFake{response: `{"date": "2020-01-01"}`}
	r := reasoningResolver(backend)

	got := r.ResolveContext(context.Background(), "releve_2023-11-30.pdf", "  ", time.Time{})
	if want := time.Date(2023, 11, 30, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if len(backend.prompts) != 0 {
		t.Fatalf("backend must not be asked without content")
	}
}

func TestResolvePrefersContentDate(t *testing.T) {
	r := fixedResolver()
	got := r.Resolve("facture_20230101.pdf", "Date de facturation : 14/03/2024", time.Time{})
	want := time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("Resolve() = %v, want %v", got, want)
	}
}

func TestResolveFilenamePatterns(t *testing.T) {
	r := fixedResolver()
	cases := map[string]time.Time{
		"invoice_20240315.pdf":         time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		"statement-2023-11-30.pdf":     time.Date(2023, 11, 30, 0, 0, 0, 0, time.UTC),
		"releve_2023_07_02.pdf":        time.Date(2023, 7, 2, 0, 0, 0, 0, time.UTC),
		"fiche_de_paie_fevrier_2024.pdf": time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		"payslip_March_2022.pdf":       time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC),
		"contrat_2021_signed.pdf":      time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	for name, want := range cases {
		if got := r.Resolve(name, "", time.Time{}); !got.Equal(want) {
			t.Fatalf("Resolve(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestResolveContentMonthName(t *testing.T) {
	r := fixedResolver()
	got := r.Resolve("scan.pdf", "Période : 1er décembre 2023 au 31 décembre 2023", time.Time{})
	want := time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("Resolve() = %v, want %v", got, want)
	}
}

func TestResolveFallsBackToReceivedThenNow(t *testing.T) {
	r := fixedResolver()
	received := time.Date(2024, 8, 9, 10, 0, 0, 0, time.UTC)
	if got := r.Resolve("scan.pdf", "no date here", received); !got.Equal(received) {
		t.Fatalf("expected received date, got %v", got)
	}
	if got := r.Resolve("scan.pdf", "", time.Time{}); !got.Equal(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected now, got %v", got)
	}
}

func TestResolveRejectsInvalidCalendarDates(t *testing.T) {
	r := fixedResolver()
	received := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	if got := r.Resolve("doc_20240231.pdf", "31/02/2024", received); !got.Equal(received) {
		t.Fatalf("expected fallback to received date, got %v", got)
	}
}
