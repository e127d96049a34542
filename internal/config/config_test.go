package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kirillkom/paperflow/internal/core/domain"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"STORE_DRIVER", "INDEX_DRIVER", "CLASSIFIER_TOP_K", "SIMILARITY_HIGH_THRESHOLD", "REASONING_TIMEOUT", "SOURCE_DRIVER"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.StoreDriver != "sqlite" || cfg.IndexDriver != "embedded" || cfg.SourceDriver != "spool" {
		t.Fatalf("unexpected drivers: store=%q index=%q source=%q", cfg.StoreDriver, cfg.IndexDriver, cfg.SourceDriver)
	}
	if cfg.ClassifierTopK != 3 {
		t.Fatalf("expected default top k 3, got %d", cfg.ClassifierTopK)
	}
	if cfg.SimilarityHighThreshold != 0.8 {
		t.Fatalf("expected default threshold 0.8, got %v", cfg.SimilarityHighThreshold)
	}
	if cfg.ReasoningTimeout != 30*time.Second {
		t.Fatalf("expected default reasoning timeout 30s, got %v", cfg.ReasoningTimeout)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("CLASSIFIER_TOP_K", "5")
	t.Setenv("SIMILARITY_HIGH_THRESHOLD", "0.72")
	t.Setenv("REASONING_TIMEOUT", "45")
	t.Setenv("PUBLISH_RUN_SUMMARY", "true")
	t.Setenv("DATE_REASONING", "true")

	cfg := Load()
	if cfg.ClassifierTopK != 5 || cfg.SimilarityHighThreshold != 0.72 {
		t.Fatalf("unexpected classifier settings: %d %v", cfg.ClassifierTopK, cfg.SimilarityHighThreshold)
	}
	if cfg.ReasoningTimeout != 45*time.Second {
		t.Fatalf("expected bare seconds to parse, got %v", cfg.ReasoningTimeout)
	}
	if !cfg.PublishRunSummary {
		t.Fatalf("expected publish run summary enabled")
	}
	if !cfg.DateReasoning {
		t.Fatalf("expected date reasoning enabled")
	}
}

func TestLoadFallsBackOnMalformedValues(t *testing.T) {
	t.Setenv("SIMILARITY_HIGH_THRESHOLD", "high")
	t.Setenv("REASONING_TIMEOUT", "soon")

	cfg := Load()
	if cfg.SimilarityHighThreshold != 0.8 || cfg.ReasoningTimeout != 30*time.Second {
		t.Fatalf("expected fallbacks, got %v %v", cfg.SimilarityHighThreshold, cfg.ReasoningTimeout)
	}
}

func TestLoadDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("API_PORT=9999\nPAPERFLOW_TEST_ONLY=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("API_PORT", "8081")
	t.Setenv("PAPERFLOW_TEST_ONLY", "")
	os.Unsetenv("PAPERFLOW_TEST_ONLY")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv("API_PORT"); got != "8081" {
		t.Fatalf("expected environment to win, got %q", got)
	}
	if got := os.Getenv("PAPERFLOW_TEST_ONLY"); got != "from-file" {
		t.Fatalf("expected value from file, got %q", got)
	}
}

func TestLoadDotEnvIgnoresMissingFile(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("expected missing file to be ignored, got %v", err)
	}
}

func TestLoadTaxonomyFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.yaml")
	content := "categories:\n  - label: invoice\n    keywords: [facture, invoice]\n  - label: tax\n    keywords: [impots]\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write taxonomy: %v", err)
	}

	taxonomy, err := LoadTaxonomy(path)
	if err != nil {
		t.Fatalf("LoadTaxonomy() error = %v", err)
	}
	labels := taxonomy.Labels()
	if len(labels) != 3 || labels[1] != "tax" || labels[2] != domain.LabelOther {
		t.Fatalf("unexpected labels: %v", labels)
	}
}

func TestLoadTaxonomyRejectsInvalidLabels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.yaml")
	if err := os.WriteFile(path, []byte("categories:\n  - label: Bad Label\n"), 0o600); err != nil {
		t.Fatalf("write taxonomy: %v", err)
	}
	if _, err := LoadTaxonomy(path); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestLoadTaxonomyDefaultsWhenUnset(t *testing.T) {
	taxonomy, err := LoadTaxonomy("")
	if err != nil {
		t.Fatalf("LoadTaxonomy() error = %v", err)
	}
	if !taxonomy.Contains(domain.LabelPayroll) {
		t.Fatalf("expected built-in taxonomy")
	}
}
