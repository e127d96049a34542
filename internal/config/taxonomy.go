package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/paperflow/internal/core/domain"
)

// LoadTaxonomy reads the label set from a YAML file, or returns the built-in
// taxonomy when path is empty.
func LoadTaxonomy(path string) (domain.Taxonomy, error) {
	if strings.TrimSpace(path) == "" {
		return domain.DefaultTaxonomy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Taxonomy{}, fmt.Errorf("read taxonomy %s: %w", path, err)
	}
	var taxonomy domain.Taxonomy
	if err := yaml.Unmarshal(data, &taxonomy); err != nil {
		return domain.Taxonomy{}, fmt.Errorf("parse taxonomy %s: %w", path, err)
	}
	if err := taxonomy.Validate(); err != nil {
		return domain.Taxonomy{}, fmt.Errorf("validate taxonomy %s: %w", path, err)
	}
	return taxonomy, nil
}
