package history

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category is the coarse outcome of a scan.
type Category string

const (
	CategoryHealthy   Category = "healthy"
	CategoryDiseased  Category = "diseased"
	CategoryNotCoffee Category = "not_coffee"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryHealthy, CategoryDiseased, CategoryNotCoffee:
		return true
	}
	return false
}

//go:embed catalog.yaml
var defaultCatalogYAML []byte

type DiseaseRule struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// Catalog maps free-text prediction labels onto categories and disease
// buckets. Rules are tried in order; the first keyword hit wins.
type Catalog struct {
	HealthyMarkers   []string      `yaml:"healthy_markers"`
	NotCoffeeMarkers []string      `yaml:"not_coffee_markers"`
	Diseases         []DiseaseRule `yaml:"diseases"`
	Fallback         string        `yaml:"fallback"`
}

func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded disease catalog is invalid: %v", err))
	}
	return c
}

// LoadCatalog reads a catalog file; an empty path means the embedded default.
func LoadCatalog(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(raw)
}

func ParseCatalog(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(c.HealthyMarkers) == 0 {
		return nil, fmt.Errorf("catalog needs at least one healthy marker")
	}
	if strings.TrimSpace(c.Fallback) == "" {
		return nil, fmt.Errorf("catalog needs a fallback bucket")
	}
	for i, d := range c.Diseases {
		if strings.TrimSpace(d.Name) == "" || len(d.Keywords) == 0 {
			return nil, fmt.Errorf("disease rule %d needs a name and keywords", i)
		}
	}
	return &c, nil
}

// Classify derives the category and, for diseased labels, the disease bucket.
// Matching is a case-insensitive substring search. Healthy markers are checked
// before not-coffee markers.
func (c *Catalog) Classify(label string) (Category, string) {
	l := strings.ToLower(label)
	if containsAny(l, c.HealthyMarkers) {
		return CategoryHealthy, ""
	}
	if containsAny(l, c.NotCoffeeMarkers) {
		return CategoryNotCoffee, ""
	}
	return CategoryDiseased, c.DiseaseOf(label)
}

// DiseaseOf returns the display bucket for a diseased label.
func (c *Catalog) DiseaseOf(label string) string {
	l := strings.ToLower(label)
	for _, d := range c.Diseases {
		if containsAny(l, d.Keywords) {
			return d.Name
		}
	}
	return c.Fallback
}

func containsAny(lowered string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(lowered, strings.ToLower(n)) {
			return true
		}
	}
	return false
}
