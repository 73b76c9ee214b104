package seed

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed fixtures/listings.yml
var listingFixtureData []byte

type categoryFixture struct {
	Name  string   `yaml:"name"`
	Items []string `yaml:"items"`
}

// fixtures holds the curated category and condition data the factory draws
// from so seeded listings look like real campus marketplace inventory.
type fixtures struct {
	Categories []categoryFixture `yaml:"categories"`
	Conditions []string          `yaml:"conditions"`
}

func loadFixtures() (*fixtures, error) {
	var f fixtures
	if err := yaml.Unmarshal(listingFixtureData, &f); err != nil {
		return nil, fmt.Errorf("parse listing fixtures: %w", err)
	}
	if len(f.Categories) == 0 || len(f.Conditions) == 0 {
		return nil, fmt.Errorf("listing fixtures are incomplete")
	}
	return &f, nil
}
