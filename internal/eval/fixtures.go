package eval

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed fixtures/*.txt fixtures/*.json
var fixtureFS embed.FS

// Fixture bundles report text with its labelled ground truth.
type Fixture struct {
	Name        string
	Text        string
	GroundTruth *GroundTruth
}

// LoadFixtures loads every embedded txt/json pair, ordered by name.
func LoadFixtures() ([]*Fixture, error) {
	return LoadFixturesFS(fixtureFS, "fixtures")
}

// LoadFixturesFS loads fixture pairs from dir in fsys. Every <name>.txt needs
// a matching <name>.json.
func LoadFixturesFS(fsys fs.FS, dir string) ([]*Fixture, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read fixture dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), ".txt"); ok && !e.IsDir() {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	fixtures := make([]*Fixture, 0, len(names))
	for _, name := range names {
		f, err := loadFixture(fsys, dir, name)
		if err != nil {
			return nil, fmt.Errorf("fixture %s: %w", name, err)
		}
		fixtures = append(fixtures, f)
	}
	return fixtures, nil
}

func loadFixture(fsys fs.FS, dir, name string) (*Fixture, error) {
	text, err := fs.ReadFile(fsys, path.Join(dir, name+".txt"))
	if err != nil {
		return nil, fmt.Errorf("read text: %w", err)
	}
	raw, err := fs.ReadFile(fsys, path.Join(dir, name+".json"))
	if err != nil {
		return nil, fmt.Errorf("read ground truth: %w", err)
	}

	var gt GroundTruth
	if err := json.Unmarshal(raw, &gt); err != nil {
		return nil, fmt.Errorf("parse ground truth: %w", err)
	}
	if gt.Name == "" {
		gt.Name = name
	}
	return &Fixture{Name: name, Text: string(text), GroundTruth: &gt}, nil
}
