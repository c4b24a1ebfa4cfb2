// Package project loads the srcpatch project file, which records the layout
// and rename rules of an extract, patch and relocate pipeline.
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/asynkron/srcpatch/pkg/rename"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// DefaultFiles are tried in order when no project file is named.
var DefaultFiles = []string{"srcpatch.yaml", "srcpatch.yml", "srcpatch.json"}

// Default directory layout, relative to the project file.
const (
	DefaultPatches  = "patches"
	DefaultOriginal = "build/original"
	DefaultPatched  = "build/patched"
	DefaultRenamed  = "src"
)

// Rule is the file form of a rename rule.
type Rule struct {
	Old string `yaml:"old" json:"old"`
	New string `yaml:"new" json:"new"`
}

// Project is a decoded project file. Paths are resolved against Dir.
type Project struct {
	Archive          string   `yaml:"archive" json:"archive"`
	Include          []string `yaml:"include" json:"include"`
	Patches          string   `yaml:"patches" json:"patches"`
	Original         string   `yaml:"original" json:"original"`
	Patched          string   `yaml:"patched" json:"patched"`
	Renamed          string   `yaml:"renamed" json:"renamed"`
	Rules            []Rule   `yaml:"rules" json:"rules"`
	Strict           bool     `yaml:"strict" json:"strict"`
	IgnoreWhitespace bool     `yaml:"ignoreWhitespace" json:"ignoreWhitespace"`
	Workers          int      `yaml:"workers" json:"workers"`

	// Dir is the directory holding the project file.
	Dir string `yaml:"-" json:"-"`
}

// ValidationError lists every schema violation of a project file.
type ValidationError struct {
	Path   string
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return fmt.Sprintf("%s: project file failed schema validation", e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Path, strings.Join(e.Issues, "; "))
}

var (
	schemaLoader     gojsonschema.JSONLoader
	schemaLoaderErr  error
	schemaLoaderOnce sync.Once
)

func loadSchema() (gojsonschema.JSONLoader, error) {
	schemaLoaderOnce.Do(func() {
		schema, err := Schema()
		if err != nil {
			schemaLoaderErr = err
			return
		}
		schemaLoader = gojsonschema.NewGoLoader(schema)
	})
	return schemaLoader, schemaLoaderErr
}

// Find returns path when set, otherwise the first default file present in
// dir.
func Find(path, dir string) (string, error) {
	if path != "" {
		return path, nil
	}
	for _, name := range DefaultFiles {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("project: no project file (%s) in %s", strings.Join(DefaultFiles, ", "), dir)
}

// Load reads, validates and decodes the project file at path. Files ending
// in .json are decoded as JSON, everything else as YAML.
func Load(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("project: %w", err)
	}

	var doc any
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &doc)
	} else {
		err = yaml.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("project: parse %s: %w", path, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	if err := validate(path, doc); err != nil {
		return nil, err
	}

	// The document is known to be well formed; round-trip it through JSON so
	// both encodings decode with the same tags.
	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("project: %s: %w", path, err)
	}
	var p Project
	if err := json.Unmarshal(normalized, &p); err != nil {
		return nil, fmt.Errorf("project: decode %s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("project: %w", err)
	}
	p.Dir = filepath.Dir(abs)
	p.applyDefaults()
	if _, err := p.RenameRules(); err != nil {
		return nil, fmt.Errorf("project: %s: %w", path, err)
	}
	return &p, nil
}

func validate(path string, doc any) error {
	loader, err := loadSchema()
	if err != nil {
		return err
	}
	result, err := gojsonschema.Validate(loader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("project: validate %s: %w", path, err)
	}
	if result.Valid() {
		return nil
	}
	issues := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		issues = append(issues, desc.String())
	}
	return &ValidationError{Path: path, Issues: issues}
}

func (p *Project) applyDefaults() {
	if p.Patches == "" {
		p.Patches = DefaultPatches
	}
	if p.Original == "" {
		p.Original = DefaultOriginal
	}
	if p.Patched == "" {
		p.Patched = DefaultPatched
	}
	if p.Renamed == "" {
		p.Renamed = DefaultRenamed
	}
}

// Resolve joins a project-relative path with Dir. Absolute paths are kept.
func (p *Project) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(p.Dir, filepath.FromSlash(path))
}

// RenameRules converts and validates the rules.
func (p *Project) RenameRules() (rename.Rules, error) {
	rules := make(rename.Rules, len(p.Rules))
	for i, r := range p.Rules {
		rules[i] = rename.Rule{Old: r.Old, New: r.New}
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return rules, nil
}
