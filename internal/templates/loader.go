package templates

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/hochfrequenz/sqlbench/internal/dbhandle"
	"github.com/hochfrequenz/sqlbench/internal/domain"
)

// Loader manages templates with override support.
type Loader struct {
	overrideDirs []string // Directories to check for overrides (in priority order)
	cache        map[string]*template.Template
	metaCache    map[string]*TemplateMeta
	mu           sync.RWMutex
}

// TemplateMeta holds frontmatter metadata.
type TemplateMeta struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Format      string `yaml:"format"`
}

// NewLoader creates a loader with the given override directories.
// Directories are checked in order; first match wins.
func NewLoader(overrideDirs ...string) *Loader {
	return &Loader{
		overrideDirs: overrideDirs,
		cache:        make(map[string]*template.Template),
		metaCache:    make(map[string]*TemplateMeta),
	}
}

// DefaultLoader creates a loader with standard override paths:
// 1. Project-local: .sqlbench/templates/
// 2. User config: ~/.config/sqlbench/templates/
func DefaultLoader(projectRoot string) *Loader {
	home, _ := os.UserHomeDir()
	dirs := []string{}

	if projectRoot != "" {
		dirs = append(dirs, filepath.Join(projectRoot, ".sqlbench", "templates"))
	}
	dirs = append(dirs, filepath.Join(home, ".config", "sqlbench", "templates"))

	return NewLoader(dirs...)
}

// loadContent loads raw content from override dirs or embedded FS.
func (l *Loader) loadContent(name string) ([]byte, error) {
	for _, dir := range l.overrideDirs {
		if data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(name))); err == nil {
			return data, nil
		}
	}
	return fs.ReadFile(embeddedFS, name)
}

// parseFrontmatter splits content into frontmatter and body.
func parseFrontmatter(content []byte) (*TemplateMeta, string, error) {
	str := string(content)

	if !strings.HasPrefix(str, "---\n") {
		return nil, str, nil // No frontmatter
	}

	end := strings.Index(str[4:], "\n---\n")
	if end == -1 {
		return nil, str, nil // Malformed, treat as no frontmatter
	}

	frontmatter := str[4 : 4+end]
	body := str[4+end+5:]

	var meta TemplateMeta
	if err := yaml.Unmarshal([]byte(frontmatter), &meta); err != nil {
		return nil, "", fmt.Errorf("parse frontmatter: %w", err)
	}

	return &meta, body, nil
}

// LoadTemplate loads and parses a template by path (e.g., "config/yaml.tmpl").
func (l *Loader) LoadTemplate(name string) (*template.Template, *TemplateMeta, error) {
	l.mu.RLock()
	if tmpl, ok := l.cache[name]; ok {
		meta := l.metaCache[name]
		l.mu.RUnlock()
		return tmpl, meta, nil
	}
	l.mu.RUnlock()

	content, err := l.loadContent(name)
	if err != nil {
		return nil, nil, fmt.Errorf("load %s: %w", name, err)
	}

	meta, body, err := parseFrontmatter(content)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", name, err)
	}

	tmpl, err := template.New(name).Option("missingkey=error").Parse(body)
	if err != nil {
		return nil, nil, fmt.Errorf("compile template %s: %w", name, err)
	}

	l.mu.Lock()
	l.cache[name] = tmpl
	l.metaCache[name] = meta
	l.mu.Unlock()

	return tmpl, meta, nil
}

// Execute loads and executes a template with the given data.
func (l *Loader) Execute(name string, data interface{}) (string, error) {
	tmpl, _, err := l.LoadTemplate(name)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute %s: %w", name, err)
	}

	return buf.String(), nil
}

// ListConfigTemplates returns metadata for all embedded config templates
func (l *Loader) ListConfigTemplates() ([]*TemplateMeta, error) {
	entries, err := fs.ReadDir(embeddedFS, "config")
	if err != nil {
		return nil, err
	}

	var result []*TemplateMeta
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".tmpl") {
			continue
		}
		_, meta, err := l.LoadTemplate(path.Join("config", entry.Name()))
		if err != nil {
			return nil, err
		}
		if meta != nil {
			result = append(result, meta)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// ConfigData holds template variables for config files
type ConfigData struct {
	BatchSize    int
	RepeatCount  int
	MaxParallel  int
	PollInterval string
	ResultsDir   string
	Environment  string
	Benchmarks   []domain.Benchmark
	Engines      []dbhandle.Engine
}

// DefaultConfigData describes a compose setup against every catalogue engine
func DefaultConfigData() ConfigData {
	engines := make([]dbhandle.Engine, 0, len(dbhandle.Names()))
	for _, name := range dbhandle.Names() {
		e, _ := dbhandle.Lookup(name)
		engines = append(engines, e)
	}
	return ConfigData{
		BatchSize:    10,
		RepeatCount:  5,
		MaxParallel:  7,
		PollInterval: "10s",
		ResultsDir:   "results",
		Environment:  "compose",
		Benchmarks:   []domain.Benchmark{{Name: "tpch", TotalQueries: 22}},
		Engines:      engines,
	}
}

// RenderConfig renders the config template with the given id ("yaml" or
// "toml") and returns the body and the file extension it expects
func (l *Loader) RenderConfig(id string, data ConfigData) (string, string, error) {
	name := path.Join("config", id+".tmpl")
	_, meta, err := l.LoadTemplate(name)
	if err != nil {
		return "", "", err
	}
	out, err := l.Execute(name, data)
	if err != nil {
		return "", "", err
	}
	ext := id
	if meta != nil && meta.Format != "" {
		ext = meta.Format
	}
	return out, ext, nil
}

// ClearCache clears the template cache (useful for development/testing).
func (l *Loader) ClearCache() {
	l.mu.Lock()
	l.cache = make(map[string]*template.Template)
	l.metaCache = make(map[string]*TemplateMeta)
	l.mu.Unlock()
}
