// Package loader implements the Definition Loader (spec §4 Process
// Bootstrap / §6 "one concrete loader is required"): it parses workflow
// definition text on disk into validated workflow.Definition values.
//
// The format is pluggable in principle, but YAML is the one concrete
// format this rewrite ships, the same choice the teacher's own workflow
// loader makes (station/internal/workflows/loader.go).
package loader

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/flowmediator/mediator/internal/workflow"
)

// LoadError pairs a definition file with the error encountered loading it.
type LoadError struct {
	FilePath string
	Err      error
}

func (e LoadError) Error() string {
	return fmt.Sprintf("%s: %v", e.FilePath, e.Err)
}

func (e LoadError) Unwrap() error {
	return e.Err
}

// LoadResult is the outcome of loading every definition file in a directory.
// A DefinitionError (spec §7) for one file does not prevent the others from
// loading — the offending file is skipped and recorded in Errors.
type LoadResult struct {
	Definitions []*workflow.Definition
	Errors      []LoadError
}

// Loader loads `*.workflow.yaml` / `*.workflow.yml` definition files from a
// directory.
type Loader struct {
	dir string
}

// New returns a Loader rooted at dir.
func New(dir string) *Loader {
	return &Loader{dir: dir}
}

// LoadAll loads every definition file in the configured directory.
func (l *Loader) LoadAll() (*LoadResult, error) {
	result := &LoadResult{}

	if _, err := os.Stat(l.dir); os.IsNotExist(err) {
		return result, nil
	}

	var files []string
	for _, pattern := range []string{"*.workflow.yaml", "*.workflow.yml"} {
		matches, err := filepath.Glob(filepath.Join(l.dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", pattern, err)
		}
		files = append(files, matches...)
	}

	for _, path := range files {
		def, err := l.LoadFile(path)
		if err != nil {
			result.Errors = append(result.Errors, LoadError{FilePath: path, Err: err})
			continue
		}
		result.Definitions = append(result.Definitions, def)
	}

	return result, nil
}

// LoadFile loads and validates a single definition file.
func (l *Loader) LoadFile(path string) (*workflow.Definition, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(content)
}

// Parse decodes raw YAML bytes into a validated Definition. It is exposed
// separately from LoadFile so callers (and tests) can validate in-memory
// definition text without touching the filesystem.
func Parse(content []byte) (*workflow.Definition, error) {
	var def workflow.Definition
	if err := yaml.Unmarshal(content, &def); err != nil {
		return nil, fmt.Errorf("%w: parsing yaml: %v", workflow.ErrDefinition, err)
	}

	if verr, _ := workflow.ValidateDefinition(&def); verr != nil {
		return nil, fmt.Errorf("%w: %v", workflow.ErrDefinition, verr)
	}

	return &def, nil
}
