// Package project implements ports.Project over a directory with a YAML manifest.
package project

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aretw0/tasktree/internal/fsutil"
	"gopkg.in/yaml.v3"
)

// ManifestPath is the manifest location relative to the project root.
var ManifestPath = filepath.Join(".tasktree", "project.yaml")

// Manifest is the persisted project description.
type Manifest struct {
	Name  string   `yaml:"name"`
	Files []string `yaml:"files"`
}

// Dir is a project rooted at a directory. Registered files are written to the
// manifest on every change.
// Safe for concurrent use.
type Dir struct {
	root string

	mu       sync.Mutex
	manifest Manifest
	known    map[string]struct{}
}

// Open loads the project at root, creating an empty manifest in memory if none exists.
func Open(root string) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid project root: %w", err)
	}
	d := &Dir{root: abs, known: make(map[string]struct{})}

	data, err := os.ReadFile(filepath.Join(abs, ManifestPath))
	switch {
	case errors.Is(err, os.ErrNotExist):
		d.manifest.Name = filepath.Base(abs)
	case err != nil:
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	default:
		if err := yaml.Unmarshal(data, &d.manifest); err != nil {
			return nil, fmt.Errorf("failed to parse manifest: %w", err)
		}
	}
	for _, f := range d.manifest.Files {
		d.known[f] = struct{}{}
	}
	return d, nil
}

// Root returns the absolute project root.
func (d *Dir) Root() string { return d.root }

// Name returns the project name from the manifest.
func (d *Dir) Name() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.manifest.Name
}

// RegisterFile adds name to the manifest. Known names are ignored.
func (d *Dir) RegisterFile(ctx context.Context, name string) error {
	name = filepath.ToSlash(filepath.Clean(name))
	if !filepath.IsLocal(filepath.FromSlash(name)) {
		return fmt.Errorf("file %q is outside the project", name)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.known[name]; ok {
		return nil
	}
	d.known[name] = struct{}{}
	d.manifest.Files = append(d.manifest.Files, name)
	if err := d.saveLocked(); err != nil {
		delete(d.known, name)
		d.manifest.Files = d.manifest.Files[:len(d.manifest.Files)-1]
		return err
	}
	return nil
}

// Files lists the registered names in registration order.
func (d *Dir) Files() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string{}, d.manifest.Files...)
}

func (d *Dir) saveLocked() error {
	data, err := yaml.Marshal(&d.manifest)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := fsutil.WriteFileAtomic(filepath.Join(d.root, ManifestPath), data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}
