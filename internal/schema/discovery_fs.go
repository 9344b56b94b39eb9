package schema

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	overallExt    = ".graphql"
	underlyingExt = ".underlying.graphql"
)

// FileSystemDiscovery implements Discovery over a directory tree. A service
// named "users" is made of users.graphql (overall) and
// users.underlying.graphql (underlying), anywhere below the root.
type FileSystemDiscovery struct {
	root  string
	metas map[string]*ServiceMetadata
}

// NewFileSystemDiscovery scans rootDir for service schema files.
func NewFileSystemDiscovery(ctx context.Context, rootDir string) (*FileSystemDiscovery, error) {
	discovery := &FileSystemDiscovery{
		root:  rootDir,
		metas: make(map[string]*ServiceMetadata),
	}
	meta := func(name string) *ServiceMetadata {
		m, ok := discovery.metas[name]
		if !ok {
			m = &ServiceMetadata{Name: name}
			discovery.metas[name] = m
		}
		return m
	}

	err := filepath.WalkDir(rootDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(d.Name()) != overallExt {
			return nil
		}
		relPath, err := filepath.Rel(rootDir, path)
		if err != nil {
			return fmt.Errorf("failed to get relative path for %q: %w", path, err)
		}
		if name, ok := strings.CutSuffix(d.Name(), underlyingExt); ok {
			m := meta(name)
			if m.UnderlyingPath != "" {
				return fmt.Errorf("duplicate underlying schema for service %q: %s and %s", name, m.UnderlyingPath, relPath)
			}
			m.UnderlyingPath = relPath
			return nil
		}
		name := strings.TrimSuffix(d.Name(), overallExt)
		m := meta(name)
		if m.OverallPath != "" {
			return fmt.Errorf("duplicate overall schema for service %q: %s and %s", name, m.OverallPath, relPath)
		}
		m.OverallPath = relPath
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk root directory %q: %w", rootDir, err)
	}

	for name, m := range discovery.metas {
		if m.OverallPath == "" {
			return nil, fmt.Errorf("service %q has no overall schema (%s%s)", name, name, overallExt)
		}
		if m.UnderlyingPath == "" {
			return nil, fmt.Errorf("service %q has no underlying schema (%s%s)", name, name, underlyingExt)
		}
	}
	return discovery, nil
}

// ListServices returns the discovered services ordered by name.
func (d *FileSystemDiscovery) ListServices(ctx context.Context) ([]*ServiceMetadata, error) {
	return sortedMetas(d.metas), nil
}

// ReadOverallSDL reads the overall schema file of a service.
func (d *FileSystemDiscovery) ReadOverallSDL(ctx context.Context, name string) (string, error) {
	m, ok := d.metas[name]
	if !ok {
		return "", fmt.Errorf("service %q not found", name)
	}
	return d.read(name, m.OverallPath)
}

// ReadUnderlyingSDL reads the underlying schema file of a service.
func (d *FileSystemDiscovery) ReadUnderlyingSDL(ctx context.Context, name string) (string, error) {
	m, ok := d.metas[name]
	if !ok {
		return "", fmt.Errorf("service %q not found", name)
	}
	return d.read(name, m.UnderlyingPath)
}

func (d *FileSystemDiscovery) read(name, rel string) (string, error) {
	content, err := os.ReadFile(filepath.Join(d.root, rel))
	if err != nil {
		return "", fmt.Errorf("failed to read SDL for %q: %w", name, err)
	}
	return string(content), nil
}

func sortedMetas(metas map[string]*ServiceMetadata) []*ServiceMetadata {
	out := make([]*ServiceMetadata, 0, len(metas))
	for _, m := range metas {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
