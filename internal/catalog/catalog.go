package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/nuffi-dev/nuffi/internal/core"
)

type key struct {
	typ ToolType
	id  string
}

// Catalog is a read-only index of tool manifests.
type Catalog struct {
	mu    sync.RWMutex
	tools map[key]*Manifest
}

// New builds a catalog from manifests, rejecting invalid ones.
func New(manifests ...*Manifest) (*Catalog, error) {
	c := &Catalog{tools: make(map[key]*Manifest, len(manifests))}
	for _, m := range manifests {
		if err := c.Add(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Load reads <dir>/gui and <dir>/cli. Unreadable or invalid manifests are logged and skipped.
func Load(dir string, log *zap.Logger) (*Catalog, error) {
	c := &Catalog{tools: make(map[key]*Manifest)}
	for _, typ := range []ToolType{ToolGUI, ToolCLI} {
		files, err := manifestFiles(filepath.Join(dir, string(typ)))
		if err != nil {
			return nil, err
		}
		for _, path := range files {
			var m Manifest
			if err := decodeFile(path, &m); err != nil {
				log.Warn("skipping manifest", zap.String("path", path), zap.Error(err))
				continue
			}
			if m.Type == "" {
				m.Type = typ
			}
			if err := c.Add(&m); err != nil {
				log.Warn("skipping manifest", zap.String("path", path), zap.Error(err))
			}
		}
	}
	log.Info("tool catalog loaded", zap.String("dir", dir), zap.Int("tools", len(c.tools)))
	return c, nil
}

func (c *Catalog) Add(m *Manifest) error {
	if err := Validate(m); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools[key{m.Type, m.ID}] = m
	return nil
}

// Resolve returns the manifest for a tool id of the given type.
func (c *Catalog) Resolve(id string, typ ToolType) (*Manifest, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.tools[key{typ, id}]
	if !ok {
		return nil, fmt.Errorf("%s tool %s: %w", typ, id, core.ErrNotFound)
	}
	return m, nil
}

// List returns all manifests of a type ordered by id. An empty type lists everything.
func (c *Catalog) List(typ ToolType) []*Manifest {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Manifest, 0, len(c.tools))
	for k, m := range c.tools {
		if typ == "" || k.typ == typ {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (c *Catalog) ByCategory(category string) []*Manifest {
	var out []*Manifest
	for _, m := range c.List("") {
		if strings.EqualFold(m.Category, category) {
			out = append(out, m)
		}
	}
	return out
}

// Search matches query case-insensitively against name, description and id.
func (c *Catalog) Search(query string) []*Manifest {
	q := strings.ToLower(query)
	var out []*Manifest
	for _, m := range c.List("") {
		if strings.Contains(strings.ToLower(m.Name), q) ||
			strings.Contains(strings.ToLower(m.Description), q) ||
			strings.Contains(strings.ToLower(m.ID), q) {
			out = append(out, m)
		}
	}
	return out
}

func (c *Catalog) Dependencies(id string, typ ToolType) []string {
	m, err := c.Resolve(id, typ)
	if err != nil {
		return nil
	}
	return m.Dependencies
}

func (c *Catalog) PlatformConfig(id string, typ ToolType, platform string) (PlatformConfig, bool) {
	m, err := c.Resolve(id, typ)
	if err != nil {
		return PlatformConfig{}, false
	}
	cfg, ok := m.Platforms[platform]
	return cfg, ok
}

func (c *Catalog) Available(id string, typ ToolType, platform string) bool {
	_, ok := c.PlatformConfig(id, typ, platform)
	return ok
}

// Size is the estimated install size, "Unknown" when the manifest omits it.
func (c *Catalog) Size(id string, typ ToolType, platform string) (string, bool) {
	cfg, ok := c.PlatformConfig(id, typ, platform)
	if !ok {
		return "", false
	}
	if cfg.Size == "" {
		return "Unknown", true
	}
	return cfg.Size, true
}

// Version is the platform version, "latest" when the manifest omits it.
func (c *Catalog) Version(id string, typ ToolType, platform string) (string, bool) {
	cfg, ok := c.PlatformConfig(id, typ, platform)
	if !ok {
		return "", false
	}
	if cfg.Version == "" {
		return "latest", true
	}
	return cfg.Version, true
}

func manifestFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".json", ".yaml", ".yml":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func decodeFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if filepath.Ext(path) == ".json" {
		return json.Unmarshal(data, v)
	}
	return yaml.Unmarshal(data, v)
}
