// Package msgcat holds the user-facing announcement and notice templates the
// bridge posts to the relay channel. Defaults are embedded; a deployment can
// override individual keys from a directory of YAML files.
package msgcat

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/template"

	yaml "gopkg.in/yaml.v3"
)

//go:embed messages.en.yaml
var defaultFiles embed.FS

// Catalog maps flattened dot-keys ("announce.join") to text/template bodies.
type Catalog struct {
	mu   sync.RWMutex
	data map[string]string
}

// New loads the embedded defaults, then applies overrides from dir when set.
func New(overrideDir string) (*Catalog, error) {
	c := &Catalog{data: make(map[string]string)}
	raw, err := fs.ReadFile(defaultFiles, "messages.en.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded messages: %w", err)
	}
	if err := c.applyYAML(raw); err != nil {
		return nil, err
	}
	if strings.TrimSpace(overrideDir) != "" {
		if err := c.applyDir(overrideDir); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Render executes the template under key with data. Missing template keys or
// missing data fields are errors; callers fall back to a plain string.
func (c *Catalog) Render(key string, data any) (string, error) {
	c.mu.RLock()
	tpl, ok := c.data[strings.TrimSpace(key)]
	c.mu.RUnlock()
	if !ok || strings.TrimSpace(tpl) == "" {
		return "", fmt.Errorf("template not found: %s", key)
	}
	t, err := template.New(key).Option("missingkey=error").Parse(tpl)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (c *Catalog) applyDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read template dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	seen := make(map[string]string) // key -> filename
	for _, name := range files {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		flat, err := parseYAMLToFlat(b)
		if err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
		for k := range flat {
			if prev, ok := seen[k]; ok {
				return fmt.Errorf("duplicate override key %q in %s and %s", k, prev, name)
			}
			seen[k] = name
		}
		c.mu.Lock()
		for k, v := range flat {
			c.data[k] = v
		}
		c.mu.Unlock()
	}
	return nil
}

func (c *Catalog) applyYAML(b []byte) error {
	flat, err := parseYAMLToFlat(b)
	if err != nil {
		return err
	}
	c.mu.Lock()
	for k, v := range flat {
		c.data[k] = v
	}
	c.mu.Unlock()
	return nil
}

func parseYAMLToFlat(b []byte) (map[string]string, error) {
	var m map[string]any
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	flat := make(map[string]string)
	if err := flatten(m, "", flat); err != nil {
		return nil, err
	}
	return flat, nil
}

func flatten(src any, prefix string, out map[string]string) error {
	switch v := src.(type) {
	case map[string]any:
		for k, vv := range v {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if err := flatten(vv, key, out); err != nil {
				return err
			}
		}
		return nil
	case string:
		if prefix == "" {
			return errors.New("string value without key prefix")
		}
		out[prefix] = v
		return nil
	case nil:
		return nil
	default:
		return fmt.Errorf("unsupported value at %s: %T", prefix, v)
	}
}
