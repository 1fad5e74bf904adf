package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultSetupTime  = "15-20 min"
	DefaultDifficulty = "Intermediate"
)

type Template struct {
	ID              string         `json:"id" yaml:"id"`
	Name            string         `json:"name" yaml:"name"`
	Slug            string         `json:"slug" yaml:"slug"`
	Category        string         `json:"category" yaml:"category"`
	Description     string         `json:"description" yaml:"description"`
	LongDescription string         `json:"long_description,omitempty" yaml:"long_description"`
	GUITools        []string       `json:"gui_tools" yaml:"gui_tools"`
	CLITools        []string       `json:"cli_tools" yaml:"cli_tools"`
	Packages        PackageSet     `json:"packages" yaml:"packages"`
	Dotfiles        []Dotfile      `json:"dotfiles" yaml:"dotfiles"`
	Settings        map[string]any `json:"settings,omitempty" yaml:"settings"`
	Requirements    map[string]any `json:"requirements" yaml:"requirements"`
	Tags            []string       `json:"tags" yaml:"tags"`
	Downloads       int            `json:"downloads" yaml:"downloads"`
	RatingAverage   float64        `json:"rating_average" yaml:"rating_average"`
	RatingCount     int            `json:"rating_count" yaml:"rating_count"`
	IsOfficial      bool           `json:"is_official" yaml:"is_official"`
	IsPremium       bool           `json:"is_premium" yaml:"is_premium"`
	IsPublic        bool           `json:"is_public" yaml:"is_public"`
	CreatedAt       time.Time      `json:"created_at" yaml:"-"`
	UpdatedAt       time.Time      `json:"updated_at" yaml:"-"`
}

func (t *Template) SetupTime() string {
	return t.requirement("setup_time", DefaultSetupTime)
}

func (t *Template) Difficulty() string {
	return t.requirement("difficulty", DefaultDifficulty)
}

func (t *Template) requirement(key, def string) string {
	if v, ok := t.Requirements[key].(string); ok && v != "" {
		return v
	}
	return def
}

// Dotfile describes one configuration file applied to the workspace.
type Dotfile struct {
	Filename string `json:"filename,omitempty" yaml:"filename"`
	Target   string `json:"target,omitempty" yaml:"target"`
	Content  string `json:"content,omitempty" yaml:"content"`
}

// Name is the filename, or config_<index> when the descriptor has none.
func (d Dotfile) Name(index int) string {
	if d.Filename != "" {
		return d.Filename
	}
	return "config_" + strconv.Itoa(index)
}

// PackageGroup is one package-manager entry: a list of names or a single scalar.
// The value is kept raw and validated by the step that consumes it.
type PackageGroup struct {
	Manager string
	Raw     json.RawMessage
}

// Items returns the package names. list is false for a scalar entry, which counts as one item.
func (g PackageGroup) Items() (names []string, list bool, err error) {
	raw := bytes.TrimSpace(g.Raw)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		return nil, false, &ValidationError{Field: "packages." + g.Manager, Message: "empty package entry"}
	case raw[0] == '[':
		if err := json.Unmarshal(raw, &names); err != nil {
			return nil, true, &ValidationError{Field: "packages." + g.Manager, Message: "package list must contain names"}
		}
		return names, true, nil
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, false, &ValidationError{Field: "packages." + g.Manager, Message: err.Error()}
		}
		return []string{s}, false, nil
	default:
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return nil, false, &ValidationError{Field: "packages." + g.Manager, Message: err.Error()}
		}
		return []string{buf.String()}, false, nil
	}
}

// Count is the number of items the group contributes to the step total.
func (g PackageGroup) Count() (int, error) {
	names, list, err := g.Items()
	if err != nil {
		return 0, err
	}
	if !list {
		return 1, nil
	}
	return len(names), nil
}

// PackageSet maps package manager to packages, keeping document order.
type PackageSet []PackageGroup

// Total sums list lengths, counting scalar entries as one.
func (p PackageSet) Total() (int, error) {
	total := 0
	for _, g := range p {
		n, err := g.Count()
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// Lists builds a set of list-valued groups in the given manager order.
func Lists(order []string, pkgs map[string][]string) PackageSet {
	set := make(PackageSet, 0, len(order))
	for _, mgr := range order {
		raw, _ := json.Marshal(pkgs[mgr])
		set = append(set, PackageGroup{Manager: mgr, Raw: raw})
	}
	return set
}

func (p PackageSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, g := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(g.Manager)
		buf.Write(key)
		buf.WriteByte(':')
		if len(g.Raw) == 0 {
			buf.WriteString("null")
		} else {
			buf.Write(g.Raw)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (p *PackageSet) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*p = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return &ValidationError{Field: "packages", Message: "must be an object of package managers"}
	}
	set := PackageSet{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("packages.%s: %w", key, err)
		}
		set = append(set, PackageGroup{Manager: key, Raw: raw})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*p = set
	return nil
}

func (p *PackageSet) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		*p = nil
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return &ValidationError{Field: "packages", Message: "must be a mapping of package managers"}
	}
	set := make(PackageSet, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		var v any
		if err := val.Decode(&v); err != nil {
			return fmt.Errorf("packages.%s: %w", key.Value, err)
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("packages.%s: %w", key.Value, err)
		}
		set = append(set, PackageGroup{Manager: key.Value, Raw: raw})
	}
	*p = set
	return nil
}
