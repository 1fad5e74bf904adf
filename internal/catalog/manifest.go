// Package catalog resolves tool identifiers to installable manifests and loads
// workspace templates from disk. Files may be JSON or YAML.
package catalog

import (
	"fmt"
	"runtime"

	"github.com/nuffi-dev/nuffi/internal/core"
)

type ToolType string

const (
	ToolGUI ToolType = "gui"
	ToolCLI ToolType = "cli"
)

const (
	PlatformWindows = "windows"
	PlatformMacOS   = "macos"
	PlatformLinux   = "linux"
)

var knownPlatforms = map[string]bool{PlatformWindows: true, PlatformMacOS: true, PlatformLinux: true}

type PlatformConfig struct {
	Installer string `json:"installer" yaml:"installer"`
	Size      string `json:"size,omitempty" yaml:"size"`
	Version   string `json:"version,omitempty" yaml:"version"`
}

type Manifest struct {
	ID           string                    `json:"id" yaml:"id"`
	Name         string                    `json:"name" yaml:"name"`
	Type         ToolType                  `json:"type" yaml:"type"`
	Category     string                    `json:"category,omitempty" yaml:"category"`
	Description  string                    `json:"description,omitempty" yaml:"description"`
	Dependencies []string                  `json:"dependencies,omitempty" yaml:"dependencies"`
	Platforms    map[string]PlatformConfig `json:"platforms" yaml:"platforms"`
}

// Validate checks required fields. Entries for unknown platforms are ignored.
func Validate(m *Manifest) error {
	switch {
	case m.ID == "":
		return &core.ValidationError{Field: "id", Message: "manifest id required"}
	case m.Name == "":
		return &core.ValidationError{Field: "name", Message: fmt.Sprintf("manifest %s: name required", m.ID)}
	case m.Type != ToolGUI && m.Type != ToolCLI:
		return &core.ValidationError{Field: "type", Message: fmt.Sprintf("manifest %s: type must be gui or cli", m.ID)}
	case m.Platforms == nil:
		return &core.ValidationError{Field: "platforms", Message: fmt.Sprintf("manifest %s: platforms required", m.ID)}
	}
	for platform, cfg := range m.Platforms {
		if !knownPlatforms[platform] {
			continue
		}
		if cfg.Installer == "" {
			return &core.ValidationError{
				Field:   "platforms." + platform + ".installer",
				Message: fmt.Sprintf("manifest %s: installer required", m.ID),
			}
		}
	}
	return nil
}

// CurrentPlatform maps the running OS onto a manifest platform key.
func CurrentPlatform() string {
	switch runtime.GOOS {
	case "darwin":
		return PlatformMacOS
	case "windows":
		return PlatformWindows
	default:
		return PlatformLinux
	}
}
