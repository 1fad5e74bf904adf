package core

import (
	"encoding/json"
	"time"
)

type WorkspaceStatus string

const (
	WorkspaceInstalling WorkspaceStatus = "installing"
	WorkspaceActive     WorkspaceStatus = "active"
	WorkspaceInactive   WorkspaceStatus = "inactive"
	WorkspaceError      WorkspaceStatus = "error"
	WorkspaceArchived   WorkspaceStatus = "archived"
)

// ParseWorkspaceStatus validates s against the known workspace states.
func ParseWorkspaceStatus(s string) (WorkspaceStatus, error) {
	switch st := WorkspaceStatus(s); st {
	case WorkspaceInstalling, WorkspaceActive, WorkspaceInactive, WorkspaceError, WorkspaceArchived:
		return st, nil
	}
	return "", &ValidationError{Field: "status", Message: "unknown workspace status " + s}
}

// CanStartInstall reports whether a new run may be started from this state.
func (s WorkspaceStatus) CanStartInstall() bool {
	return s != WorkspaceInstalling && s != WorkspaceArchived
}

// Inventory is what the installer actually applied to a workspace.
type Inventory struct {
	Tools    []string            `json:"installed_tools"`
	Packages map[string][]string `json:"installed_packages"`
	Dotfiles []string            `json:"installed_dotfiles"`
}

// Merge appends other into inv.
func (inv *Inventory) Merge(other Inventory) {
	inv.Tools = append(inv.Tools, other.Tools...)
	inv.Dotfiles = append(inv.Dotfiles, other.Dotfiles...)
	if len(other.Packages) == 0 {
		return
	}
	if inv.Packages == nil {
		inv.Packages = make(map[string][]string, len(other.Packages))
	}
	for mgr, pkgs := range other.Packages {
		inv.Packages[mgr] = append(inv.Packages[mgr], pkgs...)
	}
}

// Empty reports whether nothing was installed.
func (inv Inventory) Empty() bool {
	return len(inv.Tools) == 0 && len(inv.Packages) == 0 && len(inv.Dotfiles) == 0
}

type Workspace struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	TemplateID     *string         `json:"template_id,omitempty"`
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	WorkspaceType  string          `json:"workspace_type"`
	Status         WorkspaceStatus `json:"status"`
	Progress       int             `json:"installation_progress"`
	Inventory      Inventory       `json:"inventory"`
	CustomSettings json.RawMessage `json:"custom_settings,omitempty"`
	IdempotencyKey string          `json:"-"`
	RequestHash    string          `json:"-"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
