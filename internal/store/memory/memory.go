// Package memory is an in-process store.Store used when no database is configured.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nuffi-dev/nuffi/internal/core"
	"github.com/nuffi-dev/nuffi/internal/store"
)

// Store keeps everything in maps behind one mutex. Values are copied in and
// out so callers never share memory with the store.
type Store struct {
	mu         sync.Mutex
	templates  map[string]*core.Template
	workspaces map[string]*workspace
	logs       []core.InstallationLog
	seq        int64
	now        func() time.Time
}

type workspace struct {
	core.Workspace
	order int64
}

func New() *Store {
	return &Store{
		templates:  make(map[string]*core.Template),
		workspaces: make(map[string]*workspace),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) CreateTemplate(_ context.Context, tpl *core.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tpl.ID == "" {
		tpl.ID = core.NewID()
	}
	for _, t := range s.templates {
		if t.Slug == tpl.Slug {
			return fmt.Errorf("template slug %s: %w", tpl.Slug, core.ErrConflict)
		}
	}
	tpl.CreatedAt = s.now()
	tpl.UpdatedAt = tpl.CreatedAt
	cp := cloneTemplate(*tpl)
	s.templates[tpl.ID] = &cp
	return nil
}

func (s *Store) GetTemplate(_ context.Context, id string) (*core.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[id]
	if !ok {
		return nil, fmt.Errorf("template %s: %w", id, core.ErrNotFound)
	}
	cp := cloneTemplate(*t)
	return &cp, nil
}

func (s *Store) GetTemplateBySlug(_ context.Context, slug string) (*core.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.templates {
		if t.Slug == slug {
			cp := cloneTemplate(*t)
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("template %s: %w", slug, core.ErrNotFound)
}

func (s *Store) ListTemplates(_ context.Context, f store.TemplateFilter) ([]core.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	search := strings.ToLower(f.Search)
	var out []core.Template
	for _, t := range s.templates {
		switch {
		case f.PublicOnly && !t.IsPublic,
			f.Category != "" && t.Category != f.Category,
			f.Official != nil && t.IsOfficial != *f.Official,
			f.Difficulty != "" && t.Requirements["difficulty"] != f.Difficulty,
			search != "" && !strings.Contains(strings.ToLower(t.Name), search) &&
				!strings.Contains(strings.ToLower(t.Description), search):
			continue
		}
		out = append(out, cloneTemplate(*t))
	}
	slices.SortFunc(out, func(a, b core.Template) int {
		return cmp.Or(
			cmp.Compare(b.Downloads, a.Downloads),
			cmp.Compare(b.RatingAverage, a.RatingAverage),
			b.CreatedAt.Compare(a.CreatedAt),
		)
	})
	if f.Offset > 0 {
		out = out[min(f.Offset, len(out)):]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) ListCategories(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cats []string
	for _, t := range s.templates {
		if !slices.Contains(cats, t.Category) {
			cats = append(cats, t.Category)
		}
	}
	slices.Sort(cats)
	return cats, nil
}

func (s *Store) IncrementDownloads(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[id]
	if !ok {
		return fmt.Errorf("template %s: %w", id, core.ErrNotFound)
	}
	t.Downloads++
	return nil
}

func (s *Store) RateTemplate(_ context.Context, id string, rating int) (*core.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[id]
	if !ok {
		return nil, fmt.Errorf("template %s: %w", id, core.ErrNotFound)
	}
	t.RatingAverage, t.RatingCount = store.NextRating(t.RatingAverage, t.RatingCount, rating)
	t.UpdatedAt = s.now()
	cp := cloneTemplate(*t)
	return &cp, nil
}

func (s *Store) CreateWorkspace(_ context.Context, ws *core.Workspace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ws.ID == "" {
		ws.ID = core.NewID()
	}
	if _, ok := s.workspaces[ws.ID]; ok {
		return fmt.Errorf("workspace %s: %w", ws.ID, core.ErrConflict)
	}
	if ws.IdempotencyKey != "" {
		for _, w := range s.workspaces {
			if w.UserID == ws.UserID && w.IdempotencyKey == ws.IdempotencyKey {
				return fmt.Errorf("workspace key %s: %w", ws.IdempotencyKey, core.ErrConflict)
			}
		}
	}
	ws.CreatedAt = s.now()
	ws.UpdatedAt = ws.CreatedAt
	s.seq++
	s.workspaces[ws.ID] = &workspace{Workspace: cloneWorkspace(*ws), order: s.seq}
	return nil
}

func (s *Store) GetWorkspace(_ context.Context, id, userID string) (*core.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.lookup(id, userID)
	if err != nil {
		return nil, err
	}
	cp := cloneWorkspace(w.Workspace)
	return &cp, nil
}

func (s *Store) GetWorkspaceByIdempotencyKey(_ context.Context, userID, key string) (*core.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.workspaces {
		if w.UserID == userID && w.IdempotencyKey == key {
			cp := cloneWorkspace(w.Workspace)
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("workspace key %s: %w", key, core.ErrNotFound)
}

func (s *Store) ListWorkspaces(_ context.Context, f store.WorkspaceFilter) ([]core.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []*workspace
	for _, w := range s.workspaces {
		if (f.UserID == "" || w.UserID == f.UserID) && (f.Status == "" || w.Status == f.Status) {
			matched = append(matched, w)
		}
	}
	slices.SortFunc(matched, func(a, b *workspace) int { return cmp.Compare(b.order, a.order) })
	out := make([]core.Workspace, len(matched))
	for i, w := range matched {
		out[i] = cloneWorkspace(w.Workspace)
	}
	return out, nil
}

func (s *Store) BeginInstall(_ context.Context, id, userID string) (*core.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.lookup(id, userID)
	if err != nil {
		return nil, err
	}
	if !w.Status.CanStartInstall() {
		return nil, store.RefuseInstall(&w.Workspace)
	}
	w.Status = core.WorkspaceInstalling
	w.Progress = 0
	w.Inventory = core.Inventory{}
	w.UpdatedAt = s.now()
	cp := cloneWorkspace(w.Workspace)
	return &cp, nil
}

func (s *Store) SetProgress(_ context.Context, id string, progress int, inv core.Inventory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workspaces[id]
	if !ok || w.Status != core.WorkspaceInstalling {
		return fmt.Errorf("workspace %s: %w", id, core.ErrNotInstalling)
	}
	if progress < w.Progress {
		return fmt.Errorf("workspace %s: progress %d below committed %d", id, progress, w.Progress)
	}
	w.Progress = min(progress, 100)
	w.Inventory.Merge(cloneInventory(inv))
	w.UpdatedAt = s.now()
	return nil
}

func (s *Store) SetStatus(_ context.Context, id string, status core.WorkspaceStatus, progress *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workspaces[id]
	if !ok || w.Status != core.WorkspaceInstalling {
		return fmt.Errorf("workspace %s: %w", id, core.ErrNotInstalling)
	}
	w.Status = status
	if progress != nil {
		w.Progress = *progress
	}
	w.UpdatedAt = s.now()
	return nil
}

func (s *Store) DeleteWorkspace(_ context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.lookup(id, userID)
	if err != nil {
		return err
	}
	if w.Status == core.WorkspaceInstalling {
		return fmt.Errorf("workspace %s: %w", id, core.ErrConflict)
	}
	delete(s.workspaces, id)
	s.logs = slices.DeleteFunc(s.logs, func(l core.InstallationLog) bool { return l.WorkspaceID == id })
	return nil
}

func (s *Store) AppendLog(_ context.Context, l *core.InstallationLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workspaces[l.WorkspaceID]; !ok {
		return fmt.Errorf("workspace %s: %w", l.WorkspaceID, core.ErrNotFound)
	}
	if l.ID == "" {
		l.ID = core.NewID()
	}
	if l.StartedAt.IsZero() {
		l.StartedAt = s.now()
	}
	s.seq++
	l.Seq = s.seq
	s.logs = append(s.logs, *l)
	return nil
}

func (s *Store) ListLogs(_ context.Context, f core.LogFilter) ([]core.InstallationLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.InstallationLog
	for i := len(s.logs) - 1; i >= 0; i-- {
		l := s.logs[i]
		switch {
		case f.WorkspaceID != "" && l.WorkspaceID != f.WorkspaceID,
			f.WorkspaceIDs != nil && !slices.Contains(f.WorkspaceIDs, l.WorkspaceID),
			f.Kind != "" && l.Kind != f.Kind,
			f.Status != "" && l.Status != f.Status:
			continue
		}
		out = append(out, l)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) ResetFailedLogs(_ context.Context, workspaceID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.logs {
		l := &s.logs[i]
		if l.WorkspaceID == workspaceID && l.Status == core.LogFailed {
			l.Status = core.LogPending
			l.ErrorMessage = nil
			n++
		}
	}
	return n, nil
}

func (s *Store) lookup(id, userID string) (*workspace, error) {
	w, ok := s.workspaces[id]
	if !ok || (userID != "" && w.UserID != userID) {
		return nil, fmt.Errorf("workspace %s: %w", id, core.ErrNotFound)
	}
	return w, nil
}

func cloneTemplate(t core.Template) core.Template {
	t.GUITools = slices.Clone(t.GUITools)
	t.CLITools = slices.Clone(t.CLITools)
	t.Tags = slices.Clone(t.Tags)
	t.Dotfiles = slices.Clone(t.Dotfiles)
	if t.Packages != nil {
		pkgs := make(core.PackageSet, len(t.Packages))
		for i, g := range t.Packages {
			pkgs[i] = core.PackageGroup{Manager: g.Manager, Raw: slices.Clone(g.Raw)}
		}
		t.Packages = pkgs
	}
	t.Settings = cloneMap(t.Settings)
	t.Requirements = cloneMap(t.Requirements)
	return t
}

// cloneMap copies decoded JSON values, descending into nested maps and slices.
func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return cloneMap(v)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	}
	return v
}

func cloneWorkspace(ws core.Workspace) core.Workspace {
	ws.Inventory = cloneInventory(ws.Inventory)
	ws.CustomSettings = slices.Clone(ws.CustomSettings)
	return ws
}

func cloneInventory(inv core.Inventory) core.Inventory {
	out := core.Inventory{
		Tools:    slices.Clone(inv.Tools),
		Dotfiles: slices.Clone(inv.Dotfiles),
	}
	if inv.Packages != nil {
		out.Packages = make(map[string][]string, len(inv.Packages))
		for mgr, pkgs := range inv.Packages {
			out.Packages[mgr] = slices.Clone(pkgs)
		}
	}
	return out
}

var _ store.Store = (*Store)(nil)
