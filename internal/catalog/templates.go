package catalog

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/nuffi-dev/nuffi/internal/core"
)

// LoadTemplates reads every template file in dir. A missing slug defaults to the file name.
func LoadTemplates(dir string, log *zap.Logger) ([]core.Template, error) {
	files, err := manifestFiles(dir)
	if err != nil {
		return nil, err
	}
	templates := make([]core.Template, 0, len(files))
	for _, path := range files {
		tpl, err := loadTemplate(path)
		if err != nil {
			log.Warn("skipping template", zap.String("path", path), zap.Error(err))
			continue
		}
		templates = append(templates, tpl)
	}
	return templates, nil
}

func loadTemplate(path string) (core.Template, error) {
	var tpl core.Template
	if err := decodeFile(path, &tpl); err != nil {
		return tpl, err
	}
	var flags struct {
		IsPublic *bool `json:"is_public" yaml:"is_public"`
	}
	if err := decodeFile(path, &flags); err != nil {
		return tpl, err
	}
	tpl.IsPublic = flags.IsPublic == nil || *flags.IsPublic
	if tpl.Slug == "" {
		tpl.Slug = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if tpl.Name == "" {
		return tpl, &core.ValidationError{Field: "name", Message: "template name required"}
	}
	if tpl.Category == "" {
		return tpl, &core.ValidationError{Field: "category", Message: "template category required"}
	}
	if tpl.Requirements == nil {
		tpl.Requirements = map[string]any{}
	}
	return tpl, nil
}

type TemplateSeeder interface {
	GetTemplateBySlug(ctx context.Context, slug string) (*core.Template, error)
	CreateTemplate(ctx context.Context, tpl *core.Template) error
}

// SeedTemplates inserts templates whose slug is not stored yet and returns how many were added.
func SeedTemplates(ctx context.Context, s TemplateSeeder, templates []core.Template, log *zap.Logger) (int, error) {
	added := 0
	for i := range templates {
		tpl := templates[i]
		_, err := s.GetTemplateBySlug(ctx, tpl.Slug)
		if err == nil {
			log.Debug("template exists, skipping", zap.String("slug", tpl.Slug))
			continue
		}
		if !errors.Is(err, core.ErrNotFound) {
			return added, fmt.Errorf("lookup template %s: %w", tpl.Slug, err)
		}
		if tpl.ID == "" {
			tpl.ID = core.NewID()
		}
		if err := s.CreateTemplate(ctx, &tpl); err != nil {
			return added, fmt.Errorf("create template %s: %w", tpl.Slug, err)
		}
		log.Info("template seeded", zap.String("slug", tpl.Slug), zap.String("template_id", tpl.ID))
		added++
	}
	return added, nil
}
