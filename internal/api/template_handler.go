package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nuffi-dev/nuffi/internal/core"
	"github.com/nuffi-dev/nuffi/internal/store"
)

type TemplateResponse struct {
	core.Template
	SetupTime  string `json:"setup_time"`
	Difficulty string `json:"difficulty"`
}

type PopularTemplate struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Category      string  `json:"category"`
	Downloads     int     `json:"downloads"`
	RatingAverage float64 `json:"rating_average"`
}

type RatingResponse struct {
	Message      string  `json:"message"`
	NewAverage   float64 `json:"new_average"`
	TotalRatings int     `json:"total_ratings"`
}

// ListTemplates lists public templates, most downloaded first.
func (a *API) ListTemplates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.TemplateFilter{
		Category:   q.Get("category"),
		Search:     q.Get("search"),
		Difficulty: q.Get("difficulty"),
		PublicOnly: true,
		Limit:      parseLimit(q.Get("limit"), 20, 100),
		Offset:     parseOffset(q.Get("offset")),
	}
	if v := q.Get("is_official"); v != "" {
		official, err := strconv.ParseBool(v)
		if err != nil {
			WriteError(w, core.NewAppError(core.ErrBadRequest, "is_official must be a boolean"))
			return
		}
		f.Official = &official
	}

	templates, err := a.store.ListTemplates(r.Context(), f)
	if err != nil {
		a.fail(w, "list templates", err)
		return
	}
	resp := make([]TemplateResponse, len(templates))
	for i := range templates {
		resp[i] = templateToResponse(&templates[i])
	}
	WriteJSON(w, http.StatusOK, resp)
}

// GetTemplate returns a public template and counts the view as a download.
func (a *API) GetTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "template_id")

	tpl, err := a.store.GetTemplate(ctx, id)
	if err != nil || !tpl.IsPublic {
		WriteError(w, core.NewAppError(core.ErrNotFoundCode, "template not found"))
		return
	}
	if err := a.store.IncrementDownloads(ctx, id); err != nil {
		a.fail(w, "count download", err)
		return
	}
	tpl.Downloads++
	WriteJSON(w, http.StatusOK, templateToResponse(tpl))
}

func (a *API) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := a.store.ListCategories(r.Context())
	if err != nil {
		a.fail(w, "list categories", err)
		return
	}
	if categories == nil {
		categories = []string{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"categories": categories,
		"total":      len(categories),
	})
}

func (a *API) PopularTemplates(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"), 10, 20)
	templates, err := a.store.ListTemplates(r.Context(), store.TemplateFilter{PublicOnly: true, Limit: limit})
	if err != nil {
		a.fail(w, "list popular templates", err)
		return
	}
	resp := make([]PopularTemplate, len(templates))
	for i, t := range templates {
		resp[i] = PopularTemplate{
			ID:            t.ID,
			Name:          t.Name,
			Category:      t.Category,
			Downloads:     t.Downloads,
			RatingAverage: t.RatingAverage,
		}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"templates": resp})
}

// RateTemplate folds a 1-5 star rating into the running average.
func (a *API) RateTemplate(w http.ResponseWriter, r *http.Request) {
	rating, err := strconv.Atoi(r.URL.Query().Get("rating"))
	if err != nil || rating < 1 || rating > 5 {
		WriteError(w, core.NewAppError(core.ErrBadRequest, "rating must be an integer from 1 to 5"))
		return
	}
	tpl, err := a.store.RateTemplate(r.Context(), chi.URLParam(r, "template_id"), rating)
	if err != nil {
		a.fail(w, "rate template", err)
		return
	}
	WriteJSON(w, http.StatusOK, RatingResponse{
		Message:      "Rating submitted successfully",
		NewAverage:   tpl.RatingAverage,
		TotalRatings: tpl.RatingCount,
	})
}

func templateToResponse(t *core.Template) TemplateResponse {
	resp := TemplateResponse{Template: *t, SetupTime: t.SetupTime(), Difficulty: t.Difficulty()}
	if resp.GUITools == nil {
		resp.GUITools = []string{}
	}
	if resp.CLITools == nil {
		resp.CLITools = []string{}
	}
	if resp.Dotfiles == nil {
		resp.Dotfiles = []core.Dotfile{}
	}
	if resp.Tags == nil {
		resp.Tags = []string{}
	}
	if resp.Requirements == nil {
		resp.Requirements = map[string]any{}
	}
	return resp
}
