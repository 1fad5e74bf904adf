package api

import (
	"net/http"
	"strings"

	"github.com/nuffi-dev/nuffi/internal/catalog"
	"github.com/nuffi-dev/nuffi/internal/core"
)

// ListTools lists catalog manifests, optionally narrowed by type, category and search.
func (a *API) ListTools(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	typ := catalog.ToolType(q.Get("type"))
	if typ != "" && typ != catalog.ToolGUI && typ != catalog.ToolCLI {
		WriteError(w, core.NewAppError(core.ErrBadRequest, "type must be gui or cli"))
		return
	}
	category, search := q.Get("category"), q.Get("search")

	tools := []*catalog.Manifest{}
	if a.tools != nil {
		var base []*catalog.Manifest
		switch {
		case search != "":
			base = a.tools.Search(search)
		case category != "":
			base = a.tools.ByCategory(category)
		default:
			base = a.tools.List(typ)
		}
		for _, m := range base {
			if typ != "" && m.Type != typ {
				continue
			}
			if category != "" && !strings.EqualFold(m.Category, category) {
				continue
			}
			tools = append(tools, m)
		}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"tools": tools, "total": len(tools)})
}
