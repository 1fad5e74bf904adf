package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nuffi-dev/nuffi/internal/core"
)

// Postgres implements Store on a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

const templateColumns = `id, name, slug, category, description, long_description, gui_tools, cli_tools,
	packages, dotfiles, settings, requirements, tags, downloads, rating_average, rating_count,
	is_official, is_premium, is_public, created_at, updated_at`

func (p *Postgres) CreateTemplate(ctx context.Context, tpl *core.Template) error {
	if tpl.ID == "" {
		tpl.ID = core.NewID()
	}
	packages, _ := json.Marshal(tpl.Packages)
	row := p.pool.QueryRow(ctx, `
		INSERT INTO nuffi.workspace_templates (id, name, slug, category, description, long_description,
			gui_tools, cli_tools, packages, dotfiles, settings, requirements, tags, downloads,
			rating_average, rating_count, is_official, is_premium, is_public)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING created_at, updated_at`,
		tpl.ID, tpl.Name, tpl.Slug, tpl.Category, tpl.Description, tpl.LongDescription,
		jsonList(tpl.GUITools), jsonList(tpl.CLITools), packages, jsonList(tpl.Dotfiles),
		jsonMap(tpl.Settings), jsonMap(tpl.Requirements), jsonList(tpl.Tags), tpl.Downloads,
		tpl.RatingAverage, tpl.RatingCount, tpl.IsOfficial, tpl.IsPremium, tpl.IsPublic,
	)
	if err := row.Scan(&tpl.CreatedAt, &tpl.UpdatedAt); err != nil {
		return insertError("insert template", err)
	}
	return nil
}

func (p *Postgres) GetTemplate(ctx context.Context, id string) (*core.Template, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+templateColumns+` FROM nuffi.workspace_templates WHERE id = $1`, id)
	return scanTemplate(row, "template "+id)
}

func (p *Postgres) GetTemplateBySlug(ctx context.Context, slug string) (*core.Template, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+templateColumns+` FROM nuffi.workspace_templates WHERE slug = $1`, slug)
	return scanTemplate(row, "template "+slug)
}

func (p *Postgres) ListTemplates(ctx context.Context, f TemplateFilter) ([]core.Template, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.PublicOnly {
		where = append(where, "is_public")
	}
	if f.Category != "" {
		where = append(where, "category = "+arg(f.Category))
	}
	if f.Search != "" {
		term := arg("%" + f.Search + "%")
		where = append(where, "(name ILIKE "+term+" OR description ILIKE "+term+")")
	}
	if f.Official != nil {
		where = append(where, "is_official = "+arg(*f.Official))
	}
	if f.Difficulty != "" {
		where = append(where, "requirements->>'difficulty' = "+arg(f.Difficulty))
	}
	query := `SELECT ` + templateColumns + ` FROM nuffi.workspace_templates`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY downloads DESC, rating_average DESC, created_at DESC"
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}
	if f.Offset > 0 {
		query += " OFFSET " + arg(f.Offset)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()
	var out []core.Template
	for rows.Next() {
		tpl, err := scanTemplate(rows, "template")
		if err != nil {
			return nil, err
		}
		out = append(out, *tpl)
	}
	return out, rows.Err()
}

func (p *Postgres) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT DISTINCT category FROM nuffi.workspace_templates ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (p *Postgres) IncrementDownloads(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `UPDATE nuffi.workspace_templates SET downloads = downloads + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment downloads: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("template %s: %w", id, core.ErrNotFound)
	}
	return nil
}

func (p *Postgres) RateTemplate(ctx context.Context, id string, rating int) (*core.Template, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var avg float64
	var count int
	err = tx.QueryRow(ctx, `SELECT rating_average, rating_count FROM nuffi.workspace_templates WHERE id = $1 FOR UPDATE`, id).
		Scan(&avg, &count)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("template %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	avg, count = NextRating(avg, count, rating)
	if _, err := tx.Exec(ctx, `UPDATE nuffi.workspace_templates SET rating_average = $2, rating_count = $3, updated_at = now() WHERE id = $1`,
		id, avg, count); err != nil {
		return nil, fmt.Errorf("update rating: %w", err)
	}
	row := tx.QueryRow(ctx, `SELECT `+templateColumns+` FROM nuffi.workspace_templates WHERE id = $1`, id)
	tpl, err := scanTemplate(row, "template "+id)
	if err != nil {
		return nil, err
	}
	return tpl, tx.Commit(ctx)
}

// NextRating folds one rating into a running average rounded to one decimal.
func NextRating(avg float64, count, rating int) (float64, int) {
	total := avg*float64(count) + float64(rating)
	count++
	return math.Round(total/float64(count)*10) / 10, count
}

const workspaceColumns = `id, user_id, template_id, name, description, workspace_type, status,
	installation_progress, installed_tools, installed_packages, installed_dotfiles, custom_settings,
	idempotency_key, request_hash, created_at, updated_at`

func (p *Postgres) CreateWorkspace(ctx context.Context, ws *core.Workspace) error {
	if ws.ID == "" {
		ws.ID = core.NewID()
	}
	settings := ws.CustomSettings
	if len(settings) == 0 {
		settings = json.RawMessage("{}")
	}
	row := p.pool.QueryRow(ctx, `
		INSERT INTO nuffi.workspaces (id, user_id, template_id, name, description, workspace_type, status,
			installation_progress, custom_settings, idempotency_key, request_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`,
		ws.ID, ws.UserID, ptrText(ws.TemplateID), ws.Name, ws.Description, ws.WorkspaceType, string(ws.Status),
		ws.Progress, []byte(settings), optText(ws.IdempotencyKey), optText(ws.RequestHash),
	)
	if err := row.Scan(&ws.CreatedAt, &ws.UpdatedAt); err != nil {
		return insertError("insert workspace", err)
	}
	return nil
}

func (p *Postgres) GetWorkspace(ctx context.Context, id, userID string) (*core.Workspace, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+workspaceColumns+` FROM nuffi.workspaces
		WHERE id = $1 AND ($2 = '' OR user_id = $2)`, id, userID)
	return scanWorkspace(row, "workspace "+id)
}

func (p *Postgres) GetWorkspaceByIdempotencyKey(ctx context.Context, userID, key string) (*core.Workspace, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+workspaceColumns+` FROM nuffi.workspaces
		WHERE user_id = $1 AND idempotency_key = $2`, userID, key)
	return scanWorkspace(row, "workspace key "+key)
}

func (p *Postgres) ListWorkspaces(ctx context.Context, f WorkspaceFilter) ([]core.Workspace, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+workspaceColumns+` FROM nuffi.workspaces
		WHERE ($1 = '' OR user_id = $1) AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC`, f.UserID, string(f.Status))
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer rows.Close()
	var out []core.Workspace
	for rows.Next() {
		ws, err := scanWorkspace(rows, "workspace")
		if err != nil {
			return nil, err
		}
		out = append(out, *ws)
	}
	return out, rows.Err()
}

func (p *Postgres) BeginInstall(ctx context.Context, id, userID string) (*core.Workspace, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE nuffi.workspaces
		SET status = 'installing', installation_progress = 0, installed_tools = '[]'::jsonb,
			installed_packages = '{}'::jsonb, installed_dotfiles = '[]'::jsonb, updated_at = now()
		WHERE id = $1 AND ($2 = '' OR user_id = $2) AND status NOT IN ('installing', 'archived')
		RETURNING `+workspaceColumns, id, userID)
	ws, err := scanWorkspace(row, "workspace "+id)
	if !errors.Is(err, core.ErrNotFound) {
		return ws, err
	}
	current, getErr := p.GetWorkspace(ctx, id, userID)
	if getErr != nil {
		return nil, getErr
	}
	if current.Status.CanStartInstall() {
		// Another writer moved it between the update and the read.
		return nil, fmt.Errorf("workspace %s: %w", id, core.ErrConflict)
	}
	return nil, RefuseInstall(current)
}

func (p *Postgres) SetProgress(ctx context.Context, id string, progress int, inv core.Inventory) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var (
		current              int
		tools, pkgs, dotfile []byte
	)
	err = tx.QueryRow(ctx, `SELECT installation_progress, installed_tools, installed_packages, installed_dotfiles
		FROM nuffi.workspaces WHERE id = $1 AND status = 'installing' FOR UPDATE`, id).
		Scan(&current, &tools, &pkgs, &dotfile)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("workspace %s: %w", id, core.ErrNotInstalling)
	}
	if err != nil {
		return err
	}
	if progress < current {
		return fmt.Errorf("workspace %s: progress %d below committed %d", id, progress, current)
	}
	merged := core.Inventory{}
	_ = json.Unmarshal(tools, &merged.Tools)
	_ = json.Unmarshal(pkgs, &merged.Packages)
	_ = json.Unmarshal(dotfile, &merged.Dotfiles)
	merged.Merge(inv)

	if _, err := tx.Exec(ctx, `UPDATE nuffi.workspaces
		SET installation_progress = $2, installed_tools = $3, installed_packages = $4, installed_dotfiles = $5,
			updated_at = now()
		WHERE id = $1`,
		id, min(progress, 100), jsonList(merged.Tools), jsonMap(merged.Packages), jsonList(merged.Dotfiles)); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return tx.Commit(ctx)
}

func (p *Postgres) SetStatus(ctx context.Context, id string, status core.WorkspaceStatus, progress *int) error {
	tag, err := p.pool.Exec(ctx, `UPDATE nuffi.workspaces
		SET status = $2, installation_progress = COALESCE($3, installation_progress), updated_at = now()
		WHERE id = $1 AND status = 'installing'`, id, string(status), ptrInt(progress))
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("workspace %s: %w", id, core.ErrNotInstalling)
	}
	return nil
}

func (p *Postgres) DeleteWorkspace(ctx context.Context, id, userID string) error {
	ws, err := p.GetWorkspace(ctx, id, userID)
	if err != nil {
		return err
	}
	tag, err := p.pool.Exec(ctx, `DELETE FROM nuffi.workspaces WHERE id = $1 AND status <> 'installing'`, ws.ID)
	if err != nil {
		return fmt.Errorf("delete workspace: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("workspace %s: %w", id, core.ErrConflict)
	}
	return nil
}

const logColumns = `seq, id, workspace_id, user_id, tool_id, tool_type, tool_version, action, status, progress,
	logs, error_message, started_at, completed_at, duration_seconds`

func (p *Postgres) AppendLog(ctx context.Context, l *core.InstallationLog) error {
	if l.ID == "" {
		l.ID = core.NewID()
	}
	row := p.pool.QueryRow(ctx, `
		INSERT INTO nuffi.installation_logs (id, workspace_id, user_id, tool_id, tool_type, tool_version, action,
			status, progress, logs, error_message, started_at, completed_at, duration_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, COALESCE($12, now()), $13, $14)
		RETURNING seq, started_at`,
		l.ID, l.WorkspaceID, l.UserID, l.ToolID, string(l.Kind), ptrText(l.ToolVersion), string(l.Action),
		string(l.Status), l.ItemProgress, l.Message, ptrText(l.ErrorMessage), optTime(l.StartedAt),
		ptrTime(l.CompletedAt), ptrInt(l.DurationSeconds),
	)
	if err := row.Scan(&l.Seq, &l.StartedAt); err != nil {
		return fmt.Errorf("insert log: %w", err)
	}
	return nil
}

func (p *Postgres) ListLogs(ctx context.Context, f core.LogFilter) ([]core.InstallationLog, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.WorkspaceID != "" {
		where = append(where, "workspace_id = "+arg(f.WorkspaceID))
	}
	if f.WorkspaceIDs != nil {
		where = append(where, "workspace_id = ANY("+arg(f.WorkspaceIDs)+")")
	}
	if f.Kind != "" {
		where = append(where, "tool_type = "+arg(string(f.Kind)))
	}
	if f.Status != "" {
		where = append(where, "status = "+arg(string(f.Status)))
	}
	query := `SELECT ` + logColumns + ` FROM nuffi.installation_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq DESC"
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()
	var out []core.InstallationLog
	for rows.Next() {
		var (
			l                    core.InstallationLog
			kind, action, status string
			version, errMsg      pgtype.Text
			completedAt          pgtype.Timestamptz
			duration             pgtype.Int4
		)
		if err := rows.Scan(&l.Seq, &l.ID, &l.WorkspaceID, &l.UserID, &l.ToolID, &kind, &version, &action,
			&status, &l.ItemProgress, &l.Message, &errMsg, &l.StartedAt, &completedAt, &duration); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		l.Kind, l.Action, l.Status = core.LogKind(kind), core.LogAction(action), core.LogStatus(status)
		l.ToolVersion, l.ErrorMessage = textPtr(version), textPtr(errMsg)
		if completedAt.Valid {
			t := completedAt.Time
			l.CompletedAt = &t
		}
		if duration.Valid {
			d := int(duration.Int32)
			l.DurationSeconds = &d
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (p *Postgres) ResetFailedLogs(ctx context.Context, workspaceID string) (int, error) {
	tag, err := p.pool.Exec(ctx, `UPDATE nuffi.installation_logs SET status = 'pending', error_message = NULL
		WHERE workspace_id = $1 AND status = 'failed'`, workspaceID)
	if err != nil {
		return 0, fmt.Errorf("reset failed logs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanTemplate(row pgx.Row, what string) (*core.Template, error) {
	var (
		tpl                                                   core.Template
		gui, cli, packages, dotfiles, settings, reqs, tagsRaw []byte
	)
	err := row.Scan(&tpl.ID, &tpl.Name, &tpl.Slug, &tpl.Category, &tpl.Description, &tpl.LongDescription,
		&gui, &cli, &packages, &dotfiles, &settings, &reqs, &tagsRaw, &tpl.Downloads, &tpl.RatingAverage,
		&tpl.RatingCount, &tpl.IsOfficial, &tpl.IsPremium, &tpl.IsPublic, &tpl.CreatedAt, &tpl.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", what, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", what, err)
	}
	for _, f := range []struct {
		raw []byte
		dst any
	}{
		{gui, &tpl.GUITools}, {cli, &tpl.CLITools}, {packages, &tpl.Packages}, {dotfiles, &tpl.Dotfiles},
		{settings, &tpl.Settings}, {reqs, &tpl.Requirements}, {tagsRaw, &tpl.Tags},
	} {
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("decode %s: %w", what, err)
		}
	}
	return &tpl, nil
}

func scanWorkspace(row pgx.Row, what string) (*core.Workspace, error) {
	var (
		ws                              core.Workspace
		status                          string
		templateID, key, hash           pgtype.Text
		tools, pkgs, dotfiles, settings []byte
	)
	err := row.Scan(&ws.ID, &ws.UserID, &templateID, &ws.Name, &ws.Description, &ws.WorkspaceType, &status,
		&ws.Progress, &tools, &pkgs, &dotfiles, &settings, &key, &hash, &ws.CreatedAt, &ws.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", what, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", what, err)
	}
	ws.Status = core.WorkspaceStatus(status)
	ws.TemplateID = textPtr(templateID)
	ws.IdempotencyKey, ws.RequestHash = key.String, hash.String
	ws.CustomSettings = json.RawMessage(settings)
	_ = json.Unmarshal(tools, &ws.Inventory.Tools)
	_ = json.Unmarshal(pkgs, &ws.Inventory.Packages)
	_ = json.Unmarshal(dotfiles, &ws.Inventory.Dotfiles)
	return &ws, nil
}
