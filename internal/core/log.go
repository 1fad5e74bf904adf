package core

import "time"

// LogKind is the tool_type column: a record kind or the step an item belongs to.
type LogKind string

const (
	KindStep     LogKind = "step"
	KindInfo     LogKind = "info"
	KindError    LogKind = "error"
	KindGUI      LogKind = LogKind(StepGUITools)
	KindCLI      LogKind = LogKind(StepCLITools)
	KindPackages LogKind = LogKind(StepPackages)
	KindDotfiles LogKind = LogKind(StepDotfiles)
)

func ParseLogKind(s string) (LogKind, error) {
	switch k := LogKind(s); k {
	case KindStep, KindInfo, KindError, KindGUI, KindCLI, KindPackages, KindDotfiles:
		return k, nil
	}
	return "", &ValidationError{Field: "tool_type", Message: "unknown log kind " + s}
}

type LogAction string

const (
	ActionInstall   LogAction = "install"
	ActionUpdate    LogAction = "update"
	ActionUninstall LogAction = "uninstall"
)

type LogStatus string

const (
	LogPending    LogStatus = "pending"
	LogInProgress LogStatus = "in_progress"
	LogSuccess    LogStatus = "success"
	LogFailed     LogStatus = "failed"
)

func ParseLogStatus(s string) (LogStatus, error) {
	switch st := LogStatus(s); st {
	case LogPending, LogInProgress, LogSuccess, LogFailed:
		return st, nil
	}
	return "", &ValidationError{Field: "status", Message: "unknown log status " + s}
}

// InstallationLog is one immutable event emitted during a run.
// ItemProgress is scoped to the current step's item list, never the workspace total.
type InstallationLog struct {
	ID              string     `json:"id"`
	Seq             int64      `json:"seq"`
	WorkspaceID     string     `json:"workspace_id"`
	UserID          string     `json:"user_id"`
	ToolID          string     `json:"tool_id"`
	Kind            LogKind    `json:"tool_type"`
	ToolVersion     *string    `json:"tool_version,omitempty"`
	Action          LogAction  `json:"action"`
	Status          LogStatus  `json:"status"`
	ItemProgress    int        `json:"progress"`
	Message         string     `json:"logs"`
	ErrorMessage    *string    `json:"error_message"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	DurationSeconds *int       `json:"duration_seconds,omitempty"`
}

// LogFilter narrows a log query. Zero values match everything.
type LogFilter struct {
	WorkspaceID  string
	WorkspaceIDs []string
	Kind         LogKind
	Status       LogStatus
	Limit        int
}
