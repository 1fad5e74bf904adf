package observability

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func NewLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// RunLogger returns a child logger scoped to one install run.
func RunLogger(base *zap.Logger, workspaceID, templateID, userID string) *zap.Logger {
	return base.With(
		zap.String("workspace_id", workspaceID),
		zap.String("template_id", templateID),
		zap.String("user_id", userID),
	)
}
