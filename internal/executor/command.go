package executor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nuffi-dev/nuffi/internal/core"
	"github.com/nuffi-dev/nuffi/internal/observability"
)

const maxOutput = 2048

// packageName admits registry names with scopes, paths and version
// specifiers. A leading dash would be read as a flag.
var packageName = regexp.MustCompile(`^[A-Za-z0-9@._][A-Za-z0-9@._+/:=<>~^-]*$`)

func validatePackageName(manager, name string) error {
	if len(name) > 214 || !packageName.MatchString(name) {
		return &core.ValidationError{Field: "packages." + manager, Message: fmt.Sprintf("invalid package name %q", name)}
	}
	return nil
}

// packageArgv splits a manager command into argv. The name fills every
// {name} placeholder, or is appended when there is none, and always stays
// inside a single argument.
func packageArgv(tmpl, name string) []string {
	fields := strings.Fields(tmpl)
	found := false
	for i, f := range fields {
		if strings.Contains(f, "{name}") {
			fields[i] = strings.ReplaceAll(f, "{name}", name)
			found = true
		}
	}
	if !found {
		fields = append(fields, name)
	}
	return fields
}

// runShell runs line through the configured shell.
func runShell(ctx context.Context, shell, line, kind string, log *zap.Logger) error {
	flag := "-c"
	if shell == "cmd" || strings.HasSuffix(shell, "cmd.exe") {
		flag = "/C"
	}
	return run(ctx, []string{shell, flag, line}, line, kind, log)
}

// run executes argv without a shell. A non-zero exit is an error carrying the
// tail of the combined output.
func run(ctx context.Context, argv []string, display, kind string, log *zap.Logger) error {
	start := time.Now()
	log.Info("command: starting", zap.String("command", display))

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	output, err := cmd.CombinedOutput()
	duration := time.Since(start).Seconds()

	if err != nil {
		reason := "exec_error"
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			reason = "timeout"
		}
		observability.ExecutorItemFailTotal.WithLabelValues(kind, reason).Inc()
		return fmt.Errorf("%s: %w, output: %s", display, err, tail(output))
	}

	log.Info("command: completed", zap.Float64("duration_s", duration))
	return nil
}

func tail(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxOutput {
		s = "..." + s[len(s)-maxOutput:]
	}
	return s
}
