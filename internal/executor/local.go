package executor

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nuffi-dev/nuffi/internal/core"
	"github.com/nuffi-dev/nuffi/internal/observability"
)

// Local installs items on the host it runs on.
type Local struct {
	cfg Config
	log *zap.Logger
}

func NewLocal(cfg Config, log *zap.Logger) (*Local, error) {
	switch cfg.Mode {
	case "":
		cfg.Mode = ModeSimulate
	case ModeSimulate, ModeCommand:
	default:
		return nil, fmt.Errorf("unknown executor mode %q", cfg.Mode)
	}
	if cfg.Shell == "" {
		cfg.Shell = "sh"
	}
	if cfg.HomeDir == "" && cfg.Mode == ModeCommand {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		cfg.HomeDir = home
	}
	return &Local{cfg: cfg, log: log}, nil
}

func (l *Local) Install(ctx context.Context, item core.Item) error {
	kind := string(item.Kind)
	log := l.log.With(
		zap.String("workspace_id", item.WorkspaceID),
		zap.String("kind", kind),
		zap.String("item", item.Name),
	)
	observability.ExecutorActiveItems.Inc()
	defer observability.ExecutorActiveItems.Dec()
	start := time.Now()
	defer func() {
		observability.ExecutorItemDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}()

	if l.cfg.ItemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.ItemTimeout)
		defer cancel()
	}

	if item.Kind == core.KindPackages {
		if err := validatePackageName(item.Manager, item.Name); err != nil {
			observability.ExecutorItemFailTotal.WithLabelValues(kind, "invalid").Inc()
			return err
		}
	}
	if l.cfg.Mode == ModeSimulate {
		return l.simulate(ctx)
	}

	switch item.Kind {
	case core.KindGUI, core.KindCLI:
		if item.Installer == "" {
			observability.ExecutorItemFailTotal.WithLabelValues(kind, "unsupported").Inc()
			return fmt.Errorf("%s has no installer for %s", item.Name, item.Platform)
		}
		return runShell(ctx, l.cfg.Shell, item.Installer, kind, log)
	case core.KindPackages:
		tmpl, ok := l.cfg.packageCommand(item.Manager)
		if !ok {
			observability.ExecutorItemFailTotal.WithLabelValues(kind, "unsupported").Inc()
			return fmt.Errorf("no command for package manager %s", item.Manager)
		}
		argv := packageArgv(tmpl, item.Name)
		if len(argv) == 0 {
			observability.ExecutorItemFailTotal.WithLabelValues(kind, "unsupported").Inc()
			return fmt.Errorf("empty command for package manager %s", item.Manager)
		}
		return run(ctx, argv, strings.Join(argv, " "), kind, log)
	case core.KindDotfiles:
		df := item.Dotfile
		if df == nil {
			df = &core.Dotfile{Filename: item.Name}
		}
		if _, err := writeDotfile(l.cfg.HomeDir, df, log); err != nil {
			observability.ExecutorItemFailTotal.WithLabelValues(kind, "write_error").Inc()
			return err
		}
		return nil
	}
	observability.ExecutorItemFailTotal.WithLabelValues(kind, "unsupported").Inc()
	return fmt.Errorf("unsupported item kind %s", item.Kind)
}

func (l *Local) simulate(ctx context.Context) error {
	if l.cfg.ItemDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(l.cfg.ItemDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
