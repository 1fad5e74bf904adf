package executor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/nuffi-dev/nuffi/internal/core"
)

// writeDotfile places a dotfile under home. The file is written next to its
// target and renamed over it, so readers never see a partial file.
func writeDotfile(home string, df *core.Dotfile, log *zap.Logger) (string, error) {
	rel := df.Target
	if rel == "" {
		rel = df.Filename
	}
	rel = strings.TrimPrefix(rel, "~/")
	target := filepath.Join(home, filepath.Clean("/"+rel))
	if !strings.HasPrefix(target, filepath.Clean(home)+string(filepath.Separator)) {
		return "", fmt.Errorf("dotfile %s escapes home directory", rel)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", filepath.Dir(target), err)
	}
	tmp := target + ".nuffi.tmp"
	os.Remove(tmp)
	if err := os.WriteFile(tmp, []byte(df.Content), 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("rename %s: %w", target, err)
	}

	log.Info("dotfile: written", zap.String("path", target))
	return target, nil
}
