package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zapcore"
)

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	log, err := NewLogger("not-a-level")
	if err != nil {
		t.Fatal(err)
	}
	if !log.Core().Enabled(zapcore.InfoLevel) || log.Core().Enabled(zapcore.DebugLevel) {
		t.Error("expected info level logger")
	}
}

func TestRegisterAll(t *testing.T) {
	reg := prometheus.NewRegistry()
	RegisterAll(reg)
	InstallRunsTotal.WithLabelValues("active").Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "nuffi_install_runs_total" {
			found = true
		}
	}
	if !found {
		t.Error("nuffi_install_runs_total not gathered")
	}
}
