package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nuffi-dev/nuffi/internal/core"
)

func commandLocal(t *testing.T) (*Local, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("command mode tests need a POSIX shell")
	}
	home := t.TempDir()
	l, err := NewLocal(Config{
		Mode:            ModeCommand,
		HomeDir:         home,
		PackageCommands: map[string]string{"fake": "test {name} = ok"},
	}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return l, home
}

func TestSimulateHonoursContext(t *testing.T) {
	l, err := NewLocal(Config{Mode: ModeSimulate, ItemDelay: time.Hour}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.Install(ctx, core.Item{Kind: core.KindCLI, Name: "git"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline, got %v", err)
	}
}

func TestUnknownMode(t *testing.T) {
	if _, err := NewLocal(Config{Mode: "yolo"}, zap.NewNop()); err == nil {
		t.Error("expected unknown mode to be rejected")
	}
}

func TestCommandTools(t *testing.T) {
	l, _ := commandLocal(t)
	ctx := context.Background()

	if err := l.Install(ctx, core.Item{Kind: core.KindCLI, Name: "ok", Installer: "true"}); err != nil {
		t.Errorf("expected success, got %v", err)
	}
	err := l.Install(ctx, core.Item{Kind: core.KindGUI, Name: "bad", Installer: "echo broken >&2; exit 3"})
	if err == nil || !strings.Contains(err.Error(), "exit status 3") || !strings.Contains(err.Error(), "broken") {
		t.Errorf("expected exit status with output, got %v", err)
	}
	if err := l.Install(ctx, core.Item{Kind: core.KindCLI, Name: "none"}); err == nil {
		t.Error("expected missing installer to fail")
	}
}

func TestCommandPackages(t *testing.T) {
	l, _ := commandLocal(t)
	ctx := context.Background()

	if err := l.Install(ctx, core.Item{Kind: core.KindPackages, Manager: "fake", Name: "ok"}); err != nil {
		t.Errorf("expected success, got %v", err)
	}
	if err := l.Install(ctx, core.Item{Kind: core.KindPackages, Manager: "fake", Name: "nope"}); err == nil {
		t.Error("expected non-zero exit to fail")
	}
	if err := l.Install(ctx, core.Item{Kind: core.KindPackages, Manager: "conda", Name: "numpy"}); err == nil {
		t.Error("expected unknown manager to fail")
	}
}

func TestPackageNamesStayOneArgument(t *testing.T) {
	l, home := commandLocal(t)
	ctx := context.Background()
	marker := filepath.Join(home, "pwned")

	for _, name := range []string{
		"ok; touch " + marker,
		"$(touch " + marker + ")",
		`{"numpy":"1.0"}`,
		"--global",
		"",
	} {
		err := l.Install(ctx, core.Item{Kind: core.KindPackages, Manager: "fake", Name: name})
		var verr *core.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("%q: expected validation error, got %v", name, err)
		}
	}
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Errorf("package name reached a shell: %v", err)
	}

	for _, name := range []string{"@types/node", "numpy==1.26.0", "golang.org/x/tools/gopls@latest"} {
		if err := validatePackageName("npm", name); err != nil {
			t.Errorf("%q: %v", name, err)
		}
	}
}

func TestPackageArgv(t *testing.T) {
	tests := []struct {
		tmpl string
		want []string
	}{
		{"npm install -g {name}", []string{"npm", "install", "-g", "a b"}},
		{"pip install", []string{"pip", "install", "a b"}},
		{"tool --pkg={name}", []string{"tool", "--pkg=a b"}},
	}
	for _, tt := range tests {
		got := packageArgv(tt.tmpl, "a b")
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("%q: got %q, want %q", tt.tmpl, got, tt.want)
		}
	}
}

func TestSimulateValidatesPackages(t *testing.T) {
	l, err := NewLocal(Config{Mode: ModeSimulate}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	var verr *core.ValidationError
	if err := l.Install(context.Background(), core.Item{Kind: core.KindPackages, Manager: "npm", Name: "a;b"}); !errors.As(err, &verr) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestCommandDotfiles(t *testing.T) {
	l, home := commandLocal(t)
	ctx := context.Background()

	item := core.Item{Kind: core.KindDotfiles, Name: ".gitconfig", Dotfile: &core.Dotfile{
		Filename: ".gitconfig", Target: "~/.config/git/config", Content: "[user]\n\tname = dev\n",
	}}
	if err := l.Install(ctx, item); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(home, ".config", "git", "config"))
	if err != nil || string(got) != "[user]\n\tname = dev\n" {
		t.Errorf("unexpected dotfile %q %v", got, err)
	}

	escape := core.Item{Kind: core.KindDotfiles, Name: "x", Dotfile: &core.Dotfile{Target: "../../etc/passwd", Content: "x"}}
	if err := l.Install(ctx, escape); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(home, "etc", "passwd")); err != nil {
		t.Errorf("expected traversal to stay under home: %v", err)
	}
}

func TestItemRoundTrip(t *testing.T) {
	item := core.Item{
		WorkspaceID: "ws-1", Kind: core.KindDotfiles, Name: ".zshrc", Platform: "linux",
		Dotfile: &core.Dotfile{Filename: ".zshrc", Content: "export EDITOR=vim"},
	}
	s, err := EncodeItem(item)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeItem(s)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != item.Name || got.Dotfile == nil || got.Dotfile.Content != item.Dotfile.Content {
		t.Errorf("round trip lost data: %+v", got)
	}
	if _, err := DecodeItem(nil); err == nil {
		t.Error("expected nil message to fail")
	}
}

type failingInstaller struct{ err error }

func (f failingInstaller) Install(context.Context, core.Item) error { return f.err }

func TestServerReportsFailuresInBand(t *testing.T) {
	srv := NewServer(failingInstaller{err: context.DeadlineExceeded}, zap.NewNop())
	req, _ := EncodeItem(core.Item{Kind: core.KindCLI, Name: "git"})
	resp, err := srv.InstallItem(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	res, _ := DecodeResult(resp)
	if res.Success || res.ErrorCode != CodeTimeout {
		t.Errorf("unexpected result %+v", res)
	}

	resp, _ = srv.InstallItem(context.Background(), &structpb.Struct{})
	res, _ = DecodeResult(resp)
	if res.ErrorCode != CodeInvalidItem {
		t.Errorf("expected invalid item, got %+v", res)
	}
}
