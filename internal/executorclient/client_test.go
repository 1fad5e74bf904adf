package executorclient

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/nuffi-dev/nuffi/internal/core"
	"github.com/nuffi-dev/nuffi/internal/executor"
)

type scripted struct {
	mu    sync.Mutex
	items []core.Item
}

func (s *scripted) Install(_ context.Context, item core.Item) error {
	s.mu.Lock()
	s.items = append(s.items, item)
	s.mu.Unlock()
	switch item.Name {
	case "broken":
		return errors.New("exit status 1")
	case "a;b":
		return &core.ValidationError{Field: "packages.npm", Message: "invalid package name"}
	}
	return nil
}

func serve(t *testing.T, inst executor.Installer) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	executor.RegisterExecutorServer(srv, executor.NewServer(inst, zap.NewNop()))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	c, err := New("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestInstallRoundTrip(t *testing.T) {
	inst := &scripted{}
	c := serve(t, inst)
	ctx := context.Background()

	item := core.Item{WorkspaceID: "ws-1", Kind: core.KindPackages, Name: "react", Manager: "npm", Platform: "linux"}
	if err := c.Install(ctx, item); err != nil {
		t.Fatalf("install: %v", err)
	}
	if len(inst.items) != 1 || inst.items[0] != item {
		t.Errorf("executor saw %+v", inst.items)
	}

	err := c.Install(ctx, core.Item{WorkspaceID: "ws-1", Kind: core.KindCLI, Name: "broken"})
	if err == nil || !strings.Contains(err.Error(), "exit status 1") || !strings.HasPrefix(err.Error(), executor.CodeInstallFailed) {
		t.Errorf("expected in-band failure, got %v", err)
	}

	err = c.Install(ctx, core.Item{WorkspaceID: "ws-1", Kind: core.KindPackages, Name: "a;b", Manager: "npm"})
	var verr *core.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("expected validation error across the wire, got %v", err)
	}
}

func TestInstallTransportError(t *testing.T) {
	c := serve(t, &scripted{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Install(ctx, core.Item{Kind: core.KindCLI, Name: "git"})
	var appErr *core.AppError
	if !errors.As(err, &appErr) || appErr.Code != core.ErrExecutorError {
		t.Errorf("expected executor app error, got %v", err)
	}
}

func TestPoolPinsWorkspace(t *testing.T) {
	p, err := NewPool([]string{"10.0.0.1:7070", "10.0.0.2:7070", "10.0.0.3:7070", "10.0.0.1:7070"})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	if len(p.clients) != 3 {
		t.Fatalf("expected duplicates collapsed, got %d clients", len(p.clients))
	}

	seen := map[string]bool{}
	for _, ws := range []string{"ws-a", "ws-b", "ws-c", "ws-d", "ws-e", "ws-f", "ws-g", "ws-h"} {
		first := p.Pick(ws)
		for range 5 {
			if got := p.Pick(ws); got != first {
				t.Fatalf("workspace %s moved from %s to %s", ws, first, got)
			}
		}
		seen[first] = true
	}
	if len(seen) < 2 {
		t.Errorf("expected workspaces spread over executors, all went to %v", seen)
	}

	if _, err := NewPool(nil); err == nil {
		t.Error("expected empty pool to be rejected")
	}
}
