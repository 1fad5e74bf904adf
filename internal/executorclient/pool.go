// Package executorclient talks to remote executors over gRPC.
package executorclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/buraksezer/consistent"
	"github.com/cespare/xxhash/v2"
	"google.golang.org/grpc"

	"github.com/nuffi-dev/nuffi/internal/core"
)

type member string

func (m member) String() string { return string(m) }

type hasher struct{}

func (hasher) Sum64(data []byte) uint64 { return xxhash.Sum64(data) }

// Pool spreads workspaces over executors. Every item of one workspace goes
// to the same executor while membership is unchanged.
type Pool struct {
	ring    *consistent.Consistent
	clients map[string]*Client
}

func NewPool(addrs []string, opts ...grpc.DialOption) (*Pool, error) {
	if len(addrs) == 0 {
		return nil, errors.New("executor pool needs at least one address")
	}
	p := &Pool{clients: make(map[string]*Client, len(addrs))}
	members := make([]consistent.Member, 0, len(addrs))
	for _, addr := range addrs {
		if _, dup := p.clients[addr]; dup {
			continue
		}
		c, err := New(addr, opts...)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.clients[addr] = c
		members = append(members, member(addr))
	}
	p.ring = consistent.New(members, consistent.Config{
		Hasher:            hasher{},
		PartitionCount:    271,
		ReplicationFactor: 20,
		Load:              1.25,
	})
	return p, nil
}

// Pick returns the executor address owning key.
func (p *Pool) Pick(key string) string {
	return p.ring.LocateKey([]byte(key)).String()
}

func (p *Pool) Install(ctx context.Context, item core.Item) error {
	addr := p.Pick(item.WorkspaceID)
	c, ok := p.clients[addr]
	if !ok {
		return fmt.Errorf("no client for executor %s", addr)
	}
	return c.Install(ctx, item)
}

func (p *Pool) Close() error {
	var errs []error
	for _, c := range p.clients {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
