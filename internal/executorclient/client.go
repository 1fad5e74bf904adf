package executorclient

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nuffi-dev/nuffi/internal/core"
	"github.com/nuffi-dev/nuffi/internal/executor"
)

type Client struct {
	addr string
	conn *grpc.ClientConn
}

func New(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial executor %s: %w", addr, err)
	}
	return &Client{addr: addr, conn: conn}, nil
}

func (c *Client) Addr() string { return c.addr }

// Install sends one item to the executor and waits for its result.
func (c *Client) Install(ctx context.Context, item core.Item) error {
	req, err := executor.EncodeItem(item)
	if err != nil {
		return fmt.Errorf("encode item: %w", err)
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, executor.InstallItemMethod, req, resp); err != nil {
		code := core.ErrExecutorError
		if status.Code(err) == codes.DeadlineExceeded {
			code = core.ErrExecutorTimeout
		}
		return fmt.Errorf("executor %s: %w", c.addr, core.NewAppError(code, err.Error()))
	}
	res, err := executor.DecodeResult(resp)
	if err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	if !res.Success {
		if res.ErrorCode == executor.CodeInvalidItem {
			return &core.ValidationError{Field: "item", Message: res.ErrorMessage}
		}
		return fmt.Errorf("%s: %s", res.ErrorCode, res.ErrorMessage)
	}
	return nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
