package executor

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nuffi-dev/nuffi/internal/core"
)

// ExecutorServer is the server API for the executor service.
type ExecutorServer interface {
	InstallItem(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ExecutorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "InstallItem", Handler: installItemHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "executor/v1/executor.proto",
}

func RegisterExecutorServer(s grpc.ServiceRegistrar, srv ExecutorServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func installItemHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ExecutorServer).InstallItem(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: InstallItemMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ExecutorServer).InstallItem(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

type Installer interface {
	Install(ctx context.Context, item core.Item) error
}

type Server struct {
	installer Installer
	log       *zap.Logger
}

func NewServer(installer Installer, log *zap.Logger) *Server {
	return &Server{installer: installer, log: log}
}

// InstallItem reports install failures in the response body. A transport
// error means the request never reached an installer.
func (s *Server) InstallItem(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	item, err := DecodeItem(req)
	if err != nil || item.Name == "" {
		msg := "item name required"
		if err != nil {
			msg = err.Error()
		}
		return EncodeResult(Result{ErrorCode: CodeInvalidItem, ErrorMessage: msg})
	}
	log := s.log.With(
		zap.String("workspace_id", item.WorkspaceID),
		zap.String("kind", string(item.Kind)),
		zap.String("item", item.Name),
	)
	log.Info("executor: item received")

	start := time.Now()
	err = s.installer.Install(ctx, item)
	res := Result{Success: err == nil, DurationMS: float64(time.Since(start).Milliseconds())}
	if err != nil {
		var verr *core.ValidationError
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			res.ErrorCode = CodeTimeout
		case errors.As(err, &verr):
			res.ErrorCode = CodeInvalidItem
		default:
			res.ErrorCode = CodeInstallFailed
		}
		res.ErrorMessage = err.Error()
		log.Error("executor: item failed", zap.Error(err))
	} else {
		log.Info("executor: item installed", zap.Float64("duration_ms", res.DurationMS))
	}
	return EncodeResult(res)
}
