package middleware

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"artifact-review/pkg/logger"
)

func checkOperatorToken(ctx context.Context, want string) error {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "metadata not provided")
	}
	authHeader := md.Get("authorization")
	if len(authHeader) == 0 {
		return status.Error(codes.Unauthenticated, "authorization token not provided")
	}
	token := strings.TrimPrefix(authHeader[0], "Bearer ")
	if subtle.ConstantTimeCompare([]byte(token), []byte(want)) != 1 {
		return status.Error(codes.Unauthenticated, "invalid token")
	}
	return nil
}

// OperatorInterceptor admits calls carrying the shared operator token and
// gives the handler a context logger.
func OperatorInterceptor(token string, log *logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		if err := checkOperatorToken(ctx, token); err != nil {
			log.Warn("operator call rejected", zap.String("method", info.FullMethod))
			return nil, err
		}

		ctx = logger.WithLogger(ctx, log.With(zap.String("method", info.FullMethod)))
		resp, err := handler(ctx, req)
		log.Info("operator call",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("took", time.Since(start)))
		return resp, err
	}
}

func StreamOperatorInterceptor(token string, log *logger.Logger) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if err := checkOperatorToken(ss.Context(), token); err != nil {
			log.Warn("operator stream rejected", zap.String("method", info.FullMethod))
			return err
		}

		wrappedStream := &wrappedServerStream{
			ServerStream: ss,
			ctx:          logger.WithLogger(ss.Context(), log.With(zap.String("method", info.FullMethod))),
		}
		return handler(srv, wrappedStream)
	}
}

// wrappedServerStream hands the handler a context other than the stream's.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
