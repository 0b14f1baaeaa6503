package service

import (
	"context"
	"time"

	"connectrpc.com/connect"
	"go.uber.org/zap"

	"github.com/castlemilk/dietplanner/internal/logging"
)

// TimeoutInterceptor bounds every unary call. A shorter client deadline wins.
func TimeoutInterceptor(d time.Duration) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if d <= 0 {
				return next(ctx, req)
			}
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, req)
		}
	}
}

// LoggingInterceptor logs each call with its outcome. Client errors are
// logged at info, server errors at error.
func LoggingInterceptor(logger *zap.Logger) connect.UnaryInterceptorFunc {
	logger = logging.OrNop(logger)
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			res, err := next(ctx, req)

			fields := []zap.Field{
				zap.String("procedure", req.Spec().Procedure),
				zap.String("peer", req.Peer().Addr),
				zap.Duration("duration", time.Since(start)),
			}
			if err == nil {
				logger.Info("rpc handled", fields...)
				return res, nil
			}

			code := connect.CodeOf(err)
			fields = append(fields, zap.String("code", code.String()), zap.Error(err))
			if isServerFault(code) {
				logger.Error("rpc failed", fields...)
			} else {
				logger.Info("rpc rejected", fields...)
			}
			return res, err
		}
	}
}

func isServerFault(code connect.Code) bool {
	switch code {
	case connect.CodeInternal, connect.CodeUnknown, connect.CodeUnavailable, connect.CodeDataLoss:
		return true
	}
	return false
}
