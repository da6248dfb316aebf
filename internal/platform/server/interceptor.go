package server

import (
	"context"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// LoggingInterceptor は単項 RPC ごとにメソッド・結果コード・所要時間を記録します。
// Internal 以上の失敗は Error、それ以外の失敗は Warn で出力します。
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		started := time.Now()
		resp, err := next(ctx, req)

		code := status.Code(err)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("duration", time.Since(started)),
		}

		level := zapcore.InfoLevel
		switch code {
		case codes.OK:
		case codes.Internal, codes.Unknown, codes.DataLoss, codes.Unavailable:
			level = zapcore.ErrorLevel
			fields = append(fields, zap.Error(err))
		default:
			level = zapcore.WarnLevel
			fields = append(fields, zap.Error(err))
		}

		if ce := logger.Check(level, "grpc request"); ce != nil {
			ce.Write(fields...)
		}
		return resp, err
	}
}
