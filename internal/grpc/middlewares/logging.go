package middleware

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func NewLoggingInterceptor(logger *logrus.Entry) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		code := status.Code(err)
		entry := logger.WithFields(logrus.Fields{
			"request_id": RequestID(ctx),
			"method":     info.FullMethod,
			"duration":   time.Since(start).String(),
			"code":       code.String(),
		})
		switch code {
		case codes.OK:
			entry.Debug("request handled")
		case codes.Internal, codes.Unknown, codes.DataLoss:
			entry.WithError(err).Error("request failed")
		default:
			entry.WithError(err).Info("request failed")
		}

		return resp, err
	}
}
