// Package server exposes the boiler over gRPC.
package server

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"

	middleware "github.com/tejusbharadwaj/nbeconnect/internal/grpc/middlewares"
	"github.com/tejusbharadwaj/nbeconnect/internal/metrics"
)

// ServerConfig holds configuration options for the gRPC server
type ServerConfig struct {
	RateLimit      float64 // Requests per second
	RateLimitBurst int     // Maximum burst size for rate limiting
}

// DefaultServerConfig returns a ServerConfig with sensible defaults
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		RateLimit:      5.0,
		RateLimitBurst: 10,
	}
}

// ConfigureGRPCServer registers the services without any middleware (for
// development and debug only)
func ConfigureGRPCServer(
	svc BoilerServer,
	health *HealthChecker,
	opts ...grpc.ServerOption,
) *grpc.Server {
	srv := grpc.NewServer(opts...)
	RegisterBoilerServer(srv, svc)
	grpc_health_v1.RegisterHealthServer(srv, health)
	return srv
}

// SetupServer creates the gRPC server with all middleware. Unset rate
// limits fall back to DefaultServerConfig.
func SetupServer(
	svc BoilerServer,
	health *HealthChecker,
	config ServerConfig,
	requestMetrics *metrics.RequestMetrics,
	logger *logrus.Entry,
) (*grpc.Server, error) {
	defaults := DefaultServerConfig()
	if config.RateLimit == 0 {
		config.RateLimit = defaults.RateLimit
	}
	if config.RateLimitBurst == 0 {
		config.RateLimitBurst = defaults.RateLimitBurst
	}
	if config.RateLimit < 0 || config.RateLimitBurst < 0 {
		return nil, errors.New("rate limit and burst must be positive")
	}
	if requestMetrics == nil {
		return nil, errors.New("request metrics are required")
	}

	server := ConfigureGRPCServer(svc, health,
		grpc.UnaryInterceptor(
			chainUnaryInterceptors(
				middleware.ContextMiddleware, // Add request ID first
				middleware.NewRateLimitingInterceptor(config.RateLimit, config.RateLimitBurst),
				middleware.NewLoggingInterceptor(logger),
				middleware.NewMetricsInterceptor(requestMetrics.Requests, requestMetrics.Latency),
			),
		),
	)

	return server, nil
}

// chainUnaryInterceptors creates a single interceptor from multiple interceptors
func chainUnaryInterceptors(interceptors ...grpc.UnaryServerInterceptor) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		chain := handler
		for i := len(interceptors) - 1; i >= 0; i-- {
			interceptor := interceptors[i]
			chainedInterceptor := chain
			chain = func(currentCtx context.Context, currentReq interface{}) (interface{}, error) {
				return interceptor(currentCtx, currentReq, info, chainedInterceptor)
			}
		}
		return chain(ctx, req)
	}
}
