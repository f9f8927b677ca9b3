package grpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	gogrpc "google.golang.org/grpc"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	healthCallTimeout = time.Second
	healthMaxInterval = time.Second
)

// errNotServing marks a health response that arrived but was not SERVING.
var errNotServing = errors.New("not serving")

// WaitForHealth blocks until the gRPC health check reports SERVING or the context ends.
func WaitForHealth(ctx context.Context, conn *gogrpc.ClientConn, service string, logf func(string, ...any)) error {
	if conn == nil {
		return fmt.Errorf("gRPC connection is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if logf == nil {
		logf = func(string, ...any) {}
	}

	client := grpc_health_v1.NewHealthClient(conn)
	check := func() (struct{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, healthCallTimeout)
		defer cancel()
		resp, err := client.Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: service})
		if err != nil {
			return struct{}{}, err
		}
		if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
			return struct{}{}, fmt.Errorf("%w: status %s", errNotServing, resp.GetStatus())
		}
		return struct{}{}, nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = healthMaxInterval

	_, err := backoff.Retry(ctx, check,
		backoff.WithBackOff(policy),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			logf("waiting for gRPC health: %v (retry in %s)", err, next)
		}),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("wait for gRPC health: %w", ctxErr)
		}
		return fmt.Errorf("wait for gRPC health: %w", err)
	}
	logf("gRPC health check is SERVING")
	return nil
}
