package session

import (
	"context"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// CheckHealth asks the standard gRPC health service for the status of
// service ("" for the server as a whole), retrying like any other call.
func CheckHealth(ctx context.Context, c *ClientRetry, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := MustHaveResponse(ctx, c, "Health.Check",
		func(ctx context.Context, conn *grpc.ClientConn) (*healthpb.HealthCheckResponse, error) {
			return healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}
