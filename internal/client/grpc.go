package client

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"

	"github.com/alfredjeanlab/paywatch/internal/model"
	"github.com/alfredjeanlab/paywatch/internal/queryrpc"
)

// GRPCClient implements Client using the gRPC transport.
type GRPCClient struct {
	conn   *grpc.ClientConn
	client queryrpc.QueryServiceClient
	health healthpb.HealthClient
}

// NewGRPCClient connects to the given gRPC address and returns a client.
// When token is non-empty it is sent as a bearer token on every call.
func NewGRPCClient(addr, token string, opts ...grpc.DialOption) (*GRPCClient, error) {
	dial := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if token != "" {
		dial = append(dial, grpc.WithUnaryInterceptor(bearer(token)))
	}
	conn, err := grpc.NewClient(addr, append(dial, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return &GRPCClient{
		conn:   conn,
		client: queryrpc.NewQueryServiceClient(conn),
		health: healthpb.NewHealthClient(conn),
	}, nil
}

func bearer(token string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func (c *GRPCClient) IsMonitoringAuthorized(ctx context.Context) (bool, error) {
	resp, err := c.client.IsMonitoringAuthorized(ctx, &queryrpc.AuthorizedRequest{})
	if err != nil {
		return false, err
	}
	return resp.Authorized, nil
}

func (c *GRPCClient) GetState(ctx context.Context, sourceID string) (*queryrpc.StateResponse, error) {
	return c.client.GetState(ctx, &queryrpc.SourceRequest{SourceID: sourceID})
}

func (c *GRPCClient) GetLatestEvent(ctx context.Context, sourceID string) (*model.Event, error) {
	resp, err := c.client.GetLatestEvent(ctx, &queryrpc.SourceRequest{SourceID: sourceID})
	if err != nil {
		return nil, err
	}
	return resp.Event, nil
}

func (c *GRPCClient) GetLatestMatchingEvent(ctx context.Context, sourceID string) (*model.Event, error) {
	resp, err := c.client.GetLatestMatchingEvent(ctx, &queryrpc.SourceRequest{SourceID: sourceID})
	if err != nil {
		return nil, err
	}
	return resp.Event, nil
}

func (c *GRPCClient) GetActiveSnapshot(ctx context.Context, sourceID string) ([]model.Event, error) {
	resp, err := c.client.GetActiveSnapshot(ctx, &queryrpc.SourceRequest{SourceID: sourceID})
	if err != nil {
		return nil, err
	}
	if resp.Events == nil {
		return []model.Event{}, nil
	}
	return resp.Events, nil
}

// Health runs the standard gRPC health check against the query service.
func (c *GRPCClient) Health(ctx context.Context) (string, error) {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: queryrpc.ServiceName})
	if err != nil {
		return "", err
	}
	if resp.GetStatus() == healthpb.HealthCheckResponse_SERVING {
		return "ok", nil
	}
	return resp.GetStatus().String(), nil
}
