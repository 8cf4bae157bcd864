// Package client provides a transport-agnostic interface for the paywatch
// query API, with HTTP/JSON and gRPC implementations.
package client

import (
	"context"

	"github.com/alfredjeanlab/paywatch/internal/model"
	"github.com/alfredjeanlab/paywatch/internal/queryrpc"
)

// Client is the read surface every pw command uses. An empty sourceID means
// the server's primary source on gRPC; HTTP requires a source id.
type Client interface {
	IsMonitoringAuthorized(ctx context.Context) (bool, error)
	GetState(ctx context.Context, sourceID string) (*queryrpc.StateResponse, error)
	GetLatestEvent(ctx context.Context, sourceID string) (*model.Event, error)
	GetLatestMatchingEvent(ctx context.Context, sourceID string) (*model.Event, error)
	GetActiveSnapshot(ctx context.Context, sourceID string) ([]model.Event, error)

	Health(ctx context.Context) (string, error)
	Close() error
}

var (
	_ Client = (*HTTPClient)(nil)
	_ Client = (*GRPCClient)(nil)
)
