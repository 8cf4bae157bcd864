// Package queryrpc describes the paywatch.v1.QueryService gRPC service. The
// service uses the JSON codec from rpcjson, so its messages are plain Go
// structs and the descriptor is written by hand.
package queryrpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"

	"github.com/alfredjeanlab/paywatch/internal/model"
	"github.com/alfredjeanlab/paywatch/internal/rpcjson"
)

const ServiceName = "paywatch.v1.QueryService"

const (
	MethodIsMonitoringAuthorized = "/" + ServiceName + "/IsMonitoringAuthorized"
	MethodGetState               = "/" + ServiceName + "/GetState"
	MethodGetLatestEvent         = "/" + ServiceName + "/GetLatestEvent"
	MethodGetLatestMatchingEvent = "/" + ServiceName + "/GetLatestMatchingEvent"
	MethodGetActiveSnapshot      = "/" + ServiceName + "/GetActiveSnapshot"
)

type AuthorizedRequest struct{}

type AuthorizedResponse struct {
	Authorized bool `json:"authorized"`
}

// SourceRequest names the source being queried. An empty SourceID means the
// primary source.
type SourceRequest struct {
	SourceID string `json:"sourceId"`
}

type StateResponse struct {
	Authorized  bool  `json:"authorized"`
	HasActive   bool  `json:"hasActive"`
	UpdatedAtMs int64 `json:"updatedAtMs"`
}

// EventResponse carries a single event; Event is nil when there is none.
type EventResponse struct {
	Event *model.Event `json:"event"`
}

type SnapshotResponse struct {
	Events []model.Event `json:"events"`
}

type QueryServiceServer interface {
	IsMonitoringAuthorized(context.Context, *AuthorizedRequest) (*AuthorizedResponse, error)
	GetState(context.Context, *SourceRequest) (*StateResponse, error)
	GetLatestEvent(context.Context, *SourceRequest) (*EventResponse, error)
	GetLatestMatchingEvent(context.Context, *SourceRequest) (*EventResponse, error)
	GetActiveSnapshot(context.Context, *SourceRequest) (*SnapshotResponse, error)
}

type QueryServiceClient interface {
	IsMonitoringAuthorized(ctx context.Context, in *AuthorizedRequest, opts ...grpc.CallOption) (*AuthorizedResponse, error)
	GetState(ctx context.Context, in *SourceRequest, opts ...grpc.CallOption) (*StateResponse, error)
	GetLatestEvent(ctx context.Context, in *SourceRequest, opts ...grpc.CallOption) (*EventResponse, error)
	GetLatestMatchingEvent(ctx context.Context, in *SourceRequest, opts ...grpc.CallOption) (*EventResponse, error)
	GetActiveSnapshot(ctx context.Context, in *SourceRequest, opts ...grpc.CallOption) (*SnapshotResponse, error)
}

type queryServiceClient struct {
	conn grpc.ClientConnInterface
}

func NewQueryServiceClient(conn grpc.ClientConnInterface) QueryServiceClient {
	return &queryServiceClient{conn: conn}
}

func invoke[Req, Resp any](ctx context.Context, conn grpc.ClientConnInterface, method string, in *Req, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{rpcjson.CallOption()}, opts...)
	if err := conn.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *queryServiceClient) IsMonitoringAuthorized(ctx context.Context, in *AuthorizedRequest, opts ...grpc.CallOption) (*AuthorizedResponse, error) {
	return invoke[AuthorizedRequest, AuthorizedResponse](ctx, c.conn, MethodIsMonitoringAuthorized, in, opts)
}

func (c *queryServiceClient) GetState(ctx context.Context, in *SourceRequest, opts ...grpc.CallOption) (*StateResponse, error) {
	return invoke[SourceRequest, StateResponse](ctx, c.conn, MethodGetState, in, opts)
}

func (c *queryServiceClient) GetLatestEvent(ctx context.Context, in *SourceRequest, opts ...grpc.CallOption) (*EventResponse, error) {
	return invoke[SourceRequest, EventResponse](ctx, c.conn, MethodGetLatestEvent, in, opts)
}

func (c *queryServiceClient) GetLatestMatchingEvent(ctx context.Context, in *SourceRequest, opts ...grpc.CallOption) (*EventResponse, error) {
	return invoke[SourceRequest, EventResponse](ctx, c.conn, MethodGetLatestMatchingEvent, in, opts)
}

func (c *queryServiceClient) GetActiveSnapshot(ctx context.Context, in *SourceRequest, opts ...grpc.CallOption) (*SnapshotResponse, error) {
	return invoke[SourceRequest, SnapshotResponse](ctx, c.conn, MethodGetActiveSnapshot, in, opts)
}

// unary builds the method descriptor for one RPC.
func unary[Req, Resp any](name string, call func(QueryServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			impl := srv.(QueryServiceServer)
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(impl, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				r, ok := req.(*Req)
				if !ok {
					return nil, fmt.Errorf("invalid request type %T", req)
				}
				return call(impl, ctx, r)
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc is the descriptor registered by RegisterQueryServiceServer.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*QueryServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("IsMonitoringAuthorized", QueryServiceServer.IsMonitoringAuthorized),
		unary("GetState", QueryServiceServer.GetState),
		unary("GetLatestEvent", QueryServiceServer.GetLatestEvent),
		unary("GetLatestMatchingEvent", QueryServiceServer.GetLatestMatchingEvent),
		unary("GetActiveSnapshot", QueryServiceServer.GetActiveSnapshot),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "paywatch/v1/query.proto",
}

func RegisterQueryServiceServer(s grpc.ServiceRegistrar, impl QueryServiceServer) {
	s.RegisterService(&ServiceDesc, impl)
}

// SourcesResponse lists the watched sources. It is served over HTTP only.
type SourcesResponse struct {
	Primary string   `json:"primary"`
	Sources []string `json:"sources"`
}
