// Package plugin runs event classifiers out of process. A plugin binary
// serves the Classifier gRPC service through hashicorp/go-plugin; the host
// loads it once and keeps the process alive until Close.
package plugin

import (
	"context"
	"fmt"

	goplugin "github.com/hashicorp/go-plugin"
	"google.golang.org/grpc"

	"github.com/alfredjeanlab/paywatch/internal/model"
	"github.com/alfredjeanlab/paywatch/internal/rpcjson"
)

const (
	PluginMapKey     = "classifier"
	serviceName      = "paywatch.classifier.v1.Classifier"
	methodIsMatching = "/" + serviceName + "/IsMatching"
)

// HandshakeConfig must match between host and plugin binaries.
var HandshakeConfig = goplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "PAYWATCH_PLUGIN",
	MagicCookieValue: "classifier",
}

type MatchRequest struct {
	Event model.Event `json:"event"`
}

type MatchResponse struct {
	Matching bool `json:"matching"`
}

type ClassifierServer interface {
	IsMatching(ctx context.Context, in *MatchRequest) (*MatchResponse, error)
}

type ClassifierClient interface {
	IsMatching(ctx context.Context, in *MatchRequest) (*MatchResponse, error)
}

type classifierClient struct {
	conn grpc.ClientConnInterface
}

func NewClassifierClient(conn grpc.ClientConnInterface) ClassifierClient {
	return &classifierClient{conn: conn}
}

func (c *classifierClient) IsMatching(ctx context.Context, in *MatchRequest) (*MatchResponse, error) {
	out := &MatchResponse{}
	if err := c.conn.Invoke(ctx, methodIsMatching, in, out, rpcjson.CallOption()); err != nil {
		return nil, err
	}
	return out, nil
}

func RegisterClassifierServer(server grpc.ServiceRegistrar, impl ClassifierServer) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*ClassifierServer)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "IsMatching",
				Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
					in := &MatchRequest{}
					if err := dec(in); err != nil {
						return nil, err
					}
					if interceptor == nil {
						return impl.IsMatching(ctx, in)
					}
					info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodIsMatching}
					handler := func(ctx context.Context, req any) (any, error) {
						r, ok := req.(*MatchRequest)
						if !ok {
							return nil, fmt.Errorf("invalid request type")
						}
						return impl.IsMatching(ctx, r)
					}
					return interceptor(ctx, in, info, handler)
				},
			},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "paywatch/classifier/v1/classifier.proto",
	}, impl)
}

// GRPCPlugin is the go-plugin binding for the classifier service.
type GRPCPlugin struct {
	goplugin.NetRPCUnsupportedPlugin
	Impl ClassifierServer
}

func (p *GRPCPlugin) GRPCServer(_ *goplugin.GRPCBroker, server *grpc.Server) error {
	RegisterClassifierServer(server, p.Impl)
	return nil
}

func (p *GRPCPlugin) GRPCClient(_ context.Context, _ *goplugin.GRPCBroker, conn *grpc.ClientConn) (any, error) {
	return NewClassifierClient(conn), nil
}

func PluginMap(impl ClassifierServer) map[string]goplugin.Plugin {
	return map[string]goplugin.Plugin{
		PluginMapKey: &GRPCPlugin{Impl: impl},
	}
}
