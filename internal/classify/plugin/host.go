package plugin

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	goplugin "github.com/hashicorp/go-plugin"

	"github.com/alfredjeanlab/paywatch/internal/classify"
	"github.com/alfredjeanlab/paywatch/internal/model"
)

const (
	defaultStartTimeout = 3 * time.Second
	defaultCallTimeout  = 2 * time.Second
)

// Remote is a classify.Classifier backed by a plugin. Classification never
// fails: an RPC error is logged and the event is treated as not matching.
type Remote struct {
	name    string
	client  ClassifierClient
	kill    func()
	timeout time.Duration
	logger  *slog.Logger
}

var _ classify.Classifier = (*Remote)(nil)

// NewRemote wraps an already connected client. kill may be nil.
func NewRemote(name string, client ClassifierClient, kill func(), logger *slog.Logger) *Remote {
	if logger == nil {
		logger = slog.Default()
	}
	return &Remote{name: name, client: client, kill: kill, timeout: defaultCallTimeout, logger: logger}
}

// Load starts the plugin binary at path and returns a classifier bound to it.
// The process stays up until Close.
func Load(path string, logger *slog.Logger) (*Remote, error) {
	client := goplugin.NewClient(&goplugin.ClientConfig{
		HandshakeConfig:  HandshakeConfig,
		AllowedProtocols: []goplugin.Protocol{goplugin.ProtocolGRPC},
		Plugins:          PluginMap(nil),
		Cmd:              exec.Command(path),
		Managed:          true,
		StartTimeout:     defaultStartTimeout,
		Logger:           hclog.New(&hclog.LoggerOptions{Output: io.Discard, Level: hclog.NoLevel}),
	})
	kill := func() { client.Kill() }

	rpcClient, err := client.Client()
	if err != nil {
		kill()
		return nil, fmt.Errorf("start plugin %s: %w", path, err)
	}
	raw, err := rpcClient.Dispense(PluginMapKey)
	if err != nil {
		kill()
		return nil, fmt.Errorf("dispense plugin %s: %w", path, err)
	}
	typed, ok := raw.(ClassifierClient)
	if !ok {
		kill()
		return nil, fmt.Errorf("plugin %s: rpc client type mismatch", path)
	}
	return NewRemote(path, typed, kill, logger), nil
}

// IsMatching implements classify.Classifier.
func (r *Remote) IsMatching(ev model.Event) bool {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	resp, err := r.client.IsMatching(ctx, &MatchRequest{Event: ev})
	if err != nil {
		r.logger.Warn("classifier plugin call failed", "plugin", r.name, "source_id", ev.SourceID, "error", err)
		return false
	}
	return resp.Matching
}

// Close kills the plugin process.
func (r *Remote) Close() error {
	if r.kill != nil {
		r.kill()
	}
	return nil
}

// Server adapts a local classify.Classifier to ClassifierServer, for plugin
// binaries.
type Server struct {
	Classifier classify.Classifier
}

func (s *Server) IsMatching(_ context.Context, in *MatchRequest) (*MatchResponse, error) {
	return &MatchResponse{Matching: s.Classifier.IsMatching(in.Event)}, nil
}

// Serve runs c as a plugin. It blocks until the host kills the process.
func Serve(c classify.Classifier) {
	goplugin.Serve(&goplugin.ServeConfig{
		HandshakeConfig: HandshakeConfig,
		Plugins:         PluginMap(&Server{Classifier: c}),
		GRPCServer:      goplugin.DefaultGRPCServer,
	})
}
