package plugin

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/alfredjeanlab/paywatch/internal/classify"
	"github.com/alfredjeanlab/paywatch/internal/model"
)

func startBufServer(t *testing.T, impl ClassifierServer) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterClassifierServer(srv, impl)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestRemote_IsMatching(t *testing.T) {
	conn := startBufServer(t, &Server{Classifier: classify.Payment})
	r := NewRemote("buf", NewClassifierClient(conn), nil, nil)

	if !r.IsMatching(model.Event{SourceID: "s", Key: "k", Text: model.String("成功收款1.00元")}) {
		t.Error("IsMatching = false for payment text")
	}
	if r.IsMatching(model.Event{SourceID: "s", Key: "k", Text: model.String("hello")}) {
		t.Error("IsMatching = true for unrelated text")
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestRemote_EventRoundTrip(t *testing.T) {
	var got model.Event
	conn := startBufServer(t, &Server{Classifier: classify.Func(func(ev model.Event) bool {
		got = ev
		return true
	})})
	r := NewRemote("buf", NewClassifierClient(conn), nil, nil)

	want := model.Event{SourceID: "s", Key: "k", ID: 7, PostedAtMs: 100, Title: model.String("t"), BigText: model.String("b")}
	if !r.IsMatching(want) {
		t.Fatal("IsMatching = false")
	}
	if !got.Equal(want) {
		t.Errorf("server saw %+v, want %+v", got, want)
	}
}

type failingClient struct{}

func (failingClient) IsMatching(context.Context, *MatchRequest) (*MatchResponse, error) {
	return nil, context.DeadlineExceeded
}

func TestRemote_ErrorIsNotMatching(t *testing.T) {
	killed := false
	r := NewRemote("broken", failingClient{}, func() { killed = true }, nil)
	if r.IsMatching(model.Event{Text: model.String("成功收款")}) {
		t.Error("IsMatching = true on RPC failure")
	}
	r.Close()
	if !killed {
		t.Error("Close did not kill the plugin")
	}
}

func TestLoad_MissingBinary(t *testing.T) {
	if _, err := Load(t.TempDir()+"/does-not-exist", nil); err == nil {
		t.Fatal("Load of missing binary succeeded")
	}
}
