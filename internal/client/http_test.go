package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alfredjeanlab/paywatch/internal/broadcast"
	"github.com/alfredjeanlab/paywatch/internal/ingest"
	"github.com/alfredjeanlab/paywatch/internal/model"
)

// testHandler captures the incoming request details and returns a canned response.
type testHandler struct {
	method string
	path   string
	query  string
	body   string
	auth   string

	statusCode   int
	responseBody string
}

func (h *testHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.method = r.Method
	h.path = r.URL.Path
	h.query = r.URL.RawQuery
	h.auth = r.Header.Get("Authorization")
	if r.Body != nil {
		data, _ := io.ReadAll(r.Body)
		h.body = string(data)
	}

	w.Header().Set("Content-Type", "application/json")
	if h.statusCode != 0 {
		w.WriteHeader(h.statusCode)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	if h.responseBody != "" {
		_, _ = w.Write([]byte(h.responseBody))
	}
}

// newTestClient creates an HTTPClient pointed at a test server with the given handler.
func newTestClient(t *testing.T, h http.Handler) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL+"/", "tok")
}

func TestHTTPClient_GetState(t *testing.T) {
	h := &testHandler{responseBody: `{"authorized":true,"hasActive":true,"updatedAtMs":7}`}
	c := newTestClient(t, h)

	st, err := c.GetState(context.Background(), "com.eg.android.AlipayGphone")
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if h.method != "GET" || h.path != "/v1/sources/com.eg.android.AlipayGphone/state" {
		t.Errorf("request = %s %s", h.method, h.path)
	}
	if h.auth != "Bearer tok" {
		t.Errorf("Authorization = %q", h.auth)
	}
	if !st.Authorized || !st.HasActive || st.UpdatedAtMs != 7 {
		t.Errorf("state = %+v", st)
	}
}

func TestHTTPClient_LatestAndSnapshot(t *testing.T) {
	h := &testHandler{responseBody: `{"event":null}`}
	c := newTestClient(t, h)
	ctx := context.Background()

	ev, err := c.GetLatestMatchingEvent(ctx, "src")
	if err != nil || ev != nil {
		t.Fatalf("GetLatestMatchingEvent = %+v, %v; want nil", ev, err)
	}
	if h.path != "/v1/sources/src/latest-matching" {
		t.Errorf("path = %s", h.path)
	}

	h.responseBody = `{"event":{"sourceId":"src","key":"k","id":1,"channelId":null,"postedAtMs":9,"whenMs":9,"category":null,"title":"t","text":null,"subText":null,"bigText":null,"infoText":null}}`
	ev, err = c.GetLatestEvent(ctx, "src")
	if err != nil || ev == nil || ev.Key != "k" || model.Value(ev.Title) != "t" || ev.Text != nil {
		t.Fatalf("GetLatestEvent = %+v, %v", ev, err)
	}

	h.responseBody = `{"events":null}`
	snap, err := c.GetActiveSnapshot(ctx, "src")
	if err != nil || snap == nil || len(snap) != 0 {
		t.Fatalf("GetActiveSnapshot = %#v, %v; want empty non-nil", snap, err)
	}
}

func TestHTTPClient_Posted(t *testing.T) {
	h := &testHandler{responseBody: `{"sourceId":"src","hasActive":true,"latestEvent":null,"latestMatchingEvent":null,"activeSnapshot":[],"updatedAtMs":3}`}
	c := newTestClient(t, h)

	res, err := c.Posted(context.Background(), ingest.Request{Event: model.Event{SourceID: "src", Key: "k"}})
	if err != nil {
		t.Fatalf("Posted: %v", err)
	}
	if h.method != "POST" || h.path != "/v1/events/posted" {
		t.Errorf("request = %s %s", h.method, h.path)
	}
	if !strings.Contains(h.body, `"active":null`) {
		t.Errorf("body = %s, want explicit null active", h.body)
	}
	if res.Ignored || res.State == nil || !res.State.HasActive || res.State.UpdatedAtMs != 3 {
		t.Errorf("result = %+v", res)
	}

	h.responseBody = `{"ignored":true}`
	res, err = c.Removed(context.Background(), ingest.Request{Event: model.Event{SourceID: "other", Key: "k"}})
	if err != nil || !res.Ignored || res.State != nil {
		t.Errorf("Removed = %+v, %v; want ignored", res, err)
	}
	if h.path != "/v1/events/removed" {
		t.Errorf("path = %s", h.path)
	}
}

func TestHTTPClient_SetAuthorized(t *testing.T) {
	h := &testHandler{responseBody: `{"authorized":true}`}
	c := newTestClient(t, h)
	if err := c.SetAuthorized(context.Background(), true); err != nil {
		t.Fatalf("SetAuthorized: %v", err)
	}
	if h.method != "PUT" || h.path != "/v1/authorization" || strings.TrimSpace(h.body) != `{"authorized":true}` {
		t.Errorf("request = %s %s %s", h.method, h.path, h.body)
	}
	ok, err := c.IsMonitoringAuthorized(context.Background())
	if err != nil || !ok {
		t.Errorf("IsMonitoringAuthorized = %v, %v", ok, err)
	}
}

func TestHTTPClient_APIError(t *testing.T) {
	h := &testHandler{statusCode: 500, responseBody: `{"error":"storage: disk full"}`}
	c := newTestClient(t, h)
	_, err := c.GetActiveSnapshot(context.Background(), "src")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != 500 || apiErr.Message != "storage: disk full" {
		t.Errorf("APIError = %+v", apiErr)
	}

	h.responseBody = "plain text"
	_, err = c.Health(context.Background())
	if !errors.As(err, &apiErr) || apiErr.Message != "plain text" {
		t.Errorf("Health error = %v", err)
	}
}

func TestHTTPClient_Stream(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("types")
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ":keepalive\n\n")
		fmt.Fprint(w, "id:1\nevent:state\ndata:{\"type\":\"state\",\"sourceId\":\"src\",\"hasActive\":true,\"updatedAtMs\":1,\"latestEvent\":null,\"latestMatchingEvent\":null}\n\n")
		fmt.Fprint(w, "id:2\nevent:posted\ndata:{\"type\":\"posted\",\"sourceId\":\"src\",\"event\":{\"sourceId\":\"src\",\"key\":\"k\"}}\n\n")
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	var got []broadcast.Notification
	err := c.Stream(context.Background(), []broadcast.Kind{broadcast.KindState, broadcast.KindPosted}, func(n broadcast.Notification) error {
		got = append(got, n)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if gotQuery != "state,posted" {
		t.Errorf("types = %q", gotQuery)
	}
	if len(got) != 2 || got[0].Kind != broadcast.KindState || got[1].Kind != broadcast.KindPosted {
		t.Fatalf("notifications = %+v", got)
	}
	if !got[0].State.HasActive || got[1].Posted.Event.Key != "k" {
		t.Errorf("payloads = %+v / %+v", got[0].State, got[1].Posted)
	}
}

func TestHTTPClient_StreamStopsOnCallbackError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for i := range 3 {
			fmt.Fprintf(w, "id:%d\nevent:state\ndata:{\"type\":\"state\",\"sourceId\":\"s\"}\n\n", i)
		}
	}))
	defer srv.Close()

	stop := errors.New("stop")
	calls := 0
	err := NewHTTPClient(srv.URL, "").Stream(context.Background(), nil, func(broadcast.Notification) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Errorf("Stream = %v after %d calls, want stop after 1", err, calls)
	}
}
