// Package server exposes ingest, the query API and the push stream over HTTP
// and gRPC.
package server

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/alfredjeanlab/paywatch/internal/authz"
	"github.com/alfredjeanlab/paywatch/internal/broadcast"
	"github.com/alfredjeanlab/paywatch/internal/ingest"
	"github.com/alfredjeanlab/paywatch/internal/model"
	"github.com/alfredjeanlab/paywatch/internal/query"
	"github.com/alfredjeanlab/paywatch/internal/queryrpc"
	"github.com/alfredjeanlab/paywatch/internal/store"
)

// Sources lists the watched sources. *classify.Registry implements it.
type Sources interface {
	Primary() string
	Sources() []string
}

// Server implements queryrpc.QueryServiceServer and the HTTP handlers.
type Server struct {
	ingest  *ingest.Ingestor
	query   *query.Service
	authz   *authz.Flag
	bcast   *broadcast.Broadcaster
	sources Sources
	logger  *slog.Logger

	sseSeq atomic.Uint64
}

// New returns a Server. logger may be nil.
func New(ing *ingest.Ingestor, q *query.Service, flag *authz.Flag, b *broadcast.Broadcaster, sources Sources, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		ingest:  ing,
		query:   q,
		authz:   flag,
		bcast:   b,
		sources: sources,
		logger:  logger,
	}
}

// sourceID resolves an empty id to the primary source.
func (s *Server) sourceID(id string) string {
	if id == "" {
		return s.sources.Primary()
	}
	return id
}

// grpcError maps a query error to a status. Storage faults are Unavailable.
func grpcError(err error) error {
	if store.IsFault(err) {
		return status.Errorf(codes.Unavailable, "storage: %v", err)
	}
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		return status.Error(codes.InvalidArgument, verr.Error())
	}
	return status.Errorf(codes.Internal, "%v", err)
}

func (s *Server) IsMonitoringAuthorized(ctx context.Context, _ *queryrpc.AuthorizedRequest) (*queryrpc.AuthorizedResponse, error) {
	return &queryrpc.AuthorizedResponse{Authorized: s.query.IsMonitoringAuthorized(ctx)}, nil
}

func (s *Server) GetState(ctx context.Context, req *queryrpc.SourceRequest) (*queryrpc.StateResponse, error) {
	sum, err := s.query.GetState(ctx, s.sourceID(req.SourceID))
	if err != nil {
		return nil, grpcError(err)
	}
	return &queryrpc.StateResponse{
		Authorized:  sum.Authorized,
		HasActive:   sum.HasActive,
		UpdatedAtMs: sum.UpdatedAtMs,
	}, nil
}

func (s *Server) GetLatestEvent(ctx context.Context, req *queryrpc.SourceRequest) (*queryrpc.EventResponse, error) {
	ev, err := s.query.GetLatestEvent(ctx, s.sourceID(req.SourceID))
	if err != nil {
		return nil, grpcError(err)
	}
	return &queryrpc.EventResponse{Event: ev}, nil
}

func (s *Server) GetLatestMatchingEvent(ctx context.Context, req *queryrpc.SourceRequest) (*queryrpc.EventResponse, error) {
	ev, err := s.query.GetLatestMatchingEvent(ctx, s.sourceID(req.SourceID))
	if err != nil {
		return nil, grpcError(err)
	}
	return &queryrpc.EventResponse{Event: ev}, nil
}

func (s *Server) GetActiveSnapshot(ctx context.Context, req *queryrpc.SourceRequest) (*queryrpc.SnapshotResponse, error) {
	evs, err := s.query.GetActiveSnapshot(ctx, s.sourceID(req.SourceID))
	if err != nil {
		return nil, grpcError(err)
	}
	return &queryrpc.SnapshotResponse{Events: evs}, nil
}
