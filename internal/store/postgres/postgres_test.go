package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/alfredjeanlab/paywatch/internal/model"
	"github.com/alfredjeanlab/paywatch/internal/store"
)

// newMockDB creates a sqlmock database with automatic cleanup and expectation checking.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

var stateColumns = []string{"source_id", "has_active", "latest_event", "latest_matching_event", "active_snapshot", "updated_at_ms"}

const eventJSON = `{"sourceId":"src","key":"k1","id":1,"channelId":null,"postedAtMs":1000,"whenMs":1000,"category":null,"title":"支付宝","text":"成功收款0.01元","subText":null,"bigText":null,"infoText":null}`

func TestQueryGetState(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT .+ FROM derived_states WHERE source_id = \\$1").WithArgs("src").
		WillReturnRows(sqlmock.NewRows(stateColumns).AddRow("src", true, eventJSON, eventJSON, "["+eventJSON+"]", int64(2000)))

	got, err := queryGetState(context.Background(), db, "src")
	if err != nil {
		t.Fatalf("queryGetState: %v", err)
	}
	if !got.HasActive || got.UpdatedAtMs != 2000 || len(got.ActiveSnapshot) != 1 {
		t.Errorf("queryGetState = %+v", got)
	}
	if got.LatestEvent == nil || model.Value(got.LatestEvent.Text) != "成功收款0.01元" {
		t.Errorf("LatestEvent = %+v", got.LatestEvent)
	}
	if got.LatestEvent.Category != nil {
		t.Error("null category decoded as non-nil")
	}
}

func TestQueryGetState_NullEvents(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT .+ FROM derived_states").WithArgs("src").
		WillReturnRows(sqlmock.NewRows(stateColumns).AddRow("src", false, nil, nil, "[]", int64(0)))

	got, err := queryGetState(context.Background(), db, "src")
	if err != nil {
		t.Fatalf("queryGetState: %v", err)
	}
	if got.LatestEvent != nil || got.LatestMatchingEvent != nil || got.ActiveSnapshot == nil {
		t.Errorf("queryGetState = %+v", got)
	}
}

func TestGetState_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT .+ FROM derived_states").WithArgs("missing").WillReturnError(sql.ErrNoRows)

	s := &PostgresStore{db: db}
	if _, err := s.GetState(context.Background(), "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetState error = %v, want ErrNotFound", err)
	}
}

func TestGetState_Malformed(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT .+ FROM derived_states").WithArgs("src").
		WillReturnRows(sqlmock.NewRows(stateColumns).AddRow("src", true, "{broken", nil, "[]", int64(1)))

	s := &PostgresStore{db: db}
	_, err := s.GetState(context.Background(), "src")
	if !errors.Is(err, model.ErrMalformed) || store.IsFault(err) {
		t.Fatalf("GetState error = %v, want ErrMalformed", err)
	}
}

func TestGetState_Fault(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT .+ FROM derived_states").WithArgs("src").WillReturnError(errors.New("connection refused"))

	s := &PostgresStore{db: db}
	_, err := s.GetState(context.Background(), "src")
	var se *store.Error
	if !errors.As(err, &se) || se.Op != "get state" {
		t.Fatalf("GetState error = %v, want *store.Error", err)
	}
}

func TestQueryPutState(t *testing.T) {
	db, mock := newMockDB(t)
	ev := model.Event{SourceID: "src", Key: "k1"}
	st := &model.DerivedState{SourceID: "src", HasActive: true, LatestEvent: &ev, ActiveSnapshot: []model.Event{ev}, UpdatedAtMs: 9}

	mock.ExpectExec("INSERT INTO derived_states .+ ON CONFLICT \\(source_id\\) DO UPDATE").
		WithArgs("src", true, sqlmock.AnyArg(), nil, sqlmock.AnyArg(), int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := queryPutState(context.Background(), db, st); err != nil {
		t.Fatalf("queryPutState: %v", err)
	}
}

func TestPutState_Fault(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("INSERT INTO derived_states").WillReturnError(errors.New("disk full"))

	s := &PostgresStore{db: db}
	if err := s.PutState(context.Background(), model.EmptyState("src")); !store.IsFault(err) {
		t.Fatalf("PutState error = %v, want *store.Error", err)
	}
}

func TestQueryListStates(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT .+ FROM derived_states ORDER BY source_id").
		WillReturnRows(sqlmock.NewRows(stateColumns).
			AddRow("a", false, nil, nil, "[]", int64(1)).
			AddRow("b", true, eventJSON, nil, "["+eventJSON+"]", int64(2)))

	got, err := queryListStates(context.Background(), db)
	if err != nil {
		t.Fatalf("queryListStates: %v", err)
	}
	if len(got) != 2 || got[0].SourceID != "a" || !got[1].HasActive {
		t.Errorf("queryListStates = %+v", got)
	}
}

func TestQueryListStates_SkipsMalformed(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT .+ FROM derived_states ORDER BY source_id").
		WillReturnRows(sqlmock.NewRows(stateColumns).
			AddRow("a", true, "{nope", nil, "[]", int64(1)).
			AddRow("b", true, eventJSON, nil, "["+eventJSON+"]", int64(2)))

	got, err := queryListStates(context.Background(), db)
	if err != nil {
		t.Fatalf("queryListStates: %v", err)
	}
	if len(got) != 1 || got[0].SourceID != "b" {
		t.Errorf("queryListStates = %+v, want only b", got)
	}
}
