package sync

import (
	"context"
	"sort"
	gosync "sync"

	"github.com/alfredjeanlab/paywatch/internal/model"
	"github.com/alfredjeanlab/paywatch/internal/store"
)

// mockStore is an in-memory store.Store.
type mockStore struct {
	mu     gosync.Mutex
	states map[string]*model.DerivedState
	err    error
}

func newMockStore() *mockStore {
	return &mockStore{states: make(map[string]*model.DerivedState)}
}

func (m *mockStore) GetState(_ context.Context, sourceID string) (*model.DerivedState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[sourceID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return st, nil
}

func (m *mockStore) PutState(_ context.Context, st *model.DerivedState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[st.SourceID] = st
	return nil
}

func (m *mockStore) ListStates(_ context.Context) ([]*model.DerivedState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]*model.DerivedState, 0, len(m.states))
	for _, st := range m.states {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID > out[j].SourceID })
	return out, nil
}

func (m *mockStore) Close() error { return nil }

func strPtr(s string) *string { return &s }

func sampleState(sourceID string, postedAt int64) *model.DerivedState {
	ev := model.Event{
		SourceID:   sourceID,
		Key:        "k1",
		ID:         1,
		PostedAtMs: postedAt,
		Title:      strPtr("Payment received"),
		Text:       strPtr("You received 10.00 USD"),
	}
	return &model.DerivedState{
		SourceID:            sourceID,
		HasActive:           true,
		LatestEvent:         &ev,
		LatestMatchingEvent: &ev,
		ActiveSnapshot:      []model.Event{ev},
		UpdatedAtMs:         postedAt + 1,
	}
}
