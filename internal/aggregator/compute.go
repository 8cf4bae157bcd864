package aggregator

import (
	"sort"

	"github.com/alfredjeanlab/paywatch/internal/classify"
	"github.com/alfredjeanlab/paywatch/internal/model"
)

// Compute derives the state of sourceID from its full active set. active
// must be in delivery order, oldest delivery first; among events with equal
// PostedAtMs the later-delivered one ranks first. A nil classifier means
// classify.Payment.
func Compute(sourceID string, active []model.Event, c classify.Classifier, nowMs int64) *model.DerivedState {
	if c == nil {
		c = classify.Payment
	}

	order := make([]int, len(active))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := active[order[i]], active[order[j]]
		if a.PostedAtMs != b.PostedAtMs {
			return a.PostedAtMs > b.PostedAtMs
		}
		return order[i] > order[j]
	})

	snapshot := make([]model.Event, len(order))
	for i, idx := range order {
		snapshot[i] = active[idx]
	}

	s := &model.DerivedState{
		SourceID:       sourceID,
		HasActive:      len(snapshot) > 0,
		ActiveSnapshot: snapshot,
		UpdatedAtMs:    nowMs,
	}
	if len(snapshot) > 0 {
		latest := snapshot[0]
		s.LatestEvent = &latest
	}
	for _, ev := range snapshot {
		if c.IsMatching(ev) {
			m := ev
			s.LatestMatchingEvent = &m
			break
		}
	}
	return s
}
