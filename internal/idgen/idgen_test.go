package idgen

import (
	"regexp"
	"strings"
	"testing"
)

func TestSubscription(t *testing.T) {
	id, err := Subscription()
	if err != nil {
		t.Fatalf("Subscription() error: %v", err)
	}
	if !strings.HasPrefix(id, SubscriptionPrefix) {
		t.Errorf("Subscription() = %q, want prefix %q", id, SubscriptionPrefix)
	}
	if wantLen := len(SubscriptionPrefix) + Length; len(id) != wantLen {
		t.Errorf("Subscription() length = %d, want %d (id=%q)", len(id), wantLen, id)
	}
}

func TestExport(t *testing.T) {
	id, err := Export()
	if err != nil {
		t.Fatalf("Export() error: %v", err)
	}
	if !strings.HasPrefix(id, ExportPrefix) {
		t.Errorf("Export() = %q, want prefix %q", id, ExportPrefix)
	}
}

func TestGenerateWithPrefix_Charset(t *testing.T) {
	pattern := regexp.MustCompile(`^test-[a-zA-Z0-9]+$`)
	for i := 0; i < 100; i++ {
		id, err := GenerateWithPrefix("test-")
		if err != nil {
			t.Fatalf("GenerateWithPrefix() error on iteration %d: %v", i, err)
		}
		if !pattern.MatchString(id) {
			t.Fatalf("GenerateWithPrefix() = %q, does not match expected charset pattern", id)
		}
	}
}

func TestSubscription_Uniqueness(t *testing.T) {
	const count = 10_000
	seen := make(map[string]struct{}, count)
	for i := 0; i < count; i++ {
		id, err := Subscription()
		if err != nil {
			t.Fatalf("Subscription() error on iteration %d: %v", i, err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate ID after %d generations: %q", i, id)
		}
		seen[id] = struct{}{}
	}
}
