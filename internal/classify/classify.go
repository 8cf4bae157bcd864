// Package classify decides whether an event is "payment-like" for its
// source. Classifiers are pure predicates and are swapped per source through
// a Registry without touching the aggregator.
package classify

import (
	"strings"

	"github.com/alfredjeanlab/paywatch/internal/model"
)

// Classifier reports whether an event matches the source's interest.
type Classifier interface {
	IsMatching(ev model.Event) bool
}

// Func adapts a plain function to the Classifier interface.
type Func func(ev model.Event) bool

// IsMatching calls f(ev).
func (f Func) IsMatching(ev model.Event) bool { return f(ev) }

// Default keyword sets for the payment heuristic.
const (
	DefaultSuccessPhrase   = "成功收款"
	DefaultReceiptKeyword  = "收款"
	DefaultCurrencyKeyword = "元"
)

// Keywords is a best-effort string heuristic over the event's free text.
// An event matches when the combined text contains any success phrase, or
// contains a receipt keyword together with a currency keyword.
type Keywords struct {
	SuccessPhrases   []string
	ReceiptKeywords  []string
	CurrencyKeywords []string
}

// Payment is the default classifier for payment notifications.
var Payment = Keywords{
	SuccessPhrases:   []string{DefaultSuccessPhrase},
	ReceiptKeywords:  []string{DefaultReceiptKeyword},
	CurrencyKeywords: []string{DefaultCurrencyKeyword},
}

// IsMatching implements Classifier.
func (k Keywords) IsMatching(ev model.Event) bool {
	combined := CombinedText(ev)
	if strings.TrimSpace(combined) == "" {
		return false
	}
	if containsAny(combined, k.SuccessPhrases) {
		return true
	}
	return containsAny(combined, k.ReceiptKeywords) && containsAny(combined, k.CurrencyKeywords)
}

// CombinedText joins title, text and big text with single spaces. Absent
// fields contribute an empty string.
func CombinedText(ev model.Event) string {
	return model.Value(ev.Title) + " " + model.Value(ev.Text) + " " + model.Value(ev.BigText)
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// Never rejects every event, for sources that are watched only for
// activity.
var Never = Func(func(model.Event) bool { return false })
