// Command amount is a classifier plugin that matches events whose text
// carries a yuan amount such as "12.50元" or "到账 3 元".
package main

import (
	"regexp"

	"github.com/alfredjeanlab/paywatch/internal/classify"
	"github.com/alfredjeanlab/paywatch/internal/classify/plugin"
	"github.com/alfredjeanlab/paywatch/internal/model"
)

var amountPattern = regexp.MustCompile(`\d+(\.\d+)?\s*元`)

func matches(ev model.Event) bool {
	return amountPattern.MatchString(classify.CombinedText(ev))
}

func main() {
	plugin.Serve(classify.Func(matches))
}
