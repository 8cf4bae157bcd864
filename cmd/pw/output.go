package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/alfredjeanlab/paywatch/internal/broadcast"
	"github.com/alfredjeanlab/paywatch/internal/classify"
	"github.com/alfredjeanlab/paywatch/internal/model"
	"github.com/alfredjeanlab/paywatch/internal/queryrpc"
	"github.com/alfredjeanlab/paywatch/internal/ui"
)

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func formatMs(ms int64) string {
	if ms == 0 {
		return ui.RenderMuted("never")
	}
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04:05")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > n {
		return string(r[:n-3]) + "..."
	}
	return s
}

func printState(w io.Writer, sourceID string, st *queryrpc.StateResponse) {
	fmt.Fprintf(w, "Source:      %s\n", sourceID)
	fmt.Fprintf(w, "Authorized:  %s\n", ui.RenderBool(st.Authorized))
	fmt.Fprintf(w, "Active:      %s\n", ui.RenderBool(st.HasActive))
	fmt.Fprintf(w, "Updated At:  %s\n", formatMs(st.UpdatedAtMs))
}

func printEvent(w io.Writer, ev *model.Event) {
	if ev == nil {
		fmt.Fprintln(w, ui.RenderMuted("no event"))
		return
	}
	title := deref(ev.Title)
	if classify.Payment.IsMatching(*ev) {
		title = ui.RenderPayment(title)
	}
	fmt.Fprintf(w, "Key:         %s\n", ev.Key)
	fmt.Fprintf(w, "Source:      %s\n", ev.SourceID)
	fmt.Fprintf(w, "Posted At:   %s\n", formatMs(ev.PostedAtMs))
	fmt.Fprintf(w, "Title:       %s\n", title)
	if t := deref(ev.Text); t != "" {
		fmt.Fprintf(w, "Text:        %s\n", t)
	}
	if t := deref(ev.BigText); t != "" {
		fmt.Fprintf(w, "Big Text:    %s\n", t)
	}
}

func printSnapshot(w io.Writer, evs []model.Event) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "POSTED\tKEY\tTITLE\tTEXT")
	for _, ev := range evs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			formatMs(ev.PostedAtMs),
			ev.Key,
			truncate(deref(ev.Title), 30),
			truncate(deref(ev.Text), 50),
		)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d active\n", len(evs))
}

func printNotification(w io.Writer, n broadcast.Notification) {
	switch n.Kind {
	case broadcast.KindPosted:
		ev := n.Posted.Event
		fmt.Fprintf(w, "%s %s %s %s\n",
			ui.RenderAccent("posted"), n.SourceID(), ev.Key, truncate(deref(ev.Title)+" "+deref(ev.Text), 60))
	default:
		s := n.State
		latest := ui.RenderMuted("-")
		if s.LatestMatchingEvent != nil {
			latest = ui.RenderPayment(truncate(deref(s.LatestMatchingEvent.Text), 40))
		}
		fmt.Fprintf(w, "%s  %s active=%s latest-payment=%s\n",
			ui.RenderAccent("state"), s.SourceID, ui.RenderBool(s.HasActive), latest)
	}
}

func printErr(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
