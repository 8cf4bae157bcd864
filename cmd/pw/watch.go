package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/paywatch/internal/broadcast"
	"github.com/alfredjeanlab/paywatch/internal/events"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream state and posted notifications",
	Long: `Stream state and posted notifications.

Without --nats the command attaches to the server's push stream and becomes
its single subscriber, ending any earlier stream. With --nats it listens on
the broker instead and leaves the push stream alone.`,
	GroupID: "query",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		natsURL, _ := cmd.Flags().GetString("nats")
		typesFlag, _ := cmd.Flags().GetStringSlice("types")

		var kinds []broadcast.Kind
		for _, t := range typesFlag {
			kinds = append(kinds, broadcast.Kind(strings.TrimSpace(t)))
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		handle := func(n broadcast.Notification) error {
			if !wantKind(kinds, n.Kind) {
				return nil
			}
			if jsonOutput {
				return printJSON(n)
			}
			printNotification(os.Stdout, n)
			return nil
		}

		if natsURL != "" {
			return watchNATS(ctx, natsURL, handle)
		}
		err := httpClient.Stream(ctx, kinds, handle)
		if ctx.Err() != nil {
			return nil
		}
		return err
	},
}

func wantKind(kinds []broadcast.Kind, k broadcast.Kind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, want := range kinds {
		if want == k {
			return true
		}
	}
	return false
}

// watchNATS prints every notification published on the broker.
func watchNATS(ctx context.Context, natsURL string, fn func(broadcast.Notification) error) error {
	sub, err := events.NewNATSSubscriber(natsURL,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats: disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Printf("nats: reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(events.TopicNotifications)
	if err != nil {
		return fmt.Errorf("subscribing to notifications: %w", err)
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			n, err := broadcast.Decode(data)
			if err != nil {
				printErr("skipping notification: %v", err)
				continue
			}
			if err := fn(n); err != nil {
				return err
			}
		}
	}
}

func init() {
	watchCmd.Flags().String("nats", os.Getenv("PAYWATCH_NATS_URL"), "NATS URL to watch instead of the push stream")
	watchCmd.Flags().StringSlice("types", nil, "notification types to show (state, posted)")
}
