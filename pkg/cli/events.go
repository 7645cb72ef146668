package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/beam-cloud/bucketmount/pkg/common"
	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Follow mount events from redis",
	Long: `Print supervisor events published to the configured redis channel by any
bucketmount process, until interrupted. Requires events.redis.addr.`,
	Args: cobra.NoArgs,
	RunE: runEvents,
}

func init() {
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, args []string) error {
	redisCfg := appConfig.Events.Redis
	if !redisCfg.Enabled() {
		return errors.New("events.redis.addr is not configured")
	}
	if redisCfg.Channel == "" {
		redisCfg.Channel = common.Keys.EventsChannel()
	}

	rdb, err := common.NewRedisClient(redisCfg, common.WithClientName("BucketmountEvents"))
	if err != nil {
		return err
	}
	defer rdb.Close()

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := common.NewEventBus(ctx, rdb, redisCfg.Channel)
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()
	go bus.Start()

	select {
	case <-bus.Subscribed():
	case <-ctx.Done():
		return nil
	}
	if !IsJSONOutput() {
		PrintInfof("Listening on %s", CodeStyle.Render(redisCfg.Channel))
	}
	if last, ok, err := bus.Last(ctx); err == nil && ok {
		renderEvent(last)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-events:
			renderEvent(e)
		}
	}
}
