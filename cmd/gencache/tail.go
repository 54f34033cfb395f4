package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/gencache"
	"github.com/unkn0wn-root/gencache/config"
	gczap "github.com/unkn0wn-root/gencache/log/zap"
	"github.com/unkn0wn-root/gencache/notify/redisnotify"
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print removal events published on the Redis channel",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(envFiles...)
		if err != nil {
			return err
		}
		if !cfg.Redis.Enabled() {
			return fmt.Errorf("GENCACHE_REDIS_URL is not set")
		}
		zl, err := newLogger(cfg.LogLevel)
		if err != nil {
			return err
		}
		defer zl.Sync()

		ro, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("redis url: %w", err)
		}
		rdb := redis.NewClient(ro)
		defer rdb.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		err = redisnotify.Subscribe(ctx, rdb, cfg.Redis.Channel, gczap.New(zl), func(ev gencache.RemovalEvent) {
			fmt.Fprintf(out, "%s %-8s %s/%s gen=%d\n",
				ev.At.Format(time.RFC3339Nano), ev.Reason, ev.Namespace, ev.Key, ev.Generation)
		})
		if ctx.Err() != nil {
			return nil
		}
		return err
	},
}

func init() { rootCmd.AddCommand(tailCmd) }
