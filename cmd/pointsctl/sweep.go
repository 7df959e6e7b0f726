package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/watchpoints/points-engine/internal/cron"
	"github.com/watchpoints/points-engine/pkg/redis"
)

func init() {
	rootCmd.AddCommand(sweepCmd)
	sweepCmd.Flags().StringSlice("job", nil, "run only these jobs (repeatable); default runs all")
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one cycle of the scheduled jobs",
	Long:  `Runs every scheduled job once under the same distributed lock the cron worker uses. Exits without work when a cron worker currently holds the lock.`,
	Args:  cobra.NoArgs,
	RunE:  runSweep,
}

func runSweep(cmd *cobra.Command, _ []string) error {
	rt, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	all, err := rt.engine.CronRegistry(rt.logg, rt.db, rt.cfg.Outbox.RetentionDays)
	if err != nil {
		return err
	}
	only, _ := cmd.Flags().GetStringSlice("job")
	registry, err := all.Only(only...)
	if err != nil {
		return err
	}
	lock, err := cron.NewRedisLock(rt.redis, sweepLockKey(rt.redis, rt.cfg.App.Env), rt.cfg.Cron.LockTTL)
	if err != nil {
		return err
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:     rt.logg,
		Registry:   registry,
		Lock:       lock,
		JobTimeout: rt.cfg.Cron.JobTimeout,
	})
	if err != nil {
		return err
	}

	cycle, err := service.RunOnce(cmd.Context())
	if err != nil {
		return err
	}
	return printCycle(cmd.OutOrStdout(), cycle)
}

func printCycle(w io.Writer, cycle cron.Cycle) error {
	if !cycle.Ran {
		fmt.Fprintln(w, "skipped: lock held by another instance")
		return nil
	}
	for _, res := range cycle.Results {
		status := "ok"
		if res.Err != nil {
			status = "FAILED: " + res.Err.Error()
		}
		fmt.Fprintf(w, "%-24s %8s  %s\n", res.Name, res.Duration.Round(time.Millisecond), status)
	}
	if failed := cycle.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d of %d jobs failed", len(failed), len(cycle.Results))
	}
	return nil
}

// sweepLockKey matches the cron worker so manual runs never overlap a scheduled cycle.
func sweepLockKey(client *redis.Client, env string) string {
	if env == "" {
		env = "local"
	}
	return client.LockKey(fmt.Sprintf("cron-worker:%s", env))
}
