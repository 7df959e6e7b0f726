package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/watchpoints/points-engine/pkg/enums"
	"github.com/watchpoints/points-engine/pkg/outbox"
)

func init() {
	rootCmd.AddCommand(dlqCmd)
	dlqCmd.AddCommand(dlqRequeueCmd)

	dlqCmd.Flags().String("type", "", "only show this event type")
	dlqCmd.Flags().String("reason", "", "only show this failure reason (max_attempts, non_retryable)")
	dlqCmd.Flags().Int("limit", 50, "maximum entries to print")

	dlqRequeueCmd.Flags().String("event", "", "outbox event id to hand back to the publisher")
	_ = dlqRequeueCmd.MarkFlagRequired("event")
}

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "List outbox events the publisher parked",
	Args:  cobra.NoArgs,
	RunE:  runDLQList,
}

var dlqRequeueCmd = &cobra.Command{
	Use:   "requeue",
	Short: "Reset a parked event so the publisher retries it",
	Args:  cobra.NoArgs,
	RunE:  runDLQRequeue,
}

func runDLQList(cmd *cobra.Command, _ []string) error {
	var filter outbox.DLQFilter
	if raw, _ := cmd.Flags().GetString("type"); raw != "" {
		eventType, err := enums.ParseOutboxEventType(raw)
		if err != nil {
			return err
		}
		filter.EventType = eventType
	}
	if raw, _ := cmd.Flags().GetString("reason"); raw != "" {
		reason, err := enums.ParseOutboxDLQErrorReason(raw)
		if err != nil {
			return err
		}
		filter.Reason = reason
	}
	filter.Limit, _ = cmd.Flags().GetInt("limit")

	rt, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	rows, err := outbox.NewDLQRepository(rt.db.DB()).List(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("list dlq: %w", err)
	}
	return printJSON(cmd.OutOrStdout(), rows)
}

func runDLQRequeue(cmd *cobra.Command, _ []string) error {
	raw, _ := cmd.Flags().GetString("event")
	eventID, err := uuid.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid --event %q: %w", raw, err)
	}
	rt, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	err = outbox.NewDLQRepository(rt.db.DB()).Requeue(cmd.Context(), eventID)
	if errors.Is(err, outbox.ErrNotParked) {
		return fmt.Errorf("event %s is not in the dlq", eventID)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "requeued %s\n", eventID)
	return nil
}
