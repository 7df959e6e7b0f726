package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(walletCmd)
	rootCmd.AddCommand(reconcileCmd)

	walletCmd.Flags().String("user", "", "user id")
	_ = walletCmd.MarkFlagRequired("user")

	reconcileCmd.Flags().String("user", "", "user id; omit to run a sampling pass")
	reconcileCmd.Flags().Bool("dry-run", false, "report drift without repairing")
}

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Print a wallet projection read from the database",
	Args:  cobra.NoArgs,
	RunE:  runWallet,
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Compare wallets against the ledger and repair drift",
	Long:  `With --user, reconciles a single wallet (read-only with --dry-run). Without it, runs one sampling pass the same way the cron job does.`,
	Args:  cobra.NoArgs,
	RunE:  runReconcile,
}

func userFlag(cmd *cobra.Command) (uuid.UUID, bool, error) {
	raw, _ := cmd.Flags().GetString("user")
	if raw == "" {
		return uuid.Nil, false, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("invalid --user %q: %w", raw, err)
	}
	return id, true, nil
}

func runWallet(cmd *cobra.Command, _ []string) error {
	userID, _, err := userFlag(cmd)
	if err != nil {
		return err
	}
	rt, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	view, err := rt.engine.Wallets.GetFresh(cmd.Context(), userID)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), view)
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	userID, single, err := userFlag(cmd)
	if err != nil {
		return err
	}
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	if dryRun && !single {
		return fmt.Errorf("--dry-run requires --user")
	}

	rt, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	if !single {
		result, err := rt.engine.Reconciler.Run(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), result)
	}

	check := rt.engine.Reconciler.Rebuild
	if dryRun {
		check = rt.engine.Reconciler.Check
	}
	report, err := check(cmd.Context(), userID)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), report)
}
