package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/watchpoints/points-engine/pkg/auth"
	"github.com/watchpoints/points-engine/pkg/enums"
)

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().String("user", "", "user id; a random one is generated when empty")
	tokenCmd.Flags().String("role", string(enums.RoleUser), "role claim: user or admin")
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an access token signed with the configured secret",
	Args:  cobra.NoArgs,
	RunE:  runToken,
}

func runToken(cmd *cobra.Command, _ []string) error {
	userID, ok, err := userFlag(cmd)
	if err != nil {
		return err
	}
	if !ok {
		userID = uuid.New()
	}
	rawRole, _ := cmd.Flags().GetString("role")
	role, err := enums.ParseRole(rawRole)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	token, err := auth.MintAccessToken(cfg.JWT, time.Now(), auth.AccessTokenPayload{UserID: userID, Role: role})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
