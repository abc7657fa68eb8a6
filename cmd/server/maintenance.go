package main

import (
	"encoding/json"
	"fmt"
	"time"

	"campuspay/internal/config"
	"campuspay/internal/handler"
	"campuspay/internal/job"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(resetDailyCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(tokenCmd)

	resetDailyCmd.Flags().Bool("force", true, "reset every student, not only rows last reset before today")

	tokenCmd.Flags().Int64("user-id", 0, "user id carried in the token")
	tokenCmd.Flags().String("role", "admin", "admin or store")
	tokenCmd.Flags().Int64("store-id", 0, "store id, required for the store role")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the ledger schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()
		a.logger.Info("数据库迁移完成", "driver", a.cfg.Database.Driver)
		return nil
	},
}

var resetDailyCmd = &cobra.Command{
	Use:   "reset-daily",
	Short: "Reset daily spending counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		a, err := bootstrap(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()

		rows, err := a.svc.Student.ResetDailySpent(cmd.Context(), force)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "reset %d students for %s\n", rows, a.calendar.Today())
		return nil
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Check balances against ledger history and rebuild store summaries",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()

		diverged := job.NewReconcileJob(a.svc.Recharge, a.svc.Store, a.reconcileInterval(), a.logger).RunOnce(cmd.Context())
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(diverged); err != nil {
			return err
		}
		if len(diverged) > 0 {
			return fmt.Errorf("%d students diverged", len(diverged))
		}
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Sign an access token for local use",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetInt64("user-id")
		role, _ := cmd.Flags().GetString("role")
		storeID, _ := cmd.Flags().GetInt64("store-id")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if role != handler.RoleAdmin && role != handler.RoleStore {
			return fmt.Errorf("unknown role %q", role)
		}
		if role == handler.RoleStore && storeID == 0 {
			return fmt.Errorf("--store-id is required for the store role")
		}
		tok, err := handler.IssueToken([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer, handler.Claims{
			UserID:  userID,
			Role:    role,
			StoreID: storeID,
		}, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}
