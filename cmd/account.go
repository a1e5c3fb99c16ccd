// File: cmd/account.go
// Description: Account inspection and sign-out. `status` probes silently and
// never prompts; `logout` revokes and evicts the credential.

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var upgradePlan string

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Inspect or manage the signed-in account",
}

var accountStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current auth state and subscription",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		out := cmd.OutOrStdout()
		status := a.session.CheckAuth(ctx)
		if !status.Authenticated {
			fmt.Fprintln(out, "Signed out.")
			if err := a.backend.Health(ctx); err != nil {
				fmt.Fprintln(out, "Backend is unreachable.")
			}
			return nil
		}

		// CheckAuth refreshed the cached subscription on its way through.
		sub, _ := a.cache.Subscription()
		fmt.Fprintf(out, "Signed in. Plan: %s (%s)\n", sub.PlanName, sub.PlanID)
		fmt.Fprintf(out, "Requests: %d used of %d (%d left)\n", sub.RequestsUsed, sub.MaxRequests, sub.Remaining())

		token, err := a.session.GetToken(ctx, false)
		if err != nil {
			return nil
		}
		profile, err := a.backend.Profile(ctx, token)
		if err != nil {
			a.log.Debug("Profile fetch failed", zap.Error(err))
			return nil
		}
		a.cache.SetProfile(profile)
		fmt.Fprintf(out, "Account: %s\n", profile.Email)
		return nil
	},
}

var accountLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if _, err := a.session.GetToken(ctx, false); err != nil {
			return fmt.Errorf("sign-in failed: %w", err)
		}

		status := a.session.CheckAuth(ctx)
		if !status.Authenticated {
			return fmt.Errorf("credential issued but rejected by the backend")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Signed in. Plan: %s\n", status.PlanID)
		return nil
	},
}

var accountLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and revoke the credential",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.session.Revoke(ctx); err != nil {
			return fmt.Errorf("failed to revoke credential: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
		return nil
	},
}

var accountUpgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Change the subscription plan",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		token, err := a.session.GetToken(ctx, false)
		if err != nil {
			return fmt.Errorf("sign in first: %w", err)
		}

		sub, err := a.backend.Upgrade(ctx, token, upgradePlan)
		if err != nil {
			return fmt.Errorf("upgrade failed: %w", err)
		}
		a.cache.SetSubscription(sub)
		fmt.Fprintf(cmd.OutOrStdout(), "Plan is now %s (%s)\n", sub.PlanName, sub.PlanID)
		return nil
	},
}

func init() {
	accountUpgradeCmd.Flags().StringVar(&upgradePlan, "plan", "", "target plan id")
	accountUpgradeCmd.MarkFlagRequired("plan") //nolint:errcheck
	accountCmd.AddCommand(accountStatusCmd, accountLoginCmd, accountLogoutCmd, accountUpgradeCmd)
	rootCmd.AddCommand(accountCmd)
}
