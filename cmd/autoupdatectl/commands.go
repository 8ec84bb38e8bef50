package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"intuneget/internal/autoupdate"
	"intuneget/internal/autoupdate/models"
	"intuneget/internal/autoupdate/services"

	"github.com/spf13/cobra"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runEligible(cmd *cobra.Command, args []string) error {
	return withModule(func(ctx context.Context, m *autoupdate.Module) error {
		policies, err := m.Service().GetEligiblePolicies(ctx, eligibleUser, eligibleTenant)
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(policies)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tUSER\tTENANT\tPACKAGE\tVERSION\tFAILURES\tLAST UPDATE")
		for _, p := range policies {
			last := "-"
			if p.LastAutoUpdateAt != nil {
				last = p.LastAutoUpdateAt.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
				p.ID, p.UserID, p.TenantID, p.WingetID, p.CurrentVersion(), p.ConsecutiveFailures, last)
		}
		return w.Flush()
	})
}

func runSweep(cmd *cobra.Command, args []string) error {
	return withModule(func(ctx context.Context, m *autoupdate.Module) error {
		summary, err := m.Checker().RunSweep(ctx)
		if errors.Is(err, services.ErrSweepInProgress) {
			return &refusedError{fmt.Errorf("sweep not started: %w", err)}
		}
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(summary)
		}

		fmt.Printf("Checked %d policies in %s\n", summary.Checked, summary.Duration.Round(time.Millisecond))
		fmt.Printf("  up to date: %d\n  triggered:  %d\n  skipped:    %d\n  failed:     %d\n  errors:     %d\n",
			summary.UpToDate, summary.Triggered, summary.Skipped, summary.Failed, summary.Errors)
		for _, note := range summary.ErrorNotes {
			fmt.Printf("  ! %s\n", note)
		}
		return nil
	})
}

func runComplete(cmd *cobra.Command, args []string) error {
	return withModule(func(ctx context.Context, m *autoupdate.Module) error {
		err := m.Service().MarkUpdateCompleted(ctx, args[0], completeJobID)
		return reportTransition(ctx, m, args[0], err)
	})
}

func runFail(cmd *cobra.Command, args []string) error {
	return withModule(func(ctx context.Context, m *autoupdate.Module) error {
		err := m.Service().MarkUpdateFailed(ctx, args[0], failMessage)
		return reportTransition(ctx, m, args[0], err)
	})
}

// reportTransition prints the finished history row. An already terminal row is
// reported as refused.
func reportTransition(ctx context.Context, m *autoupdate.Module, historyID string, err error) error {
	if errors.Is(err, services.ErrInvalidTransition) {
		return &refusedError{fmt.Errorf("history %s not changed: %w", historyID, err)}
	}
	if err != nil {
		return err
	}

	history, err := m.Service().GetHistory(ctx, historyID)
	if err != nil {
		return err
	}
	if outputJSON {
		return printJSON(history)
	}
	fmt.Printf("History %s is now %s (%s -> %s)\n", history.ID, history.Status, history.FromVersion, history.ToVersion)
	return nil
}

func runEnable(cmd *cobra.Command, args []string) error {
	return withModule(func(ctx context.Context, m *autoupdate.Module) error {
		enabled := true
		policy, err := m.Service().UpdatePolicy(ctx, args[0], models.PolicyPatch{IsEnabled: &enabled})
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(policy)
		}
		fmt.Printf("Policy %s enabled (%s, failures reset to %d)\n", policy.ID, policy.WingetID, policy.ConsecutiveFailures)
		return nil
	})
}

func runToken(cmd *cobra.Command, args []string) error {
	token, expiresAt, err := newJWTService().GenerateJWT(tokenUser, tokenTenant, tokenRole, tokenTTL)
	if err != nil {
		return err
	}
	if outputJSON {
		return printJSON(map[string]any{
			"token":      token,
			"expires_at": expiresAt,
		})
	}
	fmt.Println(token)
	return nil
}
