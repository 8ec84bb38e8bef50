package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"intuneget/internal/autoupdate"
	"intuneget/pkg/app"
	"intuneget/pkg/config"
	pkgMiddleware "intuneget/pkg/middleware"
	"intuneget/pkg/version"

	"github.com/spf13/cobra"
)

// Exit codes
const (
	exitError   = 1
	exitRefused = 2
)

var (
	outputJSON bool

	eligibleUser   string
	eligibleTenant string

	completeJobID string
	failMessage   string

	tokenUser   string
	tokenTenant string
	tokenRole   string
	tokenTTL    time.Duration

	rootCmd = &cobra.Command{
		Use:   "autoupdatectl",
		Short: "Operate the IntuneGet auto-update engine",
		Long: `autoupdatectl inspects auto-update policies, runs update sweeps and
records packaging pipeline results directly against the configured database.`,
		SilenceUsage: true,
	}

	eligibleCmd = &cobra.Command{
		Use:   "eligible",
		Short: "List enabled auto-update policies below the failure threshold",
		RunE:  runEligible,
	}

	sweepCmd = &cobra.Command{
		Use:   "sweep",
		Short: "Check every eligible policy against the catalog once and trigger updates",
		RunE:  runSweep,
	}

	completeCmd = &cobra.Command{
		Use:   "complete [history-id]",
		Short: "Mark a pending auto-update as completed",
		Args:  cobra.ExactArgs(1),
		RunE:  runComplete,
	}

	failCmd = &cobra.Command{
		Use:   "fail [history-id]",
		Short: "Mark a pending auto-update as failed",
		Args:  cobra.ExactArgs(1),
		RunE:  runFail,
	}

	enableCmd = &cobra.Command{
		Use:   "enable [policy-id]",
		Short: "Re-enable a policy and reset its consecutive failure counter",
		Args:  cobra.ExactArgs(1),
		RunE:  runEnable,
	}

	tokenCmd = &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the HTTP API",
		RunE:  runToken,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			info := version.Get()
			fmt.Printf("autoupdatectl %s\n", version.String())
			fmt.Printf("  build: %s\n  go: %s\n  platform: %s\n", info.BuildDate, info.GoVersion, info.Platform)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "print machine-readable JSON")

	eligibleCmd.Flags().StringVar(&eligibleUser, "user", "", "only policies owned by this user")
	eligibleCmd.Flags().StringVar(&eligibleTenant, "tenant", "", "only policies of this tenant")

	completeCmd.Flags().StringVar(&completeJobID, "job", "", "packaging job id reported by the pipeline")
	failCmd.Flags().StringVar(&failMessage, "message", "", "failure reason recorded on the history row")
	_ = failCmd.MarkFlagRequired("message")

	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user id (token subject)")
	tokenCmd.Flags().StringVar(&tokenTenant, "tenant", "", "tenant id")
	tokenCmd.Flags().StringVar(&tokenRole, "role", pkgMiddleware.RoleUser, "role: user, pipeline or admin")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("user")

	rootCmd.AddCommand(eligibleCmd, sweepCmd, completeCmd, failCmd, enableCmd, tokenCmd, versionCmd)
}

// refusedError marks an operation the engine declined rather than one that broke
type refusedError struct {
	err error
}

func (e *refusedError) Error() string { return e.err.Error() }

func (e *refusedError) Unwrap() error { return e.err }

func main() {
	if err := rootCmd.Execute(); err != nil {
		var refused *refusedError
		if errors.As(err, &refused) {
			os.Exit(exitRefused)
		}
		os.Exit(exitError)
	}
}

// withModule connects to the shared dependencies, runs fn and shuts everything down
func withModule(fn func(ctx context.Context, m *autoupdate.Module) error) error {
	ctx := context.Background()

	appCtx, err := app.InitializeApp("intuneget")
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		appCtx.Shutdown(shutdownCtx)
	}()

	// no HTTP routes are mounted, so no permission middleware is needed
	m, err := autoupdate.New(appCtx.MongoDB, appCtx.Redis, appCtx.AutoUpdate, nil)
	if err != nil {
		return err
	}
	defer m.Stop()

	return fn(ctx, m)
}

func newJWTService() *pkgMiddleware.JWTService {
	return pkgMiddleware.NewJWTService(config.GetJWTSecret(), config.GetEnv("JWT_ISSUER", "intuneget"))
}
