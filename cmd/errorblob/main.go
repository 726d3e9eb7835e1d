package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kalambet/errorblob/internal/config"
	"github.com/kalambet/errorblob/internal/errordb"
	"github.com/kalambet/errorblob/internal/model"
)

var version = "dev"

var (
	noColor   bool
	serverURL string
)

// openStore returns what every record command runs against: the local
// database, or a running server when --server is given. Replaced in tests.
var openStore = func(ctx context.Context, cfg config.Config) (errordb.Backend, error) {
	if serverURL != "" {
		base := serverURL
		if base == "auto" {
			base = fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
		}
		slog.Debug("using server", "url", base)
		return newAPIClient(strings.TrimRight(base, "/")), nil
	}
	db, err := errordb.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return db, nil
}

var rootCmd = &cobra.Command{
	Use:   "errorblob",
	Short: "Never block on the same bug twice",
	Long: `errorblob - a fast error database for teams.

Commit errors and their fixes from the terminal, then look them up the next
time the same (or a similar) error shows up.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "send commands to a running `errorblob serve` at this URL")
	rootCmd.PersistentFlags().Lookup("server").NoOptDefVal = "auto"

	rootCmd.AddCommand(commitCmd, lookCmd, listCmd, deleteCmd, statusCmd)
	rootCmd.AddCommand(configCmd, serveCmd, mcpCmd, versionCmd)
}

// loadConfig reads configuration and sets up logging from it.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	setupLogging(cfg.Log.Level)
	return cfg, nil
}

func setupLogging(level string) {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

func exitCode(err error) int {
	if errors.Is(err, model.ErrInvalidArgument) {
		return 2
	}
	return 1
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		printError("%v", err)
		if model.IsTransient(err) {
			printWarning("the failure looks transient; retrying may help")
		}
		os.Exit(exitCode(err))
	}
}
