package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/errorblob/internal/api"
	"github.com/kalambet/errorblob/internal/config"
	"github.com/kalambet/errorblob/internal/errordb"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the error database over HTTP (and optionally MCP on stdio)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		port, _ := cmd.Flags().GetInt("port")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if port > 0 {
			cfg.Server.Port = port
		}
		return runServer(cmd.Context(), cfg, withMCP)
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run an MCP server on stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		db, err := errordb.Open(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("opening error database: %w", err)
		}
		defer db.Close()

		stdioSrv := server.NewStdioServer(api.NewMCPServer(depsFor(cfg, db), version))
		slog.Info("MCP server started (stdio transport)", "backend", cfg.Storage.Mode)
		if err := stdioSrv.Listen(cmd.Context(), os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP stdio server: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP on stdin/stdout")
	serveCmd.Flags().Int("port", 0, "listen port (default from server.port)")
}

func depsFor(cfg config.Config, s api.Store) api.Deps {
	return api.Deps{
		Store:  s,
		Author: cfg.User.Author,
		Team:   api.TeamInfo{Mode: cfg.Team.Mode, Name: cfg.Team.Name},
	}
}

func runServer(ctx context.Context, cfg config.Config, withMCP bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)

	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get("http://" + addr + "/health"); err == nil {
		resp.Body.Close()
		printWarning("errorblob is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}

	printStep("Opening %s backend", cfg.Storage.Mode)
	db, err := errordb.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening error database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Warn("closing error database", "error", err)
		}
	}()

	deps := depsFor(cfg, db)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewHandler(deps),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("errorblob listening", "addr", addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if withMCP {
		g.Go(func() error {
			stdioSrv := server.NewStdioServer(api.NewMCPServer(deps, version))
			slog.Info("MCP server started (stdio transport)")
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("MCP stdio server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
