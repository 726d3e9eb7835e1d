package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/errorblob/internal/config"
	"github.com/kalambet/errorblob/internal/errordb"
	"github.com/kalambet/errorblob/internal/model"
)

// withStore loads config, opens the store and closes it after fn returns.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, cfg config.Config, s errordb.Backend) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			printWarning("closing store: %v", err)
		}
	}()
	return fn(ctx, cfg, s)
}

// --- commit ---

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Save an error and its fix",
	Long: `Save an error and its fix to the database.

Example:
  errorblob commit -e "ModuleNotFoundError: No module named 'foo'" -m "Run pip install foo" -t python`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		errText, _ := cmd.Flags().GetString("error")
		fixText, _ := cmd.Flags().GetString("message")
		tags, _ := cmd.Flags().GetStringSlice("tag")

		return withStore(cmd, func(ctx context.Context, cfg config.Config, s errordb.Backend) error {
			rec, err := s.Commit(ctx, model.Draft{
				ErrorText: errText,
				FixText:   fixText,
				Tags:      tags,
				Author:    cfg.User.Author,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printSuccess("Error committed (id %s)", rec.ID)
			printStatus(out, "Error", "%s", truncate(rec.ErrorText, 80))
			printStatus(out, "Fix", "%s", truncate(rec.FixText, 80))
			return nil
		})
	},
}

func init() {
	commitCmd.Flags().StringP("error", "e", "", "the error message text")
	commitCmd.Flags().StringP("message", "m", "", "the fix, or context on how it was resolved")
	commitCmd.Flags().StringSliceP("tag", "t", nil, "tag for the entry (repeatable or comma-separated)")
	commitCmd.MarkFlagRequired("error")
	commitCmd.MarkFlagRequired("message")
}

// --- look ---

var lookCmd = &cobra.Command{
	Use:   "look <query>",
	Short: "Search for fixes to an error",
	Long: `Search the database for errors similar to the query, most relevant first.

Example:
  errorblob look "ModuleNotFoundError"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := args[0]
		limit, _ := cmd.Flags().GetInt("limit")

		return withStore(cmd, func(ctx context.Context, cfg config.Config, s errordb.Backend) error {
			matches, err := s.Look(ctx, query, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(matches) == 0 {
				fmt.Fprintf(out, "%s %s\n", colorize(colorYellow, "No matches found for:"), query)
				fmt.Fprintln(out, "Try a different search term, or commit this error once you find the fix.")
				return nil
			}

			fmt.Fprintf(out, "\n%s %s\n\n", colorize(colorBold, fmt.Sprintf("Found %d result(s) for:", len(matches))), query)
			for i, m := range matches {
				printMatch(out, i+1, m)
			}
			return nil
		})
	},
}

func init() {
	lookCmd.Flags().IntP("limit", "n", 5, "maximum number of results to return")
}

// --- list ---

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored errors",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		if limit < 1 {
			return fmt.Errorf("%w: --limit must be at least 1", model.ErrInvalidArgument)
		}

		return withStore(cmd, func(ctx context.Context, cfg config.Config, s errordb.Backend) error {
			recs, err := s.List(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(recs) == 0 {
				fmt.Fprintln(out, colorize(colorYellow, "No errors stored yet."))
				fmt.Fprintln(out, "Use `errorblob commit` to add your first error.")
				return nil
			}

			fmt.Fprintln(out, colorize(colorBold, fmt.Sprintf("Stored errors (%d total)", len(recs))))
			shown := recs
			if len(shown) > limit {
				shown = shown[:limit]
			}
			for _, r := range shown {
				printRecordRow(out, r)
			}
			if len(recs) > limit {
				fmt.Fprintln(out, colorize(colorDim, fmt.Sprintf("\nShowing %d of %d entries. Use -n to show more.", limit, len(recs))))
			}
			return nil
		})
	},
}

func init() {
	listCmd.Flags().IntP("limit", "n", 20, "maximum number of entries to show")
}

// --- delete ---

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an error by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]

		return withStore(cmd, func(ctx context.Context, cfg config.Config, s errordb.Backend) error {
			ok, err := s.Delete(ctx, id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("error not found: %s", id)
			}
			printSuccess("Deleted error %s", id)
			return nil
		})
	},
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and database status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, cfg config.Config, s errordb.Backend) error {
			st, err := s.Status(ctx)
			if err != nil {
				return err
			}

			author := cfg.User.Author
			if author == "" {
				author = "(not set)"
			}
			team := cfg.Team.Mode
			if cfg.Team.Name != "" {
				team += " (" + cfg.Team.Name + ")"
			}

			out := cmd.OutOrStdout()
			printStatus(out, "Backend", "%s", st.Kind)
			if st.Kind == model.KindRemote {
				printStatus(out, "Namespace", "%s", st.Location)
			} else {
				printStatus(out, "Location", "%s", st.Location)
			}
			printStatus(out, "Errors stored", "%s", st.CountLabel())
			printStatus(out, "Team mode", "%s", team)
			printStatus(out, "Author", "%s", author)
			printStatus(out, "Config file", "%s", config.Path())
			if serverURL != "" {
				printStatus(out, "Server", "%s", serverURL)
			}
			return nil
		})
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(out, "  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorDim, "($"+k.EnvVar+")"))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configSetSecretCmd = &cobra.Command{
	Use:   "set-secret <key> [value]",
	Short: "Store a secret (API key) in the config file",
	Long: `Store a secret in the config file, which is written with 0600 permissions.
Without a value the secret is read from standard input. An empty value removes it.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		var value string
		if len(args) == 2 {
			value = args[1]
		} else {
			sc := bufio.NewScanner(cmd.InOrStdin())
			if sc.Scan() {
				value = strings.TrimSpace(sc.Text())
			}
			if err := sc.Err(); err != nil {
				return fmt.Errorf("reading secret: %w", err)
			}
		}

		if err := config.SetSecret(key, value); err != nil {
			return err
		}
		if value == "" {
			printSuccess("Removed %s", key)
		} else {
			printSuccess("Stored %s", key)
		}
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), config.Path())
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configSetSecretCmd)
	configCmd.AddCommand(configPathCmd)
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "errorblob version %s\n", version)
	},
}
