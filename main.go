package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/todovault/pkg/agenda"
	"github.com/harrisonrobin/todovault/pkg/auth"
	"github.com/harrisonrobin/todovault/pkg/config"
	"github.com/harrisonrobin/todovault/pkg/dashboard"
	"github.com/harrisonrobin/todovault/pkg/engine"
	"github.com/harrisonrobin/todovault/pkg/index"
	"github.com/harrisonrobin/todovault/pkg/logging"
	"github.com/harrisonrobin/todovault/pkg/remote"
	"github.com/harrisonrobin/todovault/pkg/todoist"
	"github.com/harrisonrobin/todovault/pkg/vault"
	"github.com/harrisonrobin/todovault/pkg/watch"
)

const eventIndexFile = "events.json"

var (
	configPath string
	dryRun     bool
)

var rootCmd = &cobra.Command{
	Use:   "todovault",
	Short: "Keep a Markdown vault in sync with Todoist",
	Long: `todovault mirrors Todoist projects, sections and tasks as Markdown documents
with frontmatter, and pushes edits made in the vault back to Todoist.

Configuration lives in ~/.config/todovault/config.json. Every option can be
overridden with a TODOVAULT_* environment variable, e.g. TODOVAULT_DRY_RUN=true.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/todovault/config.json)")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "compute decisions without writing anything")

	rootCmd.AddCommand(
		runCommand("sync", "Fetch, push local edits and reconcile the vault", (*engine.Engine).PerformSync),
		runCommand("pull", "Fetch and reconcile without pushing local edits", (*engine.Engine).Pull),
		runCommand("fetch", "Fetch remote changes into the saved state only", (*engine.Engine).Fetch),
		runCommand("scan", "Rescan the vault and report what is there", (*engine.Engine).Scan),
		statsCmd,
		watchCmd,
		configCmd,
		authCmd,
	)
}

func resolvedConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.GetConfigPath()
}

func loadSettings() (*config.Settings, error) {
	path, err := resolvedConfigPath()
	if err != nil {
		return nil, fmt.Errorf("could not find path to configuration file: %w", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if dryRun {
		cfg.DryRun = true
	}
	return cfg, nil
}

// app is the wired set of components one command runs against.
type app struct {
	cfg    *config.Settings
	logger *log.Logger
	closer io.Closer
	engine *engine.Engine
}

// appOptions adjusts wiring for the long-running watch command.
type appOptions struct {
	wrapStorage func(cfg *config.Settings, fs *vault.FS, logger *log.Logger) (vault.Storage, error)
	onComplete  func(engine.Result)
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := loadSettings()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, closer, err := logging.New(logging.Options{Prefix: "[todovault] ", File: cfg.LogFile})
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	statePath, err := cfg.ResolvedStatePath()
	if err != nil {
		return nil, err
	}
	state, err := remote.Load(statePath)
	if err != nil {
		logger.Printf("Warning: could not load state %s, starting fresh: %v", statePath, err)
		state = remote.New()
	}

	fs, err := vault.NewFS(cfg.VaultPath)
	if err != nil {
		return nil, err
	}
	var storage vault.Storage = fs
	if opts.wrapStorage != nil {
		if storage, err = opts.wrapStorage(cfg, fs, logger); err != nil {
			return nil, err
		}
	}

	client := todoist.NewClient(auth.TodoistClient(ctx, cfg.APIToken), todoist.DefaultBaseURL, logger)

	engOpts := engine.Options{
		Root:         cfg.SyncRoot,
		ScopeTag:     cfg.ScopeTag,
		Fields:       cfg.ModelFields(),
		DryRun:       cfg.DryRun,
		LiveSync:     cfg.LiveSync,
		PruneDeleted: cfg.PruneDeleted,
		SyncInterval: cfg.SyncInterval(),
		StatePath:    statePath,
		OnComplete:   opts.onComplete,
		Logger:       logger,
	}
	if cfg.Agenda.Enabled {
		if m, err := openAgenda(ctx, cfg, logger); err != nil {
			logger.Printf("Warning: agenda mirror disabled: %v", err)
		} else {
			engOpts.Mirror = m
		}
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		closer: closer,
		engine: engine.New(client, storage, state, engOpts),
	}, nil
}

func (a *app) Close() {
	if err := a.closer.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: closing log: %v\n", err)
	}
}

func openAgenda(ctx context.Context, cfg *config.Settings, logger *log.Logger) (*agenda.Mirror, error) {
	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}
	google := auth.Google{Dir: dir, Scopes: agenda.Scopes, Logger: logger}
	httpClient, err := google.Client(ctx)
	if err != nil {
		return nil, err
	}
	idx, err := index.Open(filepath.Join(dir, eventIndexFile))
	if err != nil {
		return nil, err
	}
	return agenda.Open(ctx, httpClient, agenda.Options{
		Calendar: cfg.Agenda.Calendar,
		Index:    idx,
		Logger:   logger,
	})
}

func runCommand(use, short string, op func(*engine.Engine, context.Context) engine.Result) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()
			return report(cmd.OutOrStdout(), op(a.engine, ctx))
		},
	}
}

func report(w io.Writer, res engine.Result) error {
	prefix := ""
	if res.DryRun {
		prefix = "[dry run] "
	}
	fmt.Fprintf(w, "%s%s: %s\n", prefix, res.Op, res.Message)
	if !res.Success {
		return fmt.Errorf("%s failed", res.Op)
	}
	return nil
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print entity counts for the saved state and the vault as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()
		if res := a.engine.Scan(ctx); !res.Success {
			a.logger.Printf("Warning: scan failed: %s", res.Message)
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(a.engine.Stats())
	},
}

// handlerRef lets the watcher be built before the engine it notifies.
type handlerRef struct{ eng *engine.Engine }

func (h *handlerRef) OnDocumentModified(p string) { h.eng.OnDocumentModified(p) }
func (h *handlerRef) OnDocumentDeleted(p string)  { h.eng.OnDocumentDeleted(p) }

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run continuously: periodic syncs, live pushes of vault edits and the dashboard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		noDashboard, _ := cmd.Flags().GetBool("no-dashboard")

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		ref := &handlerRef{}
		var watcher *watch.Watcher
		var server *dashboard.Server

		a, err := newApp(ctx, appOptions{
			wrapStorage: func(cfg *config.Settings, fs *vault.FS, logger *log.Logger) (vault.Storage, error) {
				w, err := watch.New(fs, cfg.SyncRoot, ref, logger)
				if err != nil {
					return nil, err
				}
				watcher = w
				return watch.Suppress(fs, w), nil
			},
			onComplete: func(res engine.Result) {
				if server != nil {
					server.Notify(res)
				}
			},
		})
		if err != nil {
			return err
		}
		defer a.Close()
		ref.eng = a.engine

		cfg := a.cfg
		if !noDashboard && cfg.DashboardAddr != "" {
			server = dashboard.NewServer(dashboard.Config{Addr: cfg.DashboardAddr, Source: a.engine, Logger: a.logger})
			if err := server.Start(); err != nil {
				return err
			}
			defer server.Stop()
			fmt.Fprintf(cmd.OutOrStdout(), "Dashboard on http://%s (ws://%s/ws)\n", server.Addr(), server.Addr())
		}

		go func() {
			if err := watcher.Run(ctx); err != nil {
				a.logger.Printf("Watcher stopped: %v", err)
			}
		}()

		if err := report(cmd.OutOrStdout(), a.engine.PerformSync(ctx)); err != nil {
			a.logger.Printf("Warning: initial %v", err)
		}
		a.engine.Start(ctx)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change settings",
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set one option and save the config file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolvedConfigPath()
		if err != nil {
			return err
		}
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		if err := cfg.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := config.Save(path, cfg); err != nil {
			return fmt.Errorf("error saving config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s set\n", args[0])
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings with the API token masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadSettings()
		if err != nil {
			return err
		}
		if cfg.APIToken != "" {
			cfg.APIToken = "********"
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List every option name",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, k := range config.Keys() {
			fmt.Fprintln(cmd.OutOrStdout(), k)
		}
	},
}

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize the Google Calendar agenda mirror",
	Long: `Runs the Google OAuth flow and stores the token next to the config file.
Place the credentials.json downloaded from the Google Cloud console in
~/.config/todovault first.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := config.Dir()
		if err != nil {
			return err
		}
		google := auth.Google{Dir: dir, Scopes: agenda.Scopes, Out: cmd.OutOrStdout()}
		if err := google.Authorize(cmd.Context()); err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Authentication successful! Token saved to %s\n", filepath.Join(dir, auth.TokenFile))
		return nil
	},
}

func init() {
	watchCmd.Flags().Bool("no-dashboard", false, "do not start the dashboard server")
	configCmd.AddCommand(configSetCmd, configShowCmd, configKeysCmd)
}
