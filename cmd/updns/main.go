package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/drvig/updns/pkg/backup"
	"github.com/drvig/updns/pkg/config"
	"github.com/drvig/updns/pkg/environment"
	"github.com/drvig/updns/pkg/executor"
	"github.com/drvig/updns/pkg/health"
	"github.com/drvig/updns/pkg/history"
	"github.com/drvig/updns/pkg/inventory"
	"github.com/drvig/updns/pkg/log"
	"github.com/drvig/updns/pkg/metrics"
	"github.com/drvig/updns/pkg/orchestrator"
	"github.com/drvig/updns/pkg/planner"
	"github.com/drvig/updns/pkg/prompt"
	"github.com/drvig/updns/pkg/registry"
	"github.com/drvig/updns/pkg/rollback"
	"github.com/drvig/updns/pkg/runtime"
	"github.com/drvig/updns/pkg/types"
	"github.com/drvig/updns/pkg/verify"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "updns",
	Short: "updns - update orchestrator for a containerized blocking-DNS stack",
	Long: `updns keeps a three-component DNS stack (shared cache, validating
resolver, ad-blocking frontend) up to date.

It compares running image digests against upstream, derives an ordered
update plan, optionally snapshots configuration and volumes, applies the
plan component by component with bounded health polling, verifies the
stack end to end, and rolls back to the snapshot if anything fails.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"updns version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "configuration file")

	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(backupsCmd)
	rootCmd.AddCommand(initCmd)

	updateCmd.Flags().Bool("yes", false, "run unattended: skip the decision prompt")
	updateCmd.Flags().Bool("backup", false, "with --yes, snapshot before updating")
	updateCmd.Flags().Bool("no-backup", false, "with --yes, update without a snapshot")
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Detect, plan and apply updates for the managed stack",
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		withBackup, _ := cmd.Flags().GetBool("backup")
		noBackup, _ := cmd.Flags().GetBool("no-backup")

		if withBackup && noBackup {
			return fmt.Errorf("--backup and --no-backup are mutually exclusive")
		}
		if (withBackup || noBackup) && !yes {
			return fmt.Errorf("--backup/--no-backup require --yes")
		}

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		runID := uuid.New().String()[:8]
		if err := log.Init(log.Config{
			Level:      log.Level(cfg.Log.Level),
			JSONOutput: cfg.Log.JSON,
			RunLogDir:  cfg.Log.Dir,
			RunID:      runID,
		}); err != nil {
			return err
		}
		defer log.Close()

		logger := log.WithRunID(runID)
		logger.Info().Str("config", configPath).Msg("starting update run")

		ctx := context.Background()

		rt, err := runtime.NewContainerdClient(cfg.Runtime.Socket, cfg.Runtime.Namespace)
		if err != nil {
			return err
		}
		defer rt.Close()

		// Every runtime command goes through the run log
		lrt := runtime.WithLogging(rt, logger.With().Str("component", "runtime").Logger())

		env, err := environment.Discover(ctx, cfg, configPath, runID, lrt)
		if err != nil {
			return err
		}

		probes := func(comp types.Component) (health.Checker, health.Budget, error) {
			return health.ForComponent(comp, lrt)
		}

		reg := registry.NewClient(registry.Options{
			Endpoint:     cfg.Registry.Endpoint,
			AuthEndpoint: cfg.Registry.AuthEndpoint,
			Service:      cfg.Registry.Service,
			Timeout:      cfg.Registry.Timeout,
		})

		backups := backup.NewManager(afero.NewOsFs(), env.BackupDir, configPath,
			env.BackupTargets(), logger.With().Str("component", "backup").Logger())

		verifier := verify.New(env, probes, nil,
			logger.With().Str("component", "verify").Logger())

		hist, err := history.Open(cfg.DataDir)
		if err != nil {
			return err
		}
		defer hist.Close()

		var decider orchestrator.Decider = prompt.InteractiveDecider{}
		if yes {
			choice := orchestrator.DecisionProceed
			if withBackup {
				choice = orchestrator.DecisionBackupThenProceed
			}
			decider = orchestrator.StaticDecider{Choice: choice}
		}

		orch := &orchestrator.Orchestrator{
			Collector: inventory.NewCollector(lrt, reg, env,
				logger.With().Str("component", "inventory").Logger()),
			Backups: backups,
			Executor: executor.New(lrt, env, probes,
				logger.With().Str("component", "executor").Logger()),
			Verifier: verifier,
			Rollback: rollback.New(lrt, backups, verifier, env,
				logger.With().Str("component", "rollback").Logger()),
			History: hist,
			Decider: decider,
			Env:     env,
			Logger:  logger,
		}

		outcome, err := orch.Run(ctx)

		if cfg.Metrics.Textfile != "" {
			if merr := metrics.Export(cfg.Metrics.Textfile); merr != nil {
				logger.Warn().Err(merr).Msg("failed to export run metrics")
			}
		}

		if err != nil {
			logger.Error().Err(err).Msg(string(outcome))
			if path := log.RunLogPath(); path != "" {
				fmt.Fprintf(os.Stderr, "Run log: %s\n", path)
			}
		}

		log.Close()
		hist.Close()
		rt.Close()
		os.Exit(outcome.ExitCode())
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current component versions against upstream (read-only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		if err := log.Init(log.Config{Level: log.ErrorLevel}); err != nil {
			return err
		}

		ctx := context.Background()

		rt, err := runtime.NewContainerdClient(cfg.Runtime.Socket, cfg.Runtime.Namespace)
		if err != nil {
			return err
		}
		defer rt.Close()

		env, err := environment.Discover(ctx, cfg, configPath, "", rt)
		if err != nil {
			return err
		}

		reg := registry.NewClient(registry.Options{
			Endpoint:     cfg.Registry.Endpoint,
			AuthEndpoint: cfg.Registry.AuthEndpoint,
			Service:      cfg.Registry.Service,
			Timeout:      cfg.Registry.Timeout,
		})

		collector := inventory.NewCollector(rt, reg, env, log.Logger)
		identities, err := collector.Collect(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "COMPONENT\tTAG\tRUNNING\tLATEST\tSTATE")
		for _, id := range identities {
			state := "current"
			switch {
			case !id.LatestKnown:
				state = "unknown"
			case id.Outdated():
				state = "outdated"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				id.Name, id.RunningTag, short(id.RunningDigest), short(id.LatestDigest), state)
		}
		w.Flush()

		plan := planner.Plan(identities, log.Logger)
		if plan.Empty() {
			fmt.Println("\nAll components current.")
		} else {
			fmt.Printf("\nUpdate order: %v\n", plan.Names())
		}

		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past update runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		hist, err := history.Open(cfg.DataDir)
		if err != nil {
			return err
		}
		defer hist.Close()

		records, err := hist.List(limit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STARTED\tOUTCOME\tPLANNED\tDURATION")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%v\t%s\n",
				r.StartedAt.Format("2006-01-02 15:04:05"),
				r.Outcome,
				r.Planned,
				r.FinishedAt.Sub(r.StartedAt).Round(100*time.Millisecond),
			)
		}
		return w.Flush()
	},
}

var backupsCmd = &cobra.Command{
	Use:   "backups",
	Short: "List existing backup snapshots, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		if err := log.Init(log.Config{Level: log.ErrorLevel}); err != nil {
			return err
		}

		mgr := backup.NewManager(afero.NewOsFs(), cfg.Backup.Dir, configPath, nil, log.Logger)
		snapshots, err := mgr.List()
		if err != nil {
			return err
		}

		if len(snapshots) == 0 {
			fmt.Println("No backup snapshots.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTAKEN\tVOLUMES\tDIR")
		for _, s := range snapshots {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
				s.ID,
				s.Timestamp.Format("2006-01-02 15:04:05"),
				len(s.VolumeArchives),
				s.Dir,
			)
		}
		return w.Flush()
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.WriteDefault(configPath); err != nil {
			return err
		}
		fmt.Printf("Wrote default configuration to %s\n", configPath)
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of runs to show")
}

// short trims a digest for table display
func short(digest string) string {
	if len(digest) > 19 {
		return digest[:19]
	}
	if digest == "" {
		return "-"
	}
	return digest
}
