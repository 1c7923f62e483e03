package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/breachwatch/scraper/internal/breach"
	"github.com/breachwatch/scraper/internal/collect"
	"github.com/breachwatch/scraper/internal/config"
	"github.com/breachwatch/scraper/internal/database"
	"github.com/breachwatch/scraper/internal/llm"
	"github.com/breachwatch/scraper/internal/logger"
	"github.com/breachwatch/scraper/internal/pipeline"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "breachwatch",
	Short:   "Breach news scraper",
	Long:    "breachwatch collects security news feeds, classifies breach reports, extracts structured breach records, and links follow-up coverage to known incidents.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		if err := cfg.EnsureDirs(); err != nil {
			return err
		}
		if err := logger.Init(cfg.Logging.Level, cfg.LogFile()); err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		if path != "" {
			logger.Log.Debugf("Loaded config from %s", path)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(breachesCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("breachwatch", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/breachwatch/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure feeds and limits; set DEEPSEEK_API_KEY in the environment.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ledger and breach counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Database: %s\n", db.Path())
		if stats.LastProcessed != nil {
			fmt.Printf("Last processed: %s\n", stats.LastProcessed.Local().Format("2006-01-02 15:04"))
		}
		fmt.Println("\nArticles processed:")
		fmt.Printf("  Total: %d\n", stats.Processed)
		for _, o := range []database.Outcome{
			database.OutcomeCreated, database.OutcomeUpdated, database.OutcomeMerged,
			database.OutcomeNotBreach, database.OutcomeBelowThreshold,
		} {
			fmt.Printf("  %s: %d\n", o, stats.ByOutcome[o])
		}
		fmt.Println("\nStore:")
		fmt.Printf("  Breaches: %d\n", stats.Breaches)
		fmt.Printf("  Updates: %d\n", stats.Updates)

		fmt.Println("\nBackend:")
		fmt.Printf("  Model: %s at %s\n", cfg.LLM.Model, cfg.LLM.BaseURL)
		if cfg.ValidateCredentials() == nil {
			fmt.Println("  API key: set")
		} else {
			fmt.Printf("  API key: missing (%s)\n", cfg.LLM.APIKeyEnv)
		}
		return nil
	},
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List enabled feed sources",
	Run: func(cmd *cobra.Command, args []string) {
		sources := cfg.FeedSources()
		fmt.Printf("%d feed sources:\n\n", len(sources))
		for _, s := range sources {
			fmt.Printf("  %-18s %-28s %s\n", s.ID, s.Name, s.URL)
		}
	},
}

// --- collect command ---

var collectLookback int

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Fetch feeds and list fresh unprocessed articles (no LLM calls)",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Println("Collecting articles from sources...")
		result := collect.NewCollector(cfg, collectLookback).Collect(ctx)

		ids := make([]string, len(result.Articles))
		for i, a := range result.Articles {
			ids[i] = a.ID
		}
		pending, err := db.FilterUnprocessed(ids)
		if err != nil {
			return err
		}

		fmt.Println("\nCollection complete:")
		fmt.Printf("  Total found: %d\n", result.TotalFound)
		fmt.Printf("  Unique articles: %d\n", len(result.Articles))
		fmt.Printf("  Duplicates skipped: %d\n", result.Duplicates)
		fmt.Printf("  Not yet processed: %d\n", len(pending))

		if len(result.Sources) > 0 {
			fmt.Println("\nArticles by source:")
			type kv struct {
				key string
				val int
			}
			var sorted []kv
			for k, v := range result.Sources {
				sorted = append(sorted, kv{k, v})
			}
			sort.Slice(sorted, func(i, j int) bool { return sorted[i].val > sorted[j].val })
			for _, s := range sorted {
				fmt.Printf("  %s: %d\n", s.key, s.val)
			}
		}
		if len(result.Failed) > 0 {
			fmt.Println("\nFailed feeds:")
			for id, err := range result.Failed {
				fmt.Printf("  %s: %v\n", id, err)
			}
		}
		return nil
	},
}

func init() {
	collectCmd.Flags().IntVar(&collectLookback, "lookback-hours", 0, "Override lookback window (hours)")
}

// --- run command ---

var runOpts pipeline.Options

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline: collect -> classify -> extract -> resolve updates",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		if !runOpts.DryRun {
			if err := cfg.ValidateCredentials(); err != nil {
				return err
			}
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var provider llm.Provider
		if !runOpts.DryRun {
			p, err := llm.NewOpenAIProvider(ctx, cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.Timeout)
			if err != nil {
				return fmt.Errorf("%w: %w", config.ErrConfiguration, err)
			}
			provider = p
			logger.Log.Infof("Using %s at %s", cfg.LLM.Model, cfg.LLM.BaseURL)
		}

		start := time.Now()
		result, runErr := pipeline.New(cfg, db, provider).Run(ctx, runOpts)
		if result == nil {
			return runErr
		}
		printRunResult(result, time.Since(start))
		return runErr
	},
}

func init() {
	runCmd.Flags().BoolVar(&runOpts.DryRun, "dry-run", false, "Collect and count pending articles without calling the backend")
	runCmd.Flags().IntVar(&runOpts.Workers, "workers", 0, "Concurrent article workers (default from config)")
	runCmd.Flags().DurationVar(&runOpts.Timeout, "timeout", 0, "Abort the whole run after this long (0 = no limit)")
	runCmd.Flags().IntVar(&runOpts.LookbackHours, "lookback-hours", 0, "Override lookback window (hours)")
}

func printRunResult(r *pipeline.Result, elapsed time.Duration) {
	fmt.Println("\nRun summary:")
	fmt.Printf("  Collected: %d (%d already processed, %d pending)\n", r.Collected, r.AlreadyProcessed, r.Pending)
	if r.FeedsFailed > 0 {
		fmt.Printf("  Feeds failed: %d\n", r.FeedsFailed)
	}
	if r.DryRun {
		fmt.Println("  [dry-run] No backend calls made.")
		return
	}
	fmt.Printf("  New breaches: %d\n", r.Created)
	fmt.Printf("  Updates to known breaches: %d\n", r.Updated)
	fmt.Printf("  Merged duplicates: %d\n", r.Merged)
	fmt.Printf("  Not breaches: %d\n", r.NotBreach)
	fmt.Printf("  Below confidence threshold: %d\n", r.BelowThreshold)
	fmt.Printf("  Failed: %d\n", len(r.Failures))
	for _, f := range r.Failures {
		fmt.Printf("    [%s] %s: %v\n", f.Stage, f.Title, f.Err)
	}
	fmt.Printf("  Elapsed: %s\n", elapsed.Round(time.Second))
}

// --- breaches command ---

var breachDays int

var breachesCmd = &cobra.Command{
	Use:   "breaches",
	Short: "List recent breaches, most severe first",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		since := time.Now().AddDate(0, 0, -breachDays)
		items, err := db.RecentBreaches(since, 0)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Printf("No breaches in the last %d days.\n", breachDays)
			return nil
		}

		sort.SliceStable(items, func(i, j int) bool {
			return severityRank(items[i]) > severityRank(items[j])
		})
		for _, b := range items {
			rec := b.Record
			fmt.Printf("%s  %-9s %-10s %s", b.ID, severityLabel(rec.Severity), breach.FormatDate(rec.DiscoveryDate),
				breach.Deref(rec.Company, "Unknown organization"))
			if rec.RecordsAffected != nil {
				fmt.Printf(" (%d records)", *rec.RecordsAffected)
			}
			if b.UpdateCount > 0 {
				fmt.Printf(" [%d updates]", b.UpdateCount)
			}
			fmt.Println()
		}
		return nil
	},
}

var breachShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show a breach and its update timeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid breach ID: %s", args[0])
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		b, err := db.GetBreach(id)
		if err != nil {
			return err
		}
		if b == nil {
			return fmt.Errorf("breach %s not found", id)
		}

		rec := b.Record
		fmt.Printf("%s\n\n", breach.Deref(rec.Company, "Unknown organization"))
		fmt.Printf("  Industry:       %s\n", breach.Deref(rec.Industry, "unknown"))
		fmt.Printf("  Country:        %s\n", breach.Deref(rec.Country, "unknown"))
		fmt.Printf("  Discovered:     %s\n", breach.FormatDate(rec.DiscoveryDate))
		fmt.Printf("  Severity:       %s\n", severityLabel(rec.Severity))
		if rec.AttackVector != nil {
			fmt.Printf("  Attack vector:  %s\n", *rec.AttackVector)
		}
		if rec.RecordsAffected != nil {
			fmt.Printf("  Records:        %d\n", *rec.RecordsAffected)
		}
		fmt.Printf("  Method:         %s\n", breach.Deref(rec.BreachMethod, "unknown"))
		if len(rec.DataCompromised) > 0 {
			fmt.Printf("  Data:           %s\n", strings.Join(rec.DataCompromised, ", "))
		}
		if len(rec.CVEReferences) > 0 {
			fmt.Printf("  CVEs:           %s\n", strings.Join(rec.CVEReferences, ", "))
		}
		if len(rec.MITRETechniques) > 0 {
			fmt.Printf("  MITRE ATT&CK:   %s\n", strings.Join(rec.MITRETechniques, ", "))
		}
		fmt.Printf("  Source:         %s\n", b.SourceURL)
		fmt.Printf("\n%s\n", rec.Summary)
		if rec.LessonsLearned != nil {
			fmt.Printf("\nLessons learned: %s\n", *rec.LessonsLearned)
		}

		updates, err := db.GetUpdates(id)
		if err != nil {
			return err
		}
		if len(updates) > 0 {
			fmt.Println("\nTimeline:")
			for _, u := range updates {
				fmt.Printf("  %s  %-16s %s\n", u.CreatedAt.Local().Format("2006-01-02"), u.UpdateType, u.SourceTitle)
			}
		}
		return nil
	},
}

func init() {
	breachesCmd.Flags().IntVar(&breachDays, "days", 30, "Show breaches from the last N days")
	breachesCmd.AddCommand(breachShowCmd)
}

func severityRank(s breach.Stored) int {
	if s.Record.Severity == nil {
		return 0
	}
	return s.Record.Severity.Rank()
}

func severityLabel(s *breach.Severity) string {
	if s == nil {
		return "unknown"
	}
	return string(*s)
}

func openDB() (*database.DB, error) {
	return database.Open(cfg.DatabasePath())
}
