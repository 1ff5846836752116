package main

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/yuin/goldmark"

	"autoblog/internal/archive"
	"autoblog/internal/config"
	"autoblog/internal/history"
	"autoblog/internal/pipeline"
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
	Use:     "autoblog",
	Short:   "Automated tech-news blog publisher",
	Long:    "Autoblog aggregates tech-news feeds, rewrites selected articles with an LLM, and publishes them to a Jekyll blog repository.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init, version and preview
		if cmd.Name() == "init" || cmd.Name() == "version" || cmd.Name() == "preview" {
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
		return cfg.Validate()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("autoblog", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/autoblog/",
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
		fmt.Println("Edit it to configure feeds, the blog repository, and the LLM provider.")
		return nil
	},
}

// --- run command ---

var (
	dryRun bool
	quota  int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline: aggregate -> filter -> generate -> publish",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ledger := history.Load(cfg.History.Path)
		if removed := ledger.Prune(cfg.History.RetentionDays); removed > 0 {
			log.Printf("Pruned %d ledger entries older than %d days", removed, cfg.History.RetentionDays)
		}

		pipe, err := pipeline.New(cfg, ledger, db)
		if err != nil {
			return err
		}

		// SIGINT finishes the in-flight post, publishes the partial
		// batch, then exits cleanly.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var result *pipeline.Result
		if dryRun {
			result = pipe.DryRun(quota)
		} else {
			result = pipe.Run(ctx, quota)
		}

		for i, step := range result.Steps {
			fmt.Printf("\nStep %d/%d: %s\n", i+1, len(result.Steps), step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
			} else {
				fmt.Printf("  %s\n", step.Summary)
			}
		}

		if result.Cancelled {
			fmt.Println("\nRun interrupted; partial batch kept.")
		}
		if result.Failed() {
			return fmt.Errorf("pipeline finished with errors")
		}
		if !dryRun {
			fmt.Printf("\nPipeline complete: %d post(s) published.\n", len(result.Published))
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without executing")
	runCmd.Flags().IntVar(&quota, "quota", 0, "Override configured posts per day")
}

// --- status command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ledger and run history status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ledger := history.Load(cfg.History.Path)
		lstats := ledger.Stats()
		fmt.Println("History ledger:")
		fmt.Printf("  Processed URLs: %d\n", lstats.Total)
		fmt.Printf("  Last 7 days: %d\n", lstats.Recent)

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}
		fmt.Println("\nRuns:")
		fmt.Printf("  Total runs: %d\n", stats.Runs)
		fmt.Printf("  Posts published: %d\n", stats.TotalPublished)
		fmt.Printf("  Candidates attempted: %d\n", stats.TotalAttempted)
		if stats.LastRunDate != "" {
			fmt.Printf("  Last run: %s\n", stats.LastRunDate)
		}

		runs, err := db.RecentRuns(5)
		if err != nil {
			return fmt.Errorf("listing runs: %w", err)
		}
		if len(runs) > 0 {
			fmt.Println("\nRecent runs:")
			for _, r := range runs {
				label := ""
				if r.DryRun {
					label = " (dry-run)"
				}
				fmt.Printf("  %s: %d published, %d attempted, %d slots abandoned%s\n",
					r.Date, r.Published, r.Attempted, r.AbandonedSlots, label)
			}
		}
		return nil
	},
}

// --- prune command ---

var pruneDays int

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Drop ledger entries older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		days := pruneDays
		if days <= 0 {
			days = cfg.History.RetentionDays
		}

		ledger := history.Load(cfg.History.Path)
		removed := ledger.Prune(days)
		fmt.Printf("Pruned %d of %d entries (retention %d days).\n",
			removed, removed+ledger.Stats().Total, days)
		return nil
	},
}

func init() {
	pruneCmd.Flags().IntVar(&pruneDays, "days", 0, "Override configured retention window")
}

// --- preview command ---

var previewCmd = &cobra.Command{
	Use:   "preview <post.md>",
	Short: "Render a generated post to HTML on stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading post: %w", err)
		}

		body := string(raw)
		// Drop Jekyll front matter before rendering.
		if strings.HasPrefix(body, "---\n") {
			if _, rest, ok := strings.Cut(body[4:], "\n---\n"); ok {
				body = rest
			}
		}

		var buf bytes.Buffer
		if err := goldmark.New().Convert([]byte(body), &buf); err != nil {
			return fmt.Errorf("rendering markdown: %w", err)
		}
		fmt.Println(buf.String())
		return nil
	},
}

func openDB() (*archive.DB, error) {
	db, err := archive.Open(cfg.Archive.Path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	return db, nil
}
