// Package commands implements carina's CLI surface: validate/plan/apply/
// destroy/fmt/module subcommands on cobra. Persistent flags are bound to
// viper and read back in PersistentPreRun, so layering (flag > env >
// config file > compiled default) is resolved once per invocation rather
// than at flag-parse time.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/carina-iac/carina/internal/cfgfile"
	"github.com/carina-iac/carina/internal/clog"
	"github.com/carina-iac/carina/internal/telemetry"
	"github.com/carina-iac/carina/internal/version"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// cliConfig is the resolved configuration every subcommand reads from,
// filled from viper in rootCmd's PersistentPreRun before any subcommand
// body runs.
type cliConfig struct {
	StatePath    string
	Region       string
	AutoApprove  bool
	Refresh      bool
	Verbose      bool
	JSONLogs     bool
	LockTimeoutS int
	Parallelism  int
	OTLPEndpoint string
}

var (
	config          cliConfig
	logger          *slog.Logger
	v               = viper.New()
	shutdownTracing func(context.Context) error
)

var rootCmd = &cobra.Command{
	Use:   "carina",
	Short: "Infrastructure reconciliation engine",
	Long: `Carina - Infrastructure-as-Code Reconciliation Engine

Declare. Resolve. Reconcile.`,
	Version: version.Current,
	Run:     nil,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&config.StatePath, "state", "carina.tfstate", "Path to the local state file")
	rootCmd.PersistentFlags().StringVar(&config.Region, "region", "", "Default provider region")
	rootCmd.PersistentFlags().BoolVar(&config.AutoApprove, "auto-approve", false, "Skip interactive approval before apply/destroy")
	rootCmd.PersistentFlags().BoolVar(&config.Refresh, "refresh", true, "Perform a drift read against live providers before planning")
	rootCmd.PersistentFlags().BoolVarP(&config.Verbose, "verbose", "v", false, "Enable debug-level logging")
	rootCmd.PersistentFlags().BoolVar(&config.JSONLogs, "json", false, "Emit structured JSON logs instead of text")
	rootCmd.PersistentFlags().IntVar(&config.LockTimeoutS, "lock-timeout", 30, "Seconds to wait for the state lock before giving up")
	rootCmd.PersistentFlags().IntVar(&config.Parallelism, "parallelism", 16, "Maximum concurrent drift reads during refresh")

	v.BindPFlag("region", rootCmd.PersistentFlags().Lookup("region"))
	v.BindPFlag("auto_approve", rootCmd.PersistentFlags().Lookup("auto-approve"))
	v.BindPFlag("refresh", rootCmd.PersistentFlags().Lookup("refresh"))
	v.BindPFlag("lock_timeout_seconds", rootCmd.PersistentFlags().Lookup("lock-timeout"))
	v.BindPFlag("drift_parallelism", rootCmd.PersistentFlags().Lookup("parallelism"))

	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		renderHelp(cmd)
	})

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		defaults, err := cfgfile.Load(v)
		if err != nil {
			fmt.Fprintf(os.Stderr, "carina.yaml: %v\n", err)
			os.Exit(1)
		}

		if !cmd.Flags().Changed("region") && defaults.Region != "" {
			config.Region = defaults.Region
		}
		if !cmd.Flags().Changed("auto-approve") {
			config.AutoApprove = defaults.AutoApprove
		}
		if !cmd.Flags().Changed("refresh") {
			config.Refresh = defaults.Refresh
		}
		if !cmd.Flags().Changed("lock-timeout") {
			config.LockTimeoutS = defaults.LockTimeoutS
		}
		if !cmd.Flags().Changed("parallelism") {
			config.Parallelism = defaults.DriftParallelism
		}
		config.OTLPEndpoint = defaults.OTLPEndpoint

		level := slog.LevelInfo
		if config.Verbose {
			level = slog.LevelDebug
		}
		out := os.Stdout
		if config.JSONLogs {
			logger = clog.New(out, level)
		} else {
			logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
		}

		shutdownTracing, err = telemetry.Init(cmd.Context(), telemetry.Config{
			ServiceName:    "carina",
			ServiceVersion: version.Current,
			Endpoint:       config.OTLPEndpoint,
		})
		if err != nil {
			logger.Warn("tracing disabled", "error", err)
			shutdownTracing = func(context.Context) error { return nil }
		}
	}

	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if shutdownTracing != nil {
			_ = shutdownTracing(cmd.Context())
		}
	}
}

func renderHelp(cmd *cobra.Command) {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5FAFFF")).
		MarginBottom(1)

	flagStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA"))

	fmt.Println(titleStyle.Render(fmt.Sprintf("CARINA %s", version.Current)))
	fmt.Println("Infrastructure-as-code reconciliation engine.")

	fmt.Println(titleStyle.Render("USAGE"))
	fmt.Printf("  %s\n\n", cmd.UseLine())

	fmt.Println(titleStyle.Render("COMMANDS"))
	for _, c := range cmd.Commands() {
		if c.IsAvailableCommand() {
			fmt.Printf("  %-12s %s\n", c.Name(), c.Short)
		}
	}
	fmt.Println("")

	fmt.Println(titleStyle.Render("EXAMPLES"))
	fmt.Println("  carina validate main.crn")
	fmt.Println("  carina plan main.crn")
	fmt.Println("  carina apply main.crn --auto-approve")
	fmt.Println("")

	fmt.Println(titleStyle.Render("FLAGS"))
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		output := fmt.Sprintf("  --%-15s %s", f.Name, f.Usage)
		if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" {
			output += fmt.Sprintf(" (default %s)", f.DefValue)
		}
		fmt.Println(flagStyle.Render(output))
	})
	fmt.Println("")
}
