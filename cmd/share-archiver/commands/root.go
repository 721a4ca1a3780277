// Package commands implements the CLI commands for share-archiver.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/raoulx24/share-archiver/internal/backup"
	"github.com/raoulx24/share-archiver/internal/config"
	archerrors "github.com/raoulx24/share-archiver/internal/errors"
	"github.com/raoulx24/share-archiver/internal/logging"
	"github.com/raoulx24/share-archiver/internal/share"
	"github.com/raoulx24/share-archiver/internal/share/azshare"
	"github.com/raoulx24/share-archiver/internal/sink"
)

// version is set at build time via ldflags.
var version = "0.1.0"

// app carries the state shared by every command of one invocation.
type app struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg *config.Config
	log *slog.Logger

	// Transport constructors, replaced in tests.
	newShare func(acct config.AccountConfig, log logging.Logger) (share.Service, error)
	newBlob  func(b config.BlobConfig) (backup.Destination, error)
}

func newApp() *app {
	return &app{
		newShare: func(acct config.AccountConfig, log logging.Logger) (share.Service, error) {
			return azshare.New(acct, log)
		},
		newBlob: func(b config.BlobConfig) (backup.Destination, error) {
			c, err := sink.NewContainerClient(b.Account, b.Container)
			if err != nil {
				return nil, err
			}
			return backup.BlobInContainer(c, b.BlockSize, b.AllowOverwrite), nil
		},
	}
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	return newApp().rootCmd()
}

func (a *app) rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "share-archiver",
		Short: "Snapshot and archive Azure file shares",
		Long: `share-archiver takes managed snapshots of an Azure file share and streams
their content into zip or tar archives stored on local disk or in blob storage.

Snapshots created by share-archiver carry a metadata tag; only tagged
snapshots are ever pruned or deleted.`,
		Example: `  # Take a snapshot and keep the latest 7
  share-archiver snapshot create --retain 7

  # Archive the share into a local tar.gz
  share-archiver backup local --format targzip

  # Run the configured schedule
  share-archiver serve --config /etc/share-archiver/config.yaml`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			return a.setup(cmd.ErrOrStderr())
		},
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}
	cmd.SetVersionTemplate("share-archiver version {{.Version}}\n")
	cmd.CompletionOptions.DisableDefaultCmd = true

	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", config.DefaultConfigPath,
		"path to the YAML configuration file")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "",
		"override logging.level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&a.logFormat, "log-format", "",
		"override logging.format: text, json")

	cmd.AddCommand(
		a.snapshotCmd(),
		a.backupCmd(),
		a.runCmd(),
		a.serveCmd(),
		a.validateCmd(),
	)
	return cmd
}

// setup loads the configuration and builds the logger from it.
func (a *app) setup(stderr io.Writer) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return archerrors.NewUserError(err, fmt.Sprintf("Create %s or point --config at an existing file", a.configPath))
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Logging.Format = a.logFormat
	}

	a.cfg = cfg
	a.log = logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.Logging.Level),
		Format: logging.Format(cfg.Logging.Format),
		Output: stderr,
	})
	return nil
}

// Execute runs the root command with ctx, which is canceled on SIGINT/SIGTERM.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// Report prints err with its suggestion and returns the process exit code.
func Report(w io.Writer, err error) int {
	exitErr := archerrors.Classify(err)
	if exitErr == nil {
		return archerrors.ExitSuccess
	}
	if exitErr.Code == archerrors.ExitCanceled {
		fmt.Fprintln(w, color.YellowString("Canceled"))
		return exitErr.Code
	}

	fmt.Fprintf(w, "%s %v\n", color.New(color.FgRed, color.Bold).Sprint("Error:"), exitErr)
	if exitErr.Suggestion != "" {
		fmt.Fprintf(w, "%s %s\n", color.CyanString("Hint:"), exitErr.Suggestion)
	}
	return exitErr.Code
}
