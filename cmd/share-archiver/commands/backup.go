package commands

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/raoulx24/share-archiver/internal/config"
	"github.com/raoulx24/share-archiver/internal/metrics"
)

func (a *app) backupCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Archive a snapshot of the share",
		Long: `Take a temporary managed snapshot of source.shareName, stream its content
into an archive and delete the snapshot again.

The archive is named <prefix>-<yyyyMMdd-HHmmss>.<ext> after the snapshot
time. An existing archive of the same name is never overwritten unless
blob.allowOverwrite is set.`,
	}
	cmd.PersistentFlags().StringVarP(&format, "format", "f", "",
		"override backup.archiveType: zip, tar, targzip, tarbzip2")

	run := func(mode string) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			if format != "" {
				a.cfg.Backup.ArchiveType = format
			}
			res, err := a.archiveRun(cmd.Context(), a.cfg, mode, a.log, metrics.Noop{})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Archived %s to %s (%s)\n",
				res.Snapshot, color.GreenString(res.Location), humanize.IBytes(uint64(res.Bytes)))
			return nil
		}
	}

	var path string
	local := &cobra.Command{
		Use:   "local",
		Short: "Write the archive to a local directory",
		Example: `  share-archiver backup local
  share-archiver backup local --path /mnt/backups --format tarbzip2`,
		Args: cobra.NoArgs,
		PreRun: func(*cobra.Command, []string) {
			if path != "" {
				a.cfg.Local.Path = path
			}
		},
		RunE: run(config.ModeBackupLocal),
	}
	local.Flags().StringVar(&path, "path", "", "override local.path")

	var containerName string
	blob := &cobra.Command{
		Use:   "blob",
		Short: "Upload the archive to a blob container",
		Example: `  share-archiver backup blob
  share-archiver backup blob --container archives`,
		Args: cobra.NoArgs,
		PreRun: func(*cobra.Command, []string) {
			if containerName != "" {
				a.cfg.Blob.Container = containerName
			}
		},
		RunE: run(config.ModeBackupBlob),
	}
	blob.Flags().StringVar(&containerName, "container", "", "override blob.container")

	cmd.AddCommand(local, blob)
	return cmd
}
