package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	archerrors "github.com/raoulx24/share-archiver/internal/errors"
	"github.com/raoulx24/share-archiver/internal/metrics"
	"github.com/raoulx24/share-archiver/internal/share"
	"github.com/raoulx24/share-archiver/internal/snapshot"
)

func (a *app) snapshotCmd() *cobra.Command {
	var metadataKey string

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage share snapshots",
		Long: `Create, list, delete and prune the snapshots share-archiver manages.

Managed snapshots carry the snapshot.metadataKey metadata entry. Snapshots
without it are listed by no command here and are never deleted.`,
	}
	cmd.PersistentFlags().StringVar(&metadataKey, "metadata-key", "",
		"override snapshot.metadataKey")

	manager := func() (*snapshot.Manager, error) {
		if err := a.cfg.ValidateSource(); err != nil {
			return nil, err
		}
		if metadataKey != "" {
			a.cfg.Snapshot.MetadataKey = metadataKey
		}
		svc, err := a.newShare(a.cfg.Source, a.log)
		if err != nil {
			return nil, err
		}
		return snapshot.NewManager(svc, a.cfg.Snapshot.MetadataKey, snapshot.WithLogger(a.log))
	}

	cmd.AddCommand(
		a.snapshotCreateCmd(&metadataKey),
		a.snapshotListCmd(manager),
		a.snapshotDeleteCmd(manager),
		a.snapshotPruneCmd(manager),
	)
	return cmd
}

func (a *app) snapshotCreateCmd(metadataKey *string) *cobra.Command {
	var retain int

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a managed snapshot",
		Long: `Create a managed snapshot of source.shareName.

When snapshot.retain is configured, or --retain is given, older managed
snapshots beyond the latest N are deleted afterwards.`,
		Example: `  # Create a snapshot using the configured retention
  share-archiver snapshot create

  # Create a snapshot and keep only the latest 3
  share-archiver snapshot create --retain 3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("retain") {
				a.cfg.Snapshot.Retain = &retain
			}
			if *metadataKey != "" {
				a.cfg.Snapshot.MetadataKey = *metadataKey
			}
			res, err := a.snapshotRun(cmd.Context(), a.cfg, a.log, metrics.Noop{})
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Created %s\n", color.GreenString(res.Created.String()))
			for _, s := range res.Pruned {
				fmt.Fprintf(w, "Pruned  %s\n", s)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&retain, "retain", 0, "keep the latest N managed snapshots")
	return cmd
}

// snapshotOutput is the JSON form of a managed snapshot.
type snapshotOutput struct {
	Share    string            `json:"share"`
	Snapshot string            `json:"snapshot"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (a *app) snapshotListCmd(manager func() (*snapshot.Manager, error)) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List managed snapshots",
		Long:  `List the managed snapshots of source.shareName, newest first.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mgr, err := manager()
			if err != nil {
				return err
			}
			snaps, err := mgr.ListManaged(cmd.Context(), a.cfg.Source.ShareName)
			if err != nil {
				return err
			}
			slices.SortFunc(snaps, func(x, y snapshot.Snapshot) int {
				return y.Time.Compare(x.Time)
			})
			if asJSON {
				return writeSnapshotsJSON(cmd.OutOrStdout(), snaps)
			}
			writeSnapshotsTable(cmd.OutOrStdout(), a.cfg.Source.ShareName, mgr.Key(), snaps)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output in JSON format")
	return cmd
}

func writeSnapshotsJSON(w io.Writer, snaps []snapshot.Snapshot) error {
	out := make([]snapshotOutput, len(snaps))
	for i, s := range snaps {
		out[i] = snapshotOutput{
			Share:    s.Share,
			Snapshot: share.FormatSnapshotTime(s.Time),
			Metadata: s.Metadata,
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeSnapshotsTable(w io.Writer, shareName, key string, snaps []snapshot.Snapshot) {
	if len(snaps) == 0 {
		fmt.Fprintf(w, "No managed snapshots of %s (key %s)\n", shareName, key)
		return
	}
	bold := color.New(color.Bold)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\t%s\n", bold.Sprint("SNAPSHOT"), bold.Sprint("AGE"), bold.Sprint("TAGGED"))
	for _, s := range snaps {
		fmt.Fprintf(tw, "%s\t%s\t%s\n",
			share.FormatSnapshotTime(s.Time),
			time.Since(s.Time).Round(time.Minute),
			s.Metadata[key])
	}
	tw.Flush()
}

func (a *app) snapshotDeleteCmd(manager func() (*snapshot.Manager, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <snapshot>",
		Short: "Delete a managed snapshot",
		Long: `Delete one managed snapshot of source.shareName, identified by its
timestamp as printed by "snapshot list". Unmanaged snapshots are refused.`,
		Example: `  share-archiver snapshot delete 2024-03-01T08:00:00.0000000Z`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := share.ParseSnapshotTime(args[0])
			if err != nil {
				return archerrors.Validationf("snapshot %q: %v", args[0], err)
			}
			mgr, err := manager()
			if err != nil {
				return err
			}
			if err := mgr.DeleteManaged(cmd.Context(), a.cfg.Source.ShareName, t); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s@%s\n", a.cfg.Source.ShareName, share.FormatSnapshotTime(t))
			return nil
		},
	}
}

func (a *app) snapshotPruneCmd(manager func() (*snapshot.Manager, error)) *cobra.Command {
	var retain int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete managed snapshots beyond the latest N",
		Example: `  share-archiver snapshot prune --retain 7`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("retain") {
				if a.cfg.Snapshot.Retain == nil {
					return archerrors.NewUserError(archerrors.Validationf("no retention configured"),
						"Pass --retain or set snapshot.retain")
				}
				retain = *a.cfg.Snapshot.Retain
			}
			policy, err := retainPolicy(&retain)
			if err != nil {
				return err
			}
			mgr, err := manager()
			if err != nil {
				return err
			}
			deleted, err := mgr.Prune(cmd.Context(), a.cfg.Source.ShareName, policy)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, s := range deleted {
				fmt.Fprintf(w, "Pruned %s\n", s)
			}
			fmt.Fprintf(w, "%d snapshot(s) pruned, policy: %s\n", len(deleted), policy.Description())
			return nil
		},
	}
	cmd.Flags().IntVar(&retain, "retain", 0, "keep the latest N managed snapshots")
	return cmd
}
