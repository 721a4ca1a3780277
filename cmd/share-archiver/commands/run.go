package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	archerrors "github.com/raoulx24/share-archiver/internal/errors"
	"github.com/raoulx24/share-archiver/internal/logging"
	"github.com/raoulx24/share-archiver/internal/metrics"
)

func (a *app) runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <job>",
		Short: "Run one scheduled job now",
		Long: `Run the schedule.jobs entry named <job> once, in the foreground, with the
same settings the serve command would use.`,
		Example: `  share-archiver run nightly`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, j := range a.cfg.Schedule.Jobs {
				if j.Name != args[0] {
					continue
				}
				log := logging.With(a.log, "job", j.Name)
				if err := a.runMode(cmd.Context(), a.cfg, j.Mode, log, metrics.Noop{}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s finished\n", j.Name)
				return nil
			}
			return archerrors.NewUserError(archerrors.NotFoundf("job %q", args[0]),
				"List the configured jobs under schedule.jobs")
		},
	}
}

func (a *app) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration file",
		Long: `Validate the configuration. With schedule.jobs present every job and the
destination its mode needs are checked; otherwise only the source is.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if len(a.cfg.Schedule.Jobs) > 0 {
				err = a.cfg.ValidateSchedule()
			} else {
				err = a.cfg.ValidateSource()
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", a.configPath)
			return nil
		},
	}
}
