package cli

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/fundkeeper/internal/dbx"
	"github.com/dmitrijs2005/fundkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/fundkeeper/internal/server/services"
	"github.com/spf13/cobra"
)

// ErrInconsistent is returned by audit when mismatches were found and left
// unrepaired, so scripts can detect drift from the exit status.
var ErrInconsistent = errors.New("ledger inconsistencies found")

func newAuditCommand(opts *options) *cobra.Command {
	var repair bool

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Compare every project's current amount with its history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			db, err := dbx.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN)
			if err != nil {
				return err
			}
			defer db.Close()

			rm, err := repomanager.New(cfg.DatabaseDriver)
			if err != nil {
				return err
			}
			if err := rm.RunMigrations(ctx, db); err != nil {
				return err
			}

			as := services.NewAuditService(db, rm, opts.logger())
			found, err := as.AuditAll(ctx, repair)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, w := range found {
				fmt.Fprintf(out, "%s\tstored=%s\texpected=%s\n", w.ProjectID, w.Stored, w.Expected)
			}

			switch {
			case len(found) == 0:
				fmt.Fprintln(out, "all projects consistent")
			case repair:
				fmt.Fprintf(out, "repaired %d project(s)\n", len(found))
			default:
				return fmt.Errorf("%w: %d project(s)", ErrInconsistent, len(found))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&repair, "repair", false, "rewrite mismatched current amounts from history")

	return cmd
}
