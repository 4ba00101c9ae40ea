package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/docshare/conduit/internal/config"
	"github.com/docshare/conduit/internal/database"
	"github.com/docshare/conduit/pkg/logger"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// app is the state shared by every subcommand once the root pre-run succeeds.
type app struct {
	jsonOutput bool
	cfg        *config.Config
	db         *gorm.DB
}

// NewRootCommand builds the conduit command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "conduit",
		Short: "Drive path resolution from the terminal",
		Long: `conduit operates on the drive database directly, without the HTTP server.

  conduit migrate                                     Create or update the schema
  conduit drive create --owner <uuid> --name Class    Create a shared drive
  conduit resolve --drive <uuid> --author <uuid> docs/a.txt 120
  conduit tree --drive <uuid>                         Print a drive's node tree
  conduit token --user <uuid> --drive <uuid>          Issue a drive-scoped API token

The database is selected with DB_DRIVER (postgres or sqlite) and the usual DB_* variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger.SetOutput(cmd.ErrOrStderr())
			a.cfg = config.Load()

			db, err := database.Connect(a.cfg.DB)
			if err != nil {
				return fmt.Errorf("connecting to database: %w", err)
			}
			a.db = db
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.db == nil {
				return nil
			}
			sqlDB, err := a.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	}

	root.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "Output as JSON")

	root.AddCommand(
		newMigrateCommand(a),
		newDriveCommand(a),
		newResolveCommand(a),
		newTreeCommand(a),
		newUsageCommand(a),
		newTokenCommand(a),
	)
	return root
}

// Execute runs the command tree against os.Args.
func Execute() error {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func (a *app) print(w io.Writer, v interface{}, human func(io.Writer)) error {
	if a.jsonOutput {
		return jsonTo(w, v)
	}
	human(w)
	return nil
}
