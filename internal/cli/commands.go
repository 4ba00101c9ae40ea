package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/docshare/conduit/internal/events"
	"github.com/docshare/conduit/internal/models"
	"github.com/docshare/conduit/internal/output"
	"github.com/docshare/conduit/internal/resolver"
	"github.com/docshare/conduit/internal/services"
	"github.com/docshare/conduit/internal/tree"
	"github.com/docshare/conduit/internal/txn"
	"github.com/docshare/conduit/pkg/utils"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func jsonTo(w io.Writer, v interface{}) error {
	return output.JSON(w, v)
}

func newMigrateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// the root pre-run already migrated while connecting
			fmt.Fprintf(cmd.OutOrStdout(), "Schema is up to date (%s).\n", a.cfg.DB.Driver)
			return nil
		},
	}
}

func newDriveCommand(a *app) *cobra.Command {
	drive := &cobra.Command{
		Use:   "drive",
		Short: "Manage drives",
	}

	var (
		owner    string
		name     string
		personal bool
		capacity int64
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a shared or personal drive",
		Long: `Create a drive for an existing user.

  conduit drive create --owner <uuid> --name Class
  conduit drive create --owner <uuid> --personal --capacity 1073741824`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ownerID, err := uuid.Parse(owner)
			if err != nil {
				return fmt.Errorf("invalid --owner: %w", err)
			}
			var user models.User
			if err := a.db.First(&user, "id = ?", ownerID).Error; err != nil {
				return fmt.Errorf("loading owner: %w", err)
			}

			var limit *int64
			if capacity > 0 {
				limit = &capacity
			}

			drives := services.NewDriveService(a.db, a.cfg.Tree)
			var created *models.Drive
			if personal {
				created, err = drives.CreatePersonalDrive(cmd.Context(), &user, limit)
			} else {
				created, err = drives.CreateSharedDrive(cmd.Context(), &user, name, limit)
			}
			if err != nil {
				return fmt.Errorf("creating drive: %w", err)
			}

			return a.print(cmd.OutOrStdout(), created, func(w io.Writer) {
				fmt.Fprintf(w, "Created drive: %s (id: %s)\n", created.Name, created.ID)
			})
		},
	}
	create.Flags().StringVar(&owner, "owner", "", "Owner user ID")
	create.Flags().StringVar(&name, "name", "", "Drive name (shared drives)")
	create.Flags().BoolVar(&personal, "personal", false, "Create the owner's personal drive")
	create.Flags().Int64Var(&capacity, "capacity", 0, "Capacity in bytes (0 = unlimited)")
	_ = create.MarkFlagRequired("owner")

	drive.AddCommand(create)
	return drive
}

func newResolveCommand(a *app) *cobra.Command {
	var (
		driveID    string
		author     string
		resourceID string
		shareID    string
		note       string
		mentions   []string
	)

	cmd := &cobra.Command{
		Use:   "resolve <path> <size>",
		Short: "Resolve an uploaded file path into drive nodes",
		Long: `Run the path resolver for one upload, exactly as the upload webhook would.

  conduit resolve --drive <uuid> --author <uuid> homework/week1/notes.txt 120
  conduit resolve --drive <uuid> --author <uuid> --resource <uuid> notes.txt 120`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			size, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid size %q: %w", args[1], err)
			}

			ev := events.UploadEvent{
				FilePath: args[0],
				Filesize: size,
				Note:     note,
			}
			if ev.DriveID, err = uuid.Parse(driveID); err != nil {
				return fmt.Errorf("invalid --drive: %w", err)
			}
			if ev.Author, err = uuid.Parse(author); err != nil {
				return fmt.Errorf("invalid --author: %w", err)
			}
			if resourceID != "" {
				id, err := uuid.Parse(resourceID)
				if err != nil {
					return fmt.Errorf("invalid --resource: %w", err)
				}
				ev.ResourceID = &id
			}
			ev.ShareID = uuid.New()
			if shareID != "" {
				if ev.ShareID, err = uuid.Parse(shareID); err != nil {
					return fmt.Errorf("invalid --share: %w", err)
				}
			}
			for _, raw := range mentions {
				id, err := uuid.Parse(raw)
				if err != nil {
					return fmt.Errorf("invalid --mention %q: %w", raw, err)
				}
				ev.MentionedMembers = append(ev.MentionedMembers, id)
			}

			chain, err := a.resolve(cmd.Context(), ev)
			if err != nil {
				var rerr *resolver.Error
				if errors.As(err, &rerr) && rerr.Retryable() {
					return fmt.Errorf("%w (retryable)", err)
				}
				return err
			}

			return a.print(cmd.OutOrStdout(), chain.Nodes, func(w io.Writer) {
				output.ChainTable(w, chain.Nodes)
			})
		},
	}

	cmd.Flags().StringVar(&driveID, "drive", "", "Drive ID")
	cmd.Flags().StringVar(&author, "author", "", "Uploading user ID")
	cmd.Flags().StringVar(&resourceID, "resource", "", "Existing node to resolve the path under")
	cmd.Flags().StringVar(&shareID, "share", "", "Share batch ID (default: a new one)")
	cmd.Flags().StringVar(&note, "note", "", "Note attached to the share")
	cmd.Flags().StringSliceVar(&mentions, "mention", nil, "Mentioned member IDs")
	_ = cmd.MarkFlagRequired("drive")
	_ = cmd.MarkFlagRequired("author")
	return cmd
}

// resolve runs one event and waits for its notifications to be written.
func (a *app) resolve(ctx context.Context, ev events.UploadEvent) (*tree.Chain, error) {
	notifications := services.NewNotificationService(a.db, a.cfg.Worker)
	defer notifications.Close()

	pool := txn.NewSessionPool(a.db, a.cfg.Lock)
	return resolver.New(pool, notifications, a.cfg.Tree).Resolve(ctx, ev)
}

func newTreeCommand(a *app) *cobra.Command {
	var driveID string

	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the node tree of a drive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(driveID)
			if err != nil {
				return fmt.Errorf("invalid --drive: %w", err)
			}

			entries, err := services.NewDriveService(a.db, a.cfg.Tree).Tree(cmd.Context(), id)
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), entries, func(w io.Writer) {
				output.Tree(w, entries)
			})
		},
	}
	cmd.Flags().StringVar(&driveID, "drive", "", "Drive ID")
	_ = cmd.MarkFlagRequired("drive")
	return cmd
}

func newUsageCommand(a *app) *cobra.Command {
	var driveID string

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Recompute and print a drive's used bytes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(driveID)
			if err != nil {
				return fmt.Errorf("invalid --drive: %w", err)
			}

			drives := services.NewDriveService(a.db, a.cfg.Tree)
			if _, err := drives.RecomputeUsage(cmd.Context(), id); err != nil {
				return fmt.Errorf("recomputing usage: %w", err)
			}
			drive, err := drives.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), drive, func(w io.Writer) {
				output.DriveDetail(w, *drive)
			})
		},
	}
	cmd.Flags().StringVar(&driveID, "drive", "", "Drive ID")
	_ = cmd.MarkFlagRequired("drive")
	return cmd
}

func newTokenCommand(a *app) *cobra.Command {
	var (
		userID string
		drives []string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API token for a user",
		Long: `Sign a bearer token for the drive API with the configured JWT_SECRET.

  conduit token --user <uuid>                      Token for every drive the user can reach
  conduit token --user <uuid> --drive <uuid>       Token scoped to one drive`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}
			var user models.User
			if err := a.db.First(&user, "id = ?", id).Error; err != nil {
				return fmt.Errorf("loading user: %w", err)
			}

			scope := make([]uuid.UUID, 0, len(drives))
			driveService := services.NewDriveService(a.db, a.cfg.Tree)
			for _, raw := range drives {
				driveID, err := uuid.Parse(raw)
				if err != nil {
					return fmt.Errorf("invalid --drive %q: %w", raw, err)
				}
				if !driveService.HasAccess(cmd.Context(), driveID, user.ID) {
					return fmt.Errorf("user %s has no access to drive %s", user.ID, driveID)
				}
				scope = append(scope, driveID)
			}

			utils.ConfigureJWT(a.cfg.JWT.Secret, a.cfg.JWT.ExpirationHours)
			token, err := utils.GenerateToken(&user, scope...)
			if err != nil {
				return fmt.Errorf("signing token: %w", err)
			}

			payload := map[string]interface{}{"token": token, "userID": user.ID, "drives": scope}
			return a.print(cmd.OutOrStdout(), payload, func(w io.Writer) {
				fmt.Fprintln(w, token)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User ID")
	cmd.Flags().StringSliceVar(&drives, "drive", nil, "Restrict the token to these drive IDs")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
