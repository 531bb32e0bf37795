package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"toolbox_backend/db"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Approve members and manage roles",
	Long: `Manage member accounts directly in the database.

New signups wait for approval before they can use the toolbox. These
commands work while the server is running.`,
}

var adminListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepository(cmd.Context(), func(ctx context.Context, repo *db.Repository) error {
			profiles, err := repo.ListProfiles(ctx)
			if err != nil {
				return err
			}
			return printProfiles(cmd.OutOrStdout(), profiles)
		})
	},
}

var adminApproveCmd = &cobra.Command{
	Use:   "approve <email>",
	Short: "Approve a pending member",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateProfile(cmd, args[0], "approved", func(ctx context.Context, repo *db.Repository, id string) (db.Profile, error) {
			return repo.SetApproval(ctx, id, true)
		})
	},
}

var adminRevokeCmd = &cobra.Command{
	Use:   "revoke <email>",
	Short: "Withdraw a member's approval",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateProfile(cmd, args[0], "revoked", func(ctx context.Context, repo *db.Repository, id string) (db.Profile, error) {
			return repo.SetApproval(ctx, id, false)
		})
	},
}

var adminPromoteCmd = &cobra.Command{
	Use:   "promote <email>",
	Short: "Give a profile the admin role",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateProfile(cmd, args[0], "promoted", func(ctx context.Context, repo *db.Repository, id string) (db.Profile, error) {
			return repo.SetRole(ctx, id, db.RoleAdmin)
		})
	},
}

var adminDemoteCmd = &cobra.Command{
	Use:   "demote <email>",
	Short: "Return an admin to the member role",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateProfile(cmd, args[0], "demoted", func(ctx context.Context, repo *db.Repository, id string) (db.Profile, error) {
			return repo.SetRole(ctx, id, db.RoleMember)
		})
	},
}

func init() {
	adminCmd.PersistentFlags().StringVar(&dbPathFlag, "db", "", "database path (default $DATABASE_PATH)")
	adminCmd.AddCommand(adminListCmd, adminApproveCmd, adminRevokeCmd, adminPromoteCmd, adminDemoteCmd)
}

// withRepository opens the database, runs fn with a repository that writes
// inline, and closes the database.
func withRepository(ctx context.Context, fn func(context.Context, *db.Repository) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	database, err := db.Open(databasePath())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()
	return fn(ctx, db.NewRepository(database, nil))
}

func updateProfile(cmd *cobra.Command, email, verb string, apply func(context.Context, *db.Repository, string) (db.Profile, error)) error {
	return withRepository(cmd.Context(), func(ctx context.Context, repo *db.Repository) error {
		p, err := repo.GetProfileByEmail(ctx, email)
		if errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("no profile with email %q", db.NormalizeEmail(email))
		}
		if err != nil {
			return err
		}
		p, err = apply(ctx, repo, p.ID)
		if err != nil {
			return err
		}
		color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "✓ %s %s", p.Email, verb)
		fmt.Fprintf(cmd.OutOrStdout(), " (role %s, approved %t)\n", p.Role, p.IsApproved)
		return nil
	})
}

// printProfiles writes profiles as an aligned table.
func printProfiles(w io.Writer, profiles []db.Profile) error {
	if len(profiles) == 0 {
		fmt.Fprintln(w, "no profiles")
		return nil
	}
	pending := color.New(color.FgYellow).SprintFunc()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EMAIL\tNICKNAME\tROLE\tSTATUS\tCREDITS\tCREATED")
	for _, p := range profiles {
		status := "approved"
		if !p.CanUseToolbox() {
			status = pending("pending")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			p.Email, p.Nickname, p.Role, status, p.ImageCredits, p.CreatedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}
