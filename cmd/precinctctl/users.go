package main

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/sakif/precinct/internal/config"
	"github.com/sakif/precinct/internal/model"
)

// operatorID is the actor for CLI admin operations. It matches no account,
// so the not-yourself rule never applies but protected accounts still do.
const operatorID int64 = 0

func newUsersCmd(flags *config.Flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage officer accounts",
	}
	cmd.AddCommand(newUsersListCmd(flags))
	cmd.AddCommand(newSetAdminCmd(flags, "promote", true))
	cmd.AddCommand(newSetAdminCmd(flags, "demote", false))
	cmd.AddCommand(newBlockCmd(flags))
	return cmd
}

func newUsersListCmd(flags *config.Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd, flags)
			if err != nil {
				return err
			}
			defer e.Close()

			users, err := e.store.Users().List(cmd.Context())
			if err != nil {
				return err
			}
			terminated, err := e.store.Terminated().List(cmd.Context())
			if err != nil {
				return err
			}
			gone := make(map[string]bool, len(terminated))
			for _, t := range terminated {
				gone[t.Username] = true
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"ID", "Username", "Badge", "Rank", "Admin", "Discord", "Status", "Created"})
			for _, u := range users {
				status := color.New(color.FgGreen).Sprint("active")
				if gone[model.NormalizeUsername(u.Username)] {
					status = color.New(color.FgRed).Sprint("terminated")
				}
				admin := ""
				if u.IsAdmin {
					admin = color.New(color.FgHiMagenta).Sprint("yes")
				}
				t.AppendRow(table.Row{
					u.ID, u.Username, u.BadgeNumber, deref(u.Rank), admin, deref(u.DiscordID), status,
					u.CreatedAt.Format("2006-01-02 15:04"),
				})
			}
			t.AppendFooter(table.Row{"", "", "", "", "", "", "Total", strconv.Itoa(len(users))})
			t.Render()
			return nil
		},
	}
}

func newSetAdminCmd(flags *config.Flags, verb string, isAdmin bool) *cobra.Command {
	short := "Grant admin to a user"
	if !isAdmin {
		short = "Revoke admin from a user"
	}
	return &cobra.Command{
		Use:   verb + " <username>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, flags)
			if err != nil {
				return err
			}
			defer e.Close()

			u, err := e.store.Users().GetByUsername(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			svc, err := e.users()
			if err != nil {
				return err
			}
			if _, err := svc.SetAdmin(cmd.Context(), operatorID, u.ID, isAdmin); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %sd %s\n", color.New(color.FgGreen).Sprint("✓"), verb, u.Username)
			return nil
		},
	}
}

func newBlockCmd(flags *config.Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "block <username>",
		Short: "Stop a username from registering",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, flags)
			if err != nil {
				return err
			}
			defer e.Close()

			svc, err := e.users()
			if err != nil {
				return err
			}
			entry, err := svc.Block(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s blocked %s\n", color.New(color.FgGreen).Sprint("✓"), entry.Username)
			return nil
		},
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
