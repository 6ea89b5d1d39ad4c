package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/sakif/precinct/internal/config"
	"github.com/sakif/precinct/internal/notify"
	"github.com/sakif/precinct/internal/service"
)

var collections = []string{"citations", "arrests"}

// recordRow is one line of `records list`, whatever the collection.
type recordRow struct {
	ID        string
	IssuedBy  int64
	Subject   string
	Total     string
	JailTime  int64
	MessageID string
	Created   string
	Warrant   bool
}

// collection hides the difference between citations and arrests from the
// commands below.
type collection struct {
	count     func(ctx context.Context) (int64, error)
	rows      func(ctx context.Context) ([]recordRow, error)
	deleteAll func(ctx context.Context) (service.BulkDeleteResult, error)
}

var admin = service.Viewer{IsAdmin: true}

// collection builds the services for name. Only a purge needs the real
// sink; reads get notify.Nop.
func (e *env) collection(name string, retract bool) (*collection, error) {
	var sink notify.Sink = notify.Nop{}
	if retract {
		var err error
		if sink, err = notify.FromConfig(e.cfg.Discord, e.logger); err != nil {
			return nil, err
		}
	}

	switch name {
	case "citations":
		svc := service.NewCitationService(e.store.Citations(), sink, e.logger)
		return &collection{
			count:     svc.Count,
			deleteAll: svc.DeleteAll,
			rows: func(ctx context.Context) ([]recordRow, error) {
				list, err := svc.List(ctx, admin, true)
				if err != nil {
					return nil, err
				}
				rows := make([]recordRow, 0, len(list))
				for _, c := range list {
					rows = append(rows, recordRow{
						ID:        c.ID,
						IssuedBy:  c.IssuedBy,
						Subject:   c.ViolatorFirstName + " " + c.ViolatorLastName,
						Total:     c.TotalAmount,
						JailTime:  c.TotalJailTime,
						MessageID: deref(c.DiscordMessageID),
						Created:   c.CreatedAt.Format("2006-01-02 15:04"),
					})
				}
				return rows, nil
			},
		}, nil
	case "arrests":
		svc := service.NewArrestService(e.store.Arrests(), sink, e.logger)
		return &collection{
			count:     svc.Count,
			deleteAll: svc.DeleteAll,
			rows: func(ctx context.Context) ([]recordRow, error) {
				list, err := svc.List(ctx, admin, true)
				if err != nil {
					return nil, err
				}
				rows := make([]recordRow, 0, len(list))
				for _, a := range list {
					rows = append(rows, recordRow{
						ID:        a.ID,
						IssuedBy:  a.IssuedBy,
						Subject:   a.SuspectFirstName + " " + a.SuspectLastName,
						Total:     a.TotalAmount,
						JailTime:  a.TotalJailTime,
						MessageID: deref(a.DiscordMessageID),
						Created:   a.CreatedAt.Format("2006-01-02 15:04"),
						Warrant:   a.WarrantRequired(),
					})
				}
				return rows, nil
			},
		}, nil
	}
	return nil, fmt.Errorf("unknown collection %q (valid: %s)", name, strings.Join(collections, ", "))
}

func newRecordsCmd(flags *config.Flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Inspect and purge citations and arrest reports",
	}
	cmd.AddCommand(newRecordsCountCmd(flags))
	cmd.AddCommand(newRecordsListCmd(flags))
	cmd.AddCommand(newRecordsPurgeCmd(flags))
	return cmd
}

// withCollection opens the store, resolves the named collection and runs fn.
func withCollection(cmd *cobra.Command, flags *config.Flags, name string, retract bool, fn func(*collection) error) error {
	e, err := openEnv(cmd, flags)
	if err != nil {
		return err
	}
	defer e.Close()

	c, err := e.collection(name, retract)
	if err != nil {
		return err
	}
	return fn(c)
}

func newRecordsCountCmd(flags *config.Flags) *cobra.Command {
	return &cobra.Command{
		Use:       "count <citations|arrests>",
		Short:     "Print how many records were ever issued",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: collections,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCollection(cmd, flags, args[0], false, func(c *collection) error {
				n, err := c.count(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d\n", n)
				return nil
			})
		},
	}
}

func newRecordsListCmd(flags *config.Flags) *cobra.Command {
	return &cobra.Command{
		Use:       "list <citations|arrests>",
		Short:     "List every record, newest first",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: collections,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCollection(cmd, flags, args[0], false, func(c *collection) error {
				rows, err := c.rows(cmd.Context())
				if err != nil {
					return err
				}

				t := table.NewWriter()
				t.SetOutputMirror(cmd.OutOrStdout())
				t.SetStyle(table.StyleLight)
				t.AppendHeader(table.Row{"ID", "Issued By", "Subject", "Total", "Jail (s)", "Discord", "Created"})
				t.SetColumnConfigs([]table.ColumnConfig{
					{Number: 4, Align: text.AlignRight},
					{Number: 5, Align: text.AlignRight},
				})
				for _, r := range rows {
					subject := r.Subject
					if r.Warrant {
						subject += " " + color.New(color.FgRed).Sprint("[warrant]")
					}
					msg := r.MessageID
					if msg == "" {
						msg = color.New(color.FgYellow).Sprint("(not posted)")
					}
					t.AppendRow(table.Row{r.ID, r.IssuedBy, subject, r.Total, r.JailTime, msg, r.Created})
				}
				t.Render()
				return nil
			})
		},
	}
}

func newRecordsPurgeCmd(flags *config.Flags) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:       "purge <citations|arrests>",
		Short:     "Delete every record in a collection and retract its Discord posts",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: collections,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				fmt.Fprintf(cmd.ErrOrStderr(), "Delete ALL %s? The issued count is reset too. (y/N) ", args[0])
				answer, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && answer == "" {
					return err
				}
				if strings.TrimSpace(strings.ToLower(answer)) != "y" {
					fmt.Fprintln(cmd.OutOrStdout(), "Purge cancelled")
					return nil
				}
			}

			return withCollection(cmd, flags, args[0], true, func(c *collection) error {
				res, err := c.deleteAll(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s deleted %d %s\n",
					color.New(color.FgGreen).Sprint("✓"), res.DeletedCount, args[0])
				if res.RetractFailures > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %d Discord message(s) could not be retracted\n",
						color.New(color.FgYellow).Sprint("!"), res.RetractFailures)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip the confirmation prompt")
	return cmd
}
