package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"timebot/internal/core"
	"timebot/internal/storage"
)

// Defaults seeds the global flags, usually from config.
type Defaults struct {
	DBPath string
	UserID int64
}

type ctl struct {
	dbPath   string
	userID   int64
	output   string
	repoOpts []storage.Option
}

// NewRootCommand builds the timebotctl command tree. Every subcommand opens
// the database named by --db and acts as the user named by --user.
func NewRootCommand(defaults Defaults, repoOpts ...storage.Option) *cobra.Command {
	c := &ctl{repoOpts: repoOpts}

	root := &cobra.Command{
		Use:           "timebotctl",
		Short:         "Track time against the timebot database from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.dbPath, "db", defaults.DBPath, "SQLite database path")
	root.PersistentFlags().Int64Var(&c.userID, "user", defaults.UserID, "User id to act as")
	root.PersistentFlags().StringVarP(&c.output, "output", "o", outputText, "Output format for listings: text, json or yaml")

	root.AddCommand(
		c.categoriesCmd(),
		c.addCategoryCmd(),
		c.startCmd(),
		c.stopCmd(),
		c.statusCmd(),
		c.statsCmd(),
		c.historyCmd(),
	)
	return root
}

// withTracker opens the repository for the duration of fn.
func (c *ctl) withTracker(cmd *cobra.Command, fn func(ctx context.Context, t core.Tracker, user core.UserID, out io.Writer) error) error {
	if err := validOutput(c.output); err != nil {
		return err
	}
	repo, err := storage.NewSQLiteRepository(c.dbPath, c.repoOpts...)
	if err != nil {
		return err
	}
	defer repo.Close()
	return fn(cmd.Context(), repo, core.UserID(c.userID), cmd.OutOrStdout())
}

func (c *ctl) categoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List categories, creating the defaults on first use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withTracker(cmd, func(ctx context.Context, t core.Tracker, user core.UserID, out io.Writer) error {
				if err := t.EnsureDefaultCategories(ctx, user); err != nil {
					return err
				}
				cats, err := t.ListCategories(ctx, user)
				if err != nil {
					return err
				}
				if c.output != outputText {
					return render(out, c.output, categoryRecords(cats))
				}
				for _, cat := range cats {
					fmt.Fprintf(out, "%d\t%s\n", cat.ID, cat.Name)
				}
				return nil
			})
		},
	}
}

func (c *ctl) addCategoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "addcat NAME",
		Short: "Add a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withTracker(cmd, func(ctx context.Context, t core.Tracker, user core.UserID, out io.Writer) error {
				created, err := t.AddCategory(ctx, user, args[0])
				if err != nil {
					return err
				}
				name, _ := core.NormalizeCategoryName(args[0])
				if created {
					fmt.Fprintf(out, "Category added: %s\n", name)
				} else {
					fmt.Fprintf(out, "Category already exists: %s\n", name)
				}
				return nil
			})
		},
	}
}

func (c *ctl) startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start CATEGORY TASK...",
		Short: "Start a timer for a task",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withTracker(cmd, func(ctx context.Context, t core.Tracker, user core.UserID, out io.Writer) error {
				if err := t.EnsureDefaultCategories(ctx, user); err != nil {
					return err
				}
				categoryID, err := lookupCategory(ctx, t, user, args[0])
				if err != nil {
					return err
				}

				entry, err := t.StartEntry(ctx, user, categoryID, strings.Join(args[1:], " "))
				if errors.Is(err, core.ErrActiveEntryExists) {
					return errors.New("a timer is already running, stop it first")
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Timer started: %s [%s]\n", entry.TaskName, entry.Category)
				return nil
			})
		},
	}
}

func (c *ctl) stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running timer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withTracker(cmd, func(ctx context.Context, t core.Tracker, user core.UserID, out io.Writer) error {
				entry, err := t.StopActiveEntry(ctx, user)
				if err != nil {
					return err
				}
				if entry == nil {
					fmt.Fprintln(out, "No active timer to stop.")
					return nil
				}
				fmt.Fprintf(out, "Stopped: %s [%s] %s\n", entry.TaskName, entry.Category, core.FormatDuration(*entry.DurationSeconds))
				return nil
			})
		},
	}
}

func (c *ctl) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the running timer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withTracker(cmd, func(ctx context.Context, t core.Tracker, user core.UserID, out io.Writer) error {
				entry, err := t.GetActiveEntry(ctx, user)
				if err != nil {
					return err
				}
				if c.output != outputText {
					var active *entryRecord
					if entry != nil {
						r := entryRecordOf(*entry)
						active = &r
					}
					return render(out, c.output, map[string]*entryRecord{"active": active})
				}
				if entry == nil {
					fmt.Fprintln(out, "No active timer.")
					return nil
				}
				fmt.Fprintf(out, "Running: %s [%s] since %s\n",
					entry.TaskName, entry.Category, entry.StartedAt.Format("2006-01-02 15:04:05"))
				return nil
			})
		},
	}
}

func (c *ctl) statsCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show time per category over a trailing window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withTracker(cmd, func(ctx context.Context, t core.Tracker, user core.UserID, out io.Writer) error {
				totals, err := t.GetStats(ctx, user, days)
				if err != nil {
					return err
				}
				if c.output != outputText {
					return render(out, c.output, totalRecords(totals))
				}
				if len(totals) == 0 {
					fmt.Fprintln(out, "No data.")
					return nil
				}
				for _, total := range totals {
					fmt.Fprintf(out, "%s\t%s\n", total.Category, core.FormatDuration(total.TotalSeconds))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", core.DefaultStatsWindowDays, "Window size in days")
	return cmd
}

func (c *ctl) historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the most recent completed entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withTracker(cmd, func(ctx context.Context, t core.Tracker, user core.UserID, out io.Writer) error {
				entries, err := t.GetHistory(ctx, user, limit)
				if err != nil {
					return err
				}
				if c.output != outputText {
					return render(out, c.output, entryRecords(entries))
				}
				if len(entries) == 0 {
					fmt.Fprintln(out, "No completed entries yet.")
					return nil
				}
				for _, e := range entries {
					fmt.Fprintf(out, "%s\t%s\t%s\t%s\n",
						e.StartedAt.Format("02.01 15:04"), e.Category, e.TaskName, core.FormatDuration(*e.DurationSeconds))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", core.DefaultHistoryLimit, "Number of entries to show")
	return cmd
}

func lookupCategory(ctx context.Context, t core.Tracker, user core.UserID, name string) (int64, error) {
	want, err := core.NormalizeCategoryName(name)
	if err != nil {
		return 0, err
	}
	cats, err := t.ListCategories(ctx, user)
	if err != nil {
		return 0, err
	}
	for _, cat := range cats {
		if cat.Name == want {
			return cat.ID, nil
		}
	}
	return 0, fmt.Errorf("unknown category %q (see: timebotctl categories)", want)
}
