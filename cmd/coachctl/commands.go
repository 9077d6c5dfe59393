package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ad/go-python-coach/internal/config"
	"github.com/ad/go-python-coach/internal/curriculum"
	"github.com/ad/go-python-coach/internal/fsm"
	"github.com/ad/go-python-coach/internal/models"
	"github.com/ad/go-python-coach/internal/services"
	"github.com/ad/go-python-coach/internal/storage"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type storeOpener func(ctx context.Context, configPath string, totalStages int) (storage.Store, error)

func openStore(ctx context.Context, configPath string, totalStages int) (storage.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateStore(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return storage.Open(ctx, cfg, totalStages)
}

func newRootCmd(open storeOpener) *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "coachctl",
		Short: "Inspect and reset learner progress of the Python coach bot",
		Long: `coachctl reads the same configuration as the bot (environment, .env and an
optional config file) and works directly against its progress store.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a config file")

	withStore := func(cmd *cobra.Command, fn func(context.Context, storage.Store, *curriculum.Curriculum) error) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		catalog := curriculum.Default()
		store, err := open(ctx, configPath, catalog.Len())
		if err != nil {
			return err
		}
		defer store.Close()
		return fn(ctx, store, catalog)
	}

	rootCmd.AddCommand(usersCmd(withStore))
	rootCmd.AddCommand(showCmd(withStore))
	rootCmd.AddCommand(resetCmd(withStore))
	return rootCmd
}

type storeRunner func(cmd *cobra.Command, fn func(context.Context, storage.Store, *curriculum.Curriculum) error) error

func usersCmd(run storeRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List learners and their current stage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, store storage.Store, catalog *curriculum.Curriculum) error {
				ids, err := store.UserIDs(ctx)
				if err != nil {
					return err
				}
				return printUsers(ctx, cmd.OutOrStdout(), store, catalog.Len(), ids)
			})
		},
	}
}

func showCmd(run storeRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "show <userID>",
		Short: "Show one learner's progress record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			return run(cmd, func(ctx context.Context, store storage.Store, catalog *curriculum.Curriculum) error {
				record, err := store.Load(ctx, userID)
				if errors.Is(err, models.ErrProgressNotFound) {
					return fmt.Errorf("no progress stored for user %d", userID)
				}
				if err != nil {
					return err
				}
				printRecord(cmd.OutOrStdout(), record, catalog)
				return nil
			})
		},
	}
}

func resetCmd(run storeRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <userID>",
		Short: "Delete a learner's progress so they start again from stage 1",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			return run(cmd, func(ctx context.Context, store storage.Store, _ *curriculum.Curriculum) error {
				if err := store.Delete(ctx, userID); err != nil {
					return err
				}
				color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "✓ progress of user %d reset\n", userID)
				return nil
			})
		},
	}
}

func parseUserID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid user id %q", s)
	}
	return id, nil
}

func printUsers(ctx context.Context, out io.Writer, store storage.Store, total int, ids []int64) error {
	if len(ids) == 0 {
		fmt.Fprintln(out, "no learners yet")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "USER\tSTAGE\tSTATE\tSTREAK\tUPDATED")
	for _, id := range ids {
		record, err := store.Load(ctx, id)
		if err != nil {
			fmt.Fprintf(w, "%d\t-\t%s\t-\t-\n", id, color.RedString("unreadable"))
			continue
		}
		fmt.Fprintf(w, "%d\t%d/%d\t%s\t%d\t%s\n",
			id, record.Stage, total, colorState(record.State(total)),
			record.NonTechnicalStreak, formatTime(record.UpdatedAt))
	}
	return w.Flush()
}

func printRecord(out io.Writer, record *models.ProgressRecord, catalog *curriculum.Curriculum) {
	total := catalog.Len()
	bold := color.New(color.Bold)

	bold.Fprintf(out, "User %d\n", record.UserID)
	fmt.Fprintf(out, "  Stage:   %d/%d %s\n", record.Stage, total, catalog.StageName(record.Stage))
	fmt.Fprintf(out, "  State:   %s\n", colorState(record.State(total)))
	fmt.Fprintf(out, "  Streak:  %d\n", record.NonTechnicalStreak)
	fmt.Fprintf(out, "  Updated: %s\n", formatTime(record.UpdatedAt))
	fmt.Fprintf(out, "  %s\n", services.ProgressBar(float64(record.Stage)*100/float64(total)))

	if len(record.SubmittedLinks) == 0 {
		return
	}
	fmt.Fprintln(out, "  Links:")
	for i, link := range record.SubmittedLinks {
		fmt.Fprintf(out, "    %2d. %s\n", i+1, link)
	}
}

func colorState(state string) string {
	switch state {
	case fsm.StateDone:
		return color.GreenString(state)
	case fsm.StateLinkPending:
		return color.YellowString(state)
	default:
		return color.CyanString(state)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
