package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"iaa/internal/app"
	"iaa/internal/notifier"
	"iaa/internal/task/scheduler"
)

var errRunFailed = errors.New("run did not complete cleanly")

var runAsync bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the enabled regular tasks once",
	Long: `Runs every regular task enabled in the profile, in order.
Ctrl+C stops the current task at its next check and waits for the run to end.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runOnce(cmd, func(s *scheduler.Service) error {
			s.StartRegular(runAsync)
			return nil
		})
	},
}

var manualCmd = &cobra.Command{
	Use:   "manual <task-id>",
	Short: "Run one manual task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd, func(s *scheduler.Service) error {
			return s.RunManual(args[0], runAsync)
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{runCmd, manualCmd} {
		c.Flags().BoolVar(&runAsync, "async", false, "run on a worker goroutine instead of the command's own")
		rootCmd.AddCommand(c)
	}
}

// runOnce starts a run with start, waits for it while forwarding SIGINT and
// SIGTERM as a blocking stop, and prints the run summary.
func runOnce(cmd *cobra.Command, start func(*scheduler.Service) error) error {
	a, err := openApp(true)
	if err != nil {
		return err
	}
	if err := a.Start(context.Background()); err != nil {
		return err
	}
	defer a.Stop(context.Background())
	s := a.Scheduler()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-sigs:
			cmd.PrintErrln("stopping, waiting for the current task to notice...")
			s.Stop(true)
		case <-done:
		}
	}()

	before := len(s.Snapshot().History)
	if err := start(s); err != nil {
		return err
	}
	if err := s.Wait(context.Background()); err != nil {
		return err
	}
	return report(cmd, a, before)
}

func report(cmd *cobra.Command, a *app.App, before int) error {
	hist := a.Scheduler().Snapshot().History
	if len(hist) <= before {
		cmd.Println("Nothing ran.")
		return nil
	}
	rec := hist[len(hist)-1]
	if rec.Outcome == scheduler.OutcomeEmpty {
		cmd.Println("No task is enabled in this profile.")
		return nil
	}
	cmd.Println(notifier.RunSummary(rec).Text)
	switch {
	case rec.Outcome == scheduler.OutcomePrepareFailed || rec.Outcome == scheduler.OutcomeCrashed:
		return fmt.Errorf("%w: %s", errRunFailed, rec.Outcome)
	case rec.Failed() > 0:
		return fmt.Errorf("%w: %d of %d tasks failed", errRunFailed, rec.Failed(), len(rec.Tasks))
	}
	return nil
}
