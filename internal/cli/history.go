package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent runs from the run history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Stop(cmd.Context())

		st := a.Store()
		if st == nil {
			return errors.New("run history is disabled (storage.driver is none)")
		}
		runs, err := st.RecentRuns(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			cmd.Println("No runs recorded yet.")
			return nil
		}
		for _, r := range runs {
			cmd.Printf("%s  %-8s %-14s %d/%d failed  %s  %s\n",
				r.Started.Local().Format("2006-01-02 15:04:05"),
				r.Tag, r.Outcome, r.Failed(), len(r.Tasks),
				r.Finished.Sub(r.Started).Round(time.Second), r.ID)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "number of runs to show")
	rootCmd.AddCommand(historyCmd)
}
