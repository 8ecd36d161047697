package cli

import (
	"github.com/spf13/cobra"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List the registered tasks and whether the profile enables them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp(true)
		if err != nil {
			return err
		}
		defer a.Stop(cmd.Context())

		en := a.Enablement()
		cmd.Println("Regular tasks (run in this order):")
		for _, t := range a.Registry().Regular() {
			state := "off"
			if en.IsEnabled(string(t.ID)) {
				state = "on"
			}
			cmd.Printf("  %-16s %-16s [%s]\n", t.ID, t.Name, state)
		}
		cmd.Println("Manual tasks:")
		for _, t := range a.Registry().ManualTasks() {
			cmd.Printf("  %-16s %s\n", t.ID, t.Name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tasksCmd)
}
