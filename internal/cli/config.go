package cli

import (
	"github.com/spf13/cobra"

	"iaa/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage profiles",
	Long:  `List, create, remove or print the profiles stored in <root>/conf.`,
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		names, err := profiles().List()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			cmd.Println("No profiles. Create one with: iaa config create <name>")
			return nil
		}
		for _, n := range names {
			cmd.Println(n)
		}
		return nil
	},
}

var configCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a profile with default settings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := profiles()
		if err := p.Create(args[0], false); err != nil {
			return err
		}
		cmd.Printf("Created %s\n", p.Path(args[0]))
		return nil
	},
}

var configRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Delete a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := profiles().Remove(args[0], false); err != nil {
			return err
		}
		cmd.Printf("Removed %s\n", args[0])
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Print a profile (default: the --profile one)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := profileName
		if len(args) == 1 {
			name = args[0]
		}
		p := profiles()
		cfg, err := p.Read(name, false)
		if err != nil {
			return err
		}
		b, err := config.Encode(p.Path(name), cfg)
		if err != nil {
			return err
		}
		cmd.Print(string(b))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configCreateCmd)
	configCmd.AddCommand(configRemoveCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
