// Package cli is the iaa command line.
package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"iaa/internal/app"
	"iaa/internal/config"
	"iaa/internal/task/scheduler"
	logx "iaa/pkg/logx"
)

var (
	rootDir     string
	profileName string
	logLevel    string
)

// preparer replaces the adb preparer; nil in production.
var preparer scheduler.Preparer

var rootCmd = &cobra.Command{
	Use:   "iaa",
	Short: "Automate daily routines of the game on an Android emulator",
	Long: `iaa drives the game client on an emulator through adb: it starts the
game, watches ads, and plays solo and challenge lives.

Profiles live in <root>/conf. Run "iaa config create <name>" to add one.`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		if !logx.ValidLevel(logLevel) {
			return fmt.Errorf("invalid --log-level %q", logLevel)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", defaultRoot(), "application root (conf, logs, data, assets)")
	rootCmd.PersistentFlags().StringVarP(&profileName, "profile", "p", config.DefaultProfile, "profile name")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the profile's log level")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// defaultRoot is the directory of the executable.
func defaultRoot() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe)
}

func profiles() config.Profiles {
	return config.Profiles{Dir: filepath.Join(rootDir, "conf")}
}

// openApp loads the selected profile. Runs create a missing profile with
// defaults the first time.
func openApp(create bool) (*app.App, error) {
	a, err := app.New(app.Options{
		Root:          rootDir,
		Profile:       profileName,
		CreateProfile: create,
		LogLevel:      logLevel,
		Preparer:      preparer,
	})
	if errors.Is(err, config.ErrProfileNotFound) {
		return nil, fmt.Errorf("%w (create it with: iaa config create %s)", err, profileName)
	}
	return a, err
}
