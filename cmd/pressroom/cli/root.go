package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pressroomhq/pressroom/internal/config"
)

var (
	cfgFile    string
	configErr  error  // from reading an explicit --config file
	appVersion string // set in Execute, advertised by serve and openapi
)

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	appVersion = version
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pressroom",
		Short: "Admin authentication service for the Pressroom CMS",
		Long: `Pressroom: admin accounts and token authentication for the marketing CMS.

Pressroom stores admin accounts, issues signed session tokens on login,
revokes them on logout, and guards the admin API behind a token check.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./pressroom.yaml)")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory for the SQLite store and PID file (default: ~/.pressroom)")

	cobra.OnInitialize(initConfig)

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newStopCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))
	cmd.AddCommand(newAdminCmd())
	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newOpenAPICmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

func initConfig() {
	configErr = nil
	config.SetDefaults(viper.GetViper())
	viper.SetEnvPrefix("PRESSROOM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// The config file is optional, but one named with --config must load.
	if path := config.FindConfigFile(cfgFile); path != "" {
		if err := config.ReadConfigFile(viper.GetViper(), path); err != nil && cfgFile != "" {
			configErr = err
		}
	}
}
