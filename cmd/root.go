package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"gophora/discovery-service/internal/observability"
)

const app = "discovery-service"

var rootCmd = &cobra.Command{
	Use:           app,
	Short:         "discovery-service ingests, classifies and recommends job opportunities",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "sources YAML file (overrides SOURCES_FILE)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindEnv("debug", "LOG_DEBUG")
	_ = viper.BindEnv("json", "LOG_JSON")

	rootCmd.AddCommand(serveCmd, ingestCmd, cleanupCmd, recommendCmd, versionCmd)
}

func newLogger() (*zap.Logger, error) {
	return observability.NewLogger(viper.GetBool("json"), viper.GetBool("debug"))
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Println(app, version)
	},
}
