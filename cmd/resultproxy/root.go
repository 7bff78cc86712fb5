package main

import (
	"fmt"
	"os"

	"github.com/iExecBlockchainComputing/iexec-result-proxy/config"
	"github.com/iExecBlockchainComputing/iexec-result-proxy/internal/buildinfo"
	"github.com/iExecBlockchainComputing/iexec-result-proxy/internal/logging"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	configFile string
	v          = viper.New()
)

var rootCmd = &cobra.Command{
	Use:     "resultproxy",
	Short:   fmt.Sprintf("iExec result proxy (version: %s, commit: %s)", buildinfo.Version, buildinfo.CommitHash),
	Version: buildinfo.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional, real environment variables win
		envErr := godotenv.Load()

		used, configErr := config.ReadFile(v, configFile)
		logging.Init(v.GetString("log.level"), v.GetString("log.format"))
		if configErr != nil {
			return fmt.Errorf("reading config: %w", configErr)
		}
		if used != "" {
			log.Debug().Msgf("using config file: %s", used)
		}
		if envErr != nil && !os.IsNotExist(envErr) {
			log.Warn().Err(envErr).Msg("failed to load .env file")
		}
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execution failed")
	}
}

func init() {
	logging.InitDefault()

	config.SetDefaults(v)
	config.BindEnv(v)

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is ./result-proxy.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	_ = v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	rootCmd.PersistentFlags().String("log-format", "console", "Log format (console, json)")
	_ = v.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
}
