package main

import (
	"github.com/dkeye/classroom/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	v       = config.New()
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:          "classroom",
	Short:        "Classroom video meetings from the terminal",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			v.SetConfigFile(cfgFile)
		}
		loaded, err := config.Read(v)
		if err != nil {
			return err
		}
		cfg = loaded
		level := cfg.Client.LogLevel
		if cmd.Name() == serveCmd.Name() {
			level = cfg.Server.LogLevel
		}
		if err := config.ApplyLogLevel(level); err != nil {
			log.Warn().Err(err).Str("module", "cli").Msg("bad log level")
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is config/config.$CONFIG_ENV.yaml)")
	rootCmd.PersistentFlags().String("base-url", "", "signaling backend base URL")
	rootCmd.PersistentFlags().String("messaging-url", "", "messaging socket URL")
	rootCmd.PersistentFlags().String("events-url", "", "realtime events socket URL")
	rootCmd.PersistentFlags().String("log-level", "", "client log level")

	_ = v.BindPFlag("client.base_url", rootCmd.PersistentFlags().Lookup("base-url"))
	_ = v.BindPFlag("client.messaging_url", rootCmd.PersistentFlags().Lookup("messaging-url"))
	_ = v.BindPFlag("client.events_url", rootCmd.PersistentFlags().Lookup("events-url"))
	_ = v.BindPFlag("client.log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(joinCmd, serveCmd)
}
