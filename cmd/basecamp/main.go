package main

import (
	"errors"
	"os"

	"github.com/MarcoPoloResearchLab/basecamp/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "basecamp",
		Short:        "Outdoor adventure journal client and development API",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(
		newFeedCommand(),
		newAddCommand(),
		newEditCommand(),
		newDeleteCommand(),
		newLikeCommand(),
		newCommentCommand(),
		newShareCommand(),
		newUploadCommand(),
		newServeCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file exported before configuration is read")
	cmd.PersistentFlags().String("api-base-url", defaults.GetString("api.base_url"), "Base URL of the entity API")
	cmd.PersistentFlags().String("collection", defaults.GetString("api.collection"), "Entity collection (adventures or catches)")
	cmd.PersistentFlags().String("user-id", "", "Identity of the session user")
	cmd.PersistentFlags().String("username", "", "Display name of the session user")
	cmd.PersistentFlags().String("avatar-url", "", "Profile picture URL of the session user")
	cmd.PersistentFlags().String("share-base-url", "", "Base URL for share links (defaults to the API base URL)")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-encoding", defaults.GetString("log.encoding"), "Log encoding (console or json)")

	bindFlag(cmd, "api.base_url", "api-base-url")
	bindFlag(cmd, "api.collection", "collection")
	bindFlag(cmd, "user.id", "user-id")
	bindFlag(cmd, "user.username", "username")
	bindFlag(cmd, "user.avatar_url", "avatar-url")
	bindFlag(cmd, "share.base_url", "share-base-url")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.encoding", "log-encoding")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("basecamp")
		viper.AddConfigPath(".")
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}
