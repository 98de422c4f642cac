// Package cli implements the rmsctl command-line administrative tool:
// a thin cobra/viper front end over the rms package for inspecting and
// operating on a Catalog Store without writing Go code. It is a
// convenience layer only -- every command it exposes is a direct call
// into rms.System; the tool holds no state of its own beyond one
// connection per invocation.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"rmscore.evalgo.org/common"
	"rmscore.evalgo.org/version"
)

var cfgFile string

// Execute runs the rmsctl root command, returning the exit code. Every
// invocation is tagged with a fresh request id so multiple concurrent
// runs against the same Catalog can be told apart in shared logs.
func Execute() int {
	requestID := uuid.NewString()
	log := common.Logger.WithField("request_id", requestID)
	log.Debug("rmsctl: invocation started")

	if err := newRootCmd().Execute(); err != nil {
		log.WithError(err).Error("rmsctl: command failed")
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rmsctl",
		Short: "Administrative CLI for the RMS provenance kernel",
		Long: `rmsctl inspects and operates on an RMS Catalog Store directly:
listing registered pipes, fetching entity records, walking lineage, and
marking entities deprecated or deleted. It connects with the same
configuration (Postgres DSN, Content Store root, optional Redis writer
lock) any kernel process would use.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.rmsctl.yaml)")
	root.PersistentFlags().String("catalog-dsn", "postgres://localhost:5432/rms?sslmode=disable", "Postgres connection string for the Catalog Store")
	root.PersistentFlags().String("content-dir", "./rms-content", "local directory for the Content Store")
	root.PersistentFlags().String("redis-url", "", "Redis URL for the cross-process writer lock (optional)")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	_ = viper.BindPFlag("catalog_dsn", root.PersistentFlags().Lookup("catalog-dsn"))
	_ = viper.BindPFlag("content_dir", root.PersistentFlags().Lookup("content-dir"))
	_ = viper.BindPFlag("redis_url", root.PersistentFlags().Lookup("redis-url"))
	_ = viper.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))

	cobra.OnInitialize(initConfig)

	root.AddCommand(
		newPipesCmd(),
		newTasksCmd(),
		newGetCmd(),
		newLineageCmd(),
		newDeprecateCmd(),
		newDeleteCmd(),
		newVersionCmd(),
	)
	return root
}

func initConfig() {
	viper.SetEnvPrefix("RMSCTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigName(".rmsctl")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			fmt.Fprintf(os.Stderr, "rmsctl: reading config: %v\n", err)
		}
	}

	if lvl, err := parseLogLevel(viper.GetString("log_level")); err == nil {
		common.Logger.SetLevel(lvl)
	}
}
