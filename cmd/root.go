package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/hcdkv/cmd/kv"
	"github.com/ValentinKolb/hcdkv/cmd/util"
	"github.com/ValentinKolb/hcdkv/lib/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	Version = "0.3.0"
)

var (
	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "hcdkv",
		Short: "batched key-value storage for cache servers",
		Long: fmt.Sprintf(`hcdkv (v%s)

A batched key-value storage layer for cache servers. Commands are executed
against a single engine, a set of hash-placed shards or shards behind an
in-memory data cache, on top of pebble, leveldb or the in-memory maple engine.`, Version),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := viper.BindPFlag("log-level", cmd.Root().PersistentFlags().Lookup("log-level")); err != nil {
				return err
			}
			return common.InitLoggers(viper.GetString("log-level"))
		},
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of hcdkv",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("hcdkv v%s\n", Version)
		},
	}
)

func init() {
	// the kv group opens its store in its own pre-run, logging has to be set up first
	cobra.EnableTraverseRunHooks = true

	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(versionCmd)

	key := "log-level"
	RootCmd.PersistentFlags().String(key, "warn", util.WrapString("Level at which logs are written to stderr (debug, info, warn, error)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
