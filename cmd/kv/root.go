package kv

import (
	"github.com/ValentinKolb/hcdkv/cmd/util"
	"github.com/ValentinKolb/hcdkv/lib/kv"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
)

var (
	log = logger.GetLogger("cmd")

	client *kv.Client

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:   "kv",
		Short: "Perform operations on a local store",
		Long: `Open the configured store, run one operation and close it again.
Every flag can also be set as environment variable HCDKV_<FLAG> (e.g. HCDKV_PATHS=/mnt/a,/mnt/b).`,
		PersistentPreRunE:  openClient,
		PersistentPostRunE: closeClient,
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	util.SetupStoreFlags(KeyValueCommands)

	KeyValueCommands.AddCommand(putCmd)
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(mgetCmd)
	KeyValueCommands.AddCommand(delCmd)
	KeyValueCommands.AddCommand(statsCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// openClient opens the store described by flags and environment
func openClient(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	cfg, err := util.GetStoreConfig()
	if err != nil {
		return err
	}
	log.Debugf("opening store\n%s", cfg)

	client, err = kv.Open(cfg, nil)
	return err
}

func closeClient(_ *cobra.Command, _ []string) error {
	if client == nil {
		return nil
	}
	err := client.Close()
	client = nil
	return err
}
