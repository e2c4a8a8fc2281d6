package util

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/hcdkv/lib/db"
	dbUtil "github.com/ValentinKolb/hcdkv/lib/db/util"
	"github.com/ValentinKolb/hcdkv/lib/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables (e.g. HCDKV_PATHS)
	EnvPrefix = "hcdkv"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		if lineWidth > 0 && lineWidth+1+len(word) > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}
		currentLine.WriteString(word)
		lineWidth += len(word)
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}
	return strings.Join(wrappedLines, "\n")
}

// SetupStoreFlags adds the flags that describe a local store to a command
func SetupStoreFlags(cmd *cobra.Command) {
	key := "variant"
	cmd.PersistentFlags().String(key, string(store.VariantSingle), WrapString("Backend variant (single, sharded, caching)"))

	key = "engine"
	cmd.PersistentFlags().String(key, string(db.ImplPebble), WrapString("Storage engine of every shard (pebble, leveldb, maple)"))

	key = "paths"
	cmd.PersistentFlags().String(key, "data", WrapString("Comma-separated list of engine directories. The order determines key placement and must not change between runs. May be empty for the maple engine (in-memory)"))

	key = "storage-sizes"
	cmd.PersistentFlags().String(key, "", WrapString("(caching) Comma-separated capacity per path, e.g. 10G,10G. 0 means unlimited"))

	key = "shards"
	cmd.PersistentFlags().Int(key, 0, WrapString("(sharded) Number of engines, 0 means one per path"))

	key = "block-cache"
	cmd.PersistentFlags().String(key, "8M", WrapString("(single, sharded) Block cache of every engine"))

	key = "index-memory"
	cmd.PersistentFlags().String(key, "64M", WrapString("(caching) Memory split into the block caches of all engines"))

	key = "data-cache"
	cmd.PersistentFlags().String(key, "64M", WrapString("(caching) Memory for cached values, 0 disables the data cache"))

	key = "sync"
	cmd.PersistentFlags().Bool(key, false, WrapString("Sync every write to disk"))

	key = "disable-wal"
	cmd.PersistentFlags().Bool(key, false, WrapString("Disable the write-ahead log. Unflushed writes are lost on a crash"))

	key = "compression"
	cmd.PersistentFlags().Bool(key, false, WrapString("Enable block compression"))

	key = "parallelism"
	cmd.PersistentFlags().Int(key, 0, WrapString("Goroutines used to execute one batch, 0 means one per CPU"))
}

// InitConfig loads .env files and makes viper read HCDKV_* environment variables
func InitConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.PersistentFlags()); err != nil {
		return err
	}
	return viper.BindPFlags(cmd.Flags())
}

// GetStoreConfig builds a store.Config from the bound flags and environment
func GetStoreConfig() (store.Config, error) {
	cfg := store.Config{
		Variant:     store.Variant(viper.GetString("variant")),
		Engine:      db.Implementation(viper.GetString("engine")),
		Paths:       dbUtil.SplitPathList(viper.GetString("paths")),
		NumShards:   viper.GetInt("shards"),
		Sync:        viper.GetBool("sync"),
		DisableWAL:  viper.GetBool("disable-wal"),
		Compression: viper.GetBool("compression"),
		Parallelism: viper.GetInt("parallelism"),
	}

	var err error
	if cfg.BlockCacheBytes, err = getSize("block-cache"); err != nil {
		return cfg, err
	}
	if cfg.IndexMemoryBudget, err = getSize("index-memory"); err != nil {
		return cfg, err
	}
	if cfg.DataCacheMemoryBudget, err = getSize("data-cache"); err != nil {
		return cfg, err
	}

	if sizes := viper.GetString("storage-sizes"); sizes != "" {
		for _, s := range strings.Split(sizes, ",") {
			n, err := dbUtil.ParseSize(s)
			if err != nil {
				return cfg, fmt.Errorf("storage-sizes: %w", err)
			}
			cfg.StorageSizes = append(cfg.StorageSizes, n)
		}
	}

	return cfg, cfg.Validate()
}

func getSize(key string) (uint64, error) {
	raw := viper.GetString(key)
	if raw == "" {
		return 0, nil
	}
	n, err := dbUtil.ParseSize(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
