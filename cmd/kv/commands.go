package kv

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/ValentinKolb/hcdkv/cmd/util"
	dbUtil "github.com/ValentinKolb/hcdkv/lib/db/util"
	"github.com/ValentinKolb/hcdkv/lib/kv"
	"github.com/VictoriaMetrics/metrics"
	"github.com/spf13/cobra"
)

var (
	putCmd = &cobra.Command{
		Use:   "put [key] [value]",
		Short: "Stores the value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.Put([]byte(args[0]), []byte(args[1])); err != nil {
				return err
			}
			fmt.Println("put successfully")
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			it, ok, err := client.Get([]byte(args[0]))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Printf("key=%s, found=false\n", args[0])
				return nil
			}
			defer client.Free(it)
			fmt.Printf("key=%s, found=true, size=%d, value=%s\n", it.Key, len(it.Value), it.Value)
			return nil
		},
	}
	mgetCmd = &cobra.Command{
		Use:   "mget [key]...",
		Short: "Reads several keys in one batch and prints the hits",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys := make([][]byte, len(args))
			for i, k := range args {
				keys[i] = []byte(k)
			}
			items, err := client.MultiGet(keys)
			defer client.Free(items...)
			for _, it := range items {
				fmt.Printf("key=%s, size=%d, value=%s\n", it.Key, len(it.Value), it.Value)
			}
			fmt.Printf("%d of %d keys found\n", len(items), len(keys))
			return err
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key]",
		Short: "Deletes a key and prints the size of the removed value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			size, err := client.Delete([]byte(args[0]))
			if errors.Is(err, kv.ErrNotFound) {
				fmt.Printf("key=%s, found=false\n", args[0])
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, deleted=%d bytes\n", args[0], size)
			return nil
		},
	}
	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Prints record count, data size and memory usage",
		Args:  cobra.NoArgs,
		RunE:  printStats,
	}
)

func init() {
	key := "prometheus"
	statsCmd.Flags().Bool(key, false, util.WrapString("Print the process metrics in Prometheus text format after the stats"))
	key = "json"
	statsCmd.Flags().Bool(key, false, util.WrapString("Print the per-engine info as JSON"))
}

func printStats(cmd *cobra.Command, _ []string) error {
	records, err := client.NumberOfRecords()
	if err != nil {
		return err
	}
	size, err := client.DataSize()
	if err != nil {
		return err
	}
	memory, err := client.MemoryUsage()
	if err != nil {
		return err
	}

	infos := client.Backend().Info()
	fmt.Printf("Records:      %d\n", records)
	fmt.Printf("Data Size:    %s\n", dbUtil.FormatBytes(size))
	fmt.Printf("Memory Usage: %s\n", dbUtil.FormatBytes(memory))
	fmt.Printf("Engines:      %d\n", len(infos))

	if len(infos) > 1 {
		perShard := make([]uint64, len(infos))
		for i, info := range infos {
			perShard[i] = info.Records
		}
		dist := dbUtil.NewDistributionStats(perShard)
		fmt.Printf("Distribution: quality=%.3f, min=%.0f, max=%.0f, stddev=%.2f\n",
			dist.DistributionQuality, dist.Min, dist.Max, dist.StdDeviation)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(infos); err != nil {
			return err
		}
	}

	if prom, _ := cmd.Flags().GetBool("prometheus"); prom {
		fmt.Println()
		metrics.WritePrometheus(os.Stdout, true)
	}
	return nil
}
