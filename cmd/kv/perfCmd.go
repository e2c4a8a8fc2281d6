package kv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/hcdkv/cmd/util"
	"github.com/ValentinKolb/hcdkv/lib/kv"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for the configured store",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__perf"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfBatchSize        = 16
	perfSkip             = make([]string, 0)

	// latencies and errors of the current run, one timer per benchmark
	perfRegistry = gometrics.NewRegistry()
)

// perfBenchmark is one named workload. prepare runs once before the timer starts,
// op runs once per iteration.
type perfBenchmark struct {
	name    string
	prepare func() error
	op      func(i int) error
}

// perfResult combines the throughput measured by testing.Benchmark with the
// latency distribution collected by the timer.
type perfResult struct {
	bench   testing.BenchmarkResult
	latency gometrics.Timer
	errors  int64
}

func init() {
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. put,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of goroutines per CPU to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the put-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "batch-size"
	perfTestCmd.Flags().Int(key, 16, util.WrapString("Number of keys per request of the mget test"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = viper.GetInt("keys")
	perfNumThreads = viper.GetInt("threads")
	perfBatchSize = viper.GetInt("batch-size")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	if perfKeySpread <= 0 || perfNumThreads <= 0 || perfBatchSize <= 0 || perfLargeValueSizeKB < 0 {
		return fmt.Errorf("keys, threads and batch-size must be positive")
	}
	return nil
}

func runPerf(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for hcdkv stores")

	cfg, err := util.GetStoreConfig()
	if err != nil {
		return err
	}
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(cfg.String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("starting tests...")

	results := make(map[string]perfResult)
	var order []string
	for _, bench := range perfBenchmarks() {
		if shouldSkip(bench.name) {
			printResult(bench.name, perfResult{})
			continue
		}
		res, err := runBenchmark(bench)
		if err != nil {
			return fmt.Errorf("(%s) %w", bench.name, err)
		}
		results[bench.name] = res
		order = append(order, bench.name)
		printResult(bench.name, res)
	}

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, order, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

func perfBenchmarks() []perfBenchmark {
	value := []byte("test")
	largeValue := make([]byte, perfLargeValueSizeKB*1024)

	keysFor := func(prefix string) []string {
		keys := make([]string, perfKeySpread)
		for i := range keys {
			keys[i] = fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i)
		}
		return keys
	}
	fill := func(keys []string) func() error {
		return func() error {
			for _, k := range keys {
				if err := client.Put([]byte(k), value); err != nil {
					return err
				}
			}
			return nil
		}
	}

	putKeys := keysFor("put")
	putLargeKeys := keysFor("put-large")
	getKeys := keysFor("get")
	mgetKeys := keysFor("mget")
	delKeys := keysFor("delete")
	mixedKeys := keysFor("mixed")

	return []perfBenchmark{
		{
			name: "put",
			op: func(i int) error {
				return client.Put([]byte(putKeys[i%perfKeySpread]), value)
			},
		},
		{
			name: "put-large",
			op: func(i int) error {
				return client.Put([]byte(putLargeKeys[i%perfKeySpread]), largeValue)
			},
		},
		{
			name:    "get",
			prepare: fill(getKeys),
			op: func(i int) error {
				it, _, err := client.Get([]byte(getKeys[i%perfKeySpread]))
				if it != nil {
					client.Free(it)
				}
				return err
			},
		},
		{
			name: "get-miss",
			op: func(i int) error {
				_, _, err := client.Get([]byte(fmt.Sprintf("%s/miss-%d", perfKeyPrefix, i%perfKeySpread)))
				return err
			},
		},
		{
			name:    "mget",
			prepare: fill(mgetKeys),
			op: func(i int) error {
				keys := make([][]byte, perfBatchSize)
				for j := range keys {
					keys[j] = []byte(mgetKeys[(i+j)%perfKeySpread])
				}
				items, err := client.MultiGet(keys)
				client.Free(items...)
				return err
			},
		},
		{
			name:    "delete",
			prepare: fill(delKeys),
			op: func(i int) error {
				_, err := client.Delete([]byte(delKeys[i%perfKeySpread]))
				if isNotFound(err) {
					return nil
				}
				return err
			},
		},
		{
			name:    "mixed",
			prepare: fill(mixedKeys),
			op: func(i int) error {
				key := []byte(mixedKeys[i%perfKeySpread])
				switch i % 4 {
				case 0:
					return client.Put(key, value)
				case 1:
					it, _, err := client.Get(key)
					if it != nil {
						client.Free(it)
					}
					return err
				case 2:
					_, err := client.Delete(key)
					if isNotFound(err) {
						return nil
					}
					return err
				default:
					_, err := client.NumberOfRecords()
					return err
				}
			},
		},
	}
}

// runBenchmark runs one workload with testing.Benchmark and removes its keys afterwards
func runBenchmark(bench perfBenchmark) (perfResult, error) {
	if bench.prepare != nil {
		if err := bench.prepare(); err != nil {
			return perfResult{}, fmt.Errorf("prepare: %w", err)
		}
	}

	latency := gometrics.GetOrRegisterTimer(bench.name+".latency", perfRegistry)
	errs := gometrics.GetOrRegisterCounter(bench.name+".errors", perfRegistry)

	result := testing.Benchmark(func(b *testing.B) {
		b.SetParallelism(perfNumThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				start := time.Now()
				if err := bench.op(counter); err != nil {
					errs.Inc(1)
					log.Debugf("(%s) - error: %v", bench.name, err)
				}
				latency.UpdateSince(start)
				counter++
			}
		})
	})

	cleanup(bench.name)
	return perfResult{bench: result, latency: latency.Snapshot(), errors: errs.Count()}, nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	for _, skip := range perfSkip {
		if test == strings.TrimSpace(skip) {
			return true
		}
	}
	return false
}

func isNotFound(err error) bool {
	return errors.Is(err, kv.ErrNotFound)
}

// cleanup deletes all keys a benchmark may have written
func cleanup(name string) {
	for i := 0; i < perfKeySpread; i++ {
		key := fmt.Sprintf("%s-%s-%d", perfKeyPrefix, name, i)
		if _, err := client.Delete([]byte(key)); err != nil && !isNotFound(err) {
			log.Warningf("(%s) - error deleting key %s: %v", name, key, err)
		}
	}
}

func opsPerSec(result testing.BenchmarkResult) (nsPerOp, ops float64) {
	nsPerOp = math.Max(float64(result.NsPerOp()), 1)
	return nsPerOp, 1.0 / (nsPerOp / 1e9)
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, res perfResult) {
	if res.bench.N == 0 {
		fmt.Printf("%-12sskipped\n", test)
		return
	}

	nsPerOp, ops := opsPerSec(res.bench)
	p := res.latency.Percentiles([]float64{0.5, 0.99})
	fmt.Printf("%-12s%8.0fns/op (%s/op)\t%8.0f ops/sec\tp50=%s p99=%s errors=%d\n",
		test, nsPerOp, time.Duration(nsPerOp), ops, time.Duration(p[0]), time.Duration(p[1]), res.errors)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, order []string, results map[string]perfResult) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "P50Ns", "P99Ns", "Errors",
		"Variant", "Engine", "Paths", "Threads", "LargeValueSizeKB", "Keys Count", "BatchSize",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for _, test := range order {
		res := results[test]
		nsPerOp, ops := opsPerSec(res.bench)
		p := res.latency.Percentiles([]float64{0.5, 0.99})

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", ops),
			fmt.Sprintf("%.0f", p[0]),
			fmt.Sprintf("%.0f", p[1]),
			strconv.FormatInt(res.errors, 10),
			viper.GetString("variant"),
			viper.GetString("engine"),
			viper.GetString("paths"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
			strconv.Itoa(perfBatchSize),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
