package kv

import (
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/skipstore/cmd/util"
	"github.com/ValentinKolb/skipstore/lib/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for the configured engine",
		RunE:    run,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__test"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfSkip             = make([]string, 0)
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. put,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of goroutines per CPU to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the put-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = max(viper.GetInt("keys"), 1)
	perfNumThreads = max(viper.GetInt("threads"), 1)
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

// perfTest is a single benchmark. If seed is set, every key holds a value
// before the timer starts. op is called with the key for the iteration.
type perfTest struct {
	name string
	seed bool
	op   func(counter int, key string) error
}

func perfTests() []perfTest {
	value := []byte("test")
	largeValue := make([]byte, perfLargeValueSizeKB*1024)

	return []perfTest{
		{name: "put", op: func(_ int, key string) error {
			_, _, err := session.Map.Put(key, value)
			return err
		}},
		{name: "put-large", op: func(_ int, key string) error {
			_, _, err := session.Map.Put(key, largeValue)
			return err
		}},
		{name: "get", seed: true, op: func(_ int, key string) error {
			_, _, err := session.Map.Get(key)
			return err
		}},
		{name: "remove", seed: true, op: func(_ int, key string) error {
			_, _, err := session.Map.Remove(key)
			return err
		}},
		{name: "has", seed: true, op: func(_ int, key string) error {
			_, err := session.Map.ContainsKey(key)
			return err
		}},
		{name: "has-not", op: func(counter int, _ string) error {
			_, err := session.Map.ContainsKey(fmt.Sprintf("%s/has-not-%d", perfKeyPrefix, counter%100))
			return err
		}},
		{name: "ref", seed: true, op: func(_ int, key string) error {
			ref, _, err := session.Map.GetRecordReference(key)
			if err != nil {
				return err
			}
			_, _, err = session.Map.GetByReference(ref)
			return err
		}},
		{name: "above", seed: true, op: func(_ int, key string) error {
			_, err := session.Map.Above(key, false)
			return err
		}},
		{name: "mixed", seed: true, op: func(counter int, key string) error {
			var err error
			switch counter % 4 {
			case 0: // put
				_, _, err = session.Map.Put(key, value)
			case 1: // get
				_, _, err = session.Map.Get(key)
			case 2: // remove
				_, _, err = session.Map.Remove(key)
			case 3: // has
				_, err = session.Map.ContainsKey(key)
			}
			return err
		}},
	}
}

func run(_ *cobra.Command, _ []string) error {

	fmt.Println("Performance testing tool for skipstore")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(session.Config.String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("starting tests...")

	// Create results map
	results := make(map[string]testing.BenchmarkResult)

	for _, test := range perfTests() {
		test := test
		result := testing.Benchmark(func(b *testing.B) {
			if shouldSkip(test.name) {
				return
			}

			// prepare keys
			getKey, iter := getKeys(test.name)

			if test.seed {
				iter(func(k string) {
					if _, _, err := session.Map.Put(k, []byte("test")); err != nil {
						log.Printf("(%s) - error setting key: %v\n", test.name, err)
					}
				})
			}

			// cleanup
			b.Cleanup(func() {
				iter(func(k string) {
					if _, _, err := session.Map.Remove(k); err != nil {
						log.Printf("(%s) - error deleting key: %v\n", test.name, err)
					}
				})
			})

			b.SetParallelism(perfNumThreads)

			b.ResetTimer()

			b.RunParallel(func(pb *testing.PB) {
				counter := 0
				for pb.Next() {
					if err := test.op(counter, getKey(counter)); err != nil {
						log.Printf("(%s) - error: %v\n", test.name, err)
					}
					counter++
				}
			})
		})

		results[test.name] = result
		printResult(test.name, result)
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, session.Config); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	return slices.Contains(perfSkip, test)
}

// creates an array of test keys and functions to work with them
func getKeys(prefix string) (func(int) string, func(func(string))) {
	keys := make([]string, perfKeySpread)
	for i := 0; i < perfKeySpread; i++ {
		keys[i] = fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i)
	}

	// Function to get a key by index (with wraparound)
	getKey := func(i int) string {
		return keys[i%perfKeySpread]
	}

	// Function to iterate over all keys and apply a function to each
	iterateKeys := func(fn func(string)) {
		for _, key := range keys {
			fn(key)
		}
	}

	return getKey, iterateKeys
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, config *common.EngineConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Store", "Engine", "LoadFactor", "MaxLevel", "CacheSize", "Reclaim", "Lock",
		"Threads", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for test, result := range results {
		var nsPerOp, opsPerSec float64
		skipped := result.NsPerOp() == 0
		if !skipped {
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			strconv.FormatBool(skipped),
			string(config.Store),
			string(config.Engine),
			strconv.Itoa(config.LoadFactor),
			strconv.Itoa(config.MaxLevel),
			strconv.Itoa(config.CacheSize),
			config.Reclaim,
			config.Lock,
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
