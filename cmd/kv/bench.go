package kv

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/ValentinKolb/dLock/cmd/util"
	"github.com/ValentinKolb/dLock/lib/db"
	"github.com/ValentinKolb/dLock/lib/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	benchCmd = &cobra.Command{
		Use:     "bench",
		Short:   "Performance testing tool for dlock store servers",
		RunE:    runBench,
		PreRunE: processBenchConfig,
	}
	benchKeyPrefix    = "__bench"
	benchThreads      = 10
	benchKeySpread    = 100
	benchOpsPerThread = 1000
	benchSkip         = make([]string, 0)
)

func init() {
	key := "skip"
	benchCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. put,get)"))
	key = "threads"
	benchCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "ops"
	benchCmd.Flags().Int(key, 1000, util.WrapString("Operations per thread and benchmark"))
	key = "keys"
	benchCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "csv"
	benchCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processBenchConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	benchKeySpread = viper.GetInt("keys")
	benchThreads = viper.GetInt("threads")
	benchOpsPerThread = viper.GetInt("ops")
	benchSkip = strings.Split(viper.GetString("skip"), ",")
	if benchKeySpread <= 0 || benchThreads <= 0 || benchOpsPerThread <= 0 {
		return fmt.Errorf("keys, threads and ops must be positive")
	}
	return nil
}

func runBench(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	fmt.Println("Performance testing tool for dlock store servers")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d, Ops per thread: %d, Keys: %d\n", benchThreads, benchOpsPerThread, benchKeySpread)
	fmt.Println()
	fmt.Println("starting tests...")

	timers := util.NewBenchTimers()

	// unconditional writes
	runParallel("put", func(thread, i int, key string) {
		timers.Time("put", func() error {
			_, err := rpcStore.Put(ctx, key, []byte("bench"))
			return err
		})
	})

	// reads of existing keys
	runParallel("get", func(thread, i int, key string) {
		timers.Time("get", func() error {
			_, _, err := rpcStore.Get(ctx, key)
			return err
		})
	})

	// read-modify-write cycles as the lock service does them, lost races are counted
	runParallel("cas", func(thread, i int, key string) {
		timers.Time("cas", func() error {
			doc, ok, err := rpcStore.Get(ctx, key)
			if err != nil {
				return err
			}
			expected := db.VersionAbsent
			if ok {
				expected = doc.Version
			}
			_, err = rpcStore.PutIf(ctx, key, []byte(strconv.Itoa(i)), expected)
			if store.IsConditionFailed(err) {
				timers.Count("cas-lost")
				return nil
			}
			return err
		})
	})

	runParallel("scan", func(thread, i int, key string) {
		timers.Time("scan", func() error {
			_, err := rpcStore.Scan(ctx, benchKeyPrefix+"/", 20)
			return err
		})
	})

	runParallel("delete", func(thread, i int, key string) {
		timers.Time("delete", func() error {
			return rpcStore.Delete(ctx, key)
		})
	})

	cleanup(ctx)

	fmt.Println()
	timers.Print()

	if csvPath := viper.GetString("csv"); csvPath != "" {
		config := util.GetClientConfig()
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := timers.WriteCSV(csvPath, map[string]string{
			"Endpoints":              strings.Join(config.Transport.Endpoints, ";"),
			"TimeoutSec":             strconv.Itoa(config.TimeoutSecond),
			"RetryCount":             strconv.Itoa(config.Transport.RetryCount),
			"ConnectionsPerEndpoint": strconv.Itoa(config.Transport.ConnectionsPerEndpoint),
			"ShardID":                strconv.FormatUint(util.GetShardID(), 10),
			"Serializer":             viper.GetString("serializer"),
			"Transport":              viper.GetString("transport"),
			"Threads":                strconv.Itoa(benchThreads),
			"Keys":                   strconv.Itoa(benchKeySpread),
		}); err != nil {
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
	for _, skip := range benchSkip {
		if test == strings.TrimSpace(skip) {
			return true
		}
	}
	return false
}

// benchKey returns the i-th key (with wraparound)
func benchKey(i int) string {
	return fmt.Sprintf("%s/%d", benchKeyPrefix, i%benchKeySpread)
}

// runParallel runs op benchOpsPerThread times on each of benchThreads goroutines
func runParallel(test string, op func(thread, i int, key string)) {
	if shouldSkip(test) {
		fmt.Printf("%-20sskipped\n", test)
		return
	}
	var wg sync.WaitGroup
	for thread := 0; thread < benchThreads; thread++ {
		wg.Add(1)
		go func(thread int) {
			defer wg.Done()
			for i := 0; i < benchOpsPerThread; i++ {
				op(thread, i, benchKey(thread*benchOpsPerThread+i))
			}
		}(thread)
	}
	wg.Wait()
	fmt.Printf("%-20sdone\n", test)
}

// cleanup removes all benchmark keys
func cleanup(ctx context.Context) {
	for i := 0; i < benchKeySpread; i++ {
		if err := rpcStore.Delete(ctx, benchKey(i)); err != nil {
			fmt.Printf("(cleanup) - error deleting key: %v\n", err)
		}
	}
}
