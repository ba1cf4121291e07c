package lock

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ValentinKolb/dLock/api"
	"github.com/ValentinKolb/dLock/cmd/util"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var benchCmd = &cobra.Command{
	Use:   "bench [collection]",
	Short: "Let simulated editors compete for a set of resources",
	Long: `Starts --editors simulated editors (one tab each) that repeatedly pick one of --resources
resources, acquire it, extend it and release it again. Latencies are reported per operation.
The api must run in development mode, each editor sends its own X-User-ID.`,
	Args: cobra.ExactArgs(1),
	RunE: runBench,
}

func init() {
	benchCmd.Flags().Int("editors", 10, util.WrapString("Number of concurrent editors"))
	benchCmd.Flags().Int("resources", 20, util.WrapString("Number of distinct resources"))
	benchCmd.Flags().Duration("duration", 10*time.Second, util.WrapString("How long the benchmark runs"))
	benchCmd.Flags().String("csv", "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func runBench(cmd *cobra.Command, args []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	collection := args[0]
	editors := viper.GetInt("editors")
	resources := viper.GetInt("resources")
	if editors <= 0 || resources <= 0 {
		return fmt.Errorf("editors and resources must be positive")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), viper.GetDuration("duration"))
	defer cancel()

	fmt.Printf("benchmarking %s with %d editors on %d resources for %s\n", viper.GetString("api-url"), editors, resources, viper.GetDuration("duration"))

	timers := util.NewBenchTimers()
	var wg sync.WaitGroup
	for i := 0; i < editors; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			editor := api.NewClient(viper.GetString("api-url"), api.WithIdentity(api.Identity{
				UserID:      fmt.Sprintf("bench-user-%d", i),
				DisplayName: fmt.Sprintf("Bench %d", i),
			}))
			runEditor(ctx, editor, collection, resources, timers)
		}(i)
	}
	wg.Wait()

	fmt.Println()
	timers.Print()

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		return timers.WriteCSV(csvPath, map[string]string{
			"Editors":   fmt.Sprint(editors),
			"Resources": fmt.Sprint(resources),
			"Endpoint":  viper.GetString("api-url"),
		})
	}
	return nil
}

// runEditor works on random resources until ctx is done
func runEditor(ctx context.Context, editor *api.Client, collection string, resources int, timers *util.BenchTimers) {
	tab := uuid.NewString()
	for ctx.Err() == nil {
		resource := fmt.Sprintf("bench-%d", rand.IntN(resources))

		var granted bool
		timers.Time("acquire", func() error {
			res, err := editor.Acquire(ctx, collection, resource, api.AcquireRequest{TabID: tab})
			granted = err == nil && res.Success
			return err
		})
		if !granted {
			timers.Count("conflicts")
			continue
		}

		timers.Time("extend", func() error {
			_, err := editor.Extend(ctx, collection, resource, api.ExtendRequest{TabID: tab})
			return err
		})
		// the release must happen even if the benchmark is over
		timers.Time("release", func() error {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_, err := editor.Release(releaseCtx, collection, resource, api.ReleaseRequest{TabID: tab, Reason: "bench"})
			return err
		})
	}
}
