package bench

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dDoc/cmd/util"
	"github.com/ValentinKolb/dDoc/lib/codec"
	"github.com/ValentinKolb/dDoc/lib/common"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/ValentinKolb/dDoc/lib/update"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	log = logger.GetLogger("cmd")

	// UpdateCmd benchmarks versioned updates against a local store
	UpdateCmd = &cobra.Command{
		Use:   "update",
		Short: "Benchmark concurrent versioned updates",
		Long: `Runs concurrent updates through the update coordinator against the
configured store and prints throughput, version conflicts and metrics.
Settings can also be given as environment variables DDOC_<FLAG>
(e.g. DDOC_STORE=bolt).`,
		Args:    cobra.NoArgs,
		PreRunE: processBenchConfig,
		RunE:    run,
	}
	benchKeyPrefix  = "__bench"
	benchNumThreads = 10
	benchKeySpread  = 100
	benchDocs       = 1000
	benchFields     = 8
	benchSkip       = make([]string, 0)

	conf        common.CoordinatorConfig
	coordinator *update.Coordinator
	docStore    store.IStore
)

func init() {
	util.SetupCoordinatorFlags(UpdateCmd)

	key := "skip"
	UpdateCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. patch,optimistic)"))
	key = "threads"
	UpdateCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "keys"
	UpdateCmd.Flags().Int(key, 100, util.WrapString("How many different documents to update. Fewer keys mean more contention"))
	key = "docs"
	UpdateCmd.Flags().Int(key, 1000, util.WrapString("Number of documents sent in the batch (update-all) test"))
	key = "fields"
	UpdateCmd.Flags().Int(key, 8, util.WrapString("Number of fields per generated document"))
	key = "csv"
	UpdateCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
	key = "snapshot"
	UpdateCmd.Flags().String(key, "", util.WrapString("Optional path to write a snapshot of the store after the run"))
	key = "metrics"
	UpdateCmd.Flags().Bool(key, false, util.WrapString("Print the coordinator metrics in Prometheus format"))
}

func processBenchConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	benchNumThreads = viper.GetInt("threads")
	benchKeySpread = max(viper.GetInt("keys"), 1)
	benchDocs = viper.GetInt("docs")
	benchFields = viper.GetInt("fields")
	benchSkip = strings.Split(viper.GetString("skip"), ",")

	conf = util.GetCoordinatorConfig()
	if err := conf.Validate(); err != nil {
		return err
	}

	var err error
	if docStore, err = util.OpenStore(conf); err != nil {
		return err
	}
	coordinator, err = update.NewCoordinator(docStore, conf)
	return err
}

func run(cmd *cobra.Command, _ []string) error {
	defer func() {
		if err := docStore.Close(); err != nil {
			log.Errorf("closing store: %v", err)
		}
	}()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	fmt.Println("Benchmark of versioned document updates")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(conf.String())
	fmt.Printf("Threads: %d, Keys: %d, Fields: %d\n", benchNumThreads, benchKeySpread, benchFields)
	fmt.Println()

	fmt.Println("starting tests...")

	results := make(map[string]testing.BenchmarkResult)
	for _, bm := range []struct {
		name string
		op   func(ctx context.Context, key string, counter int) error
	}{
		{"update", benchUpdate},
		{"patch", benchPatch},
		{"optimistic", benchOptimistic},
		{"get", benchGet},
	} {
		if shouldSkip(bm.name) {
			printResult(bm.name, testing.BenchmarkResult{})
			continue
		}
		result := testing.Benchmark(func(b *testing.B) {
			getKey := getKeys(bm.name)
			b.SetParallelism(benchNumThreads)
			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				counter := 0
				for pb.Next() {
					if err := bm.op(ctx, getKey(counter), counter); err != nil {
						log.Warningf("(%s) - %v", bm.name, err)
					}
					counter++
				}
			})
		})
		results[bm.name] = result
		printResult(bm.name, result)
	}

	if !shouldSkip("update-all") {
		result, err := benchUpdateAll(ctx)
		if err != nil {
			return err
		}
		results["update-all"] = result
		printResult("update-all", result)
	}

	stats := coordinator.Stats()
	fmt.Println()
	fmt.Printf("updates: %d, patches: %d, conflicts: %d, skipped: %d, errors: %d, highest version: %d\n",
		stats.Adds, stats.Patches, stats.Conflicts, stats.Skipped, stats.Errors, coordinator.HighestVersion())
	if n, err := docStore.Len(); err == nil {
		fmt.Printf("documents stored: %d\n", n)
	}

	if viper.GetBool("metrics") {
		fmt.Println()
		coordinator.WriteMetrics(os.Stdout)
	}

	if path := viper.GetString("snapshot"); path != "" {
		if err := writeSnapshot(path); err != nil {
			return fmt.Errorf("failed to write snapshot: %w", err)
		}
		fmt.Printf("\nSnapshot written to %s\n", path)
	}

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Benchmarks
// --------------------------------------------------------------------------

func benchUpdate(ctx context.Context, key string, counter int) error {
	_, err := coordinator.Update(ctx, newDoc(key, counter))
	return err
}

func benchPatch(ctx context.Context, key string, counter int) error {
	d := codec.NewDocument().
		Set(conf.IDField, key).
		Set("counter", int64(counter)).
		Set("patched_at", time.Now())
	_, err := coordinator.Patch(ctx, d)
	return err
}

// benchOptimistic reads the current version and writes with it, retrying
// on conflicts.
func benchOptimistic(ctx context.Context, key string, counter int) error {
	for {
		version := int64(-1)
		if _, v, err := coordinator.Get(ctx, key); err == nil {
			version = v
		} else if !errors.Is(err, update.ErrNotFound) {
			return err
		}

		d := newDoc(key, counter).Set(update.VersionField, version)
		_, err := coordinator.Update(ctx, d)
		if !errors.Is(err, update.ErrVersionConflict) {
			return err
		}
	}
}

func benchGet(ctx context.Context, key string, _ int) error {
	_, _, err := coordinator.Get(ctx, key)
	if errors.Is(err, update.ErrNotFound) {
		return nil
	}
	return err
}

// benchUpdateAll sends benchDocs documents as one batch, inserting only
// documents that do not exist yet.
func benchUpdateAll(ctx context.Context) (testing.BenchmarkResult, error) {
	getKey := getKeys("update-all")
	docs := make([]*codec.Document, benchDocs)
	for i := range docs {
		docs[i] = newDoc(getKey(i), i)
	}

	start := time.Now()
	if _, err := coordinator.UpdateAll(ctx, docs, benchNumThreads, update.SkipIfExists()); err != nil {
		return testing.BenchmarkResult{}, err
	}
	return testing.BenchmarkResult{N: len(docs), T: time.Since(start)}, nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	return slices.Contains(benchSkip, test)
}

// getKeys returns a function mapping a counter to one of the test keys
func getKeys(prefix string) func(int) string {
	keys := make([]string, benchKeySpread)
	for i := range keys {
		keys[i] = fmt.Sprintf("%s-%s-%d", benchKeyPrefix, prefix, i)
	}
	return func(i int) string {
		return keys[i%benchKeySpread]
	}
}

var docCounter atomic.Int64

func newDoc(key string, counter int) *codec.Document {
	d := codec.NewDocument().
		Set(conf.IDField, key).
		Set("seq", docCounter.Add(1)).
		Set("counter", int64(counter))
	for i := 0; i < benchFields; i++ {
		d.Set("field_"+strconv.Itoa(i), fmt.Sprintf("value %d of %s", i, key))
	}
	return d
}

func writeSnapshot(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := docStore.Save(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
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
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec",
		"Store", "Compression", "Buckets", "Threads", "Keys", "Fields",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for test, result := range results {
		nsPerOp := math.Max(float64(result.NsPerOp()), 1)
		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", 1.0/(nsPerOp/1e9)),
			string(conf.Store),
			conf.Compression,
			strconv.Itoa(conf.Buckets),
			strconv.Itoa(benchNumThreads),
			strconv.Itoa(benchKeySpread),
			strconv.Itoa(benchFields),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
