package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pior/mcpipe"
)

type OperationType string

const (
	CacheHit  OperationType = "cache-hit"
	CacheMiss OperationType = "cache-miss"
	Store     OperationType = "set"
	Pipelined OperationType = "pipelined"
	All       OperationType = "all"
)

type BenchmarkResult struct {
	Operation    OperationType
	Duration     time.Duration
	TotalOps     int64
	Successes    int64
	Failures     int64
	AvgLatency   time.Duration
	OpsPerSecond float64
	Correctness  bool
	ErrorMessage string
}

// operation performs one unit of work. It returns the number of commands it
// covered and whether the result was the expected one.
type operation func(worker, iteration int) (ops int64, correct bool, err error)

func main() {
	var (
		op          = flag.String("operation", "all", "Operation type: cache-hit, cache-miss, set, pipelined, or all")
		duration    = flag.Duration("duration", 5*time.Second, "Duration to run benchmarks")
		concurrency = flag.Int("concurrency", 1, "Number of concurrent workers")
		host        = flag.String("host", "localhost", "Memcached server host")
		port        = flag.Int("port", mcpipe.DefaultPort, "Memcached server port")
		connections = flag.Int("connections", mcpipe.DefaultConnectionCount, "Number of pipelined connections")
		batch       = flag.Int("batch", 100, "Commands in flight per worker for the pipelined operation")
	)
	flag.Parse()

	fmt.Printf("Memcached Pipelining Benchmark\n")
	fmt.Printf("==============================\n")
	fmt.Printf("Operation: %s\n", *op)
	fmt.Printf("Duration: %v\n", *duration)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Server: %s:%d (%d connections)\n", *host, *port, *connections)
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	client, err := mcpipe.Connect(ctx, *host, mcpipe.Config{Port: *port, ConnectionCount: *connections})
	cancel()
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	fmt.Print("Testing connection...")
	if _, err := client.Get("test-connection-key"); err != nil {
		fmt.Printf(" failed: %v\n", err)
		fmt.Printf("Make sure memcached is running on %s\n", client.Addr())
		return
	}
	fmt.Println(" success!")
	fmt.Println()

	b := &bench{client: client, duration: *duration, concurrency: *concurrency, batch: *batch}

	if OperationType(*op) == All {
		for _, op := range []OperationType{CacheHit, CacheMiss, Store, Pipelined} {
			fmt.Printf("\n--- Running %s benchmark ---\n", op)
			printResult(b.run(op))
			time.Sleep(500 * time.Millisecond)
		}
	} else {
		printResult(b.run(OperationType(*op)))
	}

	stats := client.Stats()
	fmt.Printf("Client: gets=%d sets=%d hits=%d misses=%d errors=%d quarantined=%d\n",
		stats.Gets, stats.Sets, stats.GetHits, stats.GetMisses, stats.Errors, stats.Quarantined)
}

type bench struct {
	client      *mcpipe.Client
	duration    time.Duration
	concurrency int
	batch       int
}

func (b *bench) run(op OperationType) *BenchmarkResult {
	switch op {
	case CacheHit:
		return b.runCacheHit()
	case CacheMiss:
		return b.measure(CacheMiss, func(worker, i int) (int64, bool, error) {
			items, err := b.client.Get(fmt.Sprintf("miss-%d-%d-%d", time.Now().UnixNano(), worker, i))
			return 1, len(items) == 0, err
		})
	case Store:
		return b.measure(Store, func(worker, i int) (int64, bool, error) {
			err := b.client.Set("set-"+strconv.Itoa(worker), []byte(strconv.Itoa(i)), mcpipe.SetOptions{})
			return 1, true, err
		})
	case Pipelined:
		return b.measure(Pipelined, b.pipelinedBatch)
	default:
		return &BenchmarkResult{
			Operation:    op,
			Correctness:  false,
			ErrorMessage: fmt.Sprintf("Unknown operation: %s", op),
		}
	}
}

// Cache-hit: 1 set then gets of the same key
func (b *bench) runCacheHit() *BenchmarkResult {
	key := "cache-hit-key"
	value := []byte("cache-hit-value")

	fmt.Printf("Setting up initial value for cache-hit test...\n")
	if err := b.client.Set(key, value, mcpipe.SetOptions{}); err != nil {
		return &BenchmarkResult{
			Operation:    CacheHit,
			Correctness:  false,
			ErrorMessage: fmt.Sprintf("Failed to set initial value: %v", err),
		}
	}

	return b.measure(CacheHit, func(worker, i int) (int64, bool, error) {
		items, err := b.client.Get(key)
		return 1, bytes.Equal(items[key].Value, value), err
	})
}

// pipelinedBatch submits a whole batch of sets then reads every key back,
// waiting on futures only once everything is in flight.
func (b *bench) pipelinedBatch(worker, i int) (int64, bool, error) {
	sets := make([]*mcpipe.Future[struct{}], 0, b.batch)
	for j := range b.batch {
		key := fmt.Sprintf("pipe-%d-%d", worker, j)
		f, err := b.client.SetAsync(key, []byte(strconv.Itoa(i)), mcpipe.SetOptions{})
		if err != nil {
			return int64(len(sets)), false, err
		}
		sets = append(sets, f)
	}
	for _, f := range sets {
		if _, err := f.Value(); err != nil {
			return int64(len(sets)), false, err
		}
	}

	keys := make([]string, b.batch)
	for j := range keys {
		keys[j] = fmt.Sprintf("pipe-%d-%d", worker, j)
	}
	items, err := b.client.Get(keys...)
	if err != nil {
		return int64(len(sets)) + 1, false, err
	}

	want := []byte(strconv.Itoa(i))
	for _, key := range keys {
		if !bytes.Equal(items[key].Value, want) {
			return int64(len(sets)) + 1, false, nil
		}
	}
	return int64(len(sets)) + 1, true, nil
}

func (b *bench) measure(op OperationType, fn operation) *BenchmarkResult {
	fmt.Printf("Starting %s benchmark with %d workers for %v...\n", op, b.concurrency, b.duration)

	var totalOps, successes, failures, totalLatency atomic.Int64
	var incorrect atomic.Bool
	var firstErr atomic.Value

	startTime := time.Now()
	var wg sync.WaitGroup

	for w := range b.concurrency {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			for i := 0; time.Since(startTime) < b.duration; i++ {
				opStart := time.Now()
				ops, correct, err := fn(workerID, i)
				totalLatency.Add(int64(time.Since(opStart)))
				totalOps.Add(ops)

				if err != nil {
					failures.Add(ops)
					firstErr.CompareAndSwap(nil, err.Error())
					continue
				}
				successes.Add(ops)
				if !correct {
					incorrect.Store(true)
				}
			}
		}(w)
	}

	wg.Wait()
	elapsed := time.Since(startTime)

	result := &BenchmarkResult{
		Operation:   op,
		Duration:    elapsed,
		TotalOps:    totalOps.Load(),
		Successes:   successes.Load(),
		Failures:    failures.Load(),
		Correctness: !incorrect.Load(),
	}
	if result.TotalOps > 0 {
		result.AvgLatency = time.Duration(totalLatency.Load() / result.TotalOps)
		result.OpsPerSecond = float64(result.TotalOps) / elapsed.Seconds()
	}
	if msg, ok := firstErr.Load().(string); ok {
		result.ErrorMessage = msg
	} else if incorrect.Load() {
		result.ErrorMessage = "Value mismatch"
	}
	return result
}

func printResult(result *BenchmarkResult) {
	fmt.Printf("Operation: %s\n", result.Operation)
	fmt.Printf("Duration: %v\n", result.Duration)
	fmt.Printf("Total Operations: %d\n", result.TotalOps)
	fmt.Printf("Successes: %d\n", result.Successes)
	fmt.Printf("Failures: %d\n", result.Failures)
	if result.TotalOps > 0 {
		fmt.Printf("Success Rate: %.2f%%\n", float64(result.Successes)/float64(result.TotalOps)*100)
		fmt.Printf("Ops/sec: %.2f\n", result.OpsPerSecond)
		fmt.Printf("Avg Latency: %v\n", result.AvgLatency)
	}
	fmt.Printf("Correctness: %t\n", result.Correctness)
	if result.ErrorMessage != "" {
		fmt.Printf("Error: %s\n", result.ErrorMessage)
	}
	fmt.Println()
}
