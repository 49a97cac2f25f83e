package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pior/mcpipe"
	"github.com/pior/mcpipe/ascii"
	"github.com/pior/mcpipe/promexporter"
	"github.com/pior/mcpipe/transport"
)

func main() {
	var (
		host        = flag.String("host", "localhost", "Memcached server host")
		port        = flag.Int("port", mcpipe.DefaultPort, "Memcached server port")
		connections = flag.Int("connections", mcpipe.DefaultConnectionCount, "Number of pipelined connections")
		useNetpoll  = flag.Bool("netpoll", false, "Use the netpoll event loop transport")
		breaker     = flag.Bool("circuit-breaker", false, "Enable a circuit breaker per connection")
		metricsAddr = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9100)")
		verbose     = flag.Bool("v", false, "Log client diagnostics to stderr")
	)
	flag.Parse()

	config := mcpipe.Config{
		Port:            *port,
		ConnectionCount: *connections,
	}
	if *verbose {
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
		config.Logger = mcpipe.NewSlogLogger(slog.New(handler))
	}
	if *useNetpoll {
		if runtime.GOOS == "windows" {
			fmt.Println("netpoll is not supported on windows")
			os.Exit(1)
		}
		config.Dialer = newNetpollDialer()
	} else {
		config.Dialer = transport.NetDialer{}
	}
	if *breaker {
		config.NewCircuitBreaker = mcpipe.NewCircuitBreakerConfig(3, time.Minute, 10*time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	client, err := mcpipe.Connect(ctx, *host, config)
	cancel()
	if err != nil {
		fmt.Printf("Failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	if *metricsAddr != "" {
		exporter := promexporter.NewExporter(client)
		go func() {
			if err := exporter.ServeHTTP(*metricsAddr); err != nil {
				fmt.Printf("Metrics server stopped: %v\n", err)
			}
		}()
	}

	fmt.Println("Memcached Pipelining CLI")
	fmt.Println("========================")
	fmt.Printf("Connected to %s with %d connections\n", client.Addr(), len(client.HandlerStats()))
	fmt.Println("Commands: get <key>..., set <key> <value> [ttl] [flags], on <conn> get|set ..., load <n>, stats, quit")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		command := strings.ToLower(parts[0])

		switch command {
		case "get":
			if len(parts) < 2 {
				fmt.Println("Usage: get <key> [<key>...]")
				continue
			}
			handleGet(client.GetAsync, parts[1:])

		case "set":
			handleSet(client.SetAsync, parts[1:])

		case "on":
			handlePinned(client, parts[1:])

		case "load":
			n := 100
			if len(parts) == 2 {
				n, err = strconv.Atoi(parts[1])
				if err != nil || n < 1 {
					fmt.Println("Usage: load <n>")
					continue
				}
			}
			handleLoad(client, n)

		case "stats":
			handleStats(client)

		case "help":
			fmt.Println("Commands:")
			fmt.Println("  get <key> [<key>...]            - Get one or more keys")
			fmt.Println("  set <key> <value> [ttl] [flags] - Store a value with optional TTL (seconds) and flags")
			fmt.Println("  on <conn> get|set ...           - Run get or set on a specific connection")
			fmt.Println("  load <n>                        - Pipeline n sets on connection 0, read the last key from connection 1")
			fmt.Println("  stats                           - Show client and connection statistics")
			fmt.Println("  quit                            - Exit the CLI")

		case "quit", "exit":
			fmt.Println("Goodbye!")
			return

		default:
			fmt.Printf("Unknown command: %s. Type 'help' for available commands.\n", command)
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Printf("Error reading input: %v\n", err)
	}
}

type getFunc func(keys ...string) (*mcpipe.Future[map[string]ascii.Item], error)

type setFunc func(key string, value []byte, opts mcpipe.SetOptions) (*mcpipe.Future[struct{}], error)

func handleGet(get getFunc, keys []string) {
	start := time.Now()
	future, err := get(keys...)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	items, err := future.Value()
	duration := time.Since(start)
	if err != nil {
		fmt.Printf("Error: %v (took %v)\n", err, duration)
		return
	}

	for _, key := range keys {
		item, ok := items[key]
		if !ok {
			fmt.Printf("  %s: <not found>\n", key)
			continue
		}
		fmt.Printf("  %s: %s (flags=%d)\n", key, item.Value, item.Flags)
	}
	fmt.Printf("Retrieved %d out of %d keys (took %v)\n", len(items), len(keys), duration)
}

func handleSet(set setFunc, args []string) {
	if len(args) < 2 || len(args) > 4 {
		fmt.Println("Usage: set <key> <value> [ttl_seconds] [flags]")
		return
	}

	opts := mcpipe.SetOptions{}
	if len(args) >= 3 {
		ttl, err := strconv.Atoi(args[2])
		if err != nil {
			fmt.Printf("Invalid TTL: %v\n", err)
			return
		}
		opts.Expiration = ascii.ExpireIn(time.Duration(ttl) * time.Second)
	}
	if len(args) == 4 {
		flags, err := strconv.ParseUint(args[3], 10, 32)
		if err != nil {
			fmt.Printf("Invalid flags: %v\n", err)
			return
		}
		opts.Flags = uint32(flags)
	}

	start := time.Now()
	future, err := set(args[0], []byte(args[1]), opts)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	_, err = future.Value()
	duration := time.Since(start)
	if err != nil {
		fmt.Printf("Error: %v (took %v)\n", err, duration)
		return
	}
	fmt.Printf("Stored successfully (took %v)\n", duration)
}

func handlePinned(client *mcpipe.Client, args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: on <conn> get|set ...")
		return
	}
	i, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Printf("Invalid connection: %v\n", err)
		return
	}
	h, err := client.Handler(i)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	switch strings.ToLower(args[1]) {
	case "get":
		if len(args) < 3 {
			fmt.Println("Usage: on <conn> get <key> [<key>...]")
			return
		}
		handleGet(h.SubmitGet, args[2:])
	case "set":
		handleSet(h.SubmitSet, args[2:])
	default:
		fmt.Printf("Unknown command: %s\n", args[1])
	}
}

// handleLoad shows that connections pipeline independently: a get on
// connection 1 does not wait behind the sets queued on connection 0.
func handleLoad(client *mcpipe.Client, n int) {
	writer, err := client.Handler(0)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	reader, err := client.Handler(1)
	if err != nil {
		fmt.Printf("Error: %v (load needs at least 2 connections)\n", err)
		return
	}

	start := time.Now()
	lastKey := fmt.Sprintf("load_%d", n)

	var last *mcpipe.Future[struct{}]
	for i := 1; i <= n; i++ {
		last, err = writer.SubmitSet(fmt.Sprintf("load_%d", i), []byte("val"), mcpipe.SetOptions{})
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
	}

	early, err := reader.SubmitGet(lastKey)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	items, err := early.Value()
	fmt.Printf("Before the sets completed: %s found=%v err=%v\n", lastKey, items[lastKey].Value != nil, err)

	if _, err := last.Value(); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	late, err := reader.SubmitGet(lastKey)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	items, err = late.Value()
	fmt.Printf("After the sets completed:  %s found=%v err=%v\n", lastKey, items[lastKey].Value != nil, err)
	fmt.Printf("Pipelined %d sets (took %v)\n", n, time.Since(start))
}

func handleStats(client *mcpipe.Client) {
	stats := client.Stats()
	fmt.Println("Client Statistics:")
	fmt.Printf("  Gets: %d (hits: %d, misses: %d)\n", stats.Gets, stats.GetHits, stats.GetMisses)
	fmt.Printf("  Sets: %d\n", stats.Sets)
	fmt.Printf("  Errors: %d\n", stats.Errors)
	fmt.Printf("  Quarantined connections: %d\n", stats.Quarantined)
	fmt.Println()

	handlers := client.HandlerStats()
	sort.Slice(handlers, func(i, j int) bool { return handlers[i].ID < handlers[j].ID })
	for _, h := range handlers {
		fmt.Printf("Connection %d (%s): %s\n", h.ID, h.Addr, h.Health)
		fmt.Printf("  Pending: %d\n", h.Pending)
		fmt.Printf("  Submitted: %d, Completed: %d, Failed: %d, Cascaded: %d\n", h.Submitted, h.Completed, h.Failed, h.Cascaded)
		fmt.Printf("  Rejected: %d, Unmatched lines: %d\n", h.Rejected, h.Unmatched)
		if !h.LastCompletion.IsZero() {
			fmt.Printf("  Last completion: %v ago\n", time.Since(h.LastCompletion).Round(time.Millisecond))
		}
		if h.CircuitBreakerState != "" {
			fmt.Printf("  Circuit breaker: %s\n", h.CircuitBreakerState)
		}
	}
}
