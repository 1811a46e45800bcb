// Package main is the Mihari CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/mihari/internal/config"
	"github.com/hyperjump/mihari/internal/extract"
	"github.com/hyperjump/mihari/internal/metrics"
	"github.com/hyperjump/mihari/internal/models"
	"github.com/hyperjump/mihari/internal/pipeline"
	"github.com/hyperjump/mihari/internal/registry"
	"github.com/hyperjump/mihari/internal/scanner"
	"github.com/hyperjump/mihari/internal/server"
	"github.com/hyperjump/mihari/internal/store"
	"github.com/hyperjump/mihari/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/mihari/config.yaml"

const defaultServerURL = "http://localhost:8765"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists it
// is used, so that "mihari server" from the project dir uses the project's
// config (including debug).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "query":
		runQuery()
	case "document":
		runDocument()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("mihari version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (document submissions, match evaluation, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	st, err := store.OpenBolt(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Fatal("Failed to open match store", zap.Error(err))
	}
	defer st.Close()

	// Rehydrate the query registry from durable storage so matching
	// resumes where the previous run left off.
	reg := registry.New()
	queries, err := st.Queries(context.Background())
	if err != nil {
		logger.Fatal("Failed to load persisted queries", zap.Error(err))
	}
	for _, q := range queries {
		reg.Insert(q)
	}
	logger.Info("queries rehydrated", zap.Int("count", reg.Len()))

	m := metrics.New()
	m.RegisteredQueries.Set(float64(reg.Len()))

	docs := make(chan *models.TextSource, cfg.Ingest.QueueSize)
	pipe := pipeline.New(reg, st, docs,
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(m),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var scan *scanner.Scanner
	if len(cfg.Watch.Directories) > 0 {
		submit := func(ctx context.Context, doc *models.TextSource) error {
			select {
			case docs <- doc:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		scanOpts := []scanner.Option{}
		if debugMode {
			scanOpts = append(scanOpts, scanner.WithLogger(logger))
		}
		scan = scanner.New(
			cfg.Watch.Directories,
			cfg.Watch.Extensions,
			cfg.Watch.RecursiveOrDefault(),
			submit,
			scanOpts...,
		)
		if err := scan.Start(ctx); err != nil {
			logger.Fatal("Failed to start scanner", zap.Error(err))
		}
		go scan.SyncExistingFiles(ctx)
	}

	srv := server.NewServer(reg, st, docs, cfg, logger, m)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return pipe.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if scan != nil {
			scan.Stop()
		}
		return srv.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func runQuery() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: mihari query <submit|get|results> [flags] [args]")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("query "+sub, flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	name := fs.String("name", "", "query label")
	threshold := fs.Int64("threshold", 50, "minimum accepted match score")
	_ = fs.Parse(os.Args[3:])

	switch sub {
	case "submit":
		if fs.NArg() < 1 {
			fmt.Println("Usage: mihari query submit [flags] <query text>")
			os.Exit(1)
		}
		text := strings.TrimSpace(strings.Join(fs.Args(), " "))
		body, _ := json.Marshal(map[string]interface{}{
			"name":            *name,
			"query_text":      text,
			"score_threshold": *threshold,
		})
		var out models.PersistentQuery
		if err := postJSON(*serverURL+"/api/v1/queries", body, http.StatusCreated, &out); err != nil {
			fmt.Fprintf(os.Stderr, "Submit failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Query registered: %s\n", out.ID)
	case "get":
		if fs.NArg() < 1 {
			fmt.Println("Usage: mihari query get [flags] <id>")
			os.Exit(1)
		}
		var out models.PersistentQuery
		if err := getJSON(*serverURL+"/api/v1/queries/"+fs.Arg(0), &out); err != nil {
			fmt.Fprintf(os.Stderr, "Get failed: %v\n", err)
			os.Exit(1)
		}
		printJSON(out)
	case "results":
		if fs.NArg() < 1 {
			fmt.Println("Usage: mihari query results [flags] <id>")
			os.Exit(1)
		}
		var out []models.IndexData
		if err := getJSON(*serverURL+"/api/v1/queries/"+fs.Arg(0)+"/results", &out); err != nil {
			fmt.Fprintf(os.Stderr, "Results failed: %v\n", err)
			os.Exit(1)
		}
		if len(out) == 0 {
			fmt.Println("No matches yet.")
			return
		}
		for _, rec := range out {
			fmt.Printf("%s  score=%d  document=%s  spans=%v\n", rec.Name, rec.Score, rec.DocumentID, rec.MatchIndices)
		}
	default:
		fmt.Printf("Unknown query subcommand: %s\n", sub)
		os.Exit(1)
	}
}

func runDocument() {
	if len(os.Args) < 3 || os.Args[2] != "submit" {
		fmt.Println("Usage: mihari document submit [flags] <file-or-text>")
		os.Exit(1)
	}
	fs := flag.NewFlagSet("document submit", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	name := fs.String("name", "", "document label (defaults to the file name)")
	_ = fs.Parse(os.Args[3:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: mihari document submit [flags] <file-or-text>")
		os.Exit(1)
	}
	arg := fs.Arg(0)

	var data, label string
	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		text, err := extract.NewExtractor().Extract(arg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Extract failed: %v\n", err)
			os.Exit(1)
		}
		data = text
		label = filepath.Base(arg)
	} else {
		data = strings.TrimSpace(strings.Join(fs.Args(), " "))
		label = "inline"
	}
	if *name != "" {
		label = *name
	}

	body, _ := json.Marshal(map[string]string{"name": label, "data": data})
	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := postJSON(*serverURL+"/api/v1/documents", body, http.StatusAccepted, &out); err != nil {
		fmt.Fprintf(os.Stderr, "Submit failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Document queued: %s\n", out.ID)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status map[string]interface{}
	if err := getJSON(*serverURL+"/api/v1/status", &status); err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	var capacity models.LoadCapacity
	if err := getJSON(*serverURL+"/api/v1/capacity", &capacity); err != nil {
		fmt.Fprintf(os.Stderr, "Capacity failed: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "json":
		status["connection_count"] = capacity.ConnectionCount
		printJSON(status)
	case "text":
		fmt.Printf("queries:           %v   # registered persistent queries\n", status["queries"])
		fmt.Printf("records:           %v   # stored match records\n", status["records"])
		fmt.Printf("connection_count:  %d   # live TCP connections\n", capacity.ConnectionCount)
		if v, ok := status["disk_usage_bytes"]; ok {
			fmt.Printf("disk_usage_bytes:  %v\n", v)
		}
		if v, ok := status["database_path"]; ok {
			fmt.Printf("database_path:     %v\n", v)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func postJSON(url string, body []byte, wantStatus int, out interface{}) error {
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func getJSON(url string, out interface{}) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`mihari - Standing-query fuzzy document matcher

Usage:
  mihari server [flags]                     Start the HTTP server
  mihari query submit [flags] <text>        Register a persistent query
  mihari query get [flags] <id>             Show a registered query
  mihari query results [flags] <id>         Show match records for a query
  mihari document submit [flags] <file|text>  Submit a document for matching
  mihari status [flags]                     Show engine/storage status
  mihari version                            Show version
  mihari help                               Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/mihari/config.yaml)
  --debug            Enable debug logging (document submissions, match evaluation, etc.)

Query Flags:
  --server string    Server URL (default: http://localhost:8765)
  --name string      Query label
  --threshold int    Minimum accepted match score (default: 50)

Document Flags:
  --server string    Server URL (default: http://localhost:8765)
  --name string      Document label (defaults to the file name)

Status Flags:
  --server string    Server URL (default: http://localhost:8765)
  --output string    Output format: text or json (default: text)

Examples:
  mihari server
  mihari query submit --name "darcy watch" --threshold 60 Darcy
  mihari query results 1234567890
  mihari document submit novel.txt
  mihari document submit --name note "Mr. Darcy walked into the room"
  mihari status`)
}
