// quantd is the financial time-series cache and transform daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/quantio/quantd/internal/agent"
	"github.com/quantio/quantd/internal/artifact"
	"github.com/quantio/quantd/internal/bucket"
	"github.com/quantio/quantd/internal/columnar"
	"github.com/quantio/quantd/internal/handler"
	"github.com/quantio/quantd/internal/loader"
	"github.com/quantio/quantd/internal/logging"
	"github.com/quantio/quantd/internal/series"
	"github.com/quantio/quantd/internal/server"
	"github.com/quantio/quantd/internal/session"
	"github.com/quantio/quantd/internal/transform"
	"github.com/quantio/quantd/internal/universe"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// CLI flags
	cfgPath := flag.String("config", "config.yaml", "config file path")
	listen := flag.String("listen", "", "listen address (overrides config)")
	dataDir := flag.String("data", "", "filesystem bucket directory (overrides config)")
	token := flag.String("token", "", "auth token (or QUANTD_TOKEN env)")
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	log.Printf("quantd %s starting...", Version)

	// Load config
	cfg, err := loader.Load(*cfgPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("No config file found, using defaults")
			cfg = loader.DefaultConfig()
		} else {
			log.Fatalf("Load config: %v", err)
		}
	}

	// CLI overrides
	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	if *dataDir != "" {
		cfg.Bucket.Provider = "filesystem"
		cfg.Bucket.Filesystem.Directory = *dataDir
	}

	// Token from flag or env
	authToken := *token
	if authToken == "" {
		authToken = os.Getenv("QUANTD_TOKEN")
	}
	if authToken != "" && len(cfg.Auth.Tokens) == 0 {
		cfg.Auth.Tokens = []loader.TokenConfig{{ID: "cli", Token: authToken}}
	}

	if err := loader.Validate(cfg); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logging.Init(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format == "json")

	ctx := context.Background()

	// =========================================================================
	// Object store and columnar source
	// =========================================================================

	bkt, err := bucket.New(cfg.Bucket)
	if err != nil {
		log.Fatalf("Open object store: %v", err)
	}
	defer bkt.Close()

	reader := columnar.NewReader(bkt, cfg.Data.CacheDir)
	fetcher := session.NewPriceFetcher(reader, cfg.Data.PriceObject)

	// =========================================================================
	// Session manager and series store
	// =========================================================================

	manager, err := session.NewManager(fetcher, session.Options{
		Dir:               cfg.Sessions.Dir,
		MinPointsToSample: cfg.Sample.MinPoints,
		TargetPoints:      cfg.Sample.TargetPoints,
	})
	if err != nil {
		log.Fatalf("Create session manager: %v", err)
	}

	store := series.NewStore(cfg.Store.MaxSeries)
	engine := transform.NewEngine(store)

	// =========================================================================
	// Instrument universe and ticker resolution
	// =========================================================================

	log.Printf("Opening universe: %s", cfg.Universe.Path)
	uni, err := universe.Open(cfg.Universe.Path, cfg.Universe.Table)
	if err != nil {
		log.Fatalf("Open universe: %v", err)
	}
	defer uni.Close()

	if cfg.Universe.ImportCSV != "" {
		if _, err := uni.ImportCSV(ctx, cfg.Universe.ImportCSV); err != nil {
			log.Fatalf("Import universe: %v", err)
		}
	}

	var resolver agent.Resolver = agent.NewSymbolResolver(uni)
	if cfg.Agent.Enabled {
		llm, err := agent.NewSQLResolver(ctx, uni, cfg.Agent.Model, cfg.Agent.APIKey)
		if err != nil {
			log.Printf("Warning: agent resolver unavailable, falling back to symbol matching: %v", err)
		} else {
			resolver = &agent.Fallback{Primary: llm, Secondary: resolver}
		}
	}

	// =========================================================================
	// Artifact publishing
	// =========================================================================

	baseURL := cfg.Server.ExternalURL
	if baseURL == "" {
		baseURL = "http://" + cfg.Server.Listen
	}
	publisher := artifact.NewPublisher(bkt, artifact.Options{
		Prefix:     cfg.Artifacts.Prefix,
		BaseURL:    baseURL,
		SigningKey: []byte(cfg.Artifacts.SigningKey),
		TTL:        cfg.Artifacts.URLTTL.Duration(),
	})

	// =========================================================================
	// Create and Start Server
	// =========================================================================

	tokens := make(map[string]string, len(cfg.Auth.Tokens))
	for _, t := range cfg.Auth.Tokens {
		tokens[t.Token] = t.ID
	}

	h := handler.New(handler.Options{
		Manager:   manager,
		Engine:    engine,
		Store:     store,
		Resolver:  resolver,
		Publisher: publisher,
		Universe:  uni,
		Tokens:    tokens,
	})

	srv := server.New(&server.Config{
		Handler:         h,
		Listen:          cfg.Server.Listen,
		ReadTimeout:     cfg.Server.ReadTimeout.Duration(),
		WriteTimeout:    cfg.Server.WriteTimeout.Duration(),
		ShutdownTimeout: cfg.Server.ShutdownTimeout.Duration(),
	})

	// =========================================================================
	// Signal Handling and Graceful Shutdown
	// =========================================================================

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Println("Shutting down...")
		srv.Shutdown()
	}()

	if err := srv.Run(); err != nil {
		log.Fatalf("Server: %v", err)
	}
}
