package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agora/config"
	"agora/core/events"
	"agora/core/state"
	"agora/native/auction"
	"agora/native/escrow"
	"agora/native/fees"
	"agora/native/ledger"
	"agora/native/multisig"
	"agora/native/payments"
	"agora/observability/logging"
	"agora/rpc"
	"agora/storage"
)

const (
	envName  = "AGORA_ENV"
	tokenEnv = "AGORA_RPC_TOKEN"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	memory := flag.Bool("memory", false, "DEV ONLY: keep state in memory instead of the data directory")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv(envName))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	var logger *slog.Logger
	if cfg.LogFile != "" {
		logger = logging.SetupRotating("settled", env, logging.RotationConfig{
			Path:       cfg.LogFile,
			MaxSizeMB:  cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			MaxAgeDays: cfg.LogMaxAgeDays,
		})
	} else {
		logger = logging.Setup("settled", env)
	}

	var db storage.Database
	if *memory {
		logger.Warn("running with in-memory state, nothing will be persisted")
		db = storage.NewMemDB()
	} else {
		leveldb, err := storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			panic(fmt.Sprintf("Failed to open database: %v", err))
		}
		db = leveldb
	}
	defer db.Close()

	manager := state.NewManager(db)
	ring := events.NewRing(cfg.EventTail)

	// Fees accrue to a derived treasury vault unless an explicit
	// platform account is configured.
	platform := ledger.ModuleVault("treasury")
	if strings.TrimSpace(cfg.PlatformAccount) != "" {
		platform, err = cfg.Platform()
		if err != nil {
			logger.Error("invalid platform account", "error", err)
			os.Exit(1)
		}
	}

	book := ledger.NewLedger()
	book.SetState(manager)
	book.SetFeePolicy(fees.Policy{MaxBps: cfg.MaxFeeBps})
	book.SetFeeCollector(platform)
	book.SetEmitter(ring)

	escrowEngine := escrow.NewEngine()
	escrowEngine.SetState(manager)
	escrowEngine.SetLedger(book)
	escrowEngine.SetEmitter(ring)
	escrowEngine.SetPauses(manager)
	if arbiter, err := cfg.Arbiter(); err == nil {
		escrowEngine.SetArbiter(arbiter)
	}

	walletEngine := multisig.NewEngine()
	walletEngine.SetState(manager)
	walletEngine.SetLedger(book)
	walletEngine.SetEmitter(ring)
	walletEngine.SetPauses(manager)
	if admin, err := cfg.Admin(); err == nil {
		walletEngine.SetAdmin(admin)
	}

	auctionEngine := auction.NewEngine()
	auctionEngine.SetState(manager)
	auctionEngine.SetLedger(book)
	auctionEngine.SetEmitter(ring)
	auctionEngine.SetPauses(manager)

	paymentEngine := payments.NewEngine()
	paymentEngine.SetState(manager)
	paymentEngine.SetLedger(book)
	paymentEngine.SetPresenceView(manager)
	paymentEngine.SetEmitter(ring)
	paymentEngine.SetPauses(manager)

	server := rpc.NewServer(rpc.Deps{
		Ledger:   book,
		Escrow:   escrowEngine,
		Wallets:  walletEngine,
		Auctions: auctionEngine,
		Payments: paymentEngine,
		Pauses:   manager,
		Events:   ring,
		Log:      logger,
	})
	server.SetAuthToken(os.Getenv(tokenEnv))
	server.SetRateLimit(cfg.RateLimitPerMinute)

	go func() {
		if err := serveOps(cfg.OpsAddress, logger); err != nil {
			logger.Error("ops server stopped", "error", err)
		}
	}()

	logger.Info("settlement node ready", "rpc", cfg.RPCAddress, "ops", cfg.OpsAddress)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("rpc server stopped", "error", err)
		os.Exit(1)
	}
}

// serveOps exposes the health and metrics endpoints on a separate
// listener so operational probes never contend with settlement traffic.
func serveOps(addr string, logger *slog.Logger) error {
	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())

	logger.Info("starting ops server", "addr", addr)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server.ListenAndServe()
}
