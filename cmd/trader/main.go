// Command trader is the engine's runner: wires one symbol's worker to a
// broker gateway and drives it until shutdown (spec.md §6 CLI surface).
//
// The terminal bridge itself is an external collaborator (spec.md §1); this
// binary only ships gateway.PaperGateway, so --account live still runs
// against the paper book seeded with synthetic history. Swapping in a real
// broker adapter means satisfying gateway.BrokerGateway and constructing it
// in place of gateway.NewPaperGateway in run() below.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/kestrel-trading/engine/config"
	"github.com/kestrel-trading/engine/dualtrade"
	"github.com/kestrel-trading/engine/gateway"
	"github.com/kestrel-trading/engine/logger"
	"github.com/kestrel-trading/engine/repository"
	"github.com/kestrel-trading/engine/strategy"
	"github.com/kestrel-trading/engine/types"
	"github.com/kestrel-trading/engine/worker"
)

// Exit codes of spec.md §6.
const (
	exitOK             = 0
	exitConfigError    = 1
	exitGatewayConnect = 2
	exitFatalRuntime   = 3
)

func main() {
	os.Exit(run())
}

type flags struct {
	account           string
	symbol            string
	intervalSeconds   int
	dryRun            bool
	logLevel          string
	strategyName      string
	flattenOnShutdown bool
	dbPath            string
	metricsAddr       string
}

func parseFlags() flags {
	var f flags
	pflag.StringVar(&f.account, "account", "demo", "account profile (demo|live)")
	pflag.StringVar(&f.symbol, "symbol", "EURUSD", "symbol to trade")
	pflag.IntVar(&f.intervalSeconds, "interval", 60, "seconds between worker cycles")
	pflag.BoolVar(&f.dryRun, "dry-run", false, "evaluate signals without opening trades")
	pflag.StringVar(&f.logLevel, "log-level", "info", "log level (debug|info|warn|error)")
	pflag.StringVar(&f.strategyName, "strategy", "structural", "strategy to run (adaptive_trend|structural)")
	pflag.BoolVar(&f.flattenOnShutdown, "flatten-on-shutdown", false, "force-close open legs on shutdown")
	pflag.StringVar(&f.dbPath, "db", "", "DuckDB file for the audit repository (empty: in-memory only)")
	pflag.StringVar(&f.metricsAddr, "metrics-addr", "", "address to serve /metrics on (empty: disabled)")
	pflag.Parse()
	return f
}

func run() int {
	f := parseFlags()

	log, err := logger.NewLoggerAt(logger.ParseLevel(f.logLevel))
	if err != nil {
		fmt.Fprintf(os.Stderr, "trader: logger init: %v\n", err)
		return exitConfigError
	}

	profile, err := parseProfile(f.account)
	if err != nil {
		log.Error("config_error", logger.Err(err))
		return exitConfigError
	}

	base := defaultBase(f.symbol, f.intervalSeconds)
	strat, err := buildStrategy(f.strategyName, base, log)
	if err != nil {
		log.Error("config_error", logger.Err(err))
		return exitConfigError
	}

	repo, err := openRepository(f.dbPath)
	if err != nil {
		log.Error("config_error", logger.String("reason", "repository"), logger.Err(err))
		return exitConfigError
	}
	defer repo.Close()

	if f.metricsAddr != "" {
		go serveMetrics(f.metricsAddr, log)
	}

	gw := gateway.NewPaperGateway(10000)
	connectCtx, cancel := context.WithTimeout(context.Background(), gateway.DefaultWriteDeadline)
	err = gw.Connect(connectCtx, gateway.Credentials{Profile: string(profile)})
	cancel()
	if err != nil {
		log.Error("gateway_connect_failed", logger.Err(err))
		return exitGatewayConnect
	}
	seedDemoMarket(gw, f.symbol)

	// Every call beyond Connect goes through the rate-limited decorator so
	// each one carries a deadline and the worker loop can never hang on a
	// stalled broker (spec.md §5).
	limited := gateway.NewRateLimitedGateway(gw, 10, 5)
	dm := dualtrade.NewManager(limited, log, strat.Name(), f.symbol, base.MagicNumber)
	dm.SetRepository(repo)
	limits := worker.NewLimits(1, 10, 5, 10000)
	w := worker.NewPerSymbolWorker(limited, strat, dm, base, limits, log, warmupBars(f.strategyName, base), f.dryRun)
	w.SetRepository(repo)

	sup := worker.NewSupervisor([]*worker.PerSymbolWorker{w}, f.flattenOnShutdown)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("trader_starting", logger.String("symbol", f.symbol), logger.String("strategy", f.strategyName), logger.String("account", string(profile)))
	if err := sup.Run(ctx); err != nil {
		log.Error("trader_fatal", logger.Err(err))
		return exitFatalRuntime
	}
	log.Info("trader_shutdown_clean")
	return exitOK
}

func parseProfile(s string) (config.AccountProfile, error) {
	switch config.AccountProfile(s) {
	case config.ProfileDemo:
		return config.ProfileDemo, nil
	case config.ProfileLive:
		return config.ProfileLive, nil
	default:
		return "", fmt.Errorf("account profile %q is not recognised", s)
	}
}

// defaultBase fills in the strategy-agnostic fields; real deployments would
// load these per-symbol from config.GlobalConfig (spec.md §1 treats config
// loading as an external collaborator, so this binary hardcodes sane
// defaults rather than parsing a file).
func defaultBase(symbol string, intervalSeconds int) config.StrategyConfigBase {
	return config.StrategyConfigBase{
		Symbol:               symbol,
		Timeframe:            types.M15,
		RiskPercent:          0.5,
		RRRatio:              1.5,
		SLMultiplier:         1.5,
		MoveSLToBreakeven:    true,
		UseTrailing:          false,
		MagicNumber:          990001,
		MaxPositions:         1,
		CycleSeconds:         intervalSeconds,
		AllowMinSizeOverride: false,
	}
}

func buildStrategy(name string, base config.StrategyConfigBase, log logger.Logger) (strategy.Strategy, error) {
	switch config.StrategyName(name) {
	case config.StrategyAdaptiveTrend:
		params := config.AdaptiveTrendParams{
			StrategyConfigBase: base,
			MinFactor:          1,
			MaxFactor:          4,
			FactorStep:         0.5,
			ATRPeriod:          10,
			PerfAlpha:          0.1,
			ClusterChoice:      config.ClusterBest,
			VolumeMAPeriod:     20,
			VolumeMultiplier:   1.2,
		}
		return strategy.NewAdaptiveTrend(params, log)
	case config.StrategyStructural:
		params := config.StructuralParams{
			StrategyConfigBase: base,
			LookbackCandles:    20,
			FVGMinSize:         0.0005,
			LiquiditySweepPips: 3,
			UseMarketStructure: true,
			UseOrderBlocks:     true,
			UseFVG:             true,
			UseLiquiditySweeps: true,
			MinConfluence:      2,
		}
		return strategy.NewStructural(params, log)
	default:
		return nil, fmt.Errorf("strategy %q is not recognised", name)
	}
}

// warmupBars sizes the worker's per-cycle bar fetch to each strategy's own
// lookback plus warm-up window (spec.md §4.7 step 1).
func warmupBars(name string, base config.StrategyConfigBase) int {
	switch config.StrategyName(name) {
	case config.StrategyAdaptiveTrend:
		return 200
	default:
		return 100
	}
}

func openRepository(dbPath string) (repository.Repository, error) {
	if dbPath == "" {
		return repository.NewMemoryRepository(), nil
	}
	return repository.OpenDuckDBRepository(dbPath)
}

func serveMetrics(addr string, log logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("metrics_server_failed", logger.Err(err))
	}
}

// seedDemoMarket seeds the paper book with a plausible symbol and a flat
// bar history so the worker has something to evaluate. Real market data
// comes from the configured broker gateway, which this demo binary does
// not have (spec.md §1 treats the terminal bridge as external).
func seedDemoMarket(gw *gateway.PaperGateway, symbol string) {
	gw.SeedSymbol(types.SymbolInfo{
		Name: symbol, Digits: 5, Point: 0.00001, ContractSize: 100000,
		LotMin: 0.01, LotMax: 50, LotStep: 0.01, TickSize: 0.00001, TickValue: 1,
		IsCurrencyPair: true,
	})
	now := time.Now().UTC()
	bars := make([]types.Bar, 0, 200)
	price := 1.1000
	for i := 200; i > 0; i-- {
		bars = append(bars, types.Bar{
			Time: now.Add(-time.Duration(i) * 15 * time.Minute),
			Open: price, High: price + 0.0003, Low: price - 0.0003, Close: price, TickVolume: 100,
		})
	}
	gw.SeedBars(symbol, bars)
	gw.SeedTick(symbol, types.Tick{Bid: price, Ask: price + 0.0002, Time: now})
}
