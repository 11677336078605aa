package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/lpm-labs/dlmm-lpm/internal/analyzer"
	"github.com/lpm-labs/dlmm-lpm/internal/config"
	"github.com/lpm-labs/dlmm-lpm/internal/logger"
	"github.com/lpm-labs/dlmm-lpm/internal/simulations"
	"github.com/lpm-labs/dlmm-lpm/internal/state"
	"github.com/lpm-labs/dlmm-lpm/internal/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// dataUnavailable is shown instead of a score when upstream data could not be fetched, and instead
// of metrics whose inputs are unknown.
const dataUnavailable = "data unavailable"

// Evaluator evaluates and compares positions on demand.
type Evaluator interface {
	Evaluate(ctx context.Context, address string) (types.PositionReport, error)
	ComparePositions(ctx context.Context, addresses []string, weights types.RankingWeights) ([]types.PositionRanking, error)
	Strategy() types.RebalanceStrategy
	SetStrategy(strategy types.RebalanceStrategy)
}

// Store is the persistence used by the API.
type Store interface {
	Ping(ctx context.Context) error
	GetCurrentCycleNumber(ctx context.Context) (int, error)
	GetRecentSnapshots(ctx context.Context, address string, limit int) ([]state.PositionSnapshot, error)
	GetPositionSummary(ctx context.Context, address string) (*state.PositionSummary, error)
	SaveStrategy(ctx context.Context, strategy types.RebalanceStrategy, activate bool) error
	ListStrategies(ctx context.Context) ([]types.RebalanceStrategy, error)
	SaveBacktestRun(ctx context.Context, result types.BacktestResult) (string, error)
	GetBacktestRun(ctx context.Context, id string) (types.BacktestResult, error)
	ListBacktestRuns(ctx context.Context, limit int) ([]state.BacktestRunSummary, error)
}

// PriceSource provides historical prices for backtests.
type PriceSource interface {
	GetPriceHistory(ctx context.Context, pool string, from, to time.Time) ([]types.PriceData, error)
}

// Config holds the dependencies of the web server.
type Config struct {
	Port       string
	Monitor    Evaluator
	Store      Store
	Prices     PriceSource
	Strategies []types.RebalanceStrategy
	Weights    types.RankingWeights
	Gatherer   prometheus.Gatherer // Defaults to the global registry
}

// WebServer serves the position API
type WebServer struct {
	router     *mux.Router
	port       string
	monitor    Evaluator
	store      Store
	prices     PriceSource
	strategies []types.RebalanceStrategy
	weights    types.RankingWeights
	gatherer   prometheus.Gatherer
	startedAt  time.Time
	logger     zerolog.Logger
}

// NewWebServer creates a new web server instance
func NewWebServer(cfg Config) *WebServer {
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.Weights == (types.RankingWeights{}) {
		cfg.Weights = config.DefaultRankingWeights
	}

	server := &WebServer{
		router:     mux.NewRouter(),
		port:       cfg.Port,
		monitor:    cfg.Monitor,
		store:      cfg.Store,
		prices:     cfg.Prices,
		strategies: cfg.Strategies,
		weights:    cfg.Weights,
		gatherer:   cfg.Gatherer,
		startedAt:  time.Now(),
		logger:     logger.GetForComponent("web_server"),
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Health endpoint (direct route)
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	ws.router.Handle("/metrics", promhttp.HandlerFor(ws.gatherer, promhttp.HandlerOpts{})).Methods("GET")

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/positions/compare", ws.handleComparePositions).Methods("GET")
	api.HandleFunc("/positions/{address}/report", ws.handleGetReport).Methods("GET")
	api.HandleFunc("/positions/{address}/snapshots", ws.handleGetSnapshots).Methods("GET")
	api.HandleFunc("/positions/{address}/summary", ws.handleGetSummary).Methods("GET")
	api.HandleFunc("/strategies", ws.handleGetStrategies).Methods("GET")
	// OPTIONS lets the CORS middleware answer preflights for JSON bodies
	api.HandleFunc("/strategies/{name}/activate", ws.handleActivateStrategy).Methods("POST", "OPTIONS")
	api.HandleFunc("/backtests", ws.handleRunBacktest).Methods("POST", "OPTIONS")
	api.HandleFunc("/backtests", ws.handleListBacktests).Methods("GET")
	api.HandleFunc("/backtests/{id}", ws.handleGetBacktest).Methods("GET")

	// Add CORS middleware
	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Handler returns the HTTP handler of the server.
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// Start serves HTTP until ctx is cancelled.
func (ws *WebServer) Start(ctx context.Context) error {
	ws.logger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			ws.logger.Error().Err(err).Msg("Web server shutdown failed")
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleHealth returns server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	hasErrors := false
	dbHealthy := false
	currentCycle := 0
	if ws.store != nil {
		if err := ws.store.Ping(r.Context()); err == nil {
			dbHealthy = true
			currentCycle, _ = ws.store.GetCurrentCycleNumber(r.Context())
		} else {
			hasErrors = true
		}
	}

	overallStatus := "OK"
	if hasErrors {
		overallStatus = "DEGRADED"
	}

	activeStrategy := ""
	if ws.monitor != nil {
		activeStrategy = ws.monitor.Strategy().Name
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
			"uptime_seconds":   int64(time.Since(ws.startedAt).Seconds()),
		},
		"component": map[string]interface{}{
			"name":    "dlmm-lp-manager",
			"version": "1.0.0",
		},
		"lpm_status": map[string]interface{}{
			"database_configured": ws.store != nil,
			"database_healthy":    dbHealthy,
			"current_cycle":       currentCycle,
			"active_strategy":     activeStrategy,
		},
	}

	statusCode := http.StatusOK
	if hasErrors {
		statusCode = http.StatusServiceUnavailable
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetReport evaluates a position now
func (ws *WebServer) handleGetReport(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	report, err := ws.monitor.Evaluate(r.Context(), address)
	if err != nil {
		ws.logger.Error().Err(err).Str("position", address).Msg("Failed to evaluate position")
		ws.writeError(w, err)
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, newReportView(report))
}

// handleComparePositions ranks the positions listed in ?addresses=a,b,c
func (ws *WebServer) handleComparePositions(w http.ResponseWriter, r *http.Request) {
	var addresses []string
	for _, a := range strings.Split(r.URL.Query().Get("addresses"), ",") {
		if a = strings.TrimSpace(a); a != "" {
			addresses = append(addresses, a)
		}
	}
	if len(addresses) == 0 {
		ws.writeErrorResponse(w, http.StatusBadRequest, "addresses query parameter is required")
		return
	}

	rankings, err := ws.monitor.ComparePositions(r.Context(), addresses, ws.weights)
	if err != nil {
		ws.logger.Error().Err(err).Strs("positions", addresses).Msg("Failed to compare positions")
		ws.writeError(w, err)
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"rankings": rankings,
		"weights":  ws.weights,
	})
}

// handleGetSnapshots returns the stored evaluations of a position
func (ws *WebServer) handleGetSnapshots(w http.ResponseWriter, r *http.Request) {
	if !ws.requireStore(w) {
		return
	}
	address := mux.Vars(r)["address"]
	limit := parseLimit(r, 50, 500)

	snapshots, err := ws.store.GetRecentSnapshots(r.Context(), address, limit)
	if err != nil {
		ws.logger.Error().Err(err).Str("position", address).Msg("Failed to get snapshots")
		ws.writeError(w, err)
		return
	}

	views := make([]snapshotView, len(snapshots))
	for i, snapshot := range snapshots {
		views[i] = snapshotView{ID: snapshot.ID, CycleNumber: snapshot.CycleNumber, Report: newReportView(snapshot.Report)}
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"snapshots": views,
		"count":     len(snapshots),
		"limit":     limit,
	})
}

// handleGetSummary returns aggregated health statistics of a position
func (ws *WebServer) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	if !ws.requireStore(w) {
		return
	}
	address := mux.Vars(r)["address"]

	summary, err := ws.store.GetPositionSummary(r.Context(), address)
	if err != nil {
		ws.logger.Error().Err(err).Str("position", address).Msg("Failed to get position summary")
		ws.writeError(w, err)
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, summary)
}

// handleGetStrategies returns the configured presets, the strategies stored by earlier
// activations and the active one
func (ws *WebServer) handleGetStrategies(w http.ResponseWriter, r *http.Request) {
	stored := []types.RebalanceStrategy{}
	if ws.store != nil {
		var err error
		if stored, err = ws.store.ListStrategies(r.Context()); err != nil {
			ws.logger.Error().Err(err).Msg("Failed to list stored strategies")
			ws.writeError(w, err)
			return
		}
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"strategies": ws.strategies,
		"stored":     stored,
		"active":     ws.monitor.Strategy().Name,
	})
}

// handleActivateStrategy switches the monitor to another preset
func (ws *WebServer) handleActivateStrategy(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	strategy, err := config.FindStrategy(ws.strategies, name)
	if err != nil {
		ws.writeError(w, err)
		return
	}

	if ws.store != nil {
		if err := ws.store.SaveStrategy(r.Context(), strategy, true); err != nil {
			ws.logger.Error().Err(err).Str("strategy", name).Msg("Failed to persist active strategy")
			ws.writeError(w, err)
			return
		}
	}
	ws.monitor.SetStrategy(strategy)

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"active": strategy})
}

// BacktestRequest is the body of POST /api/backtests. Prices may be given inline; otherwise they
// are fetched for Pool between From and To.
type BacktestRequest struct {
	Pool              string            `json:"pool"`
	From              time.Time         `json:"from"`
	To                time.Time         `json:"to"`
	Prices            []types.PriceData `json:"prices"`
	Strategy          string            `json:"strategy"`
	BinStep           uint16            `json:"bin_step"`
	InitialLiquidity  float64           `json:"initial_liquidity"`
	SwapFee           float64           `json:"swap_fee"`
	HostFee           float64           `json:"host_fee"`
	RebalanceCost     *float64          `json:"rebalance_cost,omitempty"` // Omitted fields take the defaults
	RebalanceRangePct *float64          `json:"rebalance_range_pct,omitempty"`
	RiskFreeRate      *float64          `json:"risk_free_rate,omitempty"`
	PeriodsPerYear    *float64          `json:"periods_per_year,omitempty"`
}

// handleRunBacktest replays a price series and stores the result
func (ws *WebServer) handleRunBacktest(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	prices := req.Prices
	if len(prices) == 0 {
		if req.Pool == "" || ws.prices == nil {
			ws.writeErrorResponse(w, http.StatusBadRequest, "prices or pool is required")
			return
		}
		history, err := ws.prices.GetPriceHistory(r.Context(), req.Pool, req.From, req.To)
		if err != nil {
			ws.logger.Error().Err(err).Str("pool", req.Pool).Msg("Failed to fetch price history")
			ws.writeError(w, err)
			return
		}
		prices = history
	}

	strategy, err := simulations.StrategyFor(req.Strategy, ws.strategies, req.BinStep)
	if err != nil {
		ws.writeError(w, err)
		return
	}
	strategyName := req.Strategy
	if strategyName == "" {
		strategyName = simulations.RangeExitStrategyName
	}

	result, err := simulations.RunBacktest(simulations.BacktestParams{
		Prices:            prices,
		From:              req.From,
		To:                req.To,
		InitialLiquidity:  req.InitialLiquidity,
		SwapFee:           req.SwapFee,
		HostFee:           req.HostFee,
		Strategy:          strategy,
		StrategyName:      strategyName,
		RebalanceCost:     req.RebalanceCost,
		RebalanceRangePct: req.RebalanceRangePct,
		RiskFreeRate:      req.RiskFreeRate,
		PeriodsPerYear:    req.PeriodsPerYear,
	})
	if err != nil {
		ws.logger.Error().Err(err).Str("strategy", strategyName).Msg("Backtest failed")
		ws.writeError(w, err)
		return
	}

	if ws.store != nil {
		id, err := ws.store.SaveBacktestRun(r.Context(), result)
		if err != nil {
			ws.logger.Error().Err(err).Msg("Failed to save backtest run")
			ws.writeError(w, err)
			return
		}
		result.ID = id
	}

	ws.writeJSONResponse(w, http.StatusCreated, result)
}

// handleListBacktests returns the latest stored backtests
func (ws *WebServer) handleListBacktests(w http.ResponseWriter, r *http.Request) {
	if !ws.requireStore(w) {
		return
	}
	limit := parseLimit(r, 20, 100)

	runs, err := ws.store.ListBacktestRuns(r.Context(), limit)
	if err != nil {
		ws.logger.Error().Err(err).Msg("Failed to list backtest runs")
		ws.writeError(w, err)
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"backtests": runs,
		"count":     len(runs),
		"limit":     limit,
	})
}

// handleGetBacktest returns a stored backtest by ID
func (ws *WebServer) handleGetBacktest(w http.ResponseWriter, r *http.Request) {
	if !ws.requireStore(w) {
		return
	}
	id := mux.Vars(r)["id"]

	result, err := ws.store.GetBacktestRun(r.Context(), id)
	if err != nil {
		ws.logger.Error().Err(err).Str("runId", id).Msg("Failed to get backtest run")
		ws.writeError(w, err)
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, result)
}

// reportView renders a position report with metrics that could not be computed shown as
// dataUnavailable instead of zero.
type reportView struct {
	types.PositionReport
	Metrics      metricsView `json:"metrics"`
	InitialPrice interface{} `json:"initial_price"`
}

type metricsView struct {
	types.PositionMetrics
	APR                interface{} `json:"apr"`
	ImpermanentLoss    interface{} `json:"impermanent_loss"`
	ImpermanentLossPct interface{} `json:"impermanent_loss_pct"`
}

type snapshotView struct {
	ID          string     `json:"id"`
	CycleNumber int        `json:"cycle_number"`
	Report      reportView `json:"report"`
}

func newReportView(report types.PositionReport) reportView {
	m := report.Metrics
	view := reportView{
		PositionReport: report,
		Metrics: metricsView{
			PositionMetrics:    m,
			APR:                m.APR,
			ImpermanentLoss:    m.ImpermanentLoss,
			ImpermanentLossPct: m.ImpermanentLossPct,
		},
		InitialPrice: report.InitialPrice,
	}
	if !m.Available(types.MetricAPR) {
		view.Metrics.APR = dataUnavailable
	}
	if !m.Available(types.MetricImpermanentLoss) {
		view.Metrics.ImpermanentLoss = dataUnavailable
		view.Metrics.ImpermanentLossPct = dataUnavailable
	}
	if report.InitialPriceSource == types.InitialPriceUnavailable {
		view.InitialPrice = dataUnavailable
	}
	return view
}

func (ws *WebServer) requireStore(w http.ResponseWriter) bool {
	if ws.store == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Database is not configured")
		return false
	}
	return true
}

func parseLimit(r *http.Request, def, max int) int {
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= max {
			return parsedLimit
		}
	}
	return def
}

// statusFor maps typed errors to HTTP statuses. Failed fetches never turn into a score.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, types.ErrUpstreamFetch):
		return http.StatusBadGateway, dataUnavailable
	case errors.Is(err, types.ErrInsufficientData):
		return http.StatusUnprocessableEntity, dataUnavailable + ": " + err.Error()
	case errors.Is(err, state.ErrNotFound), errors.Is(err, config.ErrStrategyNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, types.ErrInvalidRange),
		errors.Is(err, types.ErrInvalidStrategyConfig),
		errors.Is(err, simulations.ErrInvalidParams),
		errors.Is(err, analyzer.ErrInvalidRankingWeights):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request cancelled"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (ws *WebServer) writeError(w http.ResponseWriter, err error) {
	status, message := statusFor(err)
	ws.writeErrorResponse(w, status, message)
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		ws.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		ws.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
