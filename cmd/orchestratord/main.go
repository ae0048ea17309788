// Command orchestratord runs the task orchestrator's server process: the
// storage engine, security gatekeeper, transports, agent orchestrator,
// response processor, and supervised background sweepers, all behind one
// graceful shutdown boundary (spec §4.11). Modeled on the teacher's
// cmd/appserver/main.go.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/taskforge/orchestrator/internal/agents"
	"github.com/taskforge/orchestrator/internal/config"
	"github.com/taskforge/orchestrator/internal/decomposition"
	"github.com/taskforge/orchestrator/internal/external"
	"github.com/taskforge/orchestrator/internal/jobs"
	"github.com/taskforge/orchestrator/internal/logging"
	"github.com/taskforge/orchestrator/internal/metrics"
	"github.com/taskforge/orchestrator/internal/notify"
	"github.com/taskforge/orchestrator/internal/orchestrator"
	"github.com/taskforge/orchestrator/internal/responses"
	"github.com/taskforge/orchestrator/internal/security/audit"
	"github.com/taskforge/orchestrator/internal/security/auth"
	"github.com/taskforge/orchestrator/internal/security/lockmanager"
	"github.com/taskforge/orchestrator/internal/security/pathvalidator"
	"github.com/taskforge/orchestrator/internal/server"
	"github.com/taskforge/orchestrator/internal/storage"
	"github.com/taskforge/orchestrator/internal/storage/cache"
	"github.com/taskforge/orchestrator/internal/storage/filestore"
	"github.com/taskforge/orchestrator/internal/storage/memstore"
	"github.com/taskforge/orchestrator/internal/supervisor"
	"github.com/taskforge/orchestrator/internal/transport"
	"github.com/taskforge/orchestrator/internal/transport/httpmw"
	"github.com/taskforge/orchestrator/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (default: $ORCHESTRATOR_CONFIG_FILE)")
	dataDir := flag.String("data-dir", "", "override the configured data directory")
	httpAddr := flag.String("addr", "", "override the configured HTTP listen address")
	inMemory := flag.Bool("in-memory", false, "use the in-memory storage engine instead of the filestore")
	completerAddr := flag.String("completer-addr", "", "LLM gateway endpoint for the decomposition engine (enables /v1/decompose)")
	completerToken := flag.String("completer-token", "", "bearer token for the LLM gateway")
	codeMapperAddr := flag.String("codemapper-addr", "", "codebase summarizer gateway endpoint")
	showVersion := flag.Bool("version", false, "print build information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.FullVersion())
		return
	}

	if err := run(*configPath, *dataDir, *httpAddr, *inMemory, *completerAddr, *completerToken, *codeMapperAddr); err != nil {
		log.Fatalf("orchestratord: %v", err)
	}
}

func run(configPath, dataDirOverride, addrOverride string, inMemory bool, completerAddr, completerToken, codeMapperAddr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if dataDirOverride != "" {
		cfg.DataDir = dataDirOverride
	}
	if addrOverride != "" {
		cfg.Transport.HTTPAddr = addrOverride
	}

	logger := logging.New("orchestratord", cfg.Logging.Level, cfg.Logging.Format)
	logger.WithFields(map[string]interface{}{"version": version.Version}).Info("starting orchestratord")

	var store storage.Engine
	if inMemory {
		store = memstore.New()
	} else {
		format := storage.FormatJSON
		if cfg.StorageFormat == string(storage.FormatYAML) {
			format = storage.FormatYAML
		}
		fsEngine, err := filestore.New(filestore.Config{
			DataDir: cfg.DataDir,
			Format:  format,
			Cache:   cacheConfig(cfg),
		})
		if err != nil {
			return fmt.Errorf("init filestore: %w", err)
		}
		store = fsEngine
	}

	locks := lockmanager.New()
	bus := notify.New(256, logger)
	agentsReg := agents.New(4, agentOfflineNotifier{bus: bus})
	jobsReg := jobs.New(24 * time.Hour)
	pathValidator := pathvalidator.New(pathvalidator.Config{
		AllowedDirectories: cfg.Security.AllowedDirectories,
		AllowSymlinks:      cfg.Security.AllowSymlinks,
	}, logger)
	var authenticator *auth.Authenticator
	if cfg.Security.JWTSecret != "" {
		authenticator = auth.New(auth.Config{Secret: []byte(cfg.Security.JWTSecret)})
	}
	auditLog, err := newAuditLog(cfg, logger)
	if err != nil {
		return fmt.Errorf("init audit log: %w", err)
	}

	deliverer := transport.NewAgentDeliverer(bus, logger)
	weights := orchestrator.Weights{}
	if len(cfg.Orchestrator.Weights) > 0 {
		weights = orchestrator.Weights{
			Capability:   cfg.Orchestrator.Weights["capability"],
			Performance:  cfg.Orchestrator.Weights["performance"],
			Availability: cfg.Orchestrator.Weights["availability"],
		}
	}
	orch := orchestrator.New(agentsReg, locks, jobsReg, bus, store, deliverer, orchestrator.Config{
		Weights:  weights,
		Strategy: cfg.Orchestrator.Strategy,
	}, logger)
	respProc := responses.New(store, nil, agentsReg, jobsReg, bus, logger)

	var decompEngine *decomposition.Engine
	if completerAddr != "" {
		completer := external.NewHTTPCompleter(completerAddr, completerToken)
		var codeMapper external.CodeMapper
		if codeMapperAddr != "" {
			codeMapper = external.NewHTTPCodeMapper(codeMapperAddr, completerToken)
		}
		decompCfg := decomposition.DefaultConfig()
		decompCfg.ChunkSize = cfg.Decomposition.ChunkSize
		decompCfg.Atomicity.EffortCeilingHours = float64(cfg.Decomposition.AtomicHourCeiling)
		decompEngine = decomposition.New(completer, codeMapper, decompCfg)
	}

	deps := server.Deps{
		Storage:       store,
		Agents:        agentsReg,
		Jobs:          jobsReg,
		Orchestrator:  orch,
		Responses:     respProc,
		Decomposition: decompEngine,
		Logger:        logger,
		Authenticator: authenticator,
		PathValidator: pathValidator,
		Audit:         auditLog,
	}
	mux := server.NewMux(deps)

	var handler http.Handler = mux
	handler = httpmw.Metrics(handler)
	if authenticator != nil {
		handler = requireBearer(authenticator, handler)
	}
	handler = httpmw.Timeout(time.Duration(cfg.Timeouts.TaskExecutionMS) * time.Millisecond)(handler)
	handler = httpmw.BodyLimit(0)(handler)
	handler = httpmw.SecurityHeaders(handler)
	handler = httpmw.CORS(httpmw.CORSConfig{AllowedOrigins: []string{"*"}})(handler)
	handler = httpmw.Recovery(logger)(handler)
	handler = httpmw.Tracing(logger)(handler)

	transportMgr := transport.NewManager()
	if cfg.Transport.HTTP {
		if err := transportMgr.Register(transport.NewHTTP(cfg.Transport.HTTPAddr, handler, logger)); err != nil {
			return err
		}
	}
	if cfg.Transport.SSE {
		if err := transportMgr.Register(transport.NewSSE(cfg.Transport.SSEAddr, "/v1/events", bus, logger)); err != nil {
			return err
		}
	}
	if cfg.Transport.WebSocket {
		wsHandler := func(ctx context.Context, msg transport.WSMessage) {
			_, body := deps.HandleFrame(ctx, msg.Data)
			if err := msg.Conn.WriteMessage(websocket.TextMessage, body); err != nil {
				logger.WithError(err).Warn("websocket frame write failed")
			}
		}
		if err := transportMgr.Register(transport.NewWebSocket(cfg.Transport.WSAddr, "/v1/ws", wsHandler, logger)); err != nil {
			return err
		}
	}
	if cfg.Transport.Stdio {
		stdioHandler := func(ctx context.Context, req transport.Request) transport.Response {
			status, body := deps.DispatchFrame(ctx, req.Method, req.Body)
			return transport.Response{Status: status, Body: body}
		}
		if err := transportMgr.Register(transport.NewStdio(stdioHandler)); err != nil {
			return err
		}
	}

	sup := supervisor.New()
	if err := sup.Register(supervisor.NewFuncService("heartbeat-sweeper", func(ctx context.Context) {
		agents.RunHeartbeatSweeper(ctx, agentsReg, 10*time.Second, 30*time.Second, logger)
	})); err != nil {
		return err
	}
	if err := sup.Register(supervisor.NewFuncService("job-sweeper", func(ctx context.Context) {
		jobs.RunSweeper(ctx, jobsReg, time.Minute, logger)
	})); err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metrics.Handler())
		if err := transportMgr.Register(transport.NewHTTP(cfg.Metrics.Addr, metricsMux, logger)); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := transportMgr.Start(ctx); err != nil {
		return fmt.Errorf("start transports: %w", err)
	}
	if err := sup.Start(ctx); err != nil {
		return fmt.Errorf("start supervisor: %w", err)
	}

	logger.WithFields(map[string]interface{}{"addr": cfg.Transport.HTTPAddr}).Info("orchestratord ready")
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	_ = sup.Stop(shutdownCtx)
	_ = transportMgr.Stop(shutdownCtx)
	return nil
}

// newAuditLog builds the Security Gatekeeper's append-only audit trail
// (spec §4.2), persisting every record to an NDJSON file under the data
// directory alongside the in-memory ring buffer compliance reports read
// from.
func newAuditLog(cfg *config.Config, logger *logging.Logger) (*audit.Log, error) {
	if cfg.DataDir == "" {
		return audit.New(1000, nil, nil), nil
	}
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return nil, err
	}
	sink, err := audit.NewFileSink(filepath.Join(cfg.DataDir, "audit.ndjson"))
	if err != nil {
		return nil, err
	}
	auditLog := audit.New(1000, sink, nil)
	auditLog.OnAlert(func(r audit.Record) {
		logger.WithFields(map[string]interface{}{"actor": r.Actor, "type": r.Type}).Warn("audit cluster rule fired")
	})
	return auditLog, nil
}

func cacheConfig(cfg *config.Config) cache.Config {
	return cache.Config{
		Enabled: cfg.Cache.Enabled,
		MaxSize: cfg.Cache.MaxSize,
		TTL:     time.Duration(cfg.Cache.TTLSec) * time.Second,
	}
}

type agentOfflineNotifier struct{ bus *notify.Bus }

func (n agentOfflineNotifier) AgentOffline(agentID string, requeued []string) {
	n.bus.Broadcast("agentOffline", map[string]any{"agent_id": agentID, "requeued": requeued})
}

// requireBearer gates every route behind a valid JWT, used only when
// security.jwt_secret is configured; deployments without a secret run
// open (e.g. behind an upstream gateway that already authenticates).
func requireBearer(a *auth.Authenticator, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("Authorization")
		if len(token) < 8 || token[:7] != "Bearer " {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		session, err := a.Validate(token[7:])
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		r = r.WithContext(auth.WithSession(r.Context(), session))
		next.ServeHTTP(w, r)
	})
}
