// Package daemon wires every Anna component into one long-lived process:
// the LLM oracle, the Tool Catalog, the Orchestrator, the Fix-It driver,
// the Fact Store, the Historian, the Insights/Recipe engines, the
// Knowledge Base, and the progression/stats tracker. It exposes the
// result as an rpcserver.Handler so the JSON-RPC transport never has to
// know how any one component is built.
package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/annassistant/anna/internal/audit"
	"github.com/annassistant/anna/internal/caseindex"
	"github.com/annassistant/anna/internal/config"
	"github.com/annassistant/anna/internal/factstore"
	"github.com/annassistant/anna/internal/fixit"
	"github.com/annassistant/anna/internal/historian"
	"github.com/annassistant/anna/internal/insights"
	"github.com/annassistant/anna/internal/knowledge"
	"github.com/annassistant/anna/internal/llmclient"
	"github.com/annassistant/anna/internal/middleware"
	"github.com/annassistant/anna/internal/orchestrator"
	"github.com/annassistant/anna/internal/recipes"
	"github.com/annassistant/anna/internal/retry"
	"github.com/annassistant/anna/internal/rollback"
	"github.com/annassistant/anna/internal/rpcserver"
	"github.com/annassistant/anna/internal/stats"
	"github.com/annassistant/anna/internal/toolcatalog"
	"github.com/annassistant/anna/pkg/types"
)

// Daemon holds every component annad drives for the lifetime of the
// process. Nothing outside this package reaches into a component
// directly; the RPC handlers below are the only callers.
type Daemon struct {
	cfg    *config.Config
	log    *zap.Logger
	audit  audit.Logger

	llm         llmclient.Client
	catalog     *toolcatalog.Catalog
	orch        *orchestrator.Orchestrator
	fixitDriver *fixit.Driver
	rollbackLog *rollback.Log
	facts       *factstore.Store
	hist        *historian.Historian
	insightsEng *insights.Engine
	recipeMgr   *recipes.Manager
	recipeState *recipes.EngineState
	kb          *knowledge.Base
	statsEng    *stats.Engine
	cases       *caseindex.Index

	rateLimiter *middleware.RateLimiter
	stream      *rpcserver.Hub

	mu           sync.Mutex
	fixitSess    map[string]*types.FixItSession
	intakeSess   map[string]*intakeSession
	recentAdvice map[string]types.Insight

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startedAt time.Time
}

// New builds a Daemon from cfg, wiring every component in dependency
// order. The returned Daemon has not started any background work yet;
// call Start to begin serving.
func New(cfg *config.Config, log *zap.Logger, auditLogger audit.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Daemon{
		cfg:          cfg,
		log:          log,
		audit:        auditLogger,
		fixitSess:    make(map[string]*types.FixItSession),
		intakeSess:   make(map[string]*intakeSession),
		recentAdvice: make(map[string]types.Insight),
		ctx:          ctx,
		cancel:       cancel,
	}

	if err := d.initializeComponents(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return d, nil
}

// initializeComponents builds every stateful component, in the order each
// depends on the last: on-disk layout, LLM client, Tool Catalog, the
// stores the Orchestrator and Fix-It driver read and write, then the two
// request-serving components themselves.
func (d *Daemon) initializeComponents() error {
	root := d.cfg.State.Root

	// 1. Ensure the on-disk state layout exists.
	dirs := []string{
		root,
		filepath.Join(root, "journal"),
		filepath.Join(root, "mutations", "files"),
		filepath.Join(root, "recipes"),
		filepath.Join(root, "recipes", "internal"),
		filepath.Join(root, "historian"),
		filepath.Join(root, "stats"),
		filepath.Join(root, "fixit", "cases"),
		filepath.Dir(d.cfg.Logging.AuditPath),
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state directory %s: %w", dir, err)
		}
	}

	// 2. LLM oracle.
	retryPolicy := retry.Policy{
		MaxAttempts: d.cfg.Retry.MaxAttempts,
		BaseDelay:   time.Duration(d.cfg.Retry.BaseDelayMS) * time.Millisecond,
		MaxDelay:    time.Duration(d.cfg.Retry.MaxDelayMS) * time.Millisecond,
		Factor:      2.0,
		JitterFrac:  0.10,
	}
	llm, err := newLLMClient(d.cfg, retryPolicy)
	if err != nil {
		return fmt.Errorf("initialize LLM client: %w", err)
	}
	if d.cfg.LLM.ResponseCacheTTLSeconds > 0 {
		llm = llmclient.NewCached(llm, time.Duration(d.cfg.LLM.ResponseCacheTTLSeconds)*time.Second)
	}
	d.llm = llm

	// 3. Tool Catalog (always on; every tool is read-only except the
	// Mutation Engine's own sandboxed writes, which go through Fix-It).
	d.catalog = toolcatalog.NewCatalog()

	// 4. Orchestrator (Plan/Execute/Interpret over the LLM + Tool Catalog).
	d.orch = orchestrator.New(d.llm, d.catalog)

	// 5. Rollback log, Fact Store, Historian, Recipe catalog, Knowledge
	// Base, progression tracker -- the durable stores everything else
	// reads from and writes to.
	d.rollbackLog = rollback.NewLog(filepath.Join(root, "mutations", "log.jsonl"))

	facts, err := factstore.Load(filepath.Join(root, "facts.json"))
	if err != nil {
		return fmt.Errorf("load fact store: %w", err)
	}
	d.facts = facts

	d.hist = historian.NewAt(filepath.Join(root, "historian"))
	d.insightsEng = insights.New(d.hist)

	recipeMgr, err := recipes.LoadManager(filepath.Join(root, "recipes", "catalog.json"))
	if err != nil {
		return fmt.Errorf("load recipe catalog: %w", err)
	}
	d.recipeMgr = recipeMgr

	recipeState, err := recipes.LoadState(filepath.Join(root, "recipes", "internal", "recipe_engine_state.json"))
	if err != nil {
		return fmt.Errorf("load recipe engine state: %w", err)
	}
	d.recipeState = recipeState

	kb, err := knowledge.Load(filepath.Join(root, "hardware_state.json"))
	if err != nil {
		return fmt.Errorf("load knowledge base: %w", err)
	}
	d.kb = kb

	statsEng, err := stats.Load(filepath.Join(root, "stats", "anna_stats.json"))
	if err != nil {
		return fmt.Errorf("load stats engine: %w", err)
	}
	d.statsEng = statsEng

	// 6. Fix-It driver -- the bounded troubleshooting state machine. It
	// shares the Tool Catalog, LLM oracle, and rollback log with the
	// Orchestrator and carries the Mutation Engine's sandbox boundaries.
	d.fixitDriver = fixit.NewDriver(d.catalog, d.llm, d.rollbackLog,
		d.cfg.Mutation.SandboxRoot, d.cfg.Mutation.HomeDir, d.cfg.Mutation.BackupDir)

	cases, err := caseindex.Load(filepath.Join(root, "fixit", "cases"))
	if err != nil {
		return fmt.Errorf("load case index: %w", err)
	}
	d.cases = cases

	// 7. A rate limiter held for the daemon's lifetime and stopped on
	// shutdown. No request is checked against it; rpcserver applies its
	// own per-connection limiter.
	d.rateLimiter = middleware.NewRateLimiter(120)

	d.startedAt = time.Now()
	return nil
}

// SetStream wires the Fix-It live-progress hub once the RPC transport has
// built one. Called from cmd/annad between rpcserver.New and Start; if
// never called, stepFixIt's Publish calls are simply no-ops.
func (d *Daemon) SetStream(hub *rpcserver.Hub) {
	d.stream = hub
}

func (d *Daemon) publish(event rpcserver.StreamEvent) {
	if d.stream == nil {
		return
	}
	d.stream.Publish(event)
}

func newLLMClient(cfg *config.Config, policy retry.Policy) (llmclient.Client, error) {
	switch cfg.LLM.Provider {
	case "ollama":
		baseURL, _ := cfg.LLM.Ollama["base_url"].(string)
		model, _ := cfg.LLM.Ollama["model"].(string)
		return llmclient.NewOllamaClient(baseURL, model, llmclient.WithRetryPolicy(policy)), nil
	case "openai":
		model, _ := cfg.LLM.OpenAI["model"].(string)
		apiKey, _ := cfg.LLM.OpenAI["api_key"].(string)
		baseURL, _ := cfg.LLM.OpenAI["base_url"].(string)
		return llmclient.New(llmclient.Config{Type: llmclient.ProviderOpenAI, Model: model, APIKey: apiKey, BaseURL: baseURL}), nil
	case "anthropic":
		model, _ := cfg.LLM.Anthropic["model"].(string)
		apiKey, _ := cfg.LLM.Anthropic["api_key"].(string)
		baseURL, _ := cfg.LLM.Anthropic["base_url"].(string)
		return llmclient.New(llmclient.Config{Type: llmclient.ProviderAnthropic, Model: model, APIKey: apiKey, BaseURL: baseURL}), nil
	case "custom":
		model, _ := cfg.LLM.Custom["model"].(string)
		apiKey, _ := cfg.LLM.Custom["api_key"].(string)
		baseURL, _ := cfg.LLM.Custom["base_url"].(string)
		if baseURL == "" {
			return nil, fmt.Errorf("custom llm provider requires base_url")
		}
		return llmclient.New(llmclient.Config{Type: llmclient.ProviderCustom, Model: model, APIKey: apiKey, BaseURL: baseURL}), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

// Start begins background maintenance: every 10 minutes it runs the
// fact-store lifecycle sweep, prunes archived facts, and saves the fact
// store. It does not open the RPC socket; that is
// rpcserver's job, driven from cmd/annad.
func (d *Daemon) Start() {
	d.wg.Add(1)
	go d.runMaintenance()
}

func (d *Daemon) runMaintenance() {
	defer d.wg.Done()
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			d.facts.ApplyLifecycle(now)
			if n := d.facts.PruneArchived(); n > 0 {
				d.log.Info("pruned archived facts", zap.Int("count", n))
			}
			if err := d.facts.Save(); err != nil {
				d.log.Warn("failed to save fact store", zap.Error(err))
			}
		}
	}
}

// Stop cancels background work and flushes every durable store. It does
// not close the RPC listener; the caller (cmd/annad) shuts that down
// first so no new request arrives mid-flush.
func (d *Daemon) Stop() error {
	d.cancel()
	d.wg.Wait()
	d.rateLimiter.Stop()

	var errs []error
	if err := d.facts.Save(); err != nil {
		errs = append(errs, fmt.Errorf("save fact store: %w", err))
	}
	if err := d.recipeMgr.Save(); err != nil {
		errs = append(errs, fmt.Errorf("save recipe catalog: %w", err))
	}
	if err := d.recipeState.Save(); err != nil {
		errs = append(errs, fmt.Errorf("save recipe engine state: %w", err))
	}
	if err := d.kb.Save(); err != nil {
		errs = append(errs, fmt.Errorf("save knowledge base: %w", err))
	}
	if err := d.statsEng.Save(); err != nil {
		errs = append(errs, fmt.Errorf("save stats engine: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors while stopping daemon: %v", errs)
	}
	return nil
}
