package main

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/pavelanni/essayeval/internal/agent"
	"github.com/pavelanni/essayeval/internal/cache"
	"github.com/pavelanni/essayeval/internal/evaluator"
	"github.com/pavelanni/essayeval/internal/llm"
	"github.com/pavelanni/essayeval/internal/llm/prompts"
	"github.com/pavelanni/essayeval/internal/model"
	"github.com/pavelanni/essayeval/internal/store"
	"github.com/pavelanni/essayeval/internal/synthesis"
)

// defaultBackend names the backend configured by the --llm-* flags.
const defaultBackend = "default"

const pingTimeout = 10 * time.Second

type pipeline struct {
	backends map[string]llm.Backend
	engine   *synthesis.Engine
	eval     *evaluator.Evaluator
}

func (p *pipeline) backendNames() []string {
	names := make([]string, 0, len(p.backends))
	for name := range p.backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// buildPipeline wires backends, agents, synthesis and the evaluator. repo may
// be nil, in which case results are neither stored nor used as a peer population.
func buildPipeline(ctx context.Context, v *viper.Viper, repo store.Repository) (*pipeline, error) {
	if err := prompts.Load(); err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	backends, err := buildBackends(v)
	if err != nil {
		return nil, err
	}
	settings, err := agentSettings(v)
	if err != nil {
		return nil, err
	}

	agents := make([]*agent.Agent, 0, len(model.Roles))
	used := make(map[string]llm.Backend)
	for _, role := range model.Roles {
		s := settings[role]
		b, ok := backends[s.Backend]
		if !ok {
			return nil, fmt.Errorf("agent %s: unknown backend %q", role, s.Backend)
		}
		used[s.Backend] = b
		agents = append(agents, agent.New(role, b, s))
		slog.Debug("configured agent", "role", role, "backend", s.Backend, "model", s.Model, "timeout", s.Timeout)
	}

	orch, err := agent.NewOrchestrator(agents...)
	if err != nil {
		return nil, fmt.Errorf("create orchestrator: %w", err)
	}

	if !v.GetBool("skip-ping") {
		if err := pingBackends(ctx, used); err != nil {
			return nil, err
		}
	}

	cmpCfg := synthesis.DefaultComparatorConfig()
	if err := v.UnmarshalKey("comparator", &cmpCfg); err != nil {
		return nil, fmt.Errorf("parse comparator config: %w", err)
	}

	var (
		pop   synthesis.Population
		saver evaluator.Saver
	)
	if repo != nil {
		pop = repo
		saver = repo
	}

	engine := synthesis.NewEngine(v.GetInt("feedback-cap"))
	return &pipeline{
		backends: backends,
		engine:   engine,
		eval:     evaluator.New(orch, engine, synthesis.NewComparator(cmpCfg, nil, pop), saver),
	}, nil
}

// buildBackends creates the default backend from flags plus any named
// backends listed under "backends" in the config file.
func buildBackends(v *viper.Viper) (map[string]llm.Backend, error) {
	cfgs := map[string]llm.Config{
		defaultBackend: {
			Kind:        v.GetString("llm-kind"),
			BaseURL:     v.GetString("llm-url"),
			APIKey:      v.GetString("llm-key"),
			Model:       v.GetString("llm-model"),
			RateLimit:   v.GetFloat64("llm-rate-limit"),
			Burst:       v.GetInt("llm-burst"),
			MaxInFlight: v.GetInt64("llm-max-in-flight"),
		},
	}
	var extra map[string]llm.Config
	if err := v.UnmarshalKey("backends", &extra); err != nil {
		return nil, fmt.Errorf("parse backends config: %w", err)
	}
	for name, c := range extra {
		cfgs[strings.ToLower(name)] = c
	}

	backends := make(map[string]llm.Backend, len(cfgs))
	for name, c := range cfgs {
		b, err := llm.New(c)
		if err != nil {
			return nil, fmt.Errorf("backend %s: %w", name, err)
		}
		backends[name] = b
	}
	return backends, nil
}

// agentSettings starts every role from the shared flags and applies the
// per-role overrides under "agents.<role>".
func agentSettings(v *viper.Viper) (map[model.Role]agent.Settings, error) {
	base := agent.Settings{
		Backend:     defaultBackend,
		Temperature: float32(v.GetFloat64("temperature")),
		MaxTokens:   v.GetInt("max-tokens"),
		Timeout:     v.GetDuration("agent-timeout"),
	}

	out := make(map[model.Role]agent.Settings, len(model.Roles))
	for _, role := range model.Roles {
		s := base
		if err := v.UnmarshalKey("agents."+string(role), &s); err != nil {
			return nil, fmt.Errorf("parse settings for agent %s: %w", role, err)
		}
		s.Backend = strings.ToLower(strings.TrimSpace(s.Backend))
		if s.Backend == "" {
			s.Backend = defaultBackend
		}
		out[role] = s
	}
	return out, nil
}

func pingBackends(ctx context.Context, backends map[string]llm.Backend) error {
	for name, b := range backends {
		p, ok := b.(llm.Pinger)
		if !ok {
			continue
		}
		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := p.Ping(pctx)
		cancel()
		if err != nil {
			return fmt.Errorf("backend %s health check: %w", name, err)
		}
		slog.Info("backend endpoint OK", "backend", name, "kind", b.Name())
	}
	return nil
}

func openRepository(ctx context.Context, v *viper.Viper) (store.Repository, error) {
	switch kind := strings.ToLower(strings.TrimSpace(v.GetString("store"))); kind {
	case "", "sqlite":
		db, err := store.New(v.GetString("db"))
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		return db, nil
	case "mongo", "mongodb":
		m, err := store.NewMongo(ctx, v.GetString("mongo-uri"), v.GetString("mongo-db"))
		if err != nil {
			return nil, fmt.Errorf("open mongodb: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown store %q", kind)
	}
}

// openCache returns the Redis cache when an address is configured and the
// in-process cache otherwise.
func openCache(ctx context.Context, v *viper.Viper) (cache.ResultCache, func(), error) {
	ttl := v.GetDuration("cache-ttl")
	addr := v.GetString("redis-addr")
	if addr == "" {
		return cache.NewMemory(ttl, v.GetInt("cache-size")), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: v.GetString("redis-password"),
		DB:       v.GetInt("redis-db"),
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	slog.Info("using redis result cache", "addr", addr, "ttl", ttl)
	return cache.NewRedis(client, ttl), func() { _ = client.Close() }, nil
}
