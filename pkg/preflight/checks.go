package preflight

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"fortuneteller/pkg/config"
	"fortuneteller/pkg/persistence"
	"fortuneteller/pkg/session/redis"
)

func checkModel(ctx context.Context, ref config.ProviderRef, baseURL string, timeout time.Duration) CheckResult {
	result := CheckResult{Area: AreaLLM, Target: ref.String(), Provider: ref.Provider}

	switch ref.Provider {
	case config.ProviderMock:
		result.Passed = true
		result.Message = "offline mock model, readings are canned"
		return result
	case config.ProviderOllama:
		host, _ := config.APIKeyFor(ref.Provider)
		if baseURL != "" {
			host = baseURL
		}
		return checkOllama(ctx, result, host, ref.Model, timeout)
	case config.ProviderBedrock:
		if err := config.CheckBedrockCredentials(); err != nil {
			result.Message = "AWS credentials are not set"
			result.Error = err
			return result
		}
		result.Passed = true
		result.Message = fmt.Sprintf("AWS credentials found (region %s)", ref.Region)
		return result
	}

	if _, err := config.APIKeyFor(ref.Provider); err != nil {
		result.Message = fmt.Sprintf("%s is not set", config.KeyNameFor(ref.Provider))
		result.Error = err
		return result
	}
	result.Passed = true
	result.Message = "API key is configured"
	return result
}

// checkOllama verifies the server answers and has the model pulled.
func checkOllama(ctx context.Context, result CheckResult, host, model string, timeout time.Duration) CheckResult {
	u, err := url.Parse(host)
	if err != nil || u.Host == "" {
		result.Message = fmt.Sprintf("invalid Ollama host %q", host)
		result.Error = fmt.Errorf("invalid host: %s", host)
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	list, err := api.NewClient(u, &http.Client{Timeout: timeout}).List(ctx)
	if err != nil {
		result.Message = fmt.Sprintf("cannot reach Ollama at %s", u)
		result.Error = err
		return result
	}

	for _, m := range list.Models {
		if sameOllamaModel(m.Name, model) || sameOllamaModel(m.Model, model) {
			result.Passed = true
			result.Message = fmt.Sprintf("Ollama is running with %s available", model)
			return result
		}
	}
	result.Message = fmt.Sprintf("model %s is not pulled (%d models available)", model, len(list.Models))
	result.Error = fmt.Errorf("missing model: %s", model)
	return result
}

// sameOllamaModel treats an untagged name as :latest.
func sameOllamaModel(have, want string) bool {
	norm := func(s string) string {
		if s != "" && !strings.Contains(s, ":") {
			return s + ":latest"
		}
		return s
	}
	return norm(have) == norm(want)
}

func checkSession(ctx context.Context, s config.SessionSettings, timeout time.Duration) CheckResult {
	result := CheckResult{Area: AreaSession, Target: "session:" + s.Backend}

	switch s.Backend {
	case "", "memory":
		result.Passed = true
		result.Message = "in-process memory store"
		return result
	case "redis":
	default:
		result.Message = fmt.Sprintf("unknown backend %q", s.Backend)
		result.Error = fmt.Errorf("unknown session backend: %s", s.Backend)
		return result
	}

	if s.RedisAddr == "" {
		result.Message = "session.redis_addr is not set"
		result.Error = fmt.Errorf("missing redis_addr")
		return result
	}
	store := redis.New(s.RedisAddr, s.RedisPassword, s.RedisDB)
	defer func() { _ = store.Close() }()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		result.Message = fmt.Sprintf("cannot reach Redis at %s", s.RedisAddr)
		result.Error = err
		return result
	}
	result.Passed = true
	result.Message = fmt.Sprintf("Redis is reachable at %s", s.RedisAddr)
	return result
}

func checkArchive(path string) CheckResult {
	result := CheckResult{Area: AreaStorage, Target: "database"}
	if path == "" || path == persistence.MemoryPath {
		result.Passed = true
		result.Message = "in-memory archive, history is not kept"
		return result
	}

	archive, err := persistence.Open(path)
	if err != nil {
		result.Message = fmt.Sprintf("cannot open %s", path)
		result.Error = err
		return result
	}
	defer func() { _ = archive.Close() }()

	version, err := persistence.GetSchemaVersion(archive.DB())
	if err != nil {
		result.Message = "cannot read the schema version"
		result.Error = err
		return result
	}
	result.Passed = true
	result.Message = fmt.Sprintf("%s is ready (schema v%d)", path, version)
	return result
}

// checkDir creates dir if needed and proves it is writable.
func checkDir(name, dir string) CheckResult {
	result := CheckResult{Area: AreaStorage, Target: name}
	if err := os.MkdirAll(dir, 0755); err != nil {
		result.Message = fmt.Sprintf("cannot create %s", dir)
		result.Error = err
		return result
	}
	f, err := os.CreateTemp(dir, ".preflight-*")
	if err != nil {
		result.Message = fmt.Sprintf("%s is not writable", dir)
		result.Error = err
		return result
	}
	_ = f.Close()
	_ = os.Remove(f.Name())

	result.Passed = true
	result.Message = fmt.Sprintf("%s is writable", dir)
	return result
}

func checkPlugins(r PluginReport) CheckResult {
	result := CheckResult{Area: AreaPlugins, Target: "plugins"}
	names := r.Names()
	errs := r.LoadErrors()

	if len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, le := range errs {
			msgs = append(msgs, le.Error())
		}
		result.Message = strings.Join(msgs, "; ")
		result.Error = errs[0]
		return result
	}
	if len(names) == 0 {
		result.Message = "no divination systems are enabled"
		result.Error = fmt.Errorf("no plugins")
		return result
	}
	result.Passed = true
	result.Message = fmt.Sprintf("%d systems loaded: %s", len(names), strings.Join(names, ", "))
	return result
}
