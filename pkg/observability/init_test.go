package observability_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/gitgraft/pkg/observability"
)

func TestInit_NoopWithoutExporters(t *testing.T) {
	t.Parallel()

	providers, err := observability.Init(observability.DefaultConfig())
	require.NoError(t, err)

	_, span := providers.Tracer.Start(context.Background(), "gitgraft.stage.GitImport")
	assert.False(t, span.IsRecording())
	span.End()

	assert.Nil(t, providers.MetricsHandler)

	require.NoError(t, providers.Shutdown(context.Background()))
	require.NoError(t, providers.Shutdown(context.Background()))
}

func TestInit_PrometheusScrapeServesImportMetrics(t *testing.T) {
	t.Parallel()

	cfg := observability.DefaultConfig()
	cfg.Prometheus = true

	providers, err := observability.Init(cfg)
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, providers.Shutdown(context.Background())) })
	require.NotNil(t, providers.MetricsHandler)

	imports, err := observability.NewImportMetrics(providers.Meter)
	require.NoError(t, err)

	red, err := observability.NewREDMetrics(providers.Meter)
	require.NoError(t, err)

	ctx := context.Background()

	imports.RecordBatch(ctx, "GitImport", 3)
	imports.RecordStage(ctx, "PushCommit", time.Second, errors.New("rejected"))
	red.RecordRequest(ctx, "mcp.import_status", "ok", time.Millisecond)

	rec := httptest.NewRecorder()
	providers.MetricsHandler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "gitgraft_import_commits")
	assert.Contains(t, body, `stage="GitImport"`)
	assert.Contains(t, body, "gitgraft_import_stage_failures")
	assert.Contains(t, body, `stage="PushCommit"`)
	assert.Contains(t, body, "gitgraft_import_stage_duration")
	assert.Contains(t, body, "gitgraft_requests")
}

func TestInit_LogOutputReceivesScopedRecords(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	cfg := observability.DefaultConfig()
	cfg.LogJSON = true
	cfg.LogOutput = &buf
	cfg.Environment = "staging"

	providers, err := observability.Init(cfg)
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, providers.Shutdown(context.Background())) })

	ctx := observability.WithImportScope(context.Background(), "/srv/import.json", "BookmarkMove")
	providers.Logger.InfoContext(ctx, "stage BookmarkMove: commit 3 of 5")

	var line map[string]any

	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))

	assert.Equal(t, "stage BookmarkMove: commit 3 of 5", line["msg"])
	assert.Equal(t, "/srv/import.json", line["record"])
	assert.Equal(t, "BookmarkMove", line["stage"])
	assert.Equal(t, "gitgraft", line["service"])
	assert.Equal(t, "cli", line["mode"])
	assert.Equal(t, "staging", line["env"])
}

func TestInit_LogLevelFiltersOutput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	cfg := observability.DefaultConfig()
	cfg.LogLevel = slog.LevelWarn
	cfg.LogOutput = &buf

	providers, err := observability.Init(cfg)
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, providers.Shutdown(context.Background())) })

	providers.Logger.Info("resuming import")
	assert.Empty(t, buf.String())

	providers.Logger.Warn("observability shutdown failed")
	assert.Contains(t, buf.String(), "observability shutdown failed")
}

func TestBuildResource_IdentifiesService(t *testing.T) {
	t.Parallel()

	cfg := observability.DefaultConfig()
	cfg.Mode = observability.ModeMCP
	cfg.ServiceVersion = "1.4.0"

	res, err := observability.BuildResource(cfg)
	require.NoError(t, err)

	attrs := map[string]string{}
	for _, attr := range res.Attributes() {
		attrs[string(attr.Key)] = attr.Value.Emit()
	}

	assert.Equal(t, "gitgraft", attrs["service.name"])
	assert.Equal(t, "1.4.0", attrs["service.version"])
	assert.Equal(t, "mcp", attrs["app.mode"])
}

func TestParseOTLPHeaders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  map[string]string
	}{
		{"empty", "", nil},
		{"token", "authorization=Bearer abc", map[string]string{"authorization": "Bearer abc"}},
		{"trimmed pairs", " x-team = imports , x-env=prod ", map[string]string{"x-team": "imports", "x-env": "prod"}},
		{"skips malformed", "broken,x-env=prod", map[string]string{"x-env": "prod"}},
		{"only malformed", "broken", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, observability.ParseOTLPHeaders(tt.input))
		})
	}
}

// Sampler selection reads process env, so these cases run sequentially.
func TestSelectSampler(t *testing.T) {
	tests := []struct {
		name    string
		sampler string
		arg     string
		debug   bool
		want    bool
	}{
		{"default samples roots", "", "", false, true},
		{"always off", "always_off", "", false, false},
		{"full ratio", "traceidratio", "1.0", false, true},
		{"parent based off drops roots", "parentbased_always_off", "", false, false},
		{"debug overrides env", "always_off", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OTEL_TRACES_SAMPLER", tt.sampler)
			t.Setenv("OTEL_TRACES_SAMPLER_ARG", tt.arg)

			cfg := observability.DefaultConfig()
			cfg.DebugTrace = tt.debug

			assert.Equal(t, tt.want, observability.SamplesRootSpan(cfg))
		})
	}
}
