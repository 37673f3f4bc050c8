package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/lagcomp/internal/config"
	"github.com/OCAP2/lagcomp/internal/monitor"
)

func TestRun_MemorySinkEndToEnd(t *testing.T) {
	t.Cleanup(viper.Reset)
	dir := t.TempDir()
	logsDir := filepath.Join(dir, "logs")
	tracesDir := filepath.Join(dir, "traces")

	uploaded := make(chan string, 1)
	viewer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthcheck" {
			w.WriteHeader(http.StatusOK)
			return
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		uploaded <- r.FormValue("filename")
		w.WriteHeader(http.StatusOK)
	}))
	defer viewer.Close()

	cfg := map[string]any{
		"logsDir":  logsDir,
		"logLevel": "debug",
		"lagcomp":  map[string]any{"debug": true},
		"sim":      map[string]any{"fireInterval": 2, "statusEvery": "50ms"},
		"trace": map[string]any{
			"type":   "memory",
			"memory": map[string]any{"outputDir": tracesDir, "compressOutput": false},
		},
		"influx": map[string]any{"enabled": false},
		"upload": map[string]any{"url": viewer.URL, "apiKey": "k"},
	}
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), data, 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 600*time.Millisecond)
	defer cancel()
	require.NoError(t, run(ctx, options{configDir: dir, seed: 3}))

	logs, err := filepath.Glob(filepath.Join(logsDir, ServiceName+".*.log"))
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	raw, err := os.ReadFile(filepath.Join(logsDir, ServiceName+".status.json"))
	require.NoError(t, err)
	var st monitor.Status
	require.NoError(t, json.Unmarshal(raw, &st))
	assert.Equal(t, "memory", st.Sink)
	assert.Positive(t, st.Tick)
	assert.Positive(t, st.Sessions)
	assert.False(t, st.Active)

	exports, err := filepath.Glob(filepath.Join(tracesDir, ServiceName+"_*.json"))
	require.NoError(t, err)
	require.Len(t, exports, 1)

	select {
	case name := <-uploaded:
		assert.Equal(t, filepath.Base(exports[0]), name)
	default:
		t.Fatal("trace was not uploaded")
	}
}
