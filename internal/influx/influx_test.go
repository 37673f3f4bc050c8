package influx

import (
	"bufio"
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/lagcomp/internal/config"
	"github.com/OCAP2/lagcomp/pkg/core"
)

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func lineProtocol(p *influxdb2_write.Point) string {
	return influxdb2_write.PointToLineProtocol(p, time.Nanosecond)
}

func unreachable(t *testing.T) config.InfluxConfig {
	return config.InfluxConfig{
		Enabled:    true,
		Host:       "127.0.0.1",
		Port:       "1",
		Protocol:   "http",
		Org:        "lagcomp",
		Bucket:     "lagcomp",
		BackupPath: filepath.Join(t.TempDir(), "backup", "influx.lp.gz"),
	}
}

func readBackup(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	defer gz.Close()

	var lines []string
	sc := bufio.NewScanner(gz)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	return lines
}

func TestSessionPoint(t *testing.T) {
	line := lineProtocol(SessionPoint(&core.SessionTrace{
		SessionID: "abc", Time: testTime, Tick: 640, Attacker: 3, Mode: core.ModeBounds,
		TargetTime: 9.5, Latency: 0.25, Candidates: 4, Mutated: 2, SkewCorrected: true,
	}))

	assert.True(t, strings.HasPrefix(line, "lagcomp_session,attacker=3,mode=bounds "))
	assert.Contains(t, line, "mutated=2i")
	assert.Contains(t, line, "skew_corrected=true")
	assert.Contains(t, line, `session_id="abc"`)
	assert.True(t, strings.HasSuffix(line, " 1772366400000000000"))
}

func TestBacktrackPoint(t *testing.T) {
	line := lineProtocol(BacktrackPoint(&core.BacktrackTrace{
		Time: testTime, Actor: 2, From: core.Vec3{X: 3}, To: core.Vec3{Y: 4}, Aborted: "teleport",
	}))

	assert.True(t, strings.HasPrefix(line, "lagcomp_backtrack,aborted=teleport,actor=2,recursive=false "))
	assert.Contains(t, line, "displacement=5")
}

func TestRestorePointSkipsEmptyKinds(t *testing.T) {
	line := lineProtocol(RestorePoint(&core.RestoreTrace{
		Time: testTime, Actor: 2, Origin: core.RestoreDelta, Final: core.Vec3{X: 1.5},
	}))

	assert.True(t, strings.HasPrefix(line, "lagcomp_restore,actor=2,origin=delta "))
	assert.NotContains(t, line, "pose=")
	assert.Contains(t, line, "final_x=1.5")
}

func TestPointTimeDefaultsToNow(t *testing.T) {
	before := time.Now()
	p := SessionPoint(&core.SessionTrace{})
	assert.False(t, p.Time().Before(before))
}

func TestConnectDisabled(t *testing.T) {
	m := NewManager(zerolog.Nop(), config.InfluxConfig{Enabled: false})
	assert.Error(t, m.Connect(t.Context()))
}

func TestWritePointWithoutConnect(t *testing.T) {
	m := NewManager(zerolog.Nop(), config.InfluxConfig{})
	assert.Error(t, m.WritePoint(SessionPoint(&core.SessionTrace{})))
}

func TestBackendFallsBackToBackupFile(t *testing.T) {
	cfg := unreachable(t)
	b := NewBackend(zerolog.Nop(), cfg)
	require.NoError(t, b.Init())
	assert.False(t, b.Manager().IsValid)

	require.NoError(t, b.RecordSession(&core.SessionTrace{SessionID: "s", Time: testTime, Attacker: 1}))
	require.NoError(t, b.RecordBacktrack(&core.BacktrackTrace{SessionID: "s", Time: testTime, Actor: 2}))
	require.NoError(t, b.RecordRestore(&core.RestoreTrace{SessionID: "s", Time: testTime, Actor: 2, Origin: core.RestoreExact}))
	require.NoError(t, b.Close())

	lines := readBackup(t, cfg.BackupPath)
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], MeasurementSession+","))
	assert.True(t, strings.HasPrefix(lines[1], MeasurementBacktrack+","))
	assert.True(t, strings.HasPrefix(lines[2], MeasurementRestore+","))
}

func TestBackupWithoutPath(t *testing.T) {
	cfg := unreachable(t)
	cfg.BackupPath = ""
	m := NewManager(zerolog.Nop(), cfg)
	assert.Error(t, m.Connect(t.Context()))
	assert.NoError(t, m.Close())
}
