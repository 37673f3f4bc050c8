package memory

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/OCAP2/lagcomp/pkg/core"
)

// TraceExport is the root JSON structure
type TraceExport struct {
	Name       string        `json:"name"`
	StartedAt  time.Time     `json:"startedAt"`
	ExportedAt time.Time     `json:"exportedAt"`
	Sessions   []SessionJSON `json:"sessions"`
}

// SessionJSON is one session with its backtracks and restores inlined
type SessionJSON struct {
	core.SessionTrace
	Backtracks []core.BacktrackTrace `json:"backtracks"`
	Restores   []core.RestoreTrace   `json:"restores"`
}

// exportJSON writes the recording to a JSON file, zstd-compressed when
// configured. Callers hold mu.
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	name := strings.ReplaceAll(b.name, " ", "_")
	name = strings.ReplaceAll(name, ":", "_")
	timestamp := b.startedAt.Format("20060102_150405")

	var filename string
	if b.cfg.CompressOutput {
		filename = fmt.Sprintf("%s_%s.json.zst", name, timestamp)
	} else {
		filename = fmt.Sprintf("%s_%s.json", name, timestamp)
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if b.cfg.CompressOutput {
		if err := writeZstdJSON(outputPath, export); err != nil {
			return err
		}
	} else {
		if err := writeJSON(outputPath, export); err != nil {
			return err
		}
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildExport() TraceExport {
	export := TraceExport{
		Name:       b.name,
		StartedAt:  b.startedAt,
		ExportedAt: time.Now(),
		Sessions:   make([]SessionJSON, 0, len(b.order)),
	}

	for _, id := range b.order {
		rec := b.sessions[id]
		s := SessionJSON{
			SessionTrace: rec.Session,
			Backtracks:   rec.Backtracks,
			Restores:     rec.Restores,
		}
		if s.Backtracks == nil {
			s.Backtracks = []core.BacktrackTrace{}
		}
		if s.Restores == nil {
			s.Restores = []core.RestoreTrace{}
		}
		export.Sessions = append(export.Sessions, s)
	}

	return export
}

func writeJSON(path string, data TraceExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(data)
}

func writeZstdJSON(path string, data TraceExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	if err := json.NewEncoder(enc).Encode(data); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// ReadExport loads an export written by Close, compressed or not.
func ReadExport(path string) (TraceExport, error) {
	var export TraceExport

	f, err := os.Open(path)
	if err != nil {
		return export, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return export, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer dec.Close()
		r = dec
	}

	if err := json.NewDecoder(r).Decode(&export); err != nil {
		return export, fmt.Errorf("failed to decode export: %w", err)
	}
	return export, nil
}
