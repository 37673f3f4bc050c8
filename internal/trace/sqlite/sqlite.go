// Package sqlitetrace implements the trace Backend interface using an
// in-memory SQLite database with periodic disk dumps via VACUUM INTO.
// It wraps the GORM backend; the SQLite-specific parts are the in-memory
// DB and the dump loop.
package sqlitetrace

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/OCAP2/lagcomp/internal/config"
	"github.com/OCAP2/lagcomp/internal/database"
	"github.com/OCAP2/lagcomp/internal/model"
	pgtrace "github.com/OCAP2/lagcomp/internal/trace/postgres"
)

// Backend wraps the GORM backend for SQLite-specific behavior.
type Backend struct {
	*pgtrace.Backend
	db       *gorm.DB
	cfg      config.SQLiteConfig
	log      *slog.Logger
	stopChan chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	started  bool
}

// New creates a new SQLite trace backend over a fresh in-memory database.
func New(cfg config.SQLiteConfig, info model.ServerInfo, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := database.OpenSQLite("")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite DB: %w", err)
	}

	gormBackend := pgtrace.New(pgtrace.Dependencies{
		DB:     db,
		Info:   info,
		Logger: logger,
	})

	return &Backend{
		Backend:  gormBackend,
		db:       db,
		cfg:      cfg,
		log:      logger,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Init initializes the embedded GORM backend and starts the dump goroutine.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}
	b.started = true

	if b.cfg.DumpPath != "" && b.cfg.DumpInterval > 0 {
		go b.dumpLoop()
	} else {
		close(b.done)
	}

	return nil
}

// Close stops the dump goroutine, flushes the GORM backend and writes a
// final dump when a dump path is configured.
func (b *Backend) Close() error {
	if !b.started {
		return nil
	}
	b.stopOnce.Do(func() {
		close(b.stopChan)
	})
	<-b.done

	err := b.Backend.Close()
	if b.cfg.DumpPath != "" {
		err = errors.Join(err, b.Dump())
	}
	return err
}

// Dump flushes queued rows and snapshots the database to DumpPath.
func (b *Backend) Dump() error {
	if err := b.Backend.Flush(); err != nil {
		return err
	}
	return database.DumpMemoryDBToDisk(b.db, b.cfg.DumpPath)
}

// ExportedFilePath returns the dump location.
func (b *Backend) ExportedFilePath() string {
	return b.cfg.DumpPath
}

// dumpLoop periodically dumps the in-memory SQLite database to disk via VACUUM INTO.
// VACUUM INTO creates a point-in-time snapshot, so no pause mechanism is needed.
func (b *Backend) dumpLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			start := time.Now()
			if err := b.Dump(); err != nil {
				b.log.Error("Error dumping to disk", "path", b.cfg.DumpPath, "error", err)
			} else {
				b.log.Debug("Dumped to disk", "path", b.cfg.DumpPath, "duration", time.Since(start))
			}
		}
	}
}
