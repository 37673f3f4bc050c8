// Package postgres implements the trace Backend interface using GORM/PostgreSQL
// with internal queues and a background DB writer goroutine. Any gorm dialect
// works; the SQLite sink embeds this backend.
package postgres

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
	"github.com/OCAP2/lagcomp/internal/model/convert"
	"github.com/OCAP2/lagcomp/internal/queue"
	"github.com/OCAP2/lagcomp/pkg/core"
)

// DefaultFlushInterval is how often the writer drains the queues.
const DefaultFlushInterval = 2 * time.Second

// batchSize caps the rows per INSERT statement.
const batchSize = 500

var errNotInitialized = errors.New("trace backend not initialized")

// Dependencies holds all dependencies for the GORM trace backend.
type Dependencies struct {
	// DB is used as-is when set; otherwise Init connects with Config.
	DB            *gorm.DB
	Config        config.DBConfig
	Info          model.ServerInfo
	Logger        *slog.Logger
	FlushInterval time.Duration
}

// queues holds the write queues for batch DB insertion.
type queues struct {
	Sessions   *queue.Queue[model.Session]
	Backtracks *queue.Queue[model.Backtrack]
	Restores   *queue.Queue[model.Restore]
}

func newQueues() *queues {
	return &queues{
		Sessions:   queue.New[model.Session](),
		Backtracks: queue.New[model.Backtrack](),
		Restores:   queue.New[model.Restore](),
	}
}

// Backend implements trace.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps     Dependencies
	queues   *queues
	stopChan chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a new GORM trace backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	return &Backend{
		deps: deps,
	}
}

// Init creates internal queues, runs schema migration, and starts the DB writer goroutine.
// If no DB was injected via Dependencies, it creates its own postgres connection.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		db, err := database.OpenPostgres(b.deps.Config)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to access sql interface: %w", err)
		}
		if err = sqlDB.Ping(); err != nil {
			return fmt.Errorf("failed to validate connection: %w", err)
		}
		sqlDB.SetMaxOpenConns(10)
		b.deps.DB = db
	}

	b.deps.Logger.Info("Migrating schema", "dialect", b.deps.DB.Name())
	if err := database.Migrate(b.deps.DB, b.deps.Info); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	b.queues = newQueues()
	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.writerLoop()
	return nil
}

// Close stops the DB writer goroutine and writes whatever is still queued.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	b.stopOnce.Do(func() {
		close(b.stopChan)
		<-b.done
	})
	return b.Flush()
}

// DB returns the connection the backend writes to.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// RecordSession converts and queues a session.
func (b *Backend) RecordSession(s *core.SessionTrace) error {
	if b.queues == nil {
		return errNotInitialized
	}
	b.queues.Sessions.Push(convert.SessionToModel(*s))
	return nil
}

// RecordBacktrack converts and queues a backtrack.
func (b *Backend) RecordBacktrack(t *core.BacktrackTrace) error {
	if b.queues == nil {
		return errNotInitialized
	}
	b.queues.Backtracks.Push(convert.BacktrackToModel(*t))
	return nil
}

// RecordRestore converts and queues a restore.
func (b *Backend) RecordRestore(r *core.RestoreTrace) error {
	if b.queues == nil {
		return errNotInitialized
	}
	b.queues.Restores.Push(convert.RestoreToModel(*r))
	return nil
}

// Pending returns the number of rows waiting for the writer.
func (b *Backend) Pending() int {
	if b.queues == nil {
		return 0
	}
	return b.queues.Sessions.Len() + b.queues.Backtracks.Len() + b.queues.Restores.Len()
}

// Flush writes every queued row now. Failed batches stay queued and the
// errors are returned joined.
func (b *Backend) Flush() error {
	if b.queues == nil {
		return errNotInitialized
	}
	log := b.deps.Logger
	return errors.Join(
		writeQueue(b.deps.DB, b.queues.Sessions, "sessions", log),
		writeQueue(b.deps.DB, b.queues.Backtracks, "backtracks", log),
		writeQueue(b.deps.DB, b.queues.Restores, "restores", log),
	)
}

// writerLoop periodically drains queues into the DB until Close.
func (b *Backend) writerLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			_ = b.Flush()
		}
	}
}

// writeQueue writes everything queued in one transaction, batchSize rows per
// insert. On failure the rows go back to the front of the queue.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log *slog.Logger) error {
	items := q.Drain()
	if len(items) == 0 {
		return nil
	}

	tx := db.Begin()
	if err := tx.CreateInBatches(&items, batchSize).Error; err != nil {
		log.Error("Error creating rows", "table", name, "count", len(items), "error", err)
		tx.Rollback()
		q.Requeue(items...)
		return fmt.Errorf("failed to write %s: %w", name, err)
	}

	if err := tx.Commit().Error; err != nil {
		q.Requeue(items...)
		return fmt.Errorf("failed to commit %s: %w", name, err)
	}
	log.Debug("Wrote rows", "table", name, "count", len(items))
	return nil
}
