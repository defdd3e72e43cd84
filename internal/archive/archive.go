// Package archive persists snapshots to PostgreSQL for offline study.
// Rows carry the exact serialized bundle bytes so archived output can
// be diffed against a live replay.
package archive

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/gate"
)

const (
	defaultHost      = "localhost"
	defaultPort      = 5432
	defaultSSLMode   = "disable"
	defaultBatchSize = 64
	defaultFlushMs   = 2_000
)

var ErrArchiverClosed = errors.New("archive: archiver closed")

// Config selects the database and the write batching behavior.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	// ConnString overrides the assembled DSN when set.
	ConnString string

	BatchSize    int
	FlushEveryMs int64
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = defaultHost
	}
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.SSLMode == "" {
		c.SSLMode = defaultSSLMode
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.FlushEveryMs <= 0 {
		c.FlushEveryMs = defaultFlushMs
	}
	return c
}

func (c Config) dsn() string {
	if c.ConnString != "" {
		return c.ConnString
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
	}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		} else {
			u.User = url.User(c.User)
		}
	}
	if c.Database != "" {
		u.Path = "/" + c.Database
	}

	query := url.Values{}
	query.Set("sslmode", c.SSLMode)
	u.RawQuery = query.Encode()

	return u.String()
}

// SnapshotRow is one symbol of one snapshot.
type SnapshotRow struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	Seq       uint64 `gorm:"index:idx_snapshot_seq"`
	TsMs      int64  `gorm:"index:idx_snapshot_ts"`
	Symbol    string `gorm:"size:32;index:idx_snapshot_symbol"`
	Bundle    []byte `gorm:"type:jsonb"`
	CreatedAt time.Time
}

func (SnapshotRow) TableName() string {
	return "snapshots"
}

// Archiver batches snapshot rows and writes them on a timer or when
// the batch fills, whichever comes first.
type Archiver struct {
	cfg Config
	db  *gorm.DB

	mu      sync.Mutex
	pending []SnapshotRow
	closed  bool
}

func New(cfg Config) (*Archiver, error) {
	cfg = cfg.withDefaults()

	db, err := gorm.Open(postgres.Open(cfg.dsn()), &gorm.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}

	if err := db.AutoMigrate(&SnapshotRow{}); err != nil {
		return nil, errors.Wrap(err, "migrate snapshots table")
	}

	return &Archiver{
		cfg:     cfg,
		db:      db,
		pending: make([]SnapshotRow, 0, cfg.BatchSize),
	}, nil
}

// Append queues one row per bundle in the snapshot. Rows are written
// asynchronously; a full batch triggers an immediate flush.
func (a *Archiver) Append(snap *gate.Snapshot) error {
	rows := rowsOf(snap)

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrArchiverClosed
	}
	a.pending = append(a.pending, rows...)
	full := len(a.pending) >= a.cfg.BatchSize
	a.mu.Unlock()

	if full {
		return a.Flush()
	}
	return nil
}

// Run flushes on the configured interval until ctx is done, then
// performs a final flush.
func (a *Archiver) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(a.cfg.FlushEveryMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := a.Flush(); err != nil {
				logs.Errorf("archive final flush: %+v", err)
			}
			return
		case <-ticker.C:
			if err := a.Flush(); err != nil {
				logs.Errorf("archive flush: %+v", err)
			}
		}
	}
}

// Flush writes all pending rows in one insert.
func (a *Archiver) Flush() error {
	a.mu.Lock()
	if len(a.pending) == 0 {
		a.mu.Unlock()
		return nil
	}
	rows := a.pending
	a.pending = make([]SnapshotRow, 0, a.cfg.BatchSize)
	a.mu.Unlock()

	if err := a.db.Create(&rows).Error; err != nil {
		return errors.Wrap(err, "insert snapshot rows").With("rows", len(rows))
	}
	return nil
}

// Close flushes pending rows and closes the connection pool.
func (a *Archiver) Close() error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()

	flushErr := a.Flush()

	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Close(); err != nil {
		return err
	}
	return flushErr
}

func rowsOf(snap *gate.Snapshot) []SnapshotRow {
	rows := make([]SnapshotRow, 0, len(snap.Bundles))
	for _, b := range snap.Bundles {
		rows = append(rows, SnapshotRow{
			Seq:    snap.Seq,
			TsMs:   snap.TsMs,
			Symbol: b.Symbol,
			Bundle: b.AppendJSON(nil),
		})
	}
	return rows
}
