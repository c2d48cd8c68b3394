// Package backup takes nightly encrypted snapshots of the SQLite
// database and ships them to S3-compatible storage. Snapshots are
// encrypted with a server-side passphrase before upload; retention is
// enforced against the object listing, so no local state survives a
// redeploy.
package backup

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dukerupert/homeguard/internal/release"
)

const keyPrefix = "backups/"

// s3Client is the slice of the S3 API the manager uses.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Config holds snapshot settings. The zero Hour means midnight UTC.
type Config struct {
	S3            release.S3Config
	DBPath        string
	Passphrase    string
	Hour          int
	RetentionDays int
}

// Status is what the admin dashboard sees.
type Status struct {
	Enabled    bool       `json:"enabled"`
	InProgress bool       `json:"in_progress"`
	LastBackup *time.Time `json:"last_backup,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
}

// Manager runs the snapshot schedule.
type Manager struct {
	cfg    Config
	db     *sql.DB
	client s3Client
	logger *slog.Logger

	mu         sync.Mutex
	inProgress bool
	lastBackup *time.Time
	lastError  string

	cancel context.CancelFunc
	done   chan struct{}
}

func NewManager(cfg Config, db *sql.DB, logger *slog.Logger) *Manager {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 30
	}
	m := &Manager{cfg: cfg, db: db, logger: logger}
	if cfg.Passphrase != "" && cfg.S3.Bucket != "" && cfg.S3.AccessKey != "" && cfg.S3.SecretKey != "" {
		opts := s3.Options{
			Region:       cfg.S3.Region,
			Credentials:  credentials.NewStaticCredentialsProvider(cfg.S3.AccessKey, cfg.S3.SecretKey, ""),
			UsePathStyle: true,
		}
		if cfg.S3.Endpoint != "" {
			opts.BaseEndpoint = aws.String(cfg.S3.Endpoint)
		}
		m.client = s3.New(opts)
	}
	return m
}

// Enabled reports whether snapshot storage and a passphrase are configured.
func (m *Manager) Enabled() bool {
	return m.client != nil
}

// Start begins the nightly schedule. No-op when not configured.
func (m *Manager) Start(ctx context.Context) {
	if !m.Enabled() {
		m.logger.Warn("database backups disabled, storage or passphrase not configured")
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				now = now.UTC()
				if now.Hour() != m.cfg.Hour || now.Minute() != 0 {
					continue
				}
				if err := m.Run(ctx); err != nil {
					m.logger.Error("scheduled backup", "error", err)
				}
			}
		}
	}()
}

// Stop halts the schedule and waits for it to wind down.
func (m *Manager) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Enabled:    m.Enabled(),
		InProgress: m.inProgress,
		LastBackup: m.lastBackup,
		LastError:  m.lastError,
	}
}

// Run takes one snapshot now: checkpoint the WAL, copy the database
// file, encrypt the copy, upload it, then prune old snapshots.
func (m *Manager) Run(ctx context.Context) error {
	if !m.Enabled() {
		return fmt.Errorf("backups not configured")
	}

	m.mu.Lock()
	if m.inProgress {
		m.mu.Unlock()
		return fmt.Errorf("backup already in progress")
	}
	m.inProgress = true
	m.mu.Unlock()

	err := m.snapshot(ctx)

	m.mu.Lock()
	m.inProgress = false
	if err != nil {
		m.lastError = err.Error()
	} else {
		now := time.Now().UTC()
		m.lastBackup = &now
		m.lastError = ""
	}
	m.mu.Unlock()
	return err
}

func (m *Manager) snapshot(ctx context.Context) error {
	stamp := time.Now().UTC().Format("2006-01-02T150405Z")
	key := fmt.Sprintf("%shomeguard-%s.db.enc", keyPrefix, stamp)

	tmpDir := os.TempDir()
	dbCopy := filepath.Join(tmpDir, fmt.Sprintf("homeguard-snapshot-%s.db", stamp))
	encFile := dbCopy + ".enc"
	defer os.Remove(dbCopy)
	defer os.Remove(encFile)

	if _, err := m.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	if err := copyFile(m.cfg.DBPath, dbCopy); err != nil {
		return fmt.Errorf("copy database: %w", err)
	}
	if err := encryptFile(dbCopy, encFile, m.cfg.Passphrase); err != nil {
		return fmt.Errorf("encrypt snapshot: %w", err)
	}

	f, err := os.Open(encFile)
	if err != nil {
		return fmt.Errorf("open encrypted snapshot: %w", err)
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat encrypted snapshot: %w", err)
	}

	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.cfg.S3.Bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(stat.Size()),
	})
	if err != nil {
		return fmt.Errorf("upload snapshot: %w", err)
	}
	m.logger.Info("database snapshot uploaded", "key", key, "bytes", stat.Size())

	if err := m.prune(ctx); err != nil {
		m.logger.Error("prune old snapshots", "error", err)
	}
	return nil
}

// prune deletes snapshots past the retention window.
func (m *Manager) prune(ctx context.Context) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -m.cfg.RetentionDays)

	out, err := m.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(m.cfg.S3.Bucket),
		Prefix: aws.String(keyPrefix),
	})
	if err != nil {
		return fmt.Errorf("list snapshots: %w", err)
	}

	for _, obj := range out.Contents {
		if obj.LastModified == nil || !obj.LastModified.Before(cutoff) {
			continue
		}
		_, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.cfg.S3.Bucket),
			Key:    obj.Key,
		})
		if err != nil {
			m.logger.Error("delete old snapshot", "key", aws.ToString(obj.Key), "error", err)
		}
	}
	return nil
}

// Restore decrypts a downloaded snapshot onto dstPath and verifies the
// result is a healthy SQLite file. Meant for operator use against a
// stopped server, not the live database.
func Restore(encPath, dstPath, passphrase string) error {
	if err := decryptFile(encPath, dstPath, passphrase); err != nil {
		return fmt.Errorf("decrypt snapshot: %w", err)
	}

	db, err := sql.Open("sqlite", dstPath)
	if err != nil {
		return fmt.Errorf("open restored db: %w", err)
	}
	defer db.Close()

	var integrity string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&integrity); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if integrity != "ok" {
		return fmt.Errorf("integrity check failed: %s", integrity)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
