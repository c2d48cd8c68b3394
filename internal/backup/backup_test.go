package backup

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/dukerupert/homeguard/internal/database"
	"github.com/dukerupert/homeguard/internal/release"
)

type fakeS3 struct {
	objects map[string][]byte
	deleted []string
	aged    map[string]time.Time
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, aged: map[string]time.Time{}}
}

func (f *fakeS3) PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(input.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	out := &s3.ListObjectsV2Output{}
	for key := range f.objects {
		modified := time.Now().UTC()
		if at, ok := f.aged[key]; ok {
			modified = at
		}
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(key),
			LastModified: aws.Time(modified),
		})
	}
	return out, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	key := aws.ToString(input.Key)
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return &s3.DeleteObjectOutput{}, nil
}

func testManager(t *testing.T, client s3Client) (*Manager, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "homeguard.db")
	db, err := database.Open(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	m := &Manager{
		cfg: Config{
			S3:            release.S3Config{Bucket: "backups-test"},
			DBPath:        dbPath,
			Passphrase:    "correct horse",
			RetentionDays: 30,
		},
		db:     db,
		client: client,
		logger: slog.New(slog.DiscardHandler),
	}
	return m, dbPath
}

func TestRunUploadsEncryptedSnapshot(t *testing.T) {
	fake := newFakeS3()
	m, _ := testManager(t, fake)

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(fake.objects) != 1 {
		t.Fatalf("got %d objects, want 1", len(fake.objects))
	}
	for key, data := range fake.objects {
		if !strings.HasPrefix(key, "backups/homeguard-") || !strings.HasSuffix(key, ".db.enc") {
			t.Errorf("key = %q", key)
		}
		// SQLite files open with a fixed magic header; the upload must not.
		if bytes.HasPrefix(data, []byte("SQLite format 3")) {
			t.Error("uploaded snapshot is not encrypted")
		}
	}

	status := m.Status()
	if !status.Enabled || status.LastBackup == nil || status.LastError != "" {
		t.Errorf("status = %+v", status)
	}
}

func TestRunPrunesOldSnapshots(t *testing.T) {
	fake := newFakeS3()
	fake.objects["backups/homeguard-old.db.enc"] = []byte("stale")
	fake.aged["backups/homeguard-old.db.enc"] = time.Now().UTC().AddDate(0, 0, -45)
	m, _ := testManager(t, fake)

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(fake.deleted) != 1 || fake.deleted[0] != "backups/homeguard-old.db.enc" {
		t.Errorf("deleted = %v", fake.deleted)
	}
	if len(fake.objects) != 1 {
		t.Errorf("remaining objects = %d, want just the fresh snapshot", len(fake.objects))
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	fake := newFakeS3()
	m, _ := testManager(t, fake)

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	var encData []byte
	for _, data := range fake.objects {
		encData = data
	}
	dir := t.TempDir()
	encPath := filepath.Join(dir, "snapshot.db.enc")
	if err := os.WriteFile(encPath, encData, 0600); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}

	restored := filepath.Join(dir, "restored.db")
	if err := Restore(encPath, restored, "correct horse"); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if err := Restore(encPath, filepath.Join(dir, "nope.db"), "wrong"); err == nil {
		t.Fatal("restore with wrong passphrase should fail")
	}
}

func TestRunRequiresConfiguration(t *testing.T) {
	m := NewManager(Config{}, nil, slog.New(slog.DiscardHandler))
	if m.Enabled() {
		t.Fatal("empty config should leave backups disabled")
	}
	if err := m.Run(context.Background()); err == nil {
		t.Fatal("run without configuration should fail")
	}
}
