package service

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"consult-edge/entities"
	"consult-edge/repository"
)

func openTestStore(t *testing.T) RecordingStore {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo, err := repository.NewRepo(db)
	if err != nil {
		t.Fatalf("NewRepo: %v", err)
	}
	if err := repo.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return NewRecordingStore(repo)
}

func TestAssembleRecordingOrdersByChunkIndex(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	// Appended out of order on purpose.
	for _, c := range []struct {
		index   int
		payload string
	}{
		{0, "AAA"},
		{2, "CCC"},
		{1, "BBB"},
	} {
		if ok := store.AppendChunk(ctx, "r1", c.index, []byte(c.payload), "audio/webm", "p1"); !ok {
			t.Fatalf("AppendChunk %d failed", c.index)
		}
	}

	assembled, ok := store.AssembleRecording(ctx, "r1")
	if !ok {
		t.Fatalf("AssembleRecording reported no data")
	}
	if got := string(assembled.Data); got != "AAABBBCCC" {
		t.Fatalf("expected AAABBBCCC, got %q", got)
	}
	if assembled.MimeType != "audio/webm" {
		t.Fatalf("unexpected mime type: %q", assembled.MimeType)
	}
	if assembled.OwnerId != "p1" {
		t.Fatalf("unexpected owner: %q", assembled.OwnerId)
	}
}

func TestAssembleRecordingNoData(t *testing.T) {
	store := openTestStore(t)

	if _, ok := store.AssembleRecording(context.Background(), "missing"); ok {
		t.Fatalf("expected no-data for unknown recording")
	}
}

func TestAppendChunkOverwritesSameIndex(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	store.AppendChunk(ctx, "r1", 0, []byte("old"), "audio/webm", "p1")
	store.AppendChunk(ctx, "r1", 0, []byte("new"), "audio/webm", "p1")

	chunks := store.ListChunks(ctx, "r1")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if string(chunks[0].Payload) != "new" {
		t.Fatalf("expected overwrite, got %q", chunks[0].Payload)
	}
}

func TestFinalizeRecordingIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.FinalizeRecording(ctx, &entities.RecordingMetadata{
		RecordingId:     "r1",
		OwnerId:         "p1",
		DurationSeconds: 10,
		ByteSize:        9,
		MimeType:        "audio/webm",
	})
	if err != nil {
		t.Fatalf("FinalizeRecording: %v", err)
	}

	err = store.FinalizeRecording(ctx, &entities.RecordingMetadata{
		RecordingId:     "r1",
		OwnerId:         "p1",
		DurationSeconds: 12,
		ByteSize:        11,
		MimeType:        "audio/webm",
	})
	if err != nil {
		t.Fatalf("FinalizeRecording again: %v", err)
	}

	metas := store.ListAllMetadata(ctx)
	if len(metas) != 1 {
		t.Fatalf("expected exactly one metadata record, got %d", len(metas))
	}
	if metas[0].DurationSeconds != 12 {
		t.Fatalf("expected most recent finalize to win, got %+v", metas[0])
	}
}

func TestFinalizeRecordingRejectsEmptyId(t *testing.T) {
	store := openTestStore(t)

	err := store.FinalizeRecording(context.Background(), &entities.RecordingMetadata{OwnerId: "p1"})
	if err == nil {
		t.Fatalf("expected error for empty recording id")
	}
}

func TestGetAndDeleteMetadata(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, ok := store.GetMetadata(ctx, "r1"); ok {
		t.Fatalf("expected miss before finalize")
	}

	meta := &entities.RecordingMetadata{
		RecordingId: "r1",
		OwnerId:     "p1",
		FinalizedAt: time.Now().UTC(),
		MimeType:    "audio/webm",
	}
	if err := store.FinalizeRecording(ctx, meta); err != nil {
		t.Fatalf("FinalizeRecording: %v", err)
	}

	got, ok := store.GetMetadata(ctx, "r1")
	if !ok {
		t.Fatalf("expected metadata after finalize")
	}
	if got.OwnerId != "p1" {
		t.Fatalf("unexpected owner: %q", got.OwnerId)
	}

	if ok := store.DeleteMetadata(ctx, "r1"); !ok {
		t.Fatalf("DeleteMetadata failed")
	}
	if _, ok := store.GetMetadata(ctx, "r1"); ok {
		t.Fatalf("expected miss after delete")
	}
}

func TestNewRecordingIdUnique(t *testing.T) {
	store := openTestStore(t)

	seen := map[string]struct{}{}
	for i := 0; i < 100; i++ {
		id := store.NewRecordingId()
		if !strings.HasPrefix(id, "rec-") {
			t.Fatalf("unexpected id shape: %q", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id: %q", id)
		}
		seen[id] = struct{}{}
	}
}
