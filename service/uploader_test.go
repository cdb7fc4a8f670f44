package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"consult-edge/dto"
	"consult-edge/entities"
	"consult-edge/pkg/consultapi"
)

type fakeUploadClient struct {
	mu         sync.Mutex
	attempts   []string
	errByOwner map[string]error
	started    chan struct{}
	release    chan struct{}
}

func (f *fakeUploadClient) UploadConsultation(ctx context.Context, ownerId string, audio []byte, mimeType string, durationSeconds int) (*consultapi.Consultation, error) {
	f.mu.Lock()
	f.attempts = append(f.attempts, ownerId)
	f.mu.Unlock()

	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.release != nil {
		<-f.release
	}
	if err := f.errByOwner[ownerId]; err != nil {
		return nil, err
	}
	return &consultapi.Consultation{Id: "c-" + ownerId, OwnerId: ownerId}, nil
}

func (f *fakeUploadClient) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.attempts)
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []dto.ConsultationCreatedMessage
}

func (f *fakeNotifier) ConsultationCreated(ctx context.Context, msg dto.ConsultationCreatedMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return nil
}

type fakeArchiver struct {
	mu       sync.Mutex
	archived []string
}

func (f *fakeArchiver) Archive(ctx context.Context, meta *entities.RecordingMetadata, data []byte, mimeType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archived = append(f.archived, meta.RecordingId)
	return nil
}

func seedRecording(t *testing.T, store RecordingStore, recordingId, ownerId string, finalizedAt time.Time) {
	t.Helper()
	ctx := context.Background()
	for i, payload := range []string{"AAA", "BBB", "CCC"} {
		if ok := store.AppendChunk(ctx, recordingId, i, []byte(payload), "audio/webm", ownerId); !ok {
			t.Fatalf("AppendChunk %d failed", i)
		}
	}
	err := store.FinalizeRecording(ctx, &entities.RecordingMetadata{
		RecordingId:     recordingId,
		OwnerId:         ownerId,
		FinalizedAt:     finalizedAt,
		DurationSeconds: 9,
		ByteSize:        9,
		MimeType:        "audio/webm",
	})
	if err != nil {
		t.Fatalf("FinalizeRecording: %v", err)
	}
}

func TestSweepDeliversAndPurges(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	seedRecording(t, store, "r1", "p1", time.Now().UTC())

	client := &fakeUploadClient{}
	notifier := &fakeNotifier{}
	agent := NewUploadAgent(store, client, notifier, nil, time.Minute)

	if ran := agent.Sweep(ctx); !ran {
		t.Fatalf("expected sweep to run")
	}

	if chunks := store.ListChunks(ctx, "r1"); len(chunks) != 0 {
		t.Fatalf("expected chunks purged after delivery, got %d", len(chunks))
	}
	if _, ok := store.GetMetadata(ctx, "r1"); ok {
		t.Fatalf("expected metadata purged after delivery")
	}
	if len(notifier.msgs) != 1 || notifier.msgs[0].RecordingId != "r1" {
		t.Fatalf("expected one consultation created event, got %+v", notifier.msgs)
	}
	if notifier.msgs[0].ConsultationId != "c-p1" {
		t.Fatalf("expected consultation id from the API response, got %q", notifier.msgs[0].ConsultationId)
	}
}

func TestSweepAbandonsOnPermanentFailure(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	seedRecording(t, store, "r1", "p1", time.Now().UTC())

	client := &fakeUploadClient{errByOwner: map[string]error{
		"p1": &consultapi.Error{Kind: consultapi.KindPermanent, Status: 413, Message: "payload too large"},
	}}
	archiver := &fakeArchiver{}
	agent := NewUploadAgent(store, client, nil, archiver, time.Minute)

	agent.Sweep(ctx)

	if chunks := store.ListChunks(ctx, "r1"); len(chunks) != 0 {
		t.Fatalf("expected chunks purged after abandon, got %d", len(chunks))
	}
	if _, ok := store.GetMetadata(ctx, "r1"); ok {
		t.Fatalf("expected metadata purged after abandon")
	}
	if len(archiver.archived) != 1 || archiver.archived[0] != "r1" {
		t.Fatalf("expected abandoned recording archived, got %v", archiver.archived)
	}
}

func TestSweepKeepsRecordingOnTransientFailure(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	seedRecording(t, store, "r1", "p1", time.Now().UTC())

	client := &fakeUploadClient{errByOwner: map[string]error{
		"p1": &consultapi.Error{Kind: consultapi.KindTransient, Status: 503, Message: "unavailable"},
	}}
	agent := NewUploadAgent(store, client, nil, nil, time.Minute)

	agent.Sweep(ctx)

	if chunks := store.ListChunks(ctx, "r1"); len(chunks) != 3 {
		t.Fatalf("expected chunks untouched after transient failure, got %d", len(chunks))
	}
	if _, ok := store.GetMetadata(ctx, "r1"); !ok {
		t.Fatalf("expected metadata untouched after transient failure")
	}

	// A later sweep retries the same recording.
	agent.Sweep(ctx)
	if client.attemptCount() != 2 {
		t.Fatalf("expected a retry on the next sweep, got %d attempts", client.attemptCount())
	}
}

func TestSweepKeepsRecordingWhenUnauthorized(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	seedRecording(t, store, "r1", "p1", time.Now().UTC())

	client := &fakeUploadClient{errByOwner: map[string]error{
		"p1": &consultapi.Error{Kind: consultapi.KindUnauthorized, Status: 401, Message: "token expired"},
	}}
	agent := NewUploadAgent(store, client, nil, nil, time.Minute)

	agent.Sweep(ctx)

	if _, ok := store.GetMetadata(ctx, "r1"); !ok {
		t.Fatalf("expected recording kept while unauthorized")
	}
}

func TestSweepSkipsRecordingWithoutChunks(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.FinalizeRecording(ctx, &entities.RecordingMetadata{
		RecordingId: "r1",
		OwnerId:     "p1",
		FinalizedAt: time.Now().UTC(),
		MimeType:    "audio/webm",
	})
	if err != nil {
		t.Fatalf("FinalizeRecording: %v", err)
	}

	client := &fakeUploadClient{}
	agent := NewUploadAgent(store, client, nil, nil, time.Minute)

	agent.Sweep(ctx)

	if client.attemptCount() != 0 {
		t.Fatalf("expected no upload attempt for chunkless recording")
	}
	if _, ok := store.GetMetadata(ctx, "r1"); !ok {
		t.Fatalf("expected chunkless metadata left in place for a later sweep")
	}
}

func TestSweepSingleFlight(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	seedRecording(t, store, "r1", "p1", time.Now().UTC())

	client := &fakeUploadClient{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	agent := NewUploadAgent(store, client, nil, nil, time.Minute)

	done := make(chan bool)
	go func() {
		done <- agent.Sweep(ctx)
	}()

	<-client.started
	if ran := agent.Sweep(ctx); ran {
		t.Fatalf("expected concurrent sweep to be a no-op")
	}

	close(client.release)
	if ran := <-done; !ran {
		t.Fatalf("expected first sweep to run")
	}

	if client.attemptCount() != 1 {
		t.Fatalf("expected exactly one upload attempt, got %d", client.attemptCount())
	}
}

func TestSweepContinuesPastFailures(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	seedRecording(t, store, "r-new", "p-fail", base.Add(time.Minute))
	seedRecording(t, store, "r-old", "p-ok", base)

	client := &fakeUploadClient{errByOwner: map[string]error{
		"p-fail": errors.New("connection refused"),
	}}
	agent := NewUploadAgent(store, client, nil, nil, time.Minute)

	agent.Sweep(ctx)

	// Newest first, and the failure must not stop the older recording.
	if len(client.attempts) != 2 || client.attempts[0] != "p-fail" || client.attempts[1] != "p-ok" {
		t.Fatalf("unexpected attempt order: %v", client.attempts)
	}
	if _, ok := store.GetMetadata(ctx, "r-new"); !ok {
		t.Fatalf("expected failed recording kept")
	}
	if _, ok := store.GetMetadata(ctx, "r-old"); ok {
		t.Fatalf("expected delivered recording purged")
	}
}

func TestRunSweepsImmediatelyAndStopsOnCancel(t *testing.T) {
	store := openTestStore(t)
	seedRecording(t, store, "r1", "p1", time.Now().UTC())

	client := &fakeUploadClient{}
	agent := NewUploadAgent(store, client, nil, nil, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		agent.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for client.attemptCount() == 0 {
		select {
		case <-deadline:
			t.Fatalf("startup sweep never ran")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop on cancel")
	}
}
