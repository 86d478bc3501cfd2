package service

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/postpilot/autopilot/internal/ai"
	"github.com/postpilot/autopilot/internal/models"
)

// fakeMediaStore is an in-memory MediaItemRepository that enforces the same
// transition and claim semantics as the SQL implementation. When snapshot is
// set, ListUngroupedAnalyzed returns it as-is, which lets tests replay a
// stale read from a concurrent pass.
type fakeMediaStore struct {
	nextID   int64
	items    map[int64]*models.MediaItem
	snapshot []*models.MediaItem
}

func newFakeMediaStore() *fakeMediaStore {
	return &fakeMediaStore{nextID: 1, items: make(map[int64]*models.MediaItem)}
}

func (f *fakeMediaStore) Create(ctx context.Context, item *models.MediaItem) (int64, error) {
	id := f.nextID
	f.nextID++
	item.ID = id
	f.items[id] = item
	return id, nil
}

func (f *fakeMediaStore) GetByID(ctx context.Context, id int64) (*models.MediaItem, error) {
	return f.items[id], nil
}

func (f *fakeMediaStore) ListByUserID(ctx context.Context, userID int64) ([]*models.MediaItem, error) {
	return nil, nil
}

func (f *fakeMediaStore) ListByStatus(ctx context.Context, userID int64, status models.MediaItemStatus) ([]*models.MediaItem, error) {
	return nil, nil
}

func (f *fakeMediaStore) ListUngroupedAnalyzed(ctx context.Context, userID int64) ([]*models.MediaItem, error) {
	if f.snapshot != nil {
		return f.snapshot, nil
	}
	var out []*models.MediaItem
	for _, item := range f.items {
		if item.UserID == userID && item.Status == models.MediaStatusAnalyzed &&
			!item.GroupID.Valid && !item.PostID.Valid {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeMediaStore) ListByGroupID(ctx context.Context, groupID int64) ([]*models.MediaItem, error) {
	return nil, nil
}

func (f *fakeMediaStore) TransitionStatus(ctx context.Context, id int64, from, to models.MediaItemStatus) (bool, error) {
	item, ok := f.items[id]
	if !ok || item.Status != from {
		return false, nil
	}
	item.Status = to
	return true, nil
}

func (f *fakeMediaStore) SetAnalysis(ctx context.Context, id int64, description string, topics []string) error {
	item := f.items[id]
	item.Description = description
	item.Topics = topics
	return nil
}

func (f *fakeMediaStore) SetFailure(ctx context.Context, id int64, reason string) error {
	f.items[id].FailureReason = reason
	return nil
}

func (f *fakeMediaStore) AssignGroup(ctx context.Context, tx *sql.Tx, itemID, groupID int64) (bool, error) {
	item := f.items[itemID]
	if item.GroupID.Valid {
		return false, nil
	}
	item.GroupID = sql.NullInt64{Int64: groupID, Valid: true}
	return true, nil
}

func (f *fakeMediaStore) SetPost(ctx context.Context, id, postID int64) error {
	f.items[id].PostID = sql.NullInt64{Int64: postID, Valid: true}
	return nil
}

type fakeAnalyzer struct {
	result *ai.Analysis
	err    error
	calls  int
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, mediaURI string) (*ai.Analysis, error) {
	f.calls++
	return f.result, f.err
}

// jpegHeader is enough of a JPEG for magic-byte sniffing.
var jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0x4A, 0x46, 0x49, 0x46}

func testIngestion(store *fakeMediaStore, analyzer ai.Analyzer) *ingestionService {
	return &ingestionService{
		mi:       store,
		analyzer: analyzer,
		client:   &http.Client{Timeout: time.Second},
	}
}

func TestDiscoverSniffsImageFromHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(jpegHeader)
	}))
	defer srv.Close()

	store := newFakeMediaStore()
	s := testIngestion(store, &fakeAnalyzer{})

	id, err := s.Discover(context.Background(), 1, srv.URL+"/a", 1024, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	item := store.items[id]
	if item.MediaKind != models.MediaKindImage {
		t.Errorf("expected image kind, got %q", item.MediaKind)
	}
	if item.Status != models.MediaStatusPending {
		t.Errorf("expected pending, got %s", item.Status)
	}
}

func TestDiscoverFallsBackToExtension(t *testing.T) {
	store := newFakeMediaStore()
	s := testIngestion(store, &fakeAnalyzer{})

	// Unreachable host forces the extension fallback.
	id, err := s.Discover(context.Background(), 1, "http://127.0.0.1:1/video.mp4", 1024, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	if store.items[id].MediaKind != models.MediaKindVideo {
		t.Errorf("expected video kind, got %q", store.items[id].MediaKind)
	}
}

func TestDiscoverSkipsUnsupportedKind(t *testing.T) {
	store := newFakeMediaStore()
	s := testIngestion(store, &fakeAnalyzer{})

	id, err := s.Discover(context.Background(), 1, "http://127.0.0.1:1/notes.txt", 64, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	item := store.items[id]
	if item.Status != models.MediaStatusSkipped {
		t.Errorf("expected skipped, got %s", item.Status)
	}
	if item.FailureReason == "" {
		t.Error("skipped item should carry a reason")
	}
}

func TestDiscoverRejectsEmptyURI(t *testing.T) {
	s := testIngestion(newFakeMediaStore(), &fakeAnalyzer{})
	if _, err := s.Discover(context.Background(), 1, "", 0, time.Time{}); err == nil {
		t.Fatal("expected error for empty source URI")
	}
}

func TestAnalyzeHappyPath(t *testing.T) {
	store := newFakeMediaStore()
	analyzer := &fakeAnalyzer{result: &ai.Analysis{
		Description:     "a tiled bathroom mid-renovation",
		SuggestedTopics: []string{"bathroom", "renovation"},
	}}
	s := testIngestion(store, analyzer)

	id, _ := store.Create(context.Background(), &models.MediaItem{
		UserID:    1,
		SourceURI: "https://cdn.example.com/a.jpg",
		MediaKind: models.MediaKindImage,
		Status:    models.MediaStatusPending,
	})

	if err := s.Analyze(context.Background(), id); err != nil {
		t.Fatal(err)
	}

	item := store.items[id]
	if item.Status != models.MediaStatusAnalyzed {
		t.Errorf("expected analyzed, got %s", item.Status)
	}
	if item.Description == "" || len(item.Topics) != 2 {
		t.Errorf("analysis not stored: %q %v", item.Description, item.Topics)
	}
}

func TestAnalyzeIsIdempotent(t *testing.T) {
	store := newFakeMediaStore()
	analyzer := &fakeAnalyzer{result: &ai.Analysis{Description: "d"}}
	s := testIngestion(store, analyzer)

	id, _ := store.Create(context.Background(), &models.MediaItem{
		UserID:    1,
		MediaKind: models.MediaKindImage,
		Status:    models.MediaStatusAnalyzed,
	})

	// Already analyzed: the conditional transition fails and nothing runs.
	if err := s.Analyze(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	if analyzer.calls != 0 {
		t.Errorf("analyzer should not run for a non-pending item, ran %d times", analyzer.calls)
	}
}

func TestAnalyzeFailureIsTerminal(t *testing.T) {
	store := newFakeMediaStore()
	analyzer := &fakeAnalyzer{err: errors.New("vision model refused")}
	s := testIngestion(store, analyzer)

	id, _ := store.Create(context.Background(), &models.MediaItem{
		UserID:    1,
		MediaKind: models.MediaKindImage,
		Status:    models.MediaStatusPending,
	})

	if err := s.Analyze(context.Background(), id); err != nil {
		t.Fatal(err)
	}

	item := store.items[id]
	if item.Status != models.MediaStatusFailed {
		t.Errorf("expected failed, got %s", item.Status)
	}
	if item.FailureReason != "vision model refused" {
		t.Errorf("unexpected failure reason %q", item.FailureReason)
	}
}

func TestAnalyzeSkipsVideo(t *testing.T) {
	store := newFakeMediaStore()
	analyzer := &fakeAnalyzer{}
	s := testIngestion(store, analyzer)

	id, _ := store.Create(context.Background(), &models.MediaItem{
		UserID:    1,
		MediaKind: models.MediaKindVideo,
		Status:    models.MediaStatusPending,
	})

	if err := s.Analyze(context.Background(), id); err != nil {
		t.Fatal(err)
	}

	item := store.items[id]
	if item.Status != models.MediaStatusSkipped {
		t.Errorf("expected skipped, got %s", item.Status)
	}
	if analyzer.calls != 0 {
		t.Error("videos must never reach the analyzer")
	}
}

func TestCompleteGeneration(t *testing.T) {
	store := newFakeMediaStore()
	s := testIngestion(store, &fakeAnalyzer{})
	ctx := context.Background()

	id, _ := store.Create(ctx, &models.MediaItem{
		UserID: 1,
		Status: models.MediaStatusAnalyzed,
	})

	ok, err := s.BeginGeneration(ctx, id)
	if err != nil || !ok {
		t.Fatalf("BeginGeneration = %v, %v", ok, err)
	}

	if err := s.CompleteGeneration(ctx, id, 42, nil); err != nil {
		t.Fatal(err)
	}

	item := store.items[id]
	if item.Status != models.MediaStatusGenerated {
		t.Errorf("expected generated, got %s", item.Status)
	}
	if !item.PostID.Valid || item.PostID.Int64 != 42 {
		t.Errorf("post reference not stored: %v", item.PostID)
	}
}
