package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	config "github.com/postpilot/autopilot/configs"
	"github.com/postpilot/autopilot/internal/models"
	"github.com/postpilot/autopilot/internal/repository"
)

func testParams() groupingParams {
	return groupingParams{
		SimilarityThreshold: 0.3,
		ProximityWindow:     10 * time.Minute,
		MinConfidence:       0.4,
		Location:            time.UTC,
	}
}

func mediaItem(id int64, uploadedAt time.Time, topics ...string) *models.MediaItem {
	return &models.MediaItem{
		ID:         id,
		UserID:     1,
		SourceURI:  fmt.Sprintf("https://cdn.example.com/folder%d/item%d.jpg", id, id),
		Status:     models.MediaStatusAnalyzed,
		Topics:     topics,
		UploadedAt: uploadedAt,
	}
}

// fakeGroupStore mirrors the SQL repository's claim semantics: a member that
// cannot be claimed rolls the whole group back with ErrMemberClaimed.
type fakeGroupStore struct {
	mi     *fakeMediaStore
	nextID int64
	groups map[int64]*models.MediaGroup
}

func newFakeGroupStore(mi *fakeMediaStore) *fakeGroupStore {
	return &fakeGroupStore{mi: mi, nextID: 1, groups: make(map[int64]*models.MediaGroup)}
}

func (f *fakeGroupStore) Create(ctx context.Context, group *models.MediaGroup, memberIDs []int64) (int64, error) {
	id := f.nextID

	var claimedIDs []int64
	for _, itemID := range memberIDs {
		claimed, err := f.mi.AssignGroup(ctx, nil, itemID, id)
		if err != nil {
			return 0, err
		}
		if !claimed {
			for _, undo := range claimedIDs {
				f.mi.items[undo].GroupID = sql.NullInt64{}
			}
			return 0, fmt.Errorf("group claim on item %d: %w", itemID, repository.ErrMemberClaimed)
		}
		claimedIDs = append(claimedIDs, itemID)
	}

	f.nextID++
	group.ID = id
	group.MemberCount = len(memberIDs)
	f.groups[id] = group
	return id, nil
}

func (f *fakeGroupStore) GetByID(ctx context.Context, id int64) (*models.MediaGroup, error) {
	return f.groups[id], nil
}

func (f *fakeGroupStore) ListByStatus(ctx context.Context, userID int64, status models.MediaGroupStatus) ([]*models.MediaGroup, error) {
	var out []*models.MediaGroup
	for _, g := range f.groups {
		if g.UserID == userID && g.Status == status {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeGroupStore) TransitionStatus(ctx context.Context, id int64, from, to models.MediaGroupStatus) (bool, error) {
	g, ok := f.groups[id]
	if !ok || g.Status != from {
		return false, nil
	}
	g.Status = to
	return true, nil
}

func (f *fakeGroupStore) SetPost(ctx context.Context, id, postID int64) error {
	f.groups[id].PostID = sql.NullInt64{Int64: postID, Valid: true}
	return nil
}

func (f *fakeGroupStore) MemberCount(ctx context.Context, id int64) (int, error) {
	count := 0
	for _, item := range f.mi.items {
		if item.GroupID.Valid && item.GroupID.Int64 == id {
			count++
		}
	}
	return count, nil
}

func groupingConfig() config.Config {
	return config.Config{
		Pipeline: config.Pipeline{
			SimilarityThreshold: 0.3,
			ProximityWindow:     10 * time.Minute,
			MinGroupConfidence:  0.4,
		},
	}
}

func TestJaccard(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want float64
	}{
		{"identical", []string{"bathroom", "renovation"}, []string{"bathroom", "renovation"}, 1},
		{"half overlap", []string{"bathroom", "renovation", "tiles"}, []string{"bathroom", "renovation", "plumbing"}, 0.5},
		{"disjoint", []string{"bathroom"}, []string{"garden"}, 0},
		{"empty side", []string{"bathroom"}, nil, 0},
		{"case insensitive", []string{"Bathroom"}, []string{"bathroom"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := jaccard(tt.a, tt.b); got != tt.want {
				t.Errorf("jaccard(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestBuildCandidateGroups(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	// Two items sharing topics on the same day plus one unrelated item on
	// another day. Expect exactly one two-member group.
	items := []*models.MediaItem{
		mediaItem(1, base, "bathroom", "renovation", "before"),
		mediaItem(2, base.Add(2*time.Hour), "bathroom", "renovation", "after"),
		mediaItem(3, base.AddDate(0, 0, 3), "garden"),
	}

	groups := buildCandidateGroups(items, testParams())
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}

	g := groups[0]
	if len(g.MemberIDs) != 2 || g.MemberIDs[0] != 1 || g.MemberIDs[1] != 2 {
		t.Errorf("unexpected members: %v", g.MemberIDs)
	}
	if g.Confidence < 0.4 {
		t.Errorf("confidence %v below minimum", g.Confidence)
	}
	if g.StoryArc != models.StoryArcBeforeAfter {
		t.Errorf("expected before-after arc, got %s", g.StoryArc)
	}
	if g.Rule != models.GroupRuleSimilarTopics {
		t.Errorf("expected similar-topics rule, got %s", g.Rule)
	}
}

func TestBuildCandidateGroupsOrderIndependent(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	a := mediaItem(1, base, "bathroom", "renovation")
	b := mediaItem(2, base.Add(5*time.Minute), "bathroom", "renovation")
	c := mediaItem(3, base.Add(8*time.Minute), "bathroom", "tiles")

	forward := buildCandidateGroups([]*models.MediaItem{a, b, c}, testParams())
	reversed := buildCandidateGroups([]*models.MediaItem{c, b, a}, testParams())

	if len(forward) != 1 || len(reversed) != 1 {
		t.Fatalf("expected 1 group each, got %d and %d", len(forward), len(reversed))
	}
	for i := range forward[0].MemberIDs {
		if forward[0].MemberIDs[i] != reversed[0].MemberIDs[i] {
			t.Fatalf("member order differs: %v vs %v", forward[0].MemberIDs, reversed[0].MemberIDs)
		}
	}
	if forward[0].Confidence != reversed[0].Confidence {
		t.Errorf("confidence differs: %v vs %v", forward[0].Confidence, reversed[0].Confidence)
	}
}

func TestBuildCandidateGroupsRespectsDayBoundary(t *testing.T) {
	base := time.Date(2026, 3, 14, 23, 58, 0, 0, time.UTC)

	// Two uploads 4 minutes apart but on opposite sides of local midnight
	// never group, even though they are within the proximity window.
	items := []*models.MediaItem{
		mediaItem(1, base, "bathroom"),
		mediaItem(2, base.Add(4*time.Minute), "bathroom"),
	}

	if groups := buildCandidateGroups(items, testParams()); len(groups) != 0 {
		t.Fatalf("expected no groups across midnight, got %d", len(groups))
	}
}

func TestBuildCandidateGroupsDiscardsLowConfidence(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	// Linked only by time, near the edge of the window, so the link is weak.
	items := []*models.MediaItem{
		mediaItem(1, base, "bathroom"),
		mediaItem(2, base.Add(9*time.Minute+30*time.Second), "garden"),
	}

	p := testParams()
	p.MinConfidence = 0.5
	if groups := buildCandidateGroups(items, p); len(groups) != 0 {
		t.Fatalf("expected weak group to be discarded, got %d groups", len(groups))
	}
}

func TestBuildCandidateGroupsSingletonNeverEmitted(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	items := []*models.MediaItem{
		mediaItem(1, base, "bathroom"),
		mediaItem(2, base.Add(6*time.Hour), "garden"),
	}

	if groups := buildCandidateGroups(items, testParams()); len(groups) != 0 {
		t.Fatalf("expected no groups from unlinked items, got %d", len(groups))
	}
}

func TestClassifyRuleSequentialUpload(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	items := []*models.MediaItem{
		mediaItem(1, base, "bathroom"),
		mediaItem(2, base.Add(2*time.Minute), "garden"),
	}

	groups := buildCandidateGroups(items, testParams())
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if groups[0].Rule != models.GroupRuleSequentialUpload {
		t.Errorf("expected sequential-upload rule, got %s", groups[0].Rule)
	}
}

func TestClassifyRuleEventDetected(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	items := []*models.MediaItem{
		mediaItem(1, base, "wedding"),
		mediaItem(2, base.Add(3*time.Minute), "wedding"),
		mediaItem(3, base.Add(6*time.Minute), "wedding"),
		mediaItem(4, base.Add(9*time.Minute), "wedding"),
	}

	groups := buildCandidateGroups(items, testParams())
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if groups[0].Rule != models.GroupRuleEventDetected {
		t.Errorf("expected event-detected rule, got %s", groups[0].Rule)
	}
}

func TestClassifyRuleSameFolder(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	a := mediaItem(1, base, "kitchen")
	b := mediaItem(2, base.Add(2*time.Minute), "kitchen")
	a.SourceURI = "https://drive.example.com/projects/kitchen-remodel/img1.jpg"
	b.SourceURI = "https://drive.example.com/projects/kitchen-remodel/img2.jpg"

	groups := buildCandidateGroups([]*models.MediaItem{a, b}, testParams())
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if groups[0].Rule != models.GroupRuleSameFolder {
		t.Errorf("expected same-folder rule, got %s", groups[0].Rule)
	}
}

func TestClassifyStoryArc(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	beforeAfter := []*models.MediaItem{
		mediaItem(1, base, "broken pipe"),
		mediaItem(2, base.Add(time.Hour), "repaired pipe"),
	}
	if arc := classifyStoryArc(beforeAfter); arc != models.StoryArcBeforeAfter {
		t.Errorf("expected before-after, got %s", arc)
	}

	chronological := []*models.MediaItem{
		mediaItem(1, base, "kitchen"),
		mediaItem(2, base.Add(time.Hour), "kitchen"),
		mediaItem(3, base.Add(2*time.Hour), "kitchen"),
	}
	if arc := classifyStoryArc(chronological); arc != models.StoryArcChronological {
		t.Errorf("expected chronological, got %s", arc)
	}

	sameInstant := []*models.MediaItem{
		mediaItem(1, base, "kitchen"),
		mediaItem(2, base, "kitchen"),
		mediaItem(3, base, "kitchen"),
	}
	if arc := classifyStoryArc(sameInstant); arc != models.StoryArcCollection {
		t.Errorf("expected collection, got %s", arc)
	}

	plainPair := []*models.MediaItem{
		mediaItem(1, base, "kitchen"),
		mediaItem(2, base.Add(time.Hour), "kitchen"),
	}
	if arc := classifyStoryArc(plainPair); arc != models.StoryArcCollection {
		t.Errorf("expected collection, got %s", arc)
	}
}

func TestRunGroupingPersistsCandidates(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	store := newFakeMediaStore()
	a := mediaItem(0, base, "bathroom", "renovation")
	b := mediaItem(0, base.Add(5*time.Minute), "bathroom", "renovation")
	store.Create(context.Background(), a)
	store.Create(context.Background(), b)

	groups := newFakeGroupStore(store)
	gs := NewGroupingService(groupingConfig(), store, groups)

	created, err := gs.RunGrouping(context.Background(), 1, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if created != 1 {
		t.Fatalf("expected 1 group, got %d", created)
	}

	g := groups.groups[1]
	if g == nil {
		t.Fatal("group not persisted")
	}
	referencing, _ := groups.MemberCount(context.Background(), g.ID)
	if g.MemberCount != referencing {
		t.Errorf("member_count %d disagrees with %d referencing items", g.MemberCount, referencing)
	}
	if !a.GroupID.Valid || !b.GroupID.Valid {
		t.Error("both members should be claimed")
	}
}

// A sweep that outlives its interval can race a newer pass: its candidate list
// is built from a stale read, and another pass may claim a member first. The
// whole candidate must then be dropped, never committed with missing members.
func TestRunGroupingDropsCandidateThatLostClaimRace(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	store := newFakeMediaStore()
	a := mediaItem(0, base, "bathroom", "renovation")
	b := mediaItem(0, base.Add(5*time.Minute), "bathroom", "renovation")
	store.Create(context.Background(), a)
	store.Create(context.Background(), b)

	// Stale snapshot still lists both items, but a concurrent pass has
	// already claimed one of them.
	store.snapshot = []*models.MediaItem{a, b}
	b.GroupID = sql.NullInt64{Int64: 99, Valid: true}

	groups := newFakeGroupStore(store)
	gs := NewGroupingService(groupingConfig(), store, groups)

	created, err := gs.RunGrouping(context.Background(), 1, time.UTC)
	if err != nil {
		t.Fatalf("a lost claim race must not fail the run: %v", err)
	}
	if created != 0 {
		t.Fatalf("stale candidate must be dropped, created %d groups", created)
	}
	if len(groups.groups) != 0 {
		t.Fatalf("no group row should exist, got %d", len(groups.groups))
	}
	if a.GroupID.Valid {
		t.Error("claim on the surviving member must be rolled back")
	}
	if b.GroupID.Int64 != 99 {
		t.Error("the concurrent pass's claim must stand")
	}
}

func TestCommonTopics(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	members := []*models.MediaItem{
		mediaItem(1, base, "Bathroom", "renovation", "tiles"),
		mediaItem(2, base, "bathroom", "renovation", "plumbing"),
		mediaItem(3, base, "bathroom", "grout"),
	}

	got := commonTopics(members)
	want := []string{"bathroom", "renovation"}
	if len(got) != len(want) {
		t.Fatalf("commonTopics = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("commonTopics = %v, want %v", got, want)
		}
	}
}
