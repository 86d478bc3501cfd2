package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
	config "github.com/postpilot/autopilot/configs"
	"github.com/postpilot/autopilot/internal/models"
	"github.com/postpilot/autopilot/internal/repository"
)

// GroupingService clusters analyzed, ungrouped media items into narrative
// groups intended to become multi-image posts.
type GroupingService interface {
	RunGrouping(ctx context.Context, userID int64, loc *time.Location) (int, error)
	PromoteReady(ctx context.Context, userID int64) (int, error)
}

type groupingService struct {
	cfg config.Config
	mi  repository.MediaItemRepository
	mg  repository.MediaGroupRepository
}

func NewGroupingService(cfg config.Config, mi repository.MediaItemRepository, mg repository.MediaGroupRepository) GroupingService {
	return &groupingService{cfg: cfg, mi: mi, mg: mg}
}

// RunGrouping clusters the tenant's candidates and persists surviving groups
// with status PENDING. Items already referenced by a group never re-enter.
func (s *groupingService) RunGrouping(ctx context.Context, userID int64, loc *time.Location) (int, error) {
	items, err := s.mi.ListUngroupedAnalyzed(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(items) < 2 {
		return 0, nil
	}

	params := groupingParams{
		SimilarityThreshold: s.cfg.Pipeline.SimilarityThreshold,
		ProximityWindow:     s.cfg.Pipeline.ProximityWindow,
		MinConfidence:       s.cfg.Pipeline.MinGroupConfidence,
		Location:            loc,
	}

	candidates := buildCandidateGroups(items, params)
	created := 0
	for _, c := range candidates {
		group := &models.MediaGroup{
			UserID:       userID,
			Rule:         c.Rule,
			Rationale:    c.Rationale,
			Confidence:   c.Confidence,
			CommonTopics: pq.StringArray(c.CommonTopics),
			Theme:        c.Theme,
			StoryArc:     c.StoryArc,
			Status:       models.GroupStatusPending,
		}
		if _, err := s.mg.Create(ctx, group, c.MemberIDs); err != nil {
			// A candidate built from a stale read loses its claim race to a
			// concurrent pass. Drop it; the next sweep re-reads.
			if errors.Is(err, repository.ErrMemberClaimed) {
				slog.Info(err.Error())
				continue
			}
			return created, err
		}
		created++
	}

	if created > 0 {
		slog.Info(fmt.Sprintf("grouping created %d groups from %d candidates for user %d",
			created, len(items), userID))
	}
	return created, nil
}

// PromoteReady re-checks member readiness instead of assuming it at creation
// time: a group moves to READY_FOR_POST only once every member has finished
// analysis successfully, and to FAILED if any member ended up terminal-bad.
func (s *groupingService) PromoteReady(ctx context.Context, userID int64) (int, error) {
	groups, err := s.mg.ListByStatus(ctx, userID, models.GroupStatusPending)
	if err != nil {
		return 0, err
	}

	promoted := 0
	for _, group := range groups {
		members, err := s.mi.ListByGroupID(ctx, group.ID)
		if err != nil {
			return promoted, err
		}

		allAnalyzed := true
		anyFailed := false
		for _, m := range members {
			switch m.Status {
			case models.MediaStatusFailed, models.MediaStatusSkipped:
				anyFailed = true
			case models.MediaStatusAnalyzed:
			default:
				allAnalyzed = false
			}
		}

		if anyFailed {
			if _, err := s.mg.TransitionStatus(ctx, group.ID, models.GroupStatusPending, models.GroupStatusFailed); err != nil {
				return promoted, err
			}
			continue
		}
		if !allAnalyzed {
			continue
		}

		ok, err := s.mg.TransitionStatus(ctx, group.ID, models.GroupStatusPending, models.GroupStatusReadyForPost)
		if err != nil {
			return promoted, err
		}
		if ok {
			promoted++
		}
	}
	return promoted, nil
}

type groupingParams struct {
	SimilarityThreshold float64
	ProximityWindow     time.Duration
	MinConfidence       float64
	Location            *time.Location
}

type candidateGroup struct {
	Rule         string
	Rationale    string
	Confidence   float64
	CommonTopics []string
	Theme        string
	StoryArc     string
	MemberIDs    []int64
	members      []*models.MediaItem
}

type link struct {
	a, b     int
	strength float64
	byTopic  bool
	byTime   bool
}

// buildCandidateGroups is the deterministic clustering core. Its result does
// not depend on input order: items are sorted by (uploaded_at, id) first.
func buildCandidateGroups(items []*models.MediaItem, p groupingParams) []candidateGroup {
	if p.Location == nil {
		p.Location = time.UTC
	}

	sorted := make([]*models.MediaItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].UploadedAt.Equal(sorted[j].UploadedAt) {
			return sorted[i].UploadedAt.Before(sorted[j].UploadedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	// Partition by calendar day of upload in tenant-local time.
	byDay := make(map[string][]*models.MediaItem)
	var dayKeys []string
	for _, item := range sorted {
		key := item.UploadedAt.In(p.Location).Format("2006-01-02")
		if _, seen := byDay[key]; !seen {
			dayKeys = append(dayKeys, key)
		}
		byDay[key] = append(byDay[key], item)
	}
	sort.Strings(dayKeys)

	var out []candidateGroup
	for _, key := range dayKeys {
		out = append(out, clusterDay(byDay[key], p)...)
	}
	return out
}

func clusterDay(items []*models.MediaItem, p groupingParams) []candidateGroup {
	n := len(items)
	if n < 2 {
		return nil
	}

	var links []link
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			l := linkBetween(items[i], items[j], i, j, p)
			if l != nil {
				links = append(links, *l)
			}
		}
	}

	// Connected components of the link graph.
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	for _, l := range links {
		ra, rb := find(l.a), find(l.b)
		if ra != rb {
			parent[rb] = ra
		}
	}

	components := make(map[int][]int)
	for i := 0; i < n; i++ {
		root := find(i)
		components[root] = append(components[root], i)
	}
	var roots []int
	for root := range components {
		roots = append(roots, root)
	}
	sort.Ints(roots)

	var out []candidateGroup
	for _, root := range roots {
		idxs := components[root]
		if len(idxs) < 2 {
			continue
		}

		inComponent := make(map[int]bool, len(idxs))
		for _, idx := range idxs {
			inComponent[idx] = true
		}
		var compLinks []link
		for _, l := range links {
			if inComponent[l.a] && inComponent[l.b] {
				compLinks = append(compLinks, l)
			}
		}

		confidence := meanStrength(compLinks)
		if confidence < p.MinConfidence {
			continue
		}

		members := make([]*models.MediaItem, 0, len(idxs))
		memberIDs := make([]int64, 0, len(idxs))
		for _, idx := range idxs {
			members = append(members, items[idx])
			memberIDs = append(memberIDs, items[idx].ID)
		}

		common := commonTopics(members)
		rule, rationale := classifyRule(members, compLinks, p)
		out = append(out, candidateGroup{
			Rule:         rule,
			Rationale:    rationale,
			Confidence:   confidence,
			CommonTopics: common,
			Theme:        themeOf(members, common),
			StoryArc:     classifyStoryArc(members),
			MemberIDs:    memberIDs,
			members:      members,
		})
	}
	return out
}

// linkBetween links two items when their topics overlap enough, or when the
// second was uploaded within the proximity window strictly after the first.
func linkBetween(a, b *models.MediaItem, i, j int, p groupingParams) *link {
	overlap := jaccard(a.Topics, b.Topics)
	gap := b.UploadedAt.Sub(a.UploadedAt)
	sequential := gap > 0 && gap <= p.ProximityWindow

	if overlap < p.SimilarityThreshold && !sequential {
		return nil
	}

	strength := overlap
	if sequential {
		proximity := 1 - float64(gap)/float64(p.ProximityWindow)
		if proximity > strength {
			strength = proximity
		}
	}

	return &link{
		a:        i,
		b:        j,
		strength: strength,
		byTopic:  overlap >= p.SimilarityThreshold,
		byTime:   sequential,
	}
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[strings.ToLower(strings.TrimSpace(t))] = true
	}
	inter := 0
	union := len(set)
	seen := make(map[string]bool, len(b))
	for _, t := range b {
		t = strings.ToLower(strings.TrimSpace(t))
		if seen[t] {
			continue
		}
		seen[t] = true
		if set[t] {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}

func meanStrength(links []link) float64 {
	if len(links) == 0 {
		return 0
	}
	sum := 0.0
	for _, l := range links {
		sum += l.strength
	}
	return sum / float64(len(links))
}

// commonTopics returns topics shared by at least two members, lowercased.
func commonTopics(members []*models.MediaItem) []string {
	counts := make(map[string]int)
	for _, m := range members {
		seen := make(map[string]bool)
		for _, t := range m.Topics {
			t = strings.ToLower(strings.TrimSpace(t))
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			counts[t]++
		}
	}
	var out []string
	for t, c := range counts {
		if c >= 2 {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

func themeOf(members []*models.MediaItem, common []string) string {
	if len(common) > 0 {
		limit := 3
		if len(common) < limit {
			limit = len(common)
		}
		return strings.Join(common[:limit], ", ")
	}
	for _, m := range members {
		if len(m.Topics) > 0 {
			return strings.ToLower(m.Topics[0])
		}
	}
	return "mixed media"
}

// classifyRule picks the most specific rule that explains the cluster:
// same-folder > event-detected > similar-topics > sequential-upload > same-day.
func classifyRule(members []*models.MediaItem, links []link, p groupingParams) (string, string) {
	if folder := sharedFolder(members); folder != "" {
		return models.GroupRuleSameFolder, fmt.Sprintf("all %d files live in %s", len(members), folder)
	}

	if len(members) >= 4 && withinBurst(members, p.ProximityWindow) {
		return models.GroupRuleEventDetected, fmt.Sprintf("%d uploads in one tight burst suggest a single event", len(members))
	}

	allTopic := true
	allTime := true
	for _, l := range links {
		if !l.byTopic {
			allTopic = false
		}
		if !l.byTime {
			allTime = false
		}
	}
	if allTopic {
		return models.GroupRuleSimilarTopics, "every pair shares overlapping topics"
	}
	if allTime {
		return models.GroupRuleSequentialUpload, "uploaded back to back within the proximity window"
	}
	return models.GroupRuleSameDay, "uploaded on the same day with partial topic and time links"
}

func sharedFolder(members []*models.MediaItem) string {
	folder := ""
	for _, m := range members {
		u, err := url.Parse(m.SourceURI)
		if err != nil || u.Path == "" {
			return ""
		}
		dir := path.Dir(u.Path)
		if dir == "." || dir == "/" {
			return ""
		}
		if folder == "" {
			folder = dir
		} else if folder != dir {
			return ""
		}
	}
	return folder
}

func withinBurst(members []*models.MediaItem, window time.Duration) bool {
	for i := 1; i < len(members); i++ {
		if members[i].UploadedAt.Sub(members[i-1].UploadedAt) > window {
			return false
		}
	}
	return true
}

var problemTopics = []string{"problem", "before", "broken", "issue", "damage", "messy", "old"}
var resultTopics = []string{"result", "after", "fixed", "solution", "repaired", "clean", "new", "finished"}

// classifyStoryArc is a pure function of member count and ordering: two
// members with a problem/result topic pair read as before-after, three or
// more strictly time-ordered members read as chronological, everything else
// is a plain collection.
func classifyStoryArc(members []*models.MediaItem) string {
	if len(members) == 2 && hasProblemResultPair(members[0], members[1]) {
		return models.StoryArcBeforeAfter
	}
	if len(members) >= 3 && strictlyIncreasing(members) {
		return models.StoryArcChronological
	}
	return models.StoryArcCollection
}

func hasProblemResultPair(a, b *models.MediaItem) bool {
	return (topicsContainAny(a.Topics, problemTopics) && topicsContainAny(b.Topics, resultTopics)) ||
		(topicsContainAny(b.Topics, problemTopics) && topicsContainAny(a.Topics, resultTopics))
}

func topicsContainAny(topics []string, keywords []string) bool {
	for _, t := range topics {
		t = strings.ToLower(t)
		for _, k := range keywords {
			if strings.Contains(t, k) {
				return true
			}
		}
	}
	return false
}

func strictlyIncreasing(members []*models.MediaItem) bool {
	for i := 1; i < len(members); i++ {
		if !members[i].UploadedAt.After(members[i-1].UploadedAt) {
			return false
		}
	}
	return true
}
