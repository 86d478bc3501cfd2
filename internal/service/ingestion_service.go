package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"github.com/postpilot/autopilot/internal/ai"
	"github.com/postpilot/autopilot/internal/models"
	"github.com/postpilot/autopilot/internal/repository"
)

// IngestionService walks media items through the analysis half of the
// pipeline. Transitions go through conditional updates in the repository, so
// two workers sweeping the same item cannot both advance it.
type IngestionService interface {
	Discover(ctx context.Context, userID int64, sourceURI string, fileSize int64, uploadedAt time.Time) (int64, error)
	BeginAnalysis(ctx context.Context, itemID int64) (bool, error)
	CompleteAnalysis(ctx context.Context, itemID int64, analysis *ai.Analysis, analysisErr error) error
	Analyze(ctx context.Context, itemID int64) error
	BeginGeneration(ctx context.Context, itemID int64) (bool, error)
	CompleteGeneration(ctx context.Context, itemID, postID int64, genErr error) error
}

type ingestionService struct {
	mi       repository.MediaItemRepository
	analyzer ai.Analyzer
	client   *http.Client
}

func NewIngestionService(mi repository.MediaItemRepository, analyzer ai.Analyzer) IngestionService {
	return &ingestionService{
		mi:       mi,
		analyzer: analyzer,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Discover registers a newly synced file. Unsupported media kinds are created
// and immediately skipped so they still surface in the ingestion view.
func (s *ingestionService) Discover(ctx context.Context, userID int64, sourceURI string, fileSize int64, uploadedAt time.Time) (int64, error) {
	if sourceURI == "" {
		err := errors.New("source URI cannot be empty")
		slog.Info(err.Error())
		return 0, err
	}
	if uploadedAt.IsZero() {
		uploadedAt = time.Now()
	}

	kind := s.sniffKind(ctx, sourceURI)

	item := &models.MediaItem{
		UserID:     userID,
		SourceURI:  sourceURI,
		MediaKind:  kind,
		FileSize:   fileSize,
		Status:     models.MediaStatusPending,
		UploadedAt: uploadedAt,
	}

	id, err := s.mi.Create(ctx, item)
	if err != nil {
		return 0, err
	}

	if kind == "" {
		if _, err := s.mi.TransitionStatus(ctx, id, models.MediaStatusPending, models.MediaStatusSkipped); err != nil {
			return id, err
		}
		if err := s.mi.SetFailure(ctx, id, "unsupported media kind"); err != nil {
			return id, err
		}
	}

	return id, nil
}

// sniffKind reads the file header and classifies it. Falls back to the URI
// extension when the source cannot be fetched.
func (s *ingestionService) sniffKind(ctx context.Context, sourceURI string) string {
	header, err := s.fetchHeader(ctx, sourceURI)
	if err == nil {
		if filetype.IsImage(header) {
			return models.MediaKindImage
		}
		if filetype.IsVideo(header) {
			return models.MediaKindVideo
		}
		return ""
	}
	slog.Info(fmt.Sprintf("header fetch failed for %s: %v", sourceURI, err))

	lower := strings.ToLower(sourceURI)
	switch {
	case strings.HasSuffix(lower, ".jpg"), strings.HasSuffix(lower, ".jpeg"),
		strings.HasSuffix(lower, ".png"), strings.HasSuffix(lower, ".webp"):
		return models.MediaKindImage
	case strings.HasSuffix(lower, ".mp4"), strings.HasSuffix(lower, ".mov"):
		return models.MediaKindVideo
	}
	return ""
}

func (s *ingestionService) fetchHeader(ctx context.Context, sourceURI string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", sourceURI, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", "bytes=0-261")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return nil, fmt.Errorf("source returned %d", resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, 262))
}

// BeginAnalysis moves PENDING to ANALYZING. Returns false without error when
// the item is already past this state, which makes concurrent sweeps a no-op.
func (s *ingestionService) BeginAnalysis(ctx context.Context, itemID int64) (bool, error) {
	return s.mi.TransitionStatus(ctx, itemID, models.MediaStatusPending, models.MediaStatusAnalyzing)
}

// CompleteAnalysis stores the result and moves to ANALYZED, or records the
// failure and moves to FAILED. Failures are terminal and reported, never
// retried here.
func (s *ingestionService) CompleteAnalysis(ctx context.Context, itemID int64, analysis *ai.Analysis, analysisErr error) error {
	if analysisErr != nil {
		if err := s.mi.SetFailure(ctx, itemID, analysisErr.Error()); err != nil {
			return err
		}
		_, err := s.mi.TransitionStatus(ctx, itemID, models.MediaStatusAnalyzing, models.MediaStatusFailed)
		return err
	}

	if err := s.mi.SetAnalysis(ctx, itemID, analysis.Description, analysis.SuggestedTopics); err != nil {
		return err
	}
	_, err := s.mi.TransitionStatus(ctx, itemID, models.MediaStatusAnalyzing, models.MediaStatusAnalyzed)
	return err
}

// Analyze runs the full begin/call/complete cycle for one item.
func (s *ingestionService) Analyze(ctx context.Context, itemID int64) error {
	ok, err := s.BeginAnalysis(ctx, itemID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	item, err := s.mi.GetByID(ctx, itemID)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("media item %d not found", itemID)
	}

	if item.MediaKind != models.MediaKindImage {
		// Only images are analyzable today; videos are excluded on purpose.
		if _, err := s.mi.TransitionStatus(ctx, itemID, models.MediaStatusAnalyzing, models.MediaStatusSkipped); err != nil {
			return err
		}
		return s.mi.SetFailure(ctx, itemID, "analysis not supported for "+item.MediaKind)
	}

	analysis, analysisErr := s.analyzer.Analyze(ctx, item.SourceURI)
	if analysisErr != nil {
		slog.Info(fmt.Sprintf("analysis failed for item %d: %v", itemID, analysisErr))
	}
	return s.CompleteAnalysis(ctx, itemID, analysis, analysisErr)
}

// BeginGeneration moves ANALYZED to GENERATING, mirroring BeginAnalysis.
func (s *ingestionService) BeginGeneration(ctx context.Context, itemID int64) (bool, error) {
	return s.mi.TransitionStatus(ctx, itemID, models.MediaStatusAnalyzed, models.MediaStatusGenerating)
}

// CompleteGeneration closes the generation step for one item.
func (s *ingestionService) CompleteGeneration(ctx context.Context, itemID, postID int64, genErr error) error {
	if genErr != nil {
		if err := s.mi.SetFailure(ctx, itemID, genErr.Error()); err != nil {
			return err
		}
		_, err := s.mi.TransitionStatus(ctx, itemID, models.MediaStatusGenerating, models.MediaStatusFailed)
		return err
	}

	if err := s.mi.SetPost(ctx, itemID, postID); err != nil {
		return err
	}
	_, err := s.mi.TransitionStatus(ctx, itemID, models.MediaStatusGenerating, models.MediaStatusGenerated)
	return err
}
