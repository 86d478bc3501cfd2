package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lib/pq"
	"github.com/postpilot/autopilot/internal/ai"
	"github.com/postpilot/autopilot/internal/imagegen"
	"github.com/postpilot/autopilot/internal/models"
	"github.com/postpilot/autopilot/internal/repository"
)

const maxImagesPerPost = 3

// GenerationService is the content orchestrator: it turns a media item, a
// ready media group, or a bare topic into a draft post. Text generation is
// fatal to the unit of work; individual image failures only shrink the media
// list. The returned post carries no publication status, that is the
// scheduler's job.
type GenerationService interface {
	GenerateForItem(ctx context.Context, item *models.MediaItem, policy *models.AutoPilotPolicy) (*models.Post, error)
	GenerateForGroup(ctx context.Context, group *models.MediaGroup, members []*models.MediaItem, policy *models.AutoPilotPolicy) (*models.Post, error)
	GenerateFromTopic(ctx context.Context, userID int64, topic string, imageCount int, policy *models.AutoPilotPolicy) (*models.Post, error)
}

// imageBackend and pacer are what the orchestrator needs from the image
// gateway; imageStore is what it needs from R2.
type imageBackend interface {
	Generate(ctx context.Context, prompt string, opts imagegen.Options) (*imagegen.Image, error)
}

type pacer interface {
	Wait(ctx context.Context) error
}

type imageStore interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
	MirrorURL(ctx context.Context, srcURL string) (string, error)
}

type generationService struct {
	textgen ai.TextGenerator
	images  imageBackend
	gate    pacer
	store   imageStore
	pr      repository.PostRepository
	ir      repository.InspirationRepository
}

func NewGenerationService(
	textgen ai.TextGenerator,
	images imageBackend,
	gate pacer,
	store imageStore,
	pr repository.PostRepository,
	ir repository.InspirationRepository) GenerationService {
	return &generationService{
		textgen: textgen,
		images:  images,
		gate:    gate,
		store:   store,
		pr:      pr,
		ir:      ir,
	}
}

func (s *generationService) GenerateForItem(ctx context.Context, item *models.MediaItem, policy *models.AutoPilotPolicy) (*models.Post, error) {
	seed := item.Description
	if len(item.Topics) > 0 {
		seed += "\nTopics: " + strings.Join(item.Topics, ", ")
	}

	post, err := s.generate(ctx, item.UserID, seed, policy.ImagesPerPost, policy)
	if err != nil {
		return nil, err
	}
	post.SourceItemID = sql.NullInt64{Int64: item.ID, Valid: true}
	post.MediaURLs = append(pq.StringArray{item.SourceURI}, post.MediaURLs...)
	return post, nil
}

func (s *generationService) GenerateForGroup(ctx context.Context, group *models.MediaGroup, members []*models.MediaItem, policy *models.AutoPilotPolicy) (*models.Post, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "A %d-photo story (%s arc) about %s.\n", len(members), group.StoryArc, group.Theme)
	if len(group.CommonTopics) > 0 {
		sb.WriteString("Shared topics: " + strings.Join(group.CommonTopics, ", ") + "\n")
	}
	for i, m := range members {
		if m.Description != "" {
			fmt.Fprintf(&sb, "Photo %d: %s\n", i+1, m.Description)
		}
	}

	post, err := s.generate(ctx, group.UserID, sb.String(), policy.ImagesPerPost, policy)
	if err != nil {
		return nil, err
	}
	post.SourceGroupID = sql.NullInt64{Int64: group.ID, Valid: true}

	// Member media leads, generated imagery follows.
	urls := make(pq.StringArray, 0, len(members)+len(post.MediaURLs))
	for _, m := range members {
		urls = append(urls, m.SourceURI)
	}
	post.MediaURLs = append(urls, post.MediaURLs...)
	return post, nil
}

func (s *generationService) GenerateFromTopic(ctx context.Context, userID int64, topic string, imageCount int, policy *models.AutoPilotPolicy) (*models.Post, error) {
	return s.generate(ctx, userID, "Write a post about: "+topic, imageCount, policy)
}

func (s *generationService) generate(ctx context.Context, userID int64, seed string, imageCount int, policy *models.AutoPilotPolicy) (*models.Post, error) {
	if imageCount < 0 {
		imageCount = 0
	}
	if imageCount > maxImagesPerPost {
		imageCount = maxImagesPerPost
	}

	pool, err := s.ir.ListByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	cursor, err := s.pr.CountByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	prompt := buildPrompt(seed, pickInspirations(pool, cursor, 2))

	text, err := s.textgen.Generate(ctx, ai.TextRequest{
		Prompt:     prompt,
		BrandVoice: policy.BrandVoice,
	})
	if err != nil {
		return nil, fmt.Errorf("generating post text: %w", err)
	}

	var mediaURLs pq.StringArray
	for i, storyPrompt := range storyPrompts(text.Caption, imageCount) {
		if err := s.gate.Wait(ctx); err != nil {
			return nil, err
		}

		img, err := s.images.Generate(ctx, storyPrompt, imagegen.Options{})
		if err != nil {
			// A missing image never sinks the post.
			slog.Info(fmt.Sprintf("image %d/%d failed: %v", i+1, imageCount, err))
			continue
		}

		mediaURLs = append(mediaURLs, s.storeImage(ctx, img))
	}

	return &models.Post{
		UserID:     userID,
		Title:      text.Title,
		Caption:    text.Caption,
		Hashtags:   pq.StringArray(text.Hashtags),
		MediaURLs:  mediaURLs,
		Confidence: text.Confidence,
	}, nil
}

// storeImage persists the image to R2, falling back to the provider URL when
// mirroring fails.
func (s *generationService) storeImage(ctx context.Context, img *imagegen.Image) string {
	if len(img.Data) > 0 {
		url, err := s.store.Upload(ctx, img.Data, "image/png")
		if err == nil {
			return url
		}
		slog.Info("image upload failed: " + err.Error())
		return img.URL
	}

	url, err := s.store.MirrorURL(ctx, img.URL)
	if err != nil {
		slog.Info("image mirror failed: " + err.Error())
		return img.URL
	}
	return url
}

func buildPrompt(seed string, inspirations []string) string {
	var sb strings.Builder
	sb.WriteString(seed)
	if len(inspirations) > 0 {
		sb.WriteString("\n\nRecent content for inspiration (do not copy):\n")
		for _, snippet := range inspirations {
			sb.WriteString("- " + snippet + "\n")
		}
	}
	return sb.String()
}

// pickInspirations selects n snippets round-robin from the pool, keyed off
// the caller-provided cursor. Pure on purpose: no hidden selection state.
func pickInspirations(pool []*models.Inspiration, cursor, n int) []string {
	if len(pool) == 0 || n <= 0 {
		return nil
	}
	if n > len(pool) {
		n = len(pool)
	}
	if cursor < 0 {
		cursor = 0
	}

	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, pool[(cursor+i)%len(pool)].Snippet)
	}
	return out
}

// storyPrompts derives image prompts from the generated caption using fixed
// narrative templates.
func storyPrompts(text string, n int) []string {
	switch {
	case n <= 0:
		return nil
	case n == 1:
		return []string{text}
	case n == 2:
		return []string{
			"The problem or context behind this story: " + text,
			"The solution or end result of this story: " + text,
		}
	default:
		return []string{
			"The problem at the start of this story: " + text,
			"The process or action in the middle of this story: " + text,
			"The final result of this story: " + text,
		}
	}
}
