package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"strings"

	"github.com/google/uuid"

	"github.com/rahoolsingh/THUMBNAIL-LELO/internal/config"
	"github.com/rahoolsingh/THUMBNAIL-LELO/internal/genai"
	"github.com/rahoolsingh/THUMBNAIL-LELO/internal/imaging"
	"github.com/rahoolsingh/THUMBNAIL-LELO/internal/models"
)

// ErrQuotaExceeded is returned when the user has no free generations left.
var ErrQuotaExceeded = errors.New("free quota exceeded")

// DefaultPrompt substitutes an empty user prompt before enhancement.
const DefaultPrompt = "Create a thumbnail for my youtube video"

const sizeInstruction = "\nIMPORTANT: The white image provided is for the size reference. Make sure to follow this 16:9 aspect ratio."

// Archive kinds understood by the storage backends.
const (
	ArtifactUploads   = "uploads"
	ArtifactGenerated = "generated"
)

// UserStore is the quota ledger the pipeline admits and commits against.
type UserStore interface {
	Ensure(ctx context.Context, subject string, freeQuota int) (*models.User, bool, error)
	ConsumeFreeQuota(ctx context.Context, userID int64) (int, bool, error)
}

// GenerationLogStore records successful generations for auditing.
type GenerationLogStore interface {
	Log(ctx context.Context, userID int64, model, prompt string, imageCount int) error
}

// ImageGenerator is the external image-generation collaborator.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req genai.GenerateRequest) (*genai.GeneratedImage, error)
	Model() string
}

// PromptEnhancer is the optional text-completion collaborator.
type PromptEnhancer interface {
	Enhance(ctx context.Context, prompt string, imageCount int) (string, error)
}

// Archiver persists request artifacts best-effort; failures never abort a request.
type Archiver interface {
	Save(ctx context.Context, kind, name string, data []byte, contentType string) (string, error)
}

// GenerationService runs the thumbnail pipeline: normalize uploads, enhance
// the prompt, admit against the quota ledger, invoke generation, commit quota.
type GenerationService struct {
	cfg         config.Config
	log         *slog.Logger
	users       UserStore
	generations GenerationLogStore
	generator   ImageGenerator
	enhancer    PromptEnhancer
	normalizer  *imaging.Normalizer
	archive     Archiver

	referenceBase64 string
}

// Result is the successful outcome returned to the HTTP layer.
type Result struct {
	Message   string
	Image     string // data URL
	Prompt    string
	QuotaLeft int
}

// NewGenerationService wires the pipeline. enhancer may be nil when prompt
// enhancement is disabled; archive may be nil to skip artifact persistence.
func NewGenerationService(cfg config.Config, log *slog.Logger, users UserStore, generations GenerationLogStore, generator ImageGenerator, enhancer PromptEnhancer, archive Archiver) (*GenerationService, error) {
	reference, err := imaging.SizeReferencePNG(cfg.ThumbnailWidth, cfg.ThumbnailHeight)
	if err != nil {
		return nil, fmt.Errorf("build size reference: %w", err)
	}

	return &GenerationService{
		cfg:             cfg,
		log:             log,
		users:           users,
		generations:     generations,
		generator:       generator,
		enhancer:        enhancer,
		normalizer:      imaging.NewNormalizer(cfg.ThumbnailWidth, cfg.ThumbnailHeight),
		archive:         archive,
		referenceBase64: base64.StdEncoding.EncodeToString(reference),
	}, nil
}

// Generate runs one request through the pipeline. Quota is only consumed
// after the collaborator returned an image; a failed generation never
// decrements it.
func (s *GenerationService) Generate(ctx context.Context, subject, prompt string, uploads []imaging.Upload) (*Result, error) {
	normalized, err := s.normalizer.NormalizeAll(uploads)
	if err != nil {
		return nil, fmt.Errorf("process uploads: %w", err)
	}
	s.archiveUploads(ctx, uploads)

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		prompt = DefaultPrompt
	}
	if s.enhancer != nil {
		enhanced, err := s.enhancer.Enhance(ctx, prompt, len(normalized))
		if err != nil {
			return nil, fmt.Errorf("enhance prompt: %w", err)
		}
		prompt = enhanced
	}

	user, _, err := s.users.Ensure(ctx, subject, s.cfg.FreeQuotaDefault)
	if err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	if user.FreeQuota < 1 {
		return nil, ErrQuotaExceeded
	}

	req := genai.GenerateRequest{
		Instruction: prompt + sizeInstruction,
		Images:      make([]genai.InlineImage, 0, 1+len(normalized)),
	}
	req.Images = append(req.Images, genai.InlineImage{MimeType: "image/png", Data: s.referenceBase64})
	for _, record := range normalized {
		req.Images = append(req.Images, genai.InlineImage{MimeType: record.MimeType, Data: record.Base64})
	}

	image, err := s.generator.GenerateImage(ctx, req)
	if err != nil {
		return nil, err
	}

	remaining, consumed, err := s.users.ConsumeFreeQuota(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("commit quota: %w", err)
	}
	if !consumed {
		// A concurrent request drained the last unit between admission and
		// commit; the image already exists, so the request still succeeds.
		s.log.Warn("quota already exhausted at commit", "subject", subject)
	}

	s.archiveGenerated(ctx, image)

	if err := s.generations.Log(ctx, user.ID, s.generator.Model(), prompt, len(normalized)); err != nil {
		s.log.Error("failed to log generation", "err", err)
	}

	return &Result{
		Message:   "Thumbnail generated",
		Image:     "data:image/png;base64," + image.Data,
		Prompt:    prompt,
		QuotaLeft: remaining,
	}, nil
}

func (s *GenerationService) archiveUploads(ctx context.Context, uploads []imaging.Upload) {
	if s.archive == nil {
		return
	}
	for _, upload := range uploads {
		name := uuid.NewString() + extensionFor(upload.MimeType)
		if _, err := s.archive.Save(ctx, ArtifactUploads, name, upload.Data, upload.MimeType); err != nil {
			s.log.Warn("archive upload failed", "file", upload.OriginalName, "err", err)
		}
	}
}

func (s *GenerationService) archiveGenerated(ctx context.Context, image *genai.GeneratedImage) {
	if s.archive == nil {
		return
	}
	data, err := base64.StdEncoding.DecodeString(image.Data)
	if err != nil {
		s.log.Warn("archive generated failed", "err", err)
		return
	}
	name := uuid.NewString() + ".png"
	if _, err := s.archive.Save(ctx, ArtifactGenerated, name, data, "image/png"); err != nil {
		s.log.Warn("archive generated failed", "err", err)
	}
}

func extensionFor(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
