// Package generation turns source text into flashcard proposals using the
// chat-completion client.
package generation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/izukowska/10xcards/internal/llm"
	"github.com/izukowska/10xcards/internal/metrics"
)

const (
	MinTextLength = 1000
	MaxTextLength = 10000

	MaxFrontLength = 200
	MaxBackLength  = 500

	SourceAIFull = "ai-full"

	defaultLanguage = "Polish"
)

var (
	// ErrTextLength is returned for source text outside MinTextLength..MaxTextLength.
	ErrTextLength = errors.New("generation: text must be between 1000 and 10000 characters")
	// ErrInvalidProposals wraps every failure to turn model output into proposals.
	ErrInvalidProposals = errors.New("generation: invalid proposals")
)

// Sender is the part of the chat client the generator needs.
type Sender interface {
	Send(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)
}

type Proposal struct {
	Front  string `json:"front"`
	Back   string `json:"back"`
	Source string `json:"source"`
}

type Result struct {
	GeneratedCount   int        `json:"generated_count"`
	Proposals        []Proposal `json:"proposals"`
	Model            string     `json:"model"`
	DurationMs       int64      `json:"generation_duration"`
	SourceTextHash   string     `json:"source_text_hash"`
	SourceTextLength int        `json:"source_text_length"`
	RequestID        string     `json:"request_id"`
}

type Options struct {
	// Language the proposals are written in. Default: Polish.
	Language string
	Logger   *zap.Logger
}

type Service struct {
	client   Sender
	format   *llm.ResponseFormat
	schema   *gojsonschema.Schema
	language string
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(client Sender, opts Options) (*Service, error) {
	format, schema, err := buildFormat()
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	lang := opts.Language
	if lang == "" {
		lang = defaultLanguage
	}

	return &Service{
		client:   client,
		format:   format,
		schema:   schema,
		language: lang,
		logger:   logger.Named("generation"),
		now:      time.Now,
	}, nil
}

// ResponseFormat returns the format sent with every generation request.
func (s *Service) ResponseFormat() *llm.ResponseFormat { return s.format }

// Generate asks the model for 5-10 proposals about text. Gateway failures
// are returned wrapped, so llm.KindOf still applies.
func (s *Service) Generate(ctx context.Context, userID, text string) (*Result, error) {
	length := utf8.RuneCountInString(text)
	if length < MinTextLength || length > MaxTextLength {
		return nil, ErrTextLength
	}

	start := s.now()

	resp, err := s.client.Send(ctx, &llm.ChatRequest{
		Messages:       s.messages(text),
		ResponseFormat: s.format,
		UserID:         userID,
	})
	if err != nil {
		return nil, fmt.Errorf("generation: %w", err)
	}

	log := s.logger.With(zap.String("request_id", resp.RequestID), zap.String("user_id", userID))

	if v := llm.ValidateResponse(resp.Content, s.format); !v.Valid {
		log.Warn("generation_invalid_format", zap.String("error", v.Error))
		return nil, fmt.Errorf("%w: %s", ErrInvalidProposals, v.Error)
	}

	violations, err := validateFull(s.schema, resp.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProposals, err)
	}
	if len(violations) > 0 {
		log.Warn("generation_schema_mismatch", zap.Strings("violations", violations))
		return nil, fmt.Errorf("%w: %s", ErrInvalidProposals, strings.Join(violations, "; "))
	}

	proposals, err := parseProposals(resp.Content)
	if err != nil {
		log.Warn("generation_parse_failed", zap.Error(err))
		return nil, err
	}

	duration := s.now().Sub(start)
	metrics.ProposalsGeneratedTotal.Add(float64(len(proposals)))

	log.Info("generation_completed",
		zap.Int("generated_count", len(proposals)),
		zap.String("model", resp.Model),
		zap.Duration("duration", duration),
	)

	return &Result{
		GeneratedCount:   len(proposals),
		Proposals:        proposals,
		Model:            resp.Model,
		DurationMs:       duration.Milliseconds(),
		SourceTextHash:   HashText(text),
		SourceTextLength: length,
		RequestID:        resp.RequestID,
	}, nil
}

func (s *Service) messages(text string) []llm.ChatMessage {
	system := fmt.Sprintf(
		"You write concise flashcard proposals in %s. Reply only with valid JSON that matches the provided schema.",
		s.language,
	)
	user := strings.Join([]string{
		"Generate 5-10 flashcards from the text below.",
		"Rules:",
		"- Each flashcard has a short question (front) and a short answer (back).",
		"- Avoid duplicates and trivia; focus on the key concepts.",
		fmt.Sprintf("- Answers must be in %s.", s.language),
		"",
		"TEXT:",
		text,
	}, "\n")

	return []llm.ChatMessage{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	}
}

// HashText is the hex SHA-256 of text, used to spot repeated sources.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
