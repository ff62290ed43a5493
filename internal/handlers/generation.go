package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/izukowska/10xcards/internal/generation"
	"github.com/izukowska/10xcards/pkg/logging"
)

// Generator is satisfied by *generation.Service.
type Generator interface {
	Generate(ctx context.Context, userID, text string) (*generation.Result, error)
}

type GenerationHandler struct {
	Generator Generator
	validate  *validator.Validate
}

func NewGenerationHandler(g Generator) *GenerationHandler {
	return &GenerationHandler{Generator: g, validate: newValidator()}
}

type generationRequestBody struct {
	Text string `json:"text" validate:"min=1000,max=10000"`
}

// Create handles POST /api/flashcard-generations.
func (h *GenerationHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)

	userID := r.Header.Get(UserHeader)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, errorBody{
			Error:   "Unauthorized",
			Message: "You must be logged in to generate flashcards",
		})
		return
	}

	var body generationRequestBody
	if err := decodeJSON(r, &body); err != nil {
		if bodyTooLarge(err) {
			writeTooLarge(w)
			return
		}
		writeError(w, http.StatusBadRequest, errorBody{
			Error:   "Invalid JSON",
			Message: "Request body must be valid JSON",
		})
		return
	}

	if err := h.validate.Struct(&body); err != nil {
		writeError(w, http.StatusBadRequest, errorBody{
			Error:   "Validation failed",
			Message: "Text must be between 1000 and 10000 characters",
			Details: issuesFrom(err),
		})
		return
	}

	result, err := h.Generator.Generate(ctx, userID, body.Text)
	if err != nil {
		logger.Error("flashcard generation failed", zap.String("user_id", userID), zap.Error(err))

		switch {
		case errors.Is(err, generation.ErrTextLength):
			writeError(w, http.StatusBadRequest, errorBody{Error: "Validation failed", Message: err.Error()})
		case errors.Is(err, generation.ErrInvalidProposals):
			writeError(w, http.StatusInternalServerError, errorBody{
				Error:   "Response Validation Error",
				Message: "AI response does not match expected format",
				Details: err.Error(),
			})
		default:
			writeGatewayError(w, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}
