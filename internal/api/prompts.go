package api

import (
	"net/http"

	"github.com/ashureev/mailsmith/internal/prompt"
)

// GetPrompts returns the UI quick prompts and quick responses.
func (h *Handler) GetPrompts(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"quickPrompts":   prompt.QuickPrompts,
		"quickResponses": prompt.QuickResponses,
	})
}
