package llm

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/xiaot623/gogo/streamchat/internal/config"
)

// ModeMock selects the mock backend.
const ModeMock = "MOCK"

// NewBackend creates a Backend based on cfg.LLMMode. LLM_MODE=MOCK returns a
// MockClient; anything else returns a real Client.
func NewBackend(cfg *config.Config) Backend {
	if strings.EqualFold(cfg.LLMMode, ModeMock) {
		log.Info().Str("component", "llm").Msg("LLM_MODE=MOCK detected, using mock backend")
		return NewMockClient()
	}
	return NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMSystemPrompt, cfg.LLMConnectTimeout)
}
