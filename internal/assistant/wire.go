package assistant

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hammamikhairi/baskit/internal/config"
	"github.com/hammamikhairi/baskit/internal/conversation"
	"github.com/hammamikhairi/baskit/internal/dispatch"
	"github.com/hammamikhairi/baskit/internal/domain"
	"github.com/hammamikhairi/baskit/internal/engine"
	"github.com/hammamikhairi/baskit/internal/logger"
	"github.com/hammamikhairi/baskit/internal/nlu"
	"github.com/hammamikhairi/baskit/internal/resolve"
	"github.com/hammamikhairi/baskit/internal/textnorm"
	"github.com/hammamikhairi/baskit/internal/undo"
)

// FromConfig builds the whole pipeline from cfg. gateway may be nil, in
// which case every utterance goes to the rule parser. The returned undo
// manager is what the janitor sweeps.
func FromConfig(cfg *config.Config, repo domain.Repository, gateway domain.Interpreter, log *logger.Logger) (*Assistant, *undo.Manager) {
	normalizer := textnorm.New(
		textnorm.WithMinHebrewRatio(cfg.MinHebrewRatio),
		textnorm.WithRequireHebrew(cfg.RequireHebrew),
		textnorm.WithStripMarks(cfg.NormalizeHebrew),
		textnorm.WithMaxRunes(cfg.MaxInputRunes),
	)

	parser := conversation.NewRuleParser(log.With("component", "rules"),
		conversation.WithRuleConfidence(cfg.FallbackConfidence))

	resolver := resolve.New(gateway, parser, log.With("component", "resolve"),
		resolve.WithMaxAttempts(cfg.OpenAIMaxRetries),
		resolve.WithAttemptTimeout(cfg.OpenAITimeout),
		resolve.WithBackoff(cfg.RetryDelay, cfg.RetryMaxDelay, cfg.RetryBackoff == config.BackoffExponential),
	)

	dispatcher := dispatch.New(log.With("component", "dispatch"),
		dispatch.WithTimeout(cfg.ToolTimeout),
		dispatch.WithDefaultUnit(cfg.DefaultUnit),
	)

	overflow := engine.OverflowClamp
	if cfg.MergeOverflow == config.MergeReject {
		overflow = engine.OverflowReject
	}
	stacks := undo.New(cfg.MaxUndoSteps, cfg.UndoExpiry())
	eng := engine.New(repo, stacks, log.With("component", "engine"),
		engine.WithMaxQuantity(cfg.MaxQuantity),
		engine.WithMerging(cfg.AutoMergeSimilar, cfg.AllowDuplicateItems),
		engine.WithOverflowPolicy(overflow),
		engine.WithSoftDelete(cfg.SoftDelete),
		engine.WithMaxLists(cfg.MaxListsPerUser),
	)

	sessions := conversation.NewSessions(cfg.ContextMaxTurns, cfg.EnableContext, cfg.DefaultLanguage)

	a := New(normalizer, resolver, dispatcher, eng, sessions, log,
		WithConfidenceThreshold(cfg.ToolConfidenceThreshold),
		WithDefaultListName(cfg.DefaultListName),
		WithContextTurns(cfg.ContextMaxTurns),
	)
	return a, stacks
}

// NewGateway returns the interpreter cfg selects, or nil when the
// provider is "none" or has no API key.
func NewGateway(ctx context.Context, cfg *config.Config, log *logger.Logger) (domain.Interpreter, error) {
	switch cfg.NLUProvider {
	case config.ProviderNone:
		return nil, nil
	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			log.Warn("assistant: no OpenAI key, using rule parser only")
			return nil, nil
		}
		client := nlu.NewClient(cfg.OpenAIEndpoint, cfg.OpenAIAPIKey, log.With("component", "openai"),
			nlu.WithModel(cfg.OpenAIModel),
			nlu.WithTemperature(cfg.OpenAITemperature),
			nlu.WithMaxTokens(cfg.OpenAIMaxTokens),
			nlu.WithHTTPClient(&http.Client{Timeout: cfg.OpenAITimeout}),
		)
		return nlu.NewOpenAIGateway(client, log.With("component", "openai")), nil
	case config.ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			log.Warn("assistant: no Gemini key, using rule parser only")
			return nil, nil
		}
		gw, err := nlu.NewGeminiGateway(ctx, cfg.GeminiAPIKey, cfg.GeminiModel,
			cfg.OpenAITemperature, cfg.OpenAIMaxTokens, log.With("component", "gemini"))
		if err != nil {
			return nil, err
		}
		return gw, nil
	default:
		return nil, fmt.Errorf("assistant: unknown NLU provider %q", cfg.NLUProvider)
	}
}
