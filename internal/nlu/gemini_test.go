package nlu

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/hammamikhairi/baskit/internal/domain"
	"github.com/hammamikhairi/baskit/internal/logger"
)

type fakeGenerator struct {
	resp     *genai.GenerateContentResponse
	err      error
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.contents = contents
	f.config = config
	return f.resp, f.err
}

func callResponse(name string, args map[string]any) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Role:  genai.RoleModel,
				Parts: []*genai.Part{{FunctionCall: &genai.FunctionCall{Name: name, Args: args}}},
			},
		}},
	}
}

func TestGeminiGatewayInterpret(t *testing.T) {
	fake := &fakeGenerator{resp: callResponse("update_quantity", map[string]any{
		"item_name":  "חלב",
		"quantity":   float64(3),
		"confidence": 0.9,
	})}
	gw := newGeminiGateway(fake, "gemini-test", 0, 150, logger.New(logger.LevelOff, nil))

	in, err := gw.Interpret(context.Background(), domain.Request{Text: "תעדכן חלב ל-3", ListName: "בית"})
	require.NoError(t, err)

	assert.Equal(t, domain.ToolUpdateQuantity, in.Tool)
	assert.Equal(t, 3, *in.Args.Quantity)
	assert.Equal(t, 0.9, in.Confidence)
	assert.Equal(t, "gemini", in.Source)

	require.Len(t, fake.contents, 3)
	require.NotNil(t, fake.config.ToolConfig)
	assert.Equal(t, genai.FunctionCallingConfigModeAny, fake.config.ToolConfig.FunctionCallingConfig.Mode)
	assert.Len(t, fake.config.Tools[0].FunctionDeclarations, len(domain.Tools()))
}

func TestGeminiGatewayErrors(t *testing.T) {
	tests := []struct {
		name     string
		fake     *fakeGenerator
		wantKind domain.ErrorKind
	}{
		{"rate limited", &fakeGenerator{err: genai.APIError{Code: 429, Message: "quota"}}, domain.KindRateLimited},
		{"unauthorized", &fakeGenerator{err: genai.APIError{Code: 403, Message: "key"}}, domain.KindUnauthorized},
		{"unavailable", &fakeGenerator{err: genai.APIError{Code: 503, Message: "overloaded"}}, domain.KindUnavailable},
		{"status only in message", &fakeGenerator{err: fmt.Errorf("Error 429, Message: slow down")}, domain.KindUnavailable},
		{"deadline", &fakeGenerator{err: fmt.Errorf("call: %w", context.DeadlineExceeded)}, domain.KindTimeout},
		{"no candidates", &fakeGenerator{resp: &genai.GenerateContentResponse{}}, domain.KindMalformed},
		{"unknown tool", &fakeGenerator{resp: callResponse("launch_rocket", nil)}, domain.KindUnknownTool},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newGeminiGateway(tt.fake, "m", 0, 100, logger.New(logger.LevelOff, nil))
			_, err := gw.Interpret(context.Background(), domain.Request{Text: "x"})
			assert.ErrorIs(t, err, &domain.NLUError{Kind: tt.wantKind})
		})
	}
}
