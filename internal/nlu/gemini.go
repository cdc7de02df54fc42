package nlu

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/hammamikhairi/baskit/internal/domain"
	"github.com/hammamikhairi/baskit/internal/logger"
)

// Compile-time interface check.
var _ domain.Interpreter = (*GeminiGateway)(nil)

// generator is the part of *genai.Models the gateway uses.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiGateway interprets utterances with Google Gemini function calling.
type GeminiGateway struct {
	models      generator
	model       string
	temperature float64
	config      *genai.GenerateContentConfig
	log         *logger.Logger
}

// NewGeminiGateway creates a Gemini-backed gateway.
func NewGeminiGateway(ctx context.Context, apiKey, model string, temperature float64, maxTokens int, log *logger.Logger) (*GeminiGateway, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: API key required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return newGeminiGateway(client.Models, model, temperature, maxTokens, log), nil
}

func newGeminiGateway(models generator, model string, temperature float64, maxTokens int, log *logger.Logger) *GeminiGateway {
	temp := float32(temperature)
	return &GeminiGateway{
		models:      models,
		model:       model,
		temperature: temperature,
		config: &genai.GenerateContentConfig{
			Temperature:       &temp,
			MaxOutputTokens:   int32(maxTokens),
			SystemInstruction: genai.NewContentFromText(PromptInterpret, genai.RoleUser),
			Tools:             []*genai.Tool{{FunctionDeclarations: geminiDecls()}},
			ToolConfig: &genai.ToolConfig{
				FunctionCallingConfig: &genai.FunctionCallingConfig{
					Mode: genai.FunctionCallingConfigModeAny,
				},
			},
		},
		log: log,
	}
}

// Name returns the provider name recorded on intents.
func (g *GeminiGateway) Name() string { return "gemini" }

// Interpret makes one GenerateContent call and converts the first function
// call into an intent.
func (g *GeminiGateway) Interpret(ctx context.Context, req domain.Request) (domain.Intent, error) {
	var contents []*genai.Content
	if ctxBlock := buildContext(req); ctxBlock != "" {
		contents = append(contents,
			genai.NewContentFromText(ctxBlock, genai.RoleUser),
			genai.NewContentFromText(ackContext, genai.RoleModel),
		)
	}
	contents = append(contents, genai.NewContentFromText(req.Text, genai.RoleUser))

	g.log.Debug("gemini: generate %s (%d contents)", g.model, len(contents))

	resp, err := g.models.GenerateContent(ctx, g.model, contents, g.config)
	if err != nil {
		return domain.Intent{}, classify(ctx, geminiError(err))
	}

	call := firstFunctionCall(resp)
	if call == nil {
		return domain.Intent{}, malformed("no function call in gemini reply")
	}

	args := make(map[string]any, len(call.Args))
	for k, v := range call.Args {
		args[k] = v
	}
	dc, err := decodeCall(call.Name, args)
	if err != nil {
		return domain.Intent{}, err
	}
	in := toIntent(dc, req.Text, g.temperature, g.Name())
	g.log.Debug("gemini: %q -> %s (confidence %.2f)", req.Text, in.Tool, in.Confidence)
	return in, nil
}

func firstFunctionCall(resp *genai.GenerateContentResponse) *genai.FunctionCall {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}
	cand := resp.Candidates[0]
	if cand.Content == nil {
		return nil
	}
	for _, part := range cand.Content.Parts {
		if part != nil && part.FunctionCall != nil {
			return part.FunctionCall
		}
	}
	return nil
}

// geminiError turns a genai.APIError into a StatusError so status
// mapping is shared with the OpenAI gateway.
func geminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("gemini: %w", &StatusError{Code: apiErr.Code, Body: apiErr.Message})
	}
	return err
}

func geminiDecls() []*genai.FunctionDeclaration {
	specs := Schema()
	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, s := range specs {
		props := make(map[string]*genai.Schema, len(s.Params))
		var required []string
		for _, p := range s.Params {
			props[p.Name] = &genai.Schema{Type: geminiType(p.Type), Description: p.Description}
			if p.Required {
				required = append(required, p.Name)
			}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        s.Tool.String(),
			Description: s.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: props,
				Required:   required,
			},
		})
	}
	return decls
}

func geminiType(t string) genai.Type {
	switch t {
	case TypeInteger:
		return genai.TypeInteger
	case TypeNumber:
		return genai.TypeNumber
	default:
		return genai.TypeString
	}
}
