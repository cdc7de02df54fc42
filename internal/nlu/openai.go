package nlu

import (
	"context"
	"strings"

	"github.com/hammamikhairi/baskit/internal/domain"
	"github.com/hammamikhairi/baskit/internal/logger"
)

// Compile-time interface check.
var _ domain.Interpreter = (*OpenAIGateway)(nil)

// OpenAIGateway interprets utterances with an OpenAI-compatible
// chat-completions endpoint using function calling.
type OpenAIGateway struct {
	client *Client
	tools  []Tool
	log    *logger.Logger
}

// NewOpenAIGateway creates a gateway over client.
func NewOpenAIGateway(client *Client, log *logger.Logger) *OpenAIGateway {
	return &OpenAIGateway{client: client, tools: openAITools(), log: log}
}

// Name returns the provider name recorded on intents.
func (g *OpenAIGateway) Name() string { return "openai" }

// Interpret makes one completion call and converts the first tool call
// into an intent.
func (g *OpenAIGateway) Interpret(ctx context.Context, req domain.Request) (domain.Intent, error) {
	reply, err := g.client.Complete(ctx, g.buildMessages(req), g.tools)
	if err != nil {
		return domain.Intent{}, classify(ctx, err)
	}

	if len(reply.ToolCalls) == 0 {
		return domain.Intent{}, malformed("no tool call in reply %q", truncate(reply.Content, 80))
	}
	if len(reply.ToolCalls) > 1 {
		g.log.Warn("nlu: model returned %d tool calls, using the first", len(reply.ToolCalls))
	}

	call := reply.ToolCalls[0]
	dc, err := decodeJSONCall(call.Function.Name, call.Function.Arguments)
	if err != nil {
		return domain.Intent{}, err
	}
	in := toIntent(dc, req.Text, g.client.Temperature(), g.Name())
	g.log.Debug("nlu: %q -> %s (confidence %.2f)", req.Text, in.Tool, in.Confidence)
	return in, nil
}

// buildMessages assembles the system prompt, an optional context block
// with a fake acknowledgement, and the utterance.
func (g *OpenAIGateway) buildMessages(req domain.Request) []Message {
	msgs := []Message{
		TextMessage(RoleSystem, PromptInterpret),
	}

	if ctxBlock := buildContext(req); ctxBlock != "" {
		msgs = append(msgs, TextMessage(RoleUser, ctxBlock))
		msgs = append(msgs, TextMessage(RoleAssistant, ackContext))
	}

	msgs = append(msgs, TextMessage(RoleUser, req.Text))
	return msgs
}

func openAITools() []Tool {
	specs := Schema()
	tools := make([]Tool, 0, len(specs))
	for _, s := range specs {
		tools = append(tools, Tool{
			Type: "function",
			Function: FunctionDecl{
				Name:        s.Tool.String(),
				Description: s.Description,
				Parameters:  s.jsonSchema(),
			},
		})
	}
	return tools
}

// toIntent finishes a decoded call. Missing confidence is derived from the
// sampling temperature.
func toIntent(dc decodedCall, text string, temperature float64, source string) domain.Intent {
	conf := temperatureConfidence(temperature)
	if dc.confidence != nil {
		conf = *dc.confidence
	}
	args := dc.args
	args.ItemName = strings.TrimSpace(args.ItemName)
	return domain.Intent{
		Tool:       dc.tool,
		Args:       args,
		Confidence: conf,
		Utterance:  text,
		Source:     source,
	}
}
