package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

type openaiModel struct {
	client openai.Client
	model  string
}

func newOpenAIModel(model, apiKey, apiBase string, timeout time.Duration) Model {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(timeout),
	}
	if apiBase != "" {
		opts = append(opts, option.WithBaseURL(apiBase))
	}
	return &openaiModel{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

func (m *openaiModel) Name() string {
	return "openai/" + m.model
}

func (m *openaiModel) Complete(ctx context.Context, req Request) (*Result, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(m.model),
		Messages:            messages,
		Temperature:         openai.Float(req.Temperature),
		MaxCompletionTokens: openai.Int(int64(normalizeMaxTokens(req.MaxTokens))),
	}
	if req.Tool != nil {
		params.Tools = []openai.ChatCompletionToolUnionParam{
			openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
				Name:        req.Tool.Name,
				Description: openai.String(req.Tool.Description),
				Parameters: shared.FunctionParameters{
					"type":       "object",
					"properties": req.Tool.Parameters,
					"required":   req.Tool.Required,
				},
			}),
		}
	}

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty choices", ErrUnavailable)
	}

	msg := resp.Choices[0].Message
	res := &Result{Text: msg.Content}
	for _, tc := range msg.ToolCalls {
		if tc.Function.Name == "" {
			continue
		}
		res.ToolCall = &ToolCall{
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		}
		break
	}
	return res, nil
}
