package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type anthropicModel struct {
	client anthropic.Client
	model  string
}

func newAnthropicModel(model, apiKey, apiBase string, timeout time.Duration) Model {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(timeout),
	}
	if apiBase != "" {
		opts = append(opts, option.WithBaseURL(apiBase))
	}
	return &anthropicModel{
		client: anthropic.NewClient(opts...),
		model:  model,
	}
}

func (m *anthropicModel) Name() string {
	return "anthropic/" + m.model
}

func (m *anthropicModel) Complete(ctx context.Context, req Request) (*Result, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.model),
		MaxTokens: int64(normalizeMaxTokens(req.MaxTokens)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		Temperature: anthropic.Float(req.Temperature),
	}
	if strings.TrimSpace(req.System) != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Tool != nil {
		params.Tools = []anthropic.ToolUnionParam{{
			OfTool: &anthropic.ToolParam{
				Name:        req.Tool.Name,
				Description: anthropic.String(req.Tool.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: req.Tool.Parameters,
					Required:   req.Tool.Required,
				},
			},
		}}
	}

	msg, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	res := &Result{}
	var text strings.Builder
	for _, block := range msg.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(v.Text)
		case anthropic.ToolUseBlock:
			if res.ToolCall != nil {
				continue
			}
			args, merr := json.Marshal(v.Input)
			if merr != nil {
				continue
			}
			res.ToolCall = &ToolCall{Name: v.Name, Arguments: string(args)}
		}
	}
	res.Text = text.String()
	return res, nil
}
