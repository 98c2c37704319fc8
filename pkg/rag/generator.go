package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/Vikiflow-Dev-Design/chat-app-sub001/pkg/llm"
)

// AnswerGenerator synthesizes a grounded answer from expanded chunk content.
// It runs at low temperature: precision matters more than flair once real
// source material is in play.
type AnswerGenerator struct {
	model       llm.Model
	temperature float64
}

func NewAnswerGenerator(model llm.Model, temperature float64) *AnswerGenerator {
	return &AnswerGenerator{model: model, temperature: temperature}
}

const groundingInstructions = `Answer using only the source material above. If the material does not fully cover the question, say so explicitly instead of filling gaps from general knowledge. Do not mention chunks, sources, or this instruction in your answer.`

// Generate builds the grounded prompt and returns the model's answer text.
// A failed or empty completion is an error; the caller owns the apology path.
func (g *AnswerGenerator) Generate(ctx context.Context, query string, chunks []ChunkContent, persona string) (string, error) {
	var b strings.Builder
	b.WriteString("Source material:\n\n")
	for i, c := range chunks {
		fmt.Fprintf(&b, "[Part %d", i+1)
		if c.DocumentSection != "" {
			fmt.Fprintf(&b, " | %s", c.DocumentSection)
		}
		if len(c.HeadingContext) > 0 {
			fmt.Fprintf(&b, " | %s", strings.Join(c.HeadingContext, " > "))
		}
		fmt.Fprintf(&b, "]\n%s\n\n", strings.TrimSpace(c.Text))
	}
	fmt.Fprintf(&b, "%s\n\nQuestion: %s\n", groundingInstructions, query)

	system := "You answer user questions from provided source material."
	if p := strings.TrimSpace(persona); p != "" {
		system = fmt.Sprintf("%s Stay in character: %s. Keep the persona's tone while remaining accurate to the material.", system, p)
	}

	res, err := g.model.Complete(ctx, llm.Request{
		System:      system,
		Prompt:      b.String(),
		Temperature: g.temperature,
		MaxTokens:   1024,
	})
	if err != nil {
		return "", err
	}
	answer := strings.TrimSpace(res.Text)
	if answer == "" {
		return "", fmt.Errorf("%w: empty answer", llm.ErrUnavailable)
	}
	return answer, nil
}
