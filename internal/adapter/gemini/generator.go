package gemini

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
)

// Generator phrases final answers. It is an opaque collaborator: the prompt
// carries all the context, the returned text is used verbatim.
type Generator struct {
	client *genai.Client
	model  string
}

func NewGenerator(client *genai.Client, model string) *Generator {
	return &Generator{client: client, model: model}
}

func (g *Generator) GenerateAnswer(ctx context.Context, prompt string) (string, error) {
	model := g.client.GenerativeModel(g.model)
	res, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}

	answer := collectText(res)
	if answer == "" {
		return "", fmt.Errorf("no answer generated")
	}
	return answer, nil
}
