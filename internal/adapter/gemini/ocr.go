package gemini

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
)

const ocrInstruction = "Extract all text content from this PDF document. " +
	"Return only the text content without any formatting or additional commentary."

// OCRClient extracts text from scanned documents through a multimodal model.
// It is treated as unreliable: an empty result is not an error.
type OCRClient struct {
	client *genai.Client
	model  string
}

func NewOCRClient(client *genai.Client, model string) *OCRClient {
	return &OCRClient{client: client, model: model}
}

func (o *OCRClient) ExtractText(ctx context.Context, raw []byte) (string, error) {
	model := o.client.GenerativeModel(o.model)
	res, err := model.GenerateContent(ctx,
		genai.Blob{MIMEType: "application/pdf", Data: raw},
		genai.Text(ocrInstruction),
	)
	if err != nil {
		return "", err
	}

	text := collectText(res)
	slog.InfoContext(ctx, "ocr extracted text", "model", o.model, "length", len(text))
	return text, nil
}

func collectText(res *genai.GenerateContentResponse) string {
	if res == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range res.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
	}
	return b.String()
}
