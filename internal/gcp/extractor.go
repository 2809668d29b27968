package gcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/stickerflow/internal/extraction"
	"github.com/Lllllllleong/stickerflow/internal/models"
)

// refusalPhrases mark a response where the model declined the task.
var refusalPhrases = []string{
	"i am unable to",
	"i cannot fulfill",
	"i cannot answer",
	"i cannot provide",
	"as a large language model",
}

// StickerExtractor reads stickers from raw image or PDF bytes with Gemini.
type StickerExtractor struct {
	model *genai.GenerativeModel
}

func NewStickerExtractor(client *VertexClient) *StickerExtractor {
	return &StickerExtractor{model: client.StickerModel}
}

// Extract sends the file inline and parses the sticker array from the reply.
// A single attempt is made.
func (e *StickerExtractor) Extract(ctx context.Context, data []byte, mimeType string) ([]models.Sticker, error) {
	filePart := genai.Blob{
		MIMEType: mimeType,
		Data:     data,
	}
	prompt := genai.Text(StickerUserPrompt)

	resp, err := e.model.GenerateContent(ctx, filePart, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content from gemini: %w", err)
	}

	text := responseText(resp)
	if text == "" {
		return nil, fmt.Errorf("%w: gemini returned an empty response", extraction.ErrMalformed)
	}

	lower := strings.ToLower(text)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			slog.Error("LLM refusal detected", "response", text)
			return nil, fmt.Errorf("gemini response indicates refusal to read the stickers")
		}
	}

	return extraction.ParseStickers(text)
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ""
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(b.String())
}
