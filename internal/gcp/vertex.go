package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
)

// --- Sticker Extraction Prompts ---
const StickerSystemPrompt = "You are a medical device label reader. Your task is to read every product sticker visible in an image or document and transcribe its fields exactly. You must output your response as a valid JSON array."
const StickerUserPrompt = `This image contains multiple product stickers. For each sticker, extract:
- brand
- product
- dimensions
- gtin
- ref
- lot

Follow these rules precisely:
1.  Create one JSON object per physical sticker. If the same sticker appears several times, output it once per appearance.
2.  Each JSON object must have exactly the six keys listed above.
3.  Copy values exactly as printed. Do not guess. Use null for any missing or unreadable value.
4.  The final output MUST be a single, valid JSON array of these objects. Do not include any text before or after the JSON array.

Example output format:
[
  {
    "brand": "Medtronic",
    "product": "Resolute Onyx Coronary Stent",
    "dimensions": "3.0 mm x 18 mm",
    "gtin": "00643169869218",
    "ref": "RONYX30018X",
    "lot": "0011223344"
  }
]`

// DefaultStickerModel is used when no model name is configured.
const DefaultStickerModel = "gemini-1.5-pro"

// VertexClient holds the pre-configured generative models for our app.
type VertexClient struct {
	StickerModel *genai.GenerativeModel
	baseClient   *genai.Client
}

// NewVertexClient creates a new client holding all necessary models.
func NewVertexClient(ctx context.Context, projectID, region, modelName string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}
	if modelName == "" {
		modelName = DefaultStickerModel
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	// --- Configure the sticker model ---
	stickerModel := baseClient.GenerativeModel(modelName)
	stickerModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(StickerSystemPrompt)},
	}
	stickerModel.GenerationConfig = genai.GenerationConfig{
		// Force JSON output. The parser still tolerates surrounding text.
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}

	return &VertexClient{
		StickerModel: stickerModel,
		baseClient:   baseClient,
	}, nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
