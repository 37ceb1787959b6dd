package vision

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/freshkeep/freshkeep/internal/imaging"
)

// Gemini implements the Detector interface using Google Gemini vision.
// The model handle is created once and reused for the process lifetime.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates a new Gemini detector instance
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client: client,
		model:  client.GenerativeModel(modelName),
	}, nil
}

// Detect analyzes a bitmap and returns detected food candidates.
// Gemini picks its own numeric precision server-side; the requested mode
// is accepted for interface compatibility but has no effect here.
func (g *Gemini) Detect(ctx context.Context, bitmap *imaging.Bitmap, _ Precision) ([]Candidate, error) {
	parts := []genai.Part{
		genai.ImageData("png", bitmap.PNG),
		genai.Text(detectionPrompt),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no response from gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	candidates, err := parseDetections(responseText.String())
	if err != nil {
		return nil, fmt.Errorf("parsing detections: %w", err)
	}

	return candidates, nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
