package vision

import (
	"encoding/json"
	"fmt"
	"strings"
)

// detectionPrompt is the shared prompt used by LLM-backed detectors. It asks
// for the same wire shape the dedicated inference service speaks, so one
// parser covers both backends.
const detectionPrompt = `You are an object detection system for food items. Identify every distinct food item visible in the image.

Return ONLY a valid JSON array in this exact format:
[
  {"label": "banana", "score": 0.93, "box": {"xmin": 10, "ymin": 20, "width": 120, "height": 80}}
]

Important:
- label is a short lowercase food name (e.g. "apple", "milk carton", "bread")
- score is your detection confidence as a number between 0 and 1
- box is optional; include it only when you can localize the item, with all values >= 0
- If no food items are visible, return []
- Do not include any text before or after the JSON array
- Do not use markdown code blocks`

// rawDetection mirrors the inference service's native response element
type rawDetection struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
	Box   *rawBox `json:"box"`
}

type rawBox struct {
	XMin   float64 `json:"xmin"`
	YMin   float64 `json:"ymin"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// parseDetections parses a detection response into candidates.
//
// The response must be a JSON array of {label, score, box?} objects; a
// non-array or otherwise malformed payload is an error, never a partial
// result. Markdown code fences (LLM backends wrap output in them) are
// stripped before parsing.
func parseDetections(text string) ([]Candidate, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "[")
	if startIdx == -1 {
		return nil, fmt.Errorf("response is not a JSON array")
	}
	endIdx := strings.LastIndex(text, "]")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON array in response")
	}
	text = text[startIdx : endIdx+1]

	var raw []rawDetection
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("unmarshaling detections: %w", err)
	}

	candidates := make([]Candidate, 0, len(raw))
	for i, det := range raw {
		if det.Score < 0 || det.Score > 1 {
			return nil, fmt.Errorf("detection %d: score %v out of range [0,1]", i, det.Score)
		}
		candidate := Candidate{
			Name:       strings.TrimSpace(det.Label),
			Confidence: det.Score,
		}
		if det.Box != nil {
			if det.Box.XMin < 0 || det.Box.YMin < 0 || det.Box.Width < 0 || det.Box.Height < 0 {
				return nil, fmt.Errorf("detection %d: negative bounding box", i)
			}
			// Native coordinates, passed through unchanged
			candidate.Box = &Box{
				X:      det.Box.XMin,
				Y:      det.Box.YMin,
				Width:  det.Box.Width,
				Height: det.Box.Height,
			}
		}
		candidates = append(candidates, candidate)
	}

	return candidates, nil
}
