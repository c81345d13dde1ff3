package gateway

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

// ADKModel calls a Gemini model through the ADK model interface.
type ADKModel struct {
	llm      model.LLM
	jsonMode bool
}

// NewADKModel wraps llm. With jsonMode the model is asked to answer with
// application/json, which keeps fences and prose out of most responses.
func NewADKModel(llm model.LLM, jsonMode bool) *ADKModel {
	return &ADKModel{llm: llm, jsonMode: jsonMode}
}

// Call implements ModelCaller. The system message becomes the system
// instruction. Model turns with no text are skipped since the API rejects
// empty parts. Thought parts are dropped from the answer.
func (m *ADKModel) Call(ctx context.Context, messages []Message) (string, error) {
	req := &model.LLMRequest{
		Model:  m.llm.Name(),
		Config: &genai.GenerateContentConfig{},
	}
	if m.jsonMode {
		req.Config.ResponseMIMEType = "application/json"
	}

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			if msg.Text != "" {
				req.Config.SystemInstruction = genai.NewContentFromText(msg.Text, genai.RoleUser)
			}
		case RoleModel:
			if msg.Text == "" {
				continue
			}
			req.Contents = append(req.Contents, genai.NewContentFromText(msg.Text, genai.RoleModel))
		default:
			req.Contents = append(req.Contents, genai.NewContentFromText(msg.Text, genai.RoleUser))
		}
	}

	var sb strings.Builder
	for resp, err := range m.llm.GenerateContent(ctx, req, false) {
		if err != nil {
			return "", fmt.Errorf("generating content: %w", err)
		}
		if resp == nil {
			continue
		}
		if resp.ErrorCode != "" {
			return "", fmt.Errorf("model returned %s: %s", resp.ErrorCode, resp.ErrorMessage)
		}
		if resp.Content == nil {
			continue
		}
		for _, part := range resp.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), nil
}
