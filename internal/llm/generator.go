// Package llm generates test cases from parsed PRD text using Gemini.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/caseforge/caseforge/internal/domain"
)

// MaxDocumentChars caps the document text embedded in a prompt. Longer
// documents are truncated before the call.
const MaxDocumentChars = 50000

// GenerateRequest carries everything the generator needs for one call.
type GenerateRequest struct {
	DocumentText string
	Tables       []domain.Table
	UserQuery    string
	FileName     string
}

// Generator produces a GenerationPayload from a parsed document.
type Generator struct {
	client *genai.Client
	model  string
}

// NewGenerator creates a Gemini-backed generator.
func NewGenerator(ctx context.Context, apiKey, model string) (*Generator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Generator{client: client, model: model}, nil
}

// Generate asks Gemini for categorized test cases as JSON. Missing labels
// and titles in the response are tolerated; the store fills placeholders
// at ingestion time.
func (g *Generator) Generate(ctx context.Context, req *GenerateRequest) (*domain.GenerationPayload, error) {
	prompt := BuildPrompt(req)

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("gemini generation failed: %w", err)
	}

	payload, err := ParsePayload(resp.Text())
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// BuildPrompt assembles the generation prompt, truncating the document
// text to MaxDocumentChars.
func BuildPrompt(req *GenerateRequest) string {
	text := req.DocumentText
	if len(text) > MaxDocumentChars {
		text = text[:MaxDocumentChars]
	}

	var sb strings.Builder
	sb.WriteString("You are a QA engineer. Derive test cases from the product requirements document below.\n")
	sb.WriteString("Group them into thematic categories (e.g. Functional, Security, Performance).\n")
	sb.WriteString("For every test case include a title, the test steps with the expected result, ")
	sb.WriteString("a priority (critical, high, medium or low) and, where possible, the requirement it traces to.\n")
	sb.WriteString("Respond with JSON only, shaped as:\n")
	sb.WriteString(`{"summary": "...", "categories": [{"label": "...", "description": "...", ` +
		`"test_cases": [{"title": "...", "content": "...", "priority": "...", ` +
		`"traceability": {"requirement_id": "...", "requirement_text": "...", "confidence": 0.9}}]}]}` + "\n\n")

	if req.UserQuery != "" {
		fmt.Fprintf(&sb, "User request: %s\n\n", req.UserQuery)
	}
	if req.FileName != "" {
		fmt.Fprintf(&sb, "Document: %s\n", req.FileName)
	}
	sb.WriteString("--- DOCUMENT TEXT ---\n")
	sb.WriteString(text)

	if len(req.Tables) > 0 {
		sb.WriteString("\n--- TABLES ---\n")
		tables, _ := json.Marshal(req.Tables)
		sb.Write(tables)
	}
	return sb.String()
}

// ParsePayload decodes the model's JSON answer, tolerating a fenced code
// block around the object.
func ParsePayload(raw string) (*domain.GenerationPayload, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var payload domain.GenerationPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse generation payload: %w", err)
	}
	return &payload, nil
}
