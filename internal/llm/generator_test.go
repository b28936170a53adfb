package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/caseforge/caseforge/internal/domain"
)

func TestBuildPromptIncludesQueryAndDocument(t *testing.T) {
	prompt := BuildPrompt(&GenerateRequest{
		DocumentText: "The system shall allow login.",
		UserQuery:    "focus on security",
		FileName:     "prd.pdf",
	})

	require.Contains(t, prompt, "focus on security")
	require.Contains(t, prompt, "prd.pdf")
	require.Contains(t, prompt, "The system shall allow login.")
	require.Contains(t, prompt, `"test_cases"`)
}

func TestBuildPromptTruncatesLongDocuments(t *testing.T) {
	long := strings.Repeat("a", MaxDocumentChars+1000)
	prompt := BuildPrompt(&GenerateRequest{DocumentText: long})

	require.NotContains(t, prompt, strings.Repeat("a", MaxDocumentChars+1))
	require.Contains(t, prompt, strings.Repeat("a", MaxDocumentChars))
}

func TestBuildPromptEmbedsTables(t *testing.T) {
	prompt := BuildPrompt(&GenerateRequest{
		DocumentText: "text",
		Tables: []domain.Table{
			{Page: 2, Rows: [][]string{{"Field", "Required"}, {"email", "yes"}}},
		},
	})

	require.Contains(t, prompt, "TABLES")
	require.Contains(t, prompt, `"email"`)
}

func TestParsePayload(t *testing.T) {
	raw := `{
		"summary": "two categories",
		"categories": [
			{"label": "Functional", "test_cases": [
				{"title": "Login", "content": "steps", "priority": "high",
				 "traceability": {"requirement_id": "R1", "confidence": 0.9}}
			]},
			{"label": "Security", "test_cases": [{"title": "SQLi", "content": "steps"}]}
		]
	}`

	payload, err := ParsePayload(raw)
	require.NoError(t, err)
	require.Equal(t, "two categories", payload.Summary)
	require.Len(t, payload.Categories, 2)
	require.Equal(t, domain.PriorityHigh, payload.Categories[0].TestCases[0].Priority)
	require.Equal(t, "R1", payload.Categories[0].TestCases[0].Traceability.RequirementID)
}

func TestParsePayloadStripsCodeFence(t *testing.T) {
	fenced := "```json\n{\"categories\": [{\"label\": \"A\", \"test_cases\": []}]}\n```"
	payload, err := ParsePayload(fenced)
	require.NoError(t, err)
	require.Len(t, payload.Categories, 1)
	require.Equal(t, "A", payload.Categories[0].Label)
}

func TestParsePayloadRejectsNonJSON(t *testing.T) {
	_, err := ParsePayload("I could not generate test cases for this document.")
	require.Error(t, err)
}
