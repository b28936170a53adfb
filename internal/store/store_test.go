package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/caseforge/caseforge/internal/domain"
)

func seedChat(t *testing.T, s *Store) *domain.ChatSession {
	t.Helper()
	return s.CreateChat("user-1", "PRD review")
}

func TestProcessingMessageKeepsIdentityAcrossResolution(t *testing.T) {
	s := New()
	chat := seedChat(t, s)

	msg := s.AppendProcessingMessage(chat.ID, "user-1", "Scanning your document...")
	require.Equal(t, domain.RoleProcessing, msg.Role)

	ok := s.ResolveProcessingMessage(msg.ID, "All done.", nil)
	require.True(t, ok)

	transcript := s.ResponsesForChat(chat.ID)
	require.Len(t, transcript, 1)
	require.Equal(t, msg.ID, transcript[0].ID)
	require.Equal(t, domain.RoleAssistant, transcript[0].Role)
	require.Equal(t, "All done.", transcript[0].Content)
}

func TestUpdateProcessingStatus(t *testing.T) {
	s := New()
	chat := seedChat(t, s)
	msg := s.AppendProcessingMessage(chat.ID, "user-1", "Scanning your document...")

	require.True(t, s.UpdateProcessingStatus(msg.ID, "Reading the requirements..."))

	transcript := s.ResponsesForChat(chat.ID)
	require.Equal(t, "Reading the requirements...", transcript[0].Content)

	// Resolved messages no longer accept status updates.
	s.ResolveProcessingMessage(msg.ID, "done", nil)
	require.False(t, s.UpdateProcessingStatus(msg.ID, "too late"))
}

func TestResolveExpandsPayload(t *testing.T) {
	s := New()
	chat := seedChat(t, s)
	msg := s.AppendProcessingMessage(chat.ID, "user-1", "working")

	payload := &domain.GenerationPayload{
		Categories: []domain.PayloadCategory{
			{
				Label:       "Functional",
				Description: "Core flows",
				TestCases: []domain.PayloadTestCase{
					{Title: "Login works", Content: "steps", Priority: domain.PriorityHigh},
					{Title: "Logout works", Content: "steps"},
					{Title: "Password reset", Content: "steps"},
				},
			},
			{
				// Missing label and description get placeholders.
				TestCases: []domain.PayloadTestCase{
					{Title: "SQLi blocked", Content: "steps"},
					{}, // missing title and content get placeholders
				},
			},
		},
	}

	require.True(t, s.ResolveProcessingMessage(msg.ID, "generated", payload))

	cats := s.CategoriesForMessage(msg.ID)
	require.Len(t, cats, 2)
	require.Equal(t, "Functional", cats[0].Label)
	require.Equal(t, "Test Category 2", cats[1].Label)
	require.Equal(t, "Generated test category", cats[1].Description)

	var total int
	for _, cat := range cats {
		cases := s.CasesForCategory(cat.ID)
		total += len(cases)
		for _, tc := range cases {
			require.Equal(t, domain.StatusPending, tc.Status)
			require.Equal(t, cat.ID, tc.CategoryID)
			require.Equal(t, msg.ID, tc.MessageID)
		}
	}
	require.Equal(t, 5, total)

	placeholder := s.CasesForCategory(cats[1].ID)[1]
	require.Equal(t, "Test Case 2", placeholder.Title)
	require.Equal(t, "Generated test case content", placeholder.Content)
}

func TestUnknownIDMutationsAreNoOps(t *testing.T) {
	s := New()

	require.False(t, s.UpdateProcessingStatus("missing", "status"))
	require.False(t, s.ResolveProcessingMessage("missing", "text", nil))
	require.False(t, s.SetTestCaseStatus("missing", domain.StatusApproved))
	require.False(t, s.EditTestCase("missing", "title", "content"))
}

func TestSetTestCaseStatusAndEdit(t *testing.T) {
	s := New()
	chat := seedChat(t, s)
	msg := s.AppendProcessingMessage(chat.ID, "user-1", "working")
	s.ResolveProcessingMessage(msg.ID, "done", &domain.GenerationPayload{
		Categories: []domain.PayloadCategory{
			{Label: "Functional", TestCases: []domain.PayloadTestCase{{Title: "t", Content: "c"}}},
		},
	})

	cat := s.CategoriesForMessage(msg.ID)[0]
	tc := s.CasesForCategory(cat.ID)[0]

	require.True(t, s.SetTestCaseStatus(tc.ID, domain.StatusApproved))
	require.True(t, s.EditTestCase(tc.ID, "new title", "new content"))

	got := s.TestCase(tc.ID)
	require.Equal(t, domain.StatusApproved, got.Status)
	require.Equal(t, "new title", got.Title)
	require.Equal(t, "new content", got.Content)
}

func TestQueriesScopeToParent(t *testing.T) {
	s := New()
	chatA := s.CreateChat("user-1", "a")
	chatB := s.CreateChat("user-1", "b")

	s.AppendUserMessage(chatA.ID, "user-1", "hello", nil, domain.Identity{UserID: "user-1"})
	s.AppendUserMessage(chatB.ID, "user-1", "world", nil, domain.Identity{UserID: "user-1"})

	require.Len(t, s.ResponsesForChat(chatA.ID), 1)
	require.Len(t, s.ResponsesForChat(chatB.ID), 1)
	require.Equal(t, "hello", s.ResponsesForChat(chatA.ID)[0].Content)

	require.Len(t, s.Chats("user-1"), 2)
	require.Empty(t, s.Chats("user-2"))
}

func TestReadsReturnCopies(t *testing.T) {
	s := New()
	chat := seedChat(t, s)
	msg := s.AppendUserMessage(chat.ID, "user-1", "hi", nil, domain.Identity{UserID: "user-1"})

	msg.Content = "mutated"
	require.Equal(t, "hi", s.ResponsesForChat(chat.ID)[0].Content)
}
