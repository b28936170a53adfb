// Package store holds the in-memory entity collections for chat sessions,
// messages, test categories and test cases. The store is the single source
// of truth while a review session is live; persistence is a write-behind
// concern handled elsewhere.
package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/caseforge/caseforge/internal/domain"
)

// Store keeps the four collections and answers parent-scoped queries with
// a linear scan, which is fine at the expected scale of dozens of rows per
// session. All mutators take the store lock, so a payload expansion is
// atomic from any reader's point of view.
//
// Mutating an unknown id is a documented no-op: mutators return false
// instead of raising. Callers that care check the bool.
type Store struct {
	mu         sync.Mutex
	seq        int64
	chats      []*domain.ChatSession
	messages   []*domain.Message
	categories []*domain.TestCategory
	cases      []*domain.TestCase
}

// New creates an empty store.
func New() *Store {
	return &Store{}
}

// nextID generates a process-local opaque id. Uniqueness is per process,
// which is all the live store needs.
func (s *Store) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixMilli(), s.seq)
}

// CreateChat registers a new chat session.
func (s *Store) CreateChat(userID, title string) *domain.ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat := &domain.ChatSession{
		ID:        s.nextID("chat"),
		UserID:    userID,
		Title:     title,
		CreatedAt: time.Now(),
	}
	s.chats = append(s.chats, chat)
	return chat
}

// Chat returns a chat session by id, or nil.
func (s *Store) Chat(chatID string) *domain.ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.chats {
		if c.ID == chatID {
			cp := *c
			return &cp
		}
	}
	return nil
}

// Chats returns all chat sessions for a user, in creation order.
func (s *Store) Chats(userID string) []*domain.ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.ChatSession
	for _, c := range s.chats {
		if c.UserID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out
}

// AppendUserMessage appends a user-authored message to a chat.
func (s *Store) AppendUserMessage(chatID, userID, text string, file *domain.FileDescriptor, author domain.Identity) *domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := &domain.Message{
		ID:         s.nextID("msg"),
		ChatID:     chatID,
		UserID:     userID,
		Role:       domain.RoleUser,
		Prompt:     text,
		Content:    text,
		File:       file,
		AuthorName: author.Name,
		AvatarURL:  author.Avatar,
		CreatedAt:  time.Now(),
	}
	s.messages = append(s.messages, msg)
	return s.copyMessage(msg)
}

// AppendProcessingMessage appends a processing placeholder that will later
// resolve in place to an assistant message.
func (s *Store) AppendProcessingMessage(chatID, userID, status string) *domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := &domain.Message{
		ID:        s.nextID("msg"),
		ChatID:    chatID,
		UserID:    userID,
		Role:      domain.RoleProcessing,
		Content:   status,
		CreatedAt: time.Now(),
	}
	s.messages = append(s.messages, msg)
	return s.copyMessage(msg)
}

// AppendAssistantReply appends a plain assistant message with no attached
// generation payload.
func (s *Store) AppendAssistantReply(chatID, text string) *domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := &domain.Message{
		ID:        s.nextID("msg"),
		ChatID:    chatID,
		Role:      domain.RoleAssistant,
		Content:   text,
		CreatedAt: time.Now(),
	}
	s.messages = append(s.messages, msg)
	return s.copyMessage(msg)
}

// UpdateProcessingStatus replaces the status text of an in-flight
// processing message. Returns false if the message does not exist or is
// not in the processing state.
func (s *Store) UpdateProcessingStatus(messageID, status string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := s.findMessage(messageID)
	if msg == nil || msg.Role != domain.RoleProcessing {
		return false
	}
	msg.Content = status
	return true
}

// ResolveProcessingMessage transitions a processing message to an
// assistant message in place, keeping its identity, and expands the
// optional generation payload into category and test-case rows. The
// expansion is atomic: readers either see all rows of the payload or none.
func (s *Store) ResolveProcessingMessage(messageID, finalText string, payload *domain.GenerationPayload) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := s.findMessage(messageID)
	if msg == nil || msg.Role != domain.RoleProcessing {
		return false
	}
	msg.Role = domain.RoleAssistant
	msg.Content = finalText

	if payload == nil {
		return true
	}
	for i, pc := range payload.Categories {
		cat := &domain.TestCategory{
			ID:          s.nextID("cat"),
			MessageID:   msg.ID,
			ChatID:      msg.ChatID,
			Label:       pc.Label,
			Description: pc.Description,
		}
		if cat.Label == "" {
			cat.Label = fmt.Sprintf("Test Category %d", i+1)
		}
		if cat.Description == "" {
			cat.Description = "Generated test category"
		}
		s.categories = append(s.categories, cat)

		for j, ptc := range pc.TestCases {
			tc := &domain.TestCase{
				ID:           s.nextID("case"),
				CategoryID:   cat.ID,
				MessageID:    msg.ID,
				Title:        ptc.Title,
				Content:      ptc.Content,
				Status:       domain.StatusPending,
				Priority:     ptc.Priority,
				Traceability: ptc.Traceability,
			}
			if tc.Title == "" {
				tc.Title = fmt.Sprintf("Test Case %d", j+1)
			}
			if tc.Content == "" {
				tc.Content = "Generated test case content"
			}
			s.cases = append(s.cases, tc)
		}
	}
	return true
}

// SetTestCaseStatus updates the review status of a test case. Returns
// false for an unknown id.
func (s *Store) SetTestCaseStatus(testCaseID string, status domain.TestCaseStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tc := range s.cases {
		if tc.ID == testCaseID {
			tc.Status = status
			return true
		}
	}
	return false
}

// EditTestCase replaces the title and content of a test case. Returns
// false for an unknown id.
func (s *Store) EditTestCase(testCaseID, title, content string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tc := range s.cases {
		if tc.ID == testCaseID {
			tc.Title = title
			tc.Content = content
			return true
		}
	}
	return false
}

// ResponsesForChat returns the transcript of a chat in append order.
func (s *Store) ResponsesForChat(chatID string) []*domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Message
	for _, m := range s.messages {
		if m.ChatID == chatID {
			out = append(out, s.copyMessage(m))
		}
	}
	return out
}

// CategoriesForMessage returns the categories ingested from one assistant
// message.
func (s *Store) CategoriesForMessage(messageID string) []*domain.TestCategory {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.TestCategory
	for _, c := range s.categories {
		if c.MessageID == messageID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out
}

// CategoriesForChat returns every category generated in a chat.
func (s *Store) CategoriesForChat(chatID string) []*domain.TestCategory {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.TestCategory
	for _, c := range s.categories {
		if c.ChatID == chatID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out
}

// CasesForCategory returns the test cases under a category.
func (s *Store) CasesForCategory(categoryID string) []*domain.TestCase {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.TestCase
	for _, tc := range s.cases {
		if tc.CategoryID == categoryID {
			out = append(out, s.copyCase(tc))
		}
	}
	return out
}

// TestCase returns a single test case by id, or nil.
func (s *Store) TestCase(testCaseID string) *domain.TestCase {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tc := range s.cases {
		if tc.ID == testCaseID {
			return s.copyCase(tc)
		}
	}
	return nil
}

// Category returns a single category by id, or nil.
func (s *Store) Category(categoryID string) *domain.TestCategory {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.categories {
		if c.ID == categoryID {
			cp := *c
			return &cp
		}
	}
	return nil
}

func (s *Store) findMessage(messageID string) *domain.Message {
	for _, m := range s.messages {
		if m.ID == messageID {
			return m
		}
	}
	return nil
}

func (s *Store) copyMessage(m *domain.Message) *domain.Message {
	cp := *m
	if m.File != nil {
		f := *m.File
		cp.File = &f
	}
	return &cp
}

func (s *Store) copyCase(tc *domain.TestCase) *domain.TestCase {
	cp := *tc
	if tc.Traceability != nil {
		t := *tc.Traceability
		cp.Traceability = &t
	}
	return &cp
}
