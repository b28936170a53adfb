package service

import (
	"strings"

	"go.uber.org/zap"

	"github.com/caseforge/caseforge/internal/domain"
	"github.com/caseforge/caseforge/internal/pipeline"
	"github.com/caseforge/caseforge/internal/repository"
	"github.com/caseforge/caseforge/internal/store"
)

// ChatService handles chat sessions and message submission, archiving
// every mutation batch to sqlite behind the live store.
type ChatService struct {
	store    *store.Store
	pipeline *pipeline.Pipeline
	archive  *repository.ArchiveRepository
	logger   *zap.Logger
}

// NewChatService creates a new chat service
func NewChatService(
	st *store.Store,
	pl *pipeline.Pipeline,
	archive *repository.ArchiveRepository,
	logger *zap.Logger,
) *ChatService {
	return &ChatService{
		store:    st,
		pipeline: pl,
		archive:  archive,
		logger:   logger,
	}
}

// SendMessageResult is what a submission returns to the API layer.
type SendMessageResult struct {
	ChatID      string          `json:"chat_id"`
	UserMessage *domain.Message `json:"user_message"`
	Reply       *domain.Message `json:"reply"`
}

// SendMessage posts a message to a chat, creating the chat on first use.
// The reply in the result is either the final assistant message (no file)
// or the processing placeholder the client should poll.
func (s *ChatService) SendMessage(chatID string, author domain.Identity, text string, file *pipeline.Upload) (*SendMessageResult, error) {
	if chatID == "" {
		chat := s.store.CreateChat(author.UserID, chatTitle(text, file))
		chatID = chat.ID
		if err := s.archive.SaveChat(chat); err != nil {
			s.logger.Warn("failed to archive chat", zap.Error(err))
		}
	} else if s.store.Chat(chatID) == nil {
		return nil, domain.ErrNotFound
	}

	result := s.pipeline.Submit(chatID, author, text, file)
	s.archiveMessage(result.UserMessage)
	s.archiveMessage(result.Reply)

	// Archive the resolved message and its generated rows once the async
	// leg completes.
	go func(messageID string) {
		<-result.Done
		if msgs := s.store.ResponsesForChat(chatID); len(msgs) > 0 {
			for _, m := range msgs {
				if m.ID == messageID {
					s.archiveMessage(m)
				}
			}
		}
		for _, cat := range s.store.CategoriesForMessage(messageID) {
			if err := s.archive.SaveCategory(cat); err != nil {
				s.logger.Warn("failed to archive category", zap.Error(err))
			}
			for _, tc := range s.store.CasesForCategory(cat.ID) {
				s.archiveCase(tc)
			}
		}
	}(result.Reply.ID)

	return &SendMessageResult{
		ChatID:      chatID,
		UserMessage: result.UserMessage,
		Reply:       result.Reply,
	}, nil
}

// Chats lists the chats of a user.
func (s *ChatService) Chats(userID string) []*domain.ChatSession {
	return s.store.Chats(userID)
}

// Messages returns the transcript of a chat. Chats missing from the
// live store (after a restart) are recovered from the archive.
func (s *ChatService) Messages(chatID string) ([]*domain.Message, error) {
	if s.store.Chat(chatID) != nil {
		return s.store.ResponsesForChat(chatID), nil
	}

	archived, err := s.archive.GetMessages(chatID)
	if err != nil {
		s.logger.Warn("failed to read archived transcript", zap.Error(err))
		return nil, domain.ErrNotFound
	}
	if len(archived) == 0 {
		return nil, domain.ErrNotFound
	}
	return archived, nil
}

// Categories returns every test category generated in a chat.
func (s *ChatService) Categories(chatID string) ([]*domain.TestCategory, error) {
	if s.store.Chat(chatID) == nil {
		return nil, domain.ErrNotFound
	}
	return s.store.CategoriesForChat(chatID), nil
}

// Cases returns the test cases under a category.
func (s *ChatService) Cases(categoryID string) ([]*domain.TestCase, error) {
	if s.store.Category(categoryID) == nil {
		return nil, domain.ErrNotFound
	}
	return s.store.CasesForCategory(categoryID), nil
}

// SetCaseStatus updates a test case's review status.
func (s *ChatService) SetCaseStatus(testCaseID string, status domain.TestCaseStatus) error {
	if !s.store.SetTestCaseStatus(testCaseID, status) {
		return domain.ErrNotFound
	}
	if tc := s.store.TestCase(testCaseID); tc != nil {
		s.archiveCase(tc)
	}
	return nil
}

// EditCase replaces a test case's title and content.
func (s *ChatService) EditCase(testCaseID, title, content string) error {
	if title == "" || content == "" {
		return domain.ErrInvalidRequest
	}
	if !s.store.EditTestCase(testCaseID, title, content) {
		return domain.ErrNotFound
	}
	if tc := s.store.TestCase(testCaseID); tc != nil {
		s.archiveCase(tc)
	}
	return nil
}

func (s *ChatService) archiveMessage(msg *domain.Message) {
	if err := s.archive.SaveMessage(msg); err != nil {
		s.logger.Warn("failed to archive message", zap.Error(err))
	}
}

func (s *ChatService) archiveCase(tc *domain.TestCase) {
	if err := s.archive.SaveCase(tc); err != nil {
		s.logger.Warn("failed to archive test case", zap.Error(err))
	}
}

// chatTitle derives a short title from the first message.
func chatTitle(text string, file *pipeline.Upload) string {
	title := strings.TrimSpace(text)
	if title == "" && file != nil {
		title = file.Name
	}
	if title == "" {
		title = "New conversation"
	}
	if len(title) > 60 {
		title = title[:60]
	}
	return title
}
