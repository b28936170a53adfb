package repository

import (
	"database/sql"
	"encoding/json"

	"github.com/caseforge/caseforge/internal/domain"
)

// ArchiveRepository persists chats, messages and generated test cases as
// a write-behind copy of the live store. Saves are upserts: messages
// mutate in place when a processing placeholder resolves, and test cases
// change status during review.
type ArchiveRepository struct {
	db *DB
}

// NewArchiveRepository creates a new archive repository
func NewArchiveRepository(db *DB) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

// SaveChat persists a chat session.
func (r *ArchiveRepository) SaveChat(chat *domain.ChatSession) error {
	_, err := r.db.Exec(`
		INSERT INTO chats (id, user_id, title, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title
	`, chat.ID, chat.UserID, chat.Title, chat.CreatedAt)
	return err
}

// SaveMessage persists a message, replacing any earlier state of the
// same id.
func (r *ArchiveRepository) SaveMessage(msg *domain.Message) error {
	var fileName, fileType sql.NullString
	var fileSize sql.NullInt64
	if msg.File != nil {
		fileName = sql.NullString{String: msg.File.Name, Valid: true}
		fileType = sql.NullString{String: msg.File.Type, Valid: true}
		fileSize = sql.NullInt64{Int64: msg.File.Size, Valid: true}
	}

	_, err := r.db.Exec(`
		INSERT INTO messages (id, chat_id, user_id, role, prompt, content, file_name, file_type, file_size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET role = excluded.role, content = excluded.content
	`, msg.ID, msg.ChatID, msg.UserID, string(msg.Role), msg.Prompt, msg.Content,
		fileName, fileType, fileSize, msg.CreatedAt)
	return err
}

// SaveCategory persists a test category.
func (r *ArchiveRepository) SaveCategory(cat *domain.TestCategory) error {
	_, err := r.db.Exec(`
		INSERT INTO test_categories (id, message_id, chat_id, label, description)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, cat.ID, cat.MessageID, cat.ChatID, cat.Label, cat.Description)
	return err
}

// SaveCase persists a test case, replacing title, content and status.
func (r *ArchiveRepository) SaveCase(tc *domain.TestCase) error {
	traceJSON, _ := json.Marshal(tc.Traceability)

	_, err := r.db.Exec(`
		INSERT INTO test_cases (id, category_id, message_id, title, content, status, priority, traceability)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			status = excluded.status
	`, tc.ID, tc.CategoryID, tc.MessageID, tc.Title, tc.Content,
		string(tc.Status), string(tc.Priority), string(traceJSON))
	return err
}

// GetMessages retrieves the archived transcript of a chat.
func (r *ArchiveRepository) GetMessages(chatID string) ([]*domain.Message, error) {
	rows, err := r.db.Query(`
		SELECT id, chat_id, user_id, role, prompt, content, file_name, file_type, file_size, created_at
		FROM messages WHERE chat_id = ?
		ORDER BY created_at ASC, id ASC
	`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*domain.Message
	for rows.Next() {
		msg := &domain.Message{}
		var role string
		var userID, prompt, fileName, fileType sql.NullString
		var fileSize sql.NullInt64

		if err := rows.Scan(&msg.ID, &msg.ChatID, &userID, &role, &prompt,
			&msg.Content, &fileName, &fileType, &fileSize, &msg.CreatedAt); err != nil {
			return nil, err
		}

		msg.Role = domain.MessageRole(role)
		msg.UserID = userID.String
		msg.Prompt = prompt.String
		if fileName.Valid {
			msg.File = &domain.FileDescriptor{
				Name: fileName.String,
				Type: fileType.String,
				Size: fileSize.Int64,
			}
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// CountChats returns the number of archived chats for stats.
func (r *ArchiveRepository) CountChats() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM chats`).Scan(&count)
	return count, err
}
