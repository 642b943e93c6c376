package repository

import (
	"context"
	"errors"
	"time"

	"oficina-chat/internal/domain"
	"oficina-chat/internal/events"
	chat_errors "oficina-chat/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func (s *PostgresStore) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	var messages []domain.Message
	if err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Find(&messages).Error; err != nil {
		return nil, wrapBackendErr(err)
	}
	return messages, nil
}

// InsertMessage assigns the authoritative id and timestamp, appends the
// row and denormalizes the conversation in one transaction: preview and
// last_message_at on the conversation row, unread counter on the other
// participant's row. The message.created event is published after
// commit.
func (s *PostgresStore) InsertMessage(ctx context.Context, draft domain.MessageDraft) (domain.Message, error) {
	msg := domain.Message{
		ID:             uuid.New().String(),
		ConversationID: draft.ConversationID,
		SenderID:       draft.SenderID,
		SenderRole:     draft.SenderRole,
		Kind:           draft.Kind,
		Content:        draft.Content,
		Meta:           draft.Meta,
		CreatedAt:      time.Now().UTC(),
	}
	if err := msg.Validate(); err != nil {
		return domain.Message{}, err
	}

	var conv domain.Conversation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", draft.ConversationID).First(&conv).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return chat_errors.ErrNotFound
			}
			return err
		}
		if !conv.Status.Writable() {
			return chat_errors.ErrConversationClosed
		}

		if err := tx.Create(&msg).Error; err != nil {
			return err
		}

		if err := tx.Model(&domain.Conversation{}).
			Where("id = ?", conv.ID).
			Updates(map[string]interface{}{
				"last_message_preview": msg.Preview(),
				"last_message_at":      msg.CreatedAt,
				"updated_at":           msg.CreatedAt,
			}).Error; err != nil {
			return err
		}

		return tx.Model(&domain.Participant{}).
			Where("conversation_id = ? AND user_id <> ?", conv.ID, draft.SenderID).
			Update("unread_count", gorm.Expr("unread_count + 1")).Error
	})
	if err != nil {
		return domain.Message{}, wrapBackendErr(err)
	}

	if env, err := events.NewMessageCreated(msg); err == nil {
		s.publish(ctx, env, conv)
	}
	return msg, nil
}
