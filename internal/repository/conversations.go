package repository

import (
	"context"
	"errors"
	"time"

	"oficina-chat/internal/domain"
	"oficina-chat/internal/events"
	chat_errors "oficina-chat/pkg/errors"

	"gorm.io/gorm"
)

func (s *PostgresStore) ListConversations(ctx context.Context, viewerID string) ([]domain.Conversation, error) {
	var participants []domain.Participant
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", viewerID).
		Find(&participants).Error; err != nil {
		return nil, wrapBackendErr(err)
	}
	if len(participants) == 0 {
		return []domain.Conversation{}, nil
	}

	unreadByConv := make(map[string]int, len(participants))
	ids := make([]string, 0, len(participants))
	for _, p := range participants {
		unreadByConv[p.ConversationID] = p.UnreadCount
		ids = append(ids, p.ConversationID)
	}

	var conversations []domain.Conversation
	if err := s.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("last_message_at DESC").
		Find(&conversations).Error; err != nil {
		return nil, wrapBackendErr(err)
	}

	for i := range conversations {
		conversations[i].UnreadCount = unreadByConv[conversations[i].ID]
	}
	return conversations, nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, id string) (domain.Conversation, error) {
	var c domain.Conversation
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Conversation{}, chat_errors.ErrNotFound
		}
		return domain.Conversation{}, wrapBackendErr(err)
	}
	return c, nil
}

// MarkRead zeroes the viewer's unread counter and flags the other
// side's messages read. Running it twice has the same effect as once.
func (s *PostgresStore) MarkRead(ctx context.Context, conversationID, viewerID string) error {
	var conv domain.Conversation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", conversationID).First(&conv).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return chat_errors.ErrNotFound
			}
			return err
		}
		if err := tx.Model(&domain.Participant{}).
			Where("conversation_id = ? AND user_id = ?", conversationID, viewerID).
			Update("unread_count", 0).Error; err != nil {
			return err
		}
		return tx.Model(&domain.Message{}).
			Where("conversation_id = ? AND sender_id <> ? AND is_read = false", conversationID, viewerID).
			Update("is_read", true).Error
	})
	if err != nil {
		return wrapBackendErr(err)
	}

	if env, err := events.NewMessageRead(conversationID, viewerID); err == nil {
		s.publish(ctx, env, conv)
	}
	return nil
}

// ArchiveConversation transitions a thread to ARCHIVED. Conversations
// are never physically deleted.
func (s *PostgresStore) ArchiveConversation(ctx context.Context, conversationID string) error {
	res := s.db.WithContext(ctx).Model(&domain.Conversation{}).
		Where("id = ?", conversationID).
		Updates(map[string]interface{}{
			"status":     domain.ConversationArchived,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return wrapBackendErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return chat_errors.ErrNotFound
	}
	return nil
}

func wrapBackendErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, chat_errors.ErrNotFound) || errors.Is(err, chat_errors.ErrConversationClosed) {
		return err
	}
	return errors.Join(chat_errors.ErrBackendUnavailable, err)
}
