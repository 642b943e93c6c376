package database

import (
	"time"

	"oficina-chat/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SeedDev creates one driver↔workshop thread with a short exchange, for
// local development. Returns the ids so the CLI can print them.
func SeedDev(db *gorm.DB) (driverID, workshopID, conversationID string, err error) {
	driverID = uuid.New().String()
	workshopID = uuid.New().String()
	conversationID = uuid.New().String()
	now := time.Now().UTC()

	err = db.Transaction(func(tx *gorm.DB) error {
		conv := domain.Conversation{
			ID:                 conversationID,
			DriverID:           driverID,
			WorkshopID:         workshopID,
			Status:             domain.ConversationActive,
			LastMessagePreview: "Pode trazer amanhã às 9h.",
			LastMessageAt:      now,
			CreatedAt:          now.Add(-time.Hour),
			UpdatedAt:          now,
		}
		if err := tx.Create(&conv).Error; err != nil {
			return err
		}

		participants := []domain.Participant{
			{ConversationID: conversationID, UserID: driverID, Role: domain.RoleDriver, UnreadCount: 1, JoinedAt: now.Add(-time.Hour)},
			{ConversationID: conversationID, UserID: workshopID, Role: domain.RoleWorkshop, JoinedAt: now.Add(-time.Hour)},
		}
		if err := tx.Create(&participants).Error; err != nil {
			return err
		}

		messages := []domain.Message{
			{
				ID:             uuid.New().String(),
				ConversationID: conversationID,
				SenderID:       driverID,
				SenderRole:     domain.RoleDriver,
				Kind:           domain.KindText,
				Content:        "Meu carro está fazendo um barulho no freio, conseguem olhar?",
				IsRead:         true,
				CreatedAt:      now.Add(-time.Hour),
			},
			{
				ID:             uuid.New().String(),
				ConversationID: conversationID,
				SenderID:       workshopID,
				SenderRole:     domain.RoleWorkshop,
				Kind:           domain.KindText,
				Content:        "Pode trazer amanhã às 9h.",
				CreatedAt:      now,
			},
		}
		return tx.Create(&messages).Error
	})
	return driverID, workshopID, conversationID, err
}
