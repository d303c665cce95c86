package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"gopherchat/internal/model"
)

type ApiKeyRepository struct {
	db *gorm.DB
}

func NewApiKeyRepository(db *gorm.DB) *ApiKeyRepository {
	return &ApiKeyRepository{db: db}
}

func (r *ApiKeyRepository) GetByUserID(userID uint) (*model.ApiKey, error) {
	var key model.ApiKey
	if err := r.db.Where("user_id = ?", userID).First(&key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query api key failed: %w", err)
	}
	return &key, nil
}

// Upsert creates the row on first save and updates it in place afterwards.
func (r *ApiKeyRepository) Upsert(key *model.ApiKey) error {
	existing, err := r.GetByUserID(key.UserID)
	if err != nil {
		return err
	}
	if existing == nil {
		if err := r.db.Create(key).Error; err != nil {
			return fmt.Errorf("create api key failed: %w", err)
		}
		return nil
	}

	key.ID = existing.ID
	key.CreatedAt = existing.CreatedAt
	if err := r.db.Save(key).Error; err != nil {
		return fmt.Errorf("update api key failed: %w", err)
	}
	return nil
}
