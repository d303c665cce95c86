package app

import (
	"strings"

	"gopherchat/internal/model"
	"gopherchat/internal/repository"
)

type ApiKeyService struct {
	apiKeyRepo *repository.ApiKeyRepository
}

type SaveApiKeysInput struct {
	UserID    uint
	LLMKey    string
	SearchKey string
	ImageKey  string
}

// ApiKeyView is what GET returns: masked values, never the stored secrets.
type ApiKeyView struct {
	LLMKey    string `json:"llm_key"`
	SearchKey string `json:"search_key"`
	ImageKey  string `json:"image_key"`
}

func NewApiKeyService(apiKeyRepo *repository.ApiKeyRepository) *ApiKeyService {
	return &ApiKeyService{apiKeyRepo: apiKeyRepo}
}

func (s *ApiKeyService) Get(userID uint) (*ApiKeyView, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}

	key, err := s.apiKeyRepo.GetByUserID(userID)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return &ApiKeyView{}, nil
	}
	return &ApiKeyView{
		LLMKey:    maskSecret(key.LLMKey),
		SearchKey: maskSecret(key.SearchKey),
		ImageKey:  maskSecret(key.ImageKey),
	}, nil
}

// Save creates the record lazily on first write and updates it in place
// afterwards. Blank fields keep their stored value so users can update one
// provider key without re-entering the others.
func (s *ApiKeyService) Save(input SaveApiKeysInput) error {
	if input.UserID == 0 {
		return ErrInvalidInput
	}

	existing, err := s.apiKeyRepo.GetByUserID(input.UserID)
	if err != nil {
		return err
	}

	key := &model.ApiKey{UserID: input.UserID}
	if existing != nil {
		*key = *existing
	}
	if v := strings.TrimSpace(input.LLMKey); v != "" {
		key.LLMKey = v
	}
	if v := strings.TrimSpace(input.SearchKey); v != "" {
		key.SearchKey = v
	}
	if v := strings.TrimSpace(input.ImageKey); v != "" {
		key.ImageKey = v
	}

	return s.apiKeyRepo.Upsert(key)
}

// LLMKeyFor returns the user's stored completion credential, or "" when none
// is saved.
func (s *ApiKeyService) LLMKeyFor(userID uint) (string, error) {
	key, err := s.apiKeyRepo.GetByUserID(userID)
	if err != nil {
		return "", err
	}
	if key == nil {
		return "", nil
	}
	return key.LLMKey, nil
}

func (s *ApiKeyService) ImageKeyFor(userID uint) (string, error) {
	key, err := s.apiKeyRepo.GetByUserID(userID)
	if err != nil {
		return "", err
	}
	if key == nil {
		return "", nil
	}
	return key.ImageKey, nil
}

func maskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + strings.Repeat("*", len(secret)-8) + secret[len(secret)-4:]
}
