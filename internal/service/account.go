package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"narrative-companion/internal/model"
)

// CharacterStore is the character persistence AccountService needs.
type CharacterStore interface {
	GetOrCreate(ctx context.Context, c model.Character) (*model.Character, bool, error)
	GetByUserID(ctx context.Context, userID int64) (*model.Character, error)
}

// AccountService maps chat users to characters.
type AccountService struct {
	characters   CharacterStore
	startingGold int
}

// NewAccountService creates a new AccountService instance.
func NewAccountService(characters CharacterStore, startingGold int) *AccountService {
	return &AccountService{
		characters:   characters,
		startingGold: startingGold,
	}
}

// EnsureCharacter returns the user's character, creating one if necessary.
// Returns the character and whether it was newly created.
func (s *AccountService) EnsureCharacter(ctx context.Context, userID int64, name string) (*model.Character, bool, error) {
	if name == "" {
		name = fmt.Sprintf("Traveler %d", userID)
	}

	c := model.NewCharacter(uuid.NewString(), userID, name)
	c.Gold = s.startingGold

	char, created, err := s.characters.GetOrCreate(ctx, c)
	if err != nil {
		return nil, false, fmt.Errorf("failed to ensure character: %w", err)
	}
	if created {
		log.Info().
			Int64("user_id", userID).
			Str("character_id", char.ID).
			Msg("Character created")
	}
	return char, created, nil
}

// CharacterByUser returns the character owned by a chat user.
func (s *AccountService) CharacterByUser(ctx context.Context, userID int64) (*model.Character, error) {
	return s.characters.GetByUserID(ctx, userID)
}
