package profile

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/vmaximov/sellhub/internal/models"
)

var ErrNotFound = errors.New("user not found")

// Service reads and edits user profile data. Username is display-only under
// email-keyed identity, so UpdateUsername performs no uniqueness check.
type Service struct {
	DB *gorm.DB
}

type Profile struct {
	User         models.User `json:"user"`
	ListingCount int64       `json:"listing_count"`
}

func (s *Service) GetProfile(ctx context.Context, id uint) (*Profile, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.Listing{}).Where("owner_id = ?", id).Count(&count).Error; err != nil {
		return nil, err
	}

	return &Profile{User: user, ListingCount: count}, nil
}

func (s *Service) UpdateUsername(ctx context.Context, id uint, newUsername string) error {
	if newUsername == "" {
		return errors.New("username must not be empty")
	}

	res := s.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("username", newUsername)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
