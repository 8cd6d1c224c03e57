package service

import (
	"context"
	"crypto/subtle"
	"errors"

	"school-evoting-backend/models"

	"gorm.io/gorm"
)

// AuthService validates voting credentials at login time. A voter proves
// eligibility with their student number plus the token secret; the token
// itself is only consumed later, by the vote transaction.
type AuthService interface {
	Authenticate(ctx context.Context, studentNumber, secret string) (*models.Voter, error)
}

type authService struct {
	db *gorm.DB
}

// NewAuthService creates the credential validation service.
func NewAuthService(db *gorm.DB) AuthService {
	return &authService{db: db}
}

func (s *authService) Authenticate(ctx context.Context, studentNumber, secret string) (*models.Voter, error) {
	var voter models.Voter
	err := s.db.WithContext(ctx).
		Where("student_number = ?", studentNumber).
		First(&voter).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}

	var token models.VoteToken
	err = s.db.WithContext(ctx).
		Where("voter_id = ?", voter.ID).
		First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}

	if subtle.ConstantTimeCompare([]byte(token.Secret), []byte(secret)) != 1 {
		return nil, ErrUnauthenticated
	}

	if token.IsUsed {
		return nil, ErrTokenUsed
	}

	return &voter, nil
}
