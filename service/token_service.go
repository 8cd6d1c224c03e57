package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"school-evoting-backend/models"

	"gorm.io/gorm"
)

// Token secrets are 8 characters over a 32-character alphabet with the
// easily confused 0/O/1/I removed. 32 divides 256, so mapping random bytes
// onto the alphabet is unbiased.
const (
	tokenAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	tokenLength   = 8

	// maxSecretAttempts bounds the uniqueness re-check loop. Collisions at
	// 40 bits of entropy are improbable, but the contract is strict
	// uniqueness, not "very likely unique".
	maxSecretAttempts = 10
)

// IssuedToken pairs a freshly generated secret with its voter, for the
// admin response after single or bulk issuance.
type IssuedToken struct {
	VoterID       uint   `json:"voter_id"`
	StudentNumber string `json:"student_number"`
	Secret        string `json:"secret"`
}

// BulkIssueReport summarizes a bulk issuance run.
type BulkIssueReport struct {
	Issued  int           `json:"issued"`
	Skipped int           `json:"skipped"`
	Tokens  []IssuedToken `json:"tokens"`
}

// TokenService issues and regenerates single-use voting tokens.
type TokenService interface {
	// IssueToken creates a token for the voter. An existing unused token
	// is superseded; an existing used token refuses the operation with
	// ErrTokenUsed, so a cast vote can never be revoked by reissuing.
	IssueToken(ctx context.Context, voterID uint) (*IssuedToken, error)

	// BulkIssue creates tokens for every voter who holds none. Voters with
	// any token, used or unused, are skipped so an already handed-out
	// secret is never orphaned.
	BulkIssue(ctx context.Context) (*BulkIssueReport, error)
}

type tokenService struct {
	db *gorm.DB
}

// NewTokenService creates the token issuance service.
func NewTokenService(db *gorm.DB) TokenService {
	return &tokenService{db: db}
}

func (s *tokenService) IssueToken(ctx context.Context, voterID uint) (*IssuedToken, error) {
	var voter models.Voter
	if err := s.db.WithContext(ctx).First(&voter, voterID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVoterNotFound
		}
		return nil, err
	}

	var issued *IssuedToken
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.VoteToken
		err := tx.Where("voter_id = ?", voter.ID).First(&existing).Error
		switch {
		case err == nil:
			if existing.IsUsed {
				return ErrTokenUsed
			}
			// Supersede the unused token. Unscoped so the unique indexes
			// are actually freed.
			if err := tx.Unscoped().Delete(&existing).Error; err != nil {
				return err
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		token, err := createToken(tx, voter.ID)
		if err != nil {
			return err
		}
		issued = &IssuedToken{
			VoterID:       voter.ID,
			StudentNumber: voter.StudentNumber,
			Secret:        token.Secret,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return issued, nil
}

func (s *tokenService) BulkIssue(ctx context.Context) (*BulkIssueReport, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&models.Voter{}).Count(&total).Error; err != nil {
		return nil, err
	}

	var voters []models.Voter
	sub := s.db.Model(&models.VoteToken{}).Select("voter_id")
	err := s.db.WithContext(ctx).
		Where("id NOT IN (?)", sub).
		Order("id asc").
		Find(&voters).Error
	if err != nil {
		return nil, err
	}

	report := &BulkIssueReport{
		Skipped: int(total) - len(voters),
		Tokens:  make([]IssuedToken, 0, len(voters)),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, voter := range voters {
			token, err := createToken(tx, voter.ID)
			if err != nil {
				return err
			}
			report.Tokens = append(report.Tokens, IssuedToken{
				VoterID:       voter.ID,
				StudentNumber: voter.StudentNumber,
				Secret:        token.Secret,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	report.Issued = len(report.Tokens)
	return report, nil
}

// createToken generates a unique secret and inserts the token row inside
// the caller's transaction.
func createToken(tx *gorm.DB, voterID uint) (*models.VoteToken, error) {
	for attempt := 0; attempt < maxSecretAttempts; attempt++ {
		secret, err := generateSecret()
		if err != nil {
			return nil, err
		}

		var clashes int64
		if err := tx.Unscoped().Model(&models.VoteToken{}).
			Where("secret = ?", secret).Count(&clashes).Error; err != nil {
			return nil, err
		}
		if clashes > 0 {
			continue
		}

		token := models.VoteToken{Secret: secret, VoterID: voterID}
		if err := tx.Create(&token).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				continue
			}
			return nil, err
		}
		return &token, nil
	}
	return nil, fmt.Errorf("could not generate a unique token after %d attempts", maxSecretAttempts)
}

// generateSecret draws a token secret from crypto/rand.
func generateSecret() (string, error) {
	buf := make([]byte, tokenLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = tokenAlphabet[int(b)%len(tokenAlphabet)]
	}
	return string(buf), nil
}
