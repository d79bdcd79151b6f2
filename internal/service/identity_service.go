package service

import (
	"context"
	"fmt"

	"github.com/looma/see-practice-api/internal/domain/entity"
	"github.com/looma/see-practice-api/internal/domain/repository"
)

const defaultIdentityPageSize = 50

// MaxIdentityPageSize ограничивает размер страницы реестра identity
const MaxIdentityPageSize = 500

// IdentityService работает с identity, которые уже входили
type IdentityService struct {
	identities repository.IdentityRepository
}

func NewIdentityService(identities repository.IdentityRepository) (*IdentityService, error) {
	if identities == nil {
		return nil, fmt.Errorf("identity repository is required")
	}
	return &IdentityService{identities: identities}, nil
}

// IsKnownIdentity сообщает, прошел ли identity хотя бы одну проверку
func (s *IdentityService) IsKnownIdentity(ctx context.Context, identity string) (bool, error) {
	identity, err := NormalizeIdentity(identity)
	if err != nil {
		return false, err
	}
	known, err := s.identities.Exists(ctx, identity)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return known, nil
}

// ListIdentities возвращает страницу реестра и общее количество
func (s *IdentityService) ListIdentities(ctx context.Context, limit, offset int) ([]entity.KnownIdentity, int64, error) {
	if limit <= 0 {
		limit = defaultIdentityPageSize
	}
	if limit > MaxIdentityPageSize {
		limit = MaxIdentityPageSize
	}
	if offset < 0 {
		offset = 0
	}
	items, total, err := s.identities.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return items, total, nil
}

// AllIdentities возвращает весь реестр для экспорта
func (s *IdentityService) AllIdentities(ctx context.Context) ([]entity.KnownIdentity, error) {
	items, _, err := s.identities.List(ctx, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return items, nil
}
