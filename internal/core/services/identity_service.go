package services

import (
	"context"
	"fmt"
	"sync"

	"studymesh/internal/core/domain"
	"studymesh/internal/core/ports"

	"github.com/google/uuid"
)

// identityNormalizer maps arbitrary external ids onto stable UUIDs accepted
// by the record store. Lookup-or-create; the mapping persists behind the
// injected repository, never in ambient globals.
type identityNormalizer struct {
	repo ports.IdentityMapRepository

	// mu serializes lookup-or-create so two callers with the same unseen
	// external id cannot mint two different mappings.
	mu sync.Mutex
}

func NewIdentityNormalizer(repo ports.IdentityMapRepository) ports.IdentityNormalizer {
	return &identityNormalizer{repo: repo}
}

func (n *identityNormalizer) Normalize(ctx context.Context, externalID string) (domain.Identity, error) {
	if externalID == "" {
		return "", fmt.Errorf("external id must not be empty")
	}

	// Ids that already satisfy the store's format pass through untouched.
	if _, err := uuid.Parse(externalID); err == nil {
		return domain.Identity(externalID), nil
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	id, found, err := n.repo.Get(ctx, externalID)
	if err != nil {
		return "", fmt.Errorf("identity lookup failed: %w", err)
	}
	if found {
		return id, nil
	}

	id = domain.Identity(uuid.NewString())
	if err := n.repo.Put(ctx, externalID, id); err != nil {
		return "", fmt.Errorf("identity mapping store failed: %w", err)
	}
	return id, nil
}
