package services

import "context"

// Authorizer decides whether requesterID may act on assets owned by ownerID.
// The owner id is the only input that may drive the decision.
type Authorizer func(ctx context.Context, requesterID, ownerID string) error

// OwnerOnly allows the owner and nobody else.
func OwnerOnly(_ context.Context, requesterID, ownerID string) error {
	if requesterID == "" || requesterID != ownerID {
		return ErrForbidden
	}
	return nil
}
