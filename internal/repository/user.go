package repository

import (
	"context"

	"feedsync/internal/docstore"
	"feedsync/internal/models"
)

// UserRepository stores actor profiles.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.UserProfile, error)
	Upsert(ctx context.Context, id, displayName string) (*models.UserProfile, error)
}

type userRepository struct {
	store docstore.Store
}

// NewUserRepository creates a UserRepository backed by store.
func NewUserRepository(store docstore.Store) UserRepository {
	return &userRepository{store: store}
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*models.UserProfile, error) {
	snap, err := r.store.Get(ctx, UserRef(id))
	if err != nil {
		return nil, err
	}
	if err := requireExists(snap, "User"); err != nil {
		return nil, err
	}
	return userFromSnapshot(snap), nil
}

// Upsert sets displayName and keeps the first-seen createdAt of an
// existing profile.
func (r *userRepository) Upsert(ctx context.Context, id, displayName string) (*models.UserProfile, error) {
	ref := UserRef(id)
	profile := &models.UserProfile{ID: id, DisplayName: displayName, CreatedAt: models.PendingTimestamp()}
	err := r.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		if snap.Exists {
			profile.CreatedAt = timestampField(snap.Data, "createdAt")
			return tx.Update(ref, docstore.Fields{"displayName": displayName})
		}
		profile.CreatedAt = models.PendingTimestamp()
		return tx.Set(ref, docstore.Fields{
			"displayName": displayName,
			"createdAt":   docstore.ServerTimestamp,
		})
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

func userFromSnapshot(snap *docstore.Snapshot) *models.UserProfile {
	return &models.UserProfile{
		ID:          snap.Ref.ID,
		DisplayName: stringField(snap.Data, "displayName"),
		CreatedAt:   timestampField(snap.Data, "createdAt"),
	}
}
