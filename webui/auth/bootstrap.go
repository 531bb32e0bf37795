package auth

import (
	"context"
	"errors"
	"fmt"

	"toolbox_backend/db"
)

// AdminStore is the ProfileStore plus the admin updates.
type AdminStore interface {
	ProfileStore
	SetRole(ctx context.Context, id, role string) (db.Profile, error)
	SetApproval(ctx context.Context, id string, approved bool) (db.Profile, error)
}

// EnsureAdmin makes email an approved admin. A missing profile is created
// with password; an existing one is promoted and approved and keeps its
// password. It reports whether a profile was created.
func EnsureAdmin(ctx context.Context, store AdminStore, email, password string, dailyCredits, cost int) (db.Profile, bool, error) {
	profile, err := store.GetProfileByEmail(ctx, email)
	if errors.Is(err, db.ErrNotFound) {
		hash, err := HashPasswordWithCost(password, cost)
		if err != nil {
			return db.Profile{}, false, fmt.Errorf("failed to hash admin password: %w", err)
		}
		profile, err = store.CreateProfile(ctx, db.Profile{
			Email:        email,
			Nickname:     "admin",
			PasswordHash: hash,
			Role:         db.RoleAdmin,
			IsApproved:   true,
			ImageCredits: dailyCredits,
		})
		return profile, err == nil, err
	}
	if err != nil {
		return db.Profile{}, false, err
	}

	if !profile.IsAdmin() {
		if profile, err = store.SetRole(ctx, profile.ID, db.RoleAdmin); err != nil {
			return db.Profile{}, false, err
		}
	}
	if !profile.IsApproved {
		if profile, err = store.SetApproval(ctx, profile.ID, true); err != nil {
			return db.Profile{}, false, err
		}
	}
	return profile, false, nil
}
