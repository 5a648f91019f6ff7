// Package store declares the durable store the matching core depends on. The
// store is authoritative for accounts, profiles, likes, matches and messages;
// it alone decides when a match exists.
package store

import (
	"context"

	"layover-match/internal/models"
)

type AccountStore interface {
	// CreateAccount fails with apperr.ErrConflict when the email is taken.
	CreateAccount(ctx context.Context, email, passwordHash string) (*models.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	TouchAccount(ctx context.Context, id string) error
}

type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	// GetProfiles returns the profiles that exist among ids, in no particular order.
	GetProfiles(ctx context.Context, ids []string) ([]models.Profile, error)
	UpsertProfile(ctx context.Context, p *models.Profile) error
	ListProfilesByScope(ctx context.Context, scope models.LocationScope) ([]models.Profile, error)
}

type LikeStore interface {
	// InsertLike appends the edge from -> to. A repeated edge fails with
	// apperr.ErrConflict. When the reverse edge already exists the match is
	// created in the same write.
	InsertLike(ctx context.Context, fromUserID, toUserID string) error
	// LikedIDs lists users that userID has liked.
	LikedIDs(ctx context.Context, userID string) ([]string, error)
	// LikerIDs lists users that have liked userID.
	LikerIDs(ctx context.Context, userID string) ([]string, error)
}

type MatchStore interface {
	ListMatchesForUser(ctx context.Context, userID string) ([]models.Match, error)
	GetMatch(ctx context.Context, matchID string) (*models.Match, error)
}

type MessageStore interface {
	// ListMessages returns the thread in ascending creation order.
	ListMessages(ctx context.Context, matchID string) ([]models.Message, error)
	ListMessagesForMatches(ctx context.Context, matchIDs []string) (map[string][]models.Message, error)
	// InsertMessage fails with apperr.ErrForbidden when senderID is not a
	// participant of the match.
	InsertMessage(ctx context.Context, matchID, senderID, content string) (*models.Message, error)
}

type AirportStore interface {
	ListAirports(ctx context.Context) ([]models.Airport, error)
}

type Store interface {
	AccountStore
	ProfileStore
	LikeStore
	MatchStore
	MessageStore
	AirportStore
}
