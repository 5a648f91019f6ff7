package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"testing"

	"layover-match/internal/apperr"
	"layover-match/internal/events"
	"layover-match/internal/models"
	"layover-match/internal/session"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) kinds() []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Kind
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := Open(sqlite.Open(dsn), logger.Silent)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func newTestStore(t *testing.T) (*Store, *recorder) {
	t.Helper()
	rec := &recorder{}
	return NewStore(newTestDB(t), WithPublisher(rec), WithLogger(quietLog())), rec
}

func seedProfiles(t *testing.T, s *Store, profiles ...models.Profile) {
	t.Helper()
	for _, p := range profiles {
		p := p
		require.NoError(t, s.UpsertProfile(context.Background(), &p))
	}
}

func TestInsertLikeFormsMatchOnce(t *testing.T) {
	ctx := context.Background()
	s, rec := newTestStore(t)

	require.NoError(t, s.InsertLike(ctx, "b", "a"))
	assert.Empty(t, rec.kinds())

	err := s.InsertLike(ctx, "b", "a")
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	require.NoError(t, s.InsertLike(ctx, "a", "b"))
	assert.Equal(t, []events.Kind{events.MatchCreated}, rec.kinds())

	for _, user := range []string{"a", "b"} {
		matches, err := s.ListMatchesForUser(ctx, user)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "a", matches[0].User1ID)
		assert.Equal(t, "b", matches[0].User2ID)
	}

	err = s.InsertLike(ctx, "a", "b")
	assert.True(t, errors.Is(err, apperr.ErrConflict))
	assert.Len(t, rec.kinds(), 1)

	liked, err := s.LikedIDs(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, liked)
	likers, err := s.LikerIDs(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, likers)
}

func TestInsertLikeRejectsSelf(t *testing.T) {
	s, _ := newTestStore(t)
	err := s.InsertLike(context.Background(), "a", "a")
	assert.True(t, errors.Is(err, apperr.ErrInvalid))
}

func TestMessages(t *testing.T) {
	ctx := context.Background()
	s, rec := newTestStore(t)
	require.NoError(t, s.InsertLike(ctx, "a", "b"))
	require.NoError(t, s.InsertLike(ctx, "b", "a"))
	matches, err := s.ListMatchesForUser(ctx, "a")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	matchID := matches[0].ID

	for i, sender := range []string{"a", "b", "a"} {
		_, err := s.InsertMessage(ctx, matchID, sender, fmt.Sprintf("message %d", i))
		require.NoError(t, err)
	}

	thread, err := s.ListMessages(ctx, matchID)
	require.NoError(t, err)
	require.Len(t, thread, 3)
	assert.True(t, slices.IsSortedFunc(thread, func(x, y models.Message) int {
		if models.MessageBefore(x, y) {
			return -1
		}
		if models.MessageBefore(y, x) {
			return 1
		}
		return 0
	}))

	byMatch, err := s.ListMessagesForMatches(ctx, []string{matchID, "other"})
	require.NoError(t, err)
	assert.Len(t, byMatch[matchID], 3)
	assert.Empty(t, byMatch["other"])

	_, err = s.InsertMessage(ctx, matchID, "c", "hi")
	assert.True(t, errors.Is(err, apperr.ErrForbidden))
	_, err = s.InsertMessage(ctx, "missing", "a", "hi")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	_, err = s.InsertMessage(ctx, matchID, "a", " ")
	assert.True(t, errors.Is(err, apperr.ErrInvalid))

	assert.Equal(t, []events.Kind{
		events.MatchCreated, events.MessageCreated, events.MessageCreated, events.MessageCreated,
	}, rec.kinds())
}

func TestProfiles(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	seedProfiles(t, s,
		models.Profile{UserID: "a", Name: "Ada", AirportCode: "DXB", Terminal: "3"},
		models.Profile{UserID: "b", Name: "Bo", AirportCode: "DXB", Terminal: "1"},
		models.Profile{UserID: "c", Name: "Cy", AirportCode: "LHR", Terminal: "3"},
	)

	inTerminal, err := s.ListProfilesByScope(ctx, models.LocationScope{AirportCode: "dxb", Terminal: "3"})
	require.NoError(t, err)
	require.Len(t, inTerminal, 1)
	assert.Equal(t, "a", inTerminal[0].UserID)

	inAirport, err := s.ListProfilesByScope(ctx, models.LocationScope{AirportCode: "DXB"})
	require.NoError(t, err)
	assert.Len(t, inAirport, 2)

	seedProfiles(t, s, models.Profile{UserID: "a", Name: "Ada L.", AirportCode: "DXB", Terminal: "3", Gate: "C12"})
	got, err := s.GetProfile(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", got.Name)
	assert.Equal(t, "C12", got.Gate)

	_, err = s.GetProfile(ctx, "zz")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	batch, err := s.GetProfiles(ctx, []string{"c", "a", "zz"})
	require.NoError(t, err)
	assert.Len(t, batch, 2)

	none, err := s.GetProfiles(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAccounts(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	acc, err := s.CreateAccount(ctx, "Ada@Example.com", "hash")
	require.NoError(t, err)
	assert.NotEmpty(t, acc.ID)

	_, err = s.CreateAccount(ctx, "ada@example.com", "hash")
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	got, err := s.GetAccountByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	assert.Equal(t, acc.ID, got.ID)

	require.NoError(t, s.TouchAccount(ctx, acc.ID))
	assert.True(t, errors.Is(s.TouchAccount(ctx, "missing"), apperr.ErrNotFound))

	_, err = s.GetAccountByEmail(ctx, "nobody@example.com")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestSeedAirports(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	require.NoError(t, SeedAirports(db))
	require.NoError(t, SeedAirports(db))

	airports, err := NewStore(db).ListAirports(ctx)
	require.NoError(t, err)
	assert.Len(t, airports, len(models.DefaultAirports()))
	assert.Equal(t, "ADD", airports[0].Code)
}

func TestSessionOverStore(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	seedProfiles(t, s,
		models.Profile{UserID: "a", Name: "Ada", AirportCode: "SIN", Terminal: "2"},
		models.Profile{UserID: "b", Name: "Bo", AirportCode: "SIN", Terminal: "2"},
	)
	require.NoError(t, s.InsertLike(ctx, "b", "a"))

	sess := session.New(s, quietLog())
	_, err := sess.Establish(ctx, "a")
	require.NoError(t, err)
	pool, err := sess.LoadCandidates(ctx, models.LocationScope{})
	require.NoError(t, err)
	require.Len(t, pool, 1)

	res, err := sess.Decide(ctx, "b", session.Like)
	require.NoError(t, err)
	require.True(t, res.Matched)
	assert.Equal(t, "Bo", res.Match.User.Name)
	assert.Empty(t, sess.Candidates())
}
