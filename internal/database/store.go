package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"layover-match/internal/apperr"
	"layover-match/internal/events"
	"layover-match/internal/models"
	"layover-match/internal/store"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the gorm implementation of store.Store.
//
// On postgres, a like takes a transaction-scoped advisory lock on the pair so
// two users liking each other at the same moment still produce exactly one
// match, and events are sent with pg_notify inside the transaction. On other
// dialects events are published after commit.
type Store struct {
	db            *gorm.DB
	publisher     events.Publisher
	notifyChannel string
	log           *logrus.Entry
}

var _ store.Store = (*Store)(nil)

type Option func(*Store)

func WithPublisher(p events.Publisher) Option {
	return func(s *Store) { s.publisher = p }
}

// WithNotifyChannel makes a postgres store emit events with NOTIFY on channel
// instead of publishing them in process.
func WithNotifyChannel(channel string) Option {
	return func(s *Store) { s.notifyChannel = channel }
}

func WithLogger(log *logrus.Entry) Option {
	return func(s *Store) { s.log = log }
}

func NewStore(db *gorm.DB, opts ...Option) *Store {
	s := &Store{
		db:  db,
		log: logrus.WithField("component", "store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) postgres() bool {
	return s.db.Dialector.Name() == "postgres"
}

func (s *Store) notifies() bool {
	return s.postgres() && s.notifyChannel != ""
}

// emit sends e inside tx when the store notifies, and otherwise queues it for
// publishing after commit.
func (s *Store) emit(tx *gorm.DB, e events.Event, after *[]events.Event) error {
	if !s.notifies() {
		*after = append(*after, e)
		return nil
	}
	payload, err := events.Encode(e)
	if err != nil {
		return err
	}
	return tx.Exec("SELECT pg_notify(?, ?)", s.notifyChannel, string(payload)).Error
}

func (s *Store) publish(es []events.Event) {
	if s.publisher == nil {
		return
	}
	for _, e := range es {
		s.publisher.Publish(e)
	}
}

func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	case errors.Is(err, apperr.ErrConflict), errors.Is(err, apperr.ErrNotFound),
		errors.Is(err, apperr.ErrForbidden), errors.Is(err, apperr.ErrInvalid):
		return err
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", op, apperr.ErrConflict)
	default:
		return apperr.Transient(op, err)
	}
}

func (s *Store) CreateAccount(ctx context.Context, email, passwordHash string) (*models.Account, error) {
	account := models.Account{
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: passwordHash,
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&account)
	if res.Error != nil {
		return nil, translate("create account", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("account %s: %w", account.Email, apperr.ErrConflict)
	}
	return &account, nil
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	var account models.Account
	err := s.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&account).Error
	if err != nil {
		return nil, translate("get account", err)
	}
	return &account, nil
}

func (s *Store) TouchAccount(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", id).Update("last_seen", time.Now())
	if res.Error != nil {
		return translate("touch account", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("account %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func (s *Store) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var p models.Profile
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		return nil, translate("get profile", err)
	}
	return &p, nil
}

func (s *Store) GetProfiles(ctx context.Context, ids []string) ([]models.Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []models.Profile
	if err := s.db.WithContext(ctx).Where("user_id IN ?", ids).Order("user_id").Find(&out).Error; err != nil {
		return nil, translate("get profiles", err)
	}
	return out, nil
}

func (s *Store) UpsertProfile(ctx context.Context, p *models.Profile) error {
	if p.UserID == "" {
		return apperr.Invalid("profile without user id")
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, UpdateAll: true}).
		Create(p).Error
	return translate("upsert profile", err)
}

func (s *Store) ListProfilesByScope(ctx context.Context, scope models.LocationScope) ([]models.Profile, error) {
	scope = scope.Normalize()
	q := s.db.WithContext(ctx).Where("airport_code = ?", scope.AirportCode)
	if scope.Terminal != "" {
		q = q.Where("terminal = ?", scope.Terminal)
	}
	var out []models.Profile
	if err := q.Order("user_id").Find(&out).Error; err != nil {
		return nil, translate("list profiles", err)
	}
	return out, nil
}

func (s *Store) InsertLike(ctx context.Context, fromUserID, toUserID string) error {
	if fromUserID == toUserID {
		return apperr.Invalid("cannot like yourself")
	}

	var after []events.Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user1, user2 := models.OrderedPair(fromUserID, toUserID)
		if s.postgres() {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", user1+":"+user2).Error; err != nil {
				return err
			}
		}

		like := models.Like{FromUserID: fromUserID, ToUserID: toUserID}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&like)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("like %s->%s: %w", fromUserID, toUserID, apperr.ErrConflict)
		}

		var reciprocal int64
		err := tx.Model(&models.Like{}).
			Where("from_user_id = ? AND to_user_id = ?", toUserID, fromUserID).
			Count(&reciprocal).Error
		if err != nil || reciprocal == 0 {
			return err
		}

		match := models.NewMatch(fromUserID, toUserID)
		res = tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&match)
		if res.Error != nil || res.RowsAffected == 0 {
			return res.Error
		}
		s.log.WithField("match_id", match.ID).
			WithField("user1_id", match.User1ID).
			WithField("user2_id", match.User2ID).
			Info("Match created")
		return s.emit(tx, events.NewMatchCreated(match), &after)
	})
	if err != nil {
		return translate("insert like", err)
	}

	s.publish(after)
	return nil
}

func (s *Store) LikedIDs(ctx context.Context, userID string) ([]string, error) {
	var out []string
	err := s.db.WithContext(ctx).Model(&models.Like{}).
		Where("from_user_id = ?", userID).
		Order("to_user_id").
		Pluck("to_user_id", &out).Error
	if err != nil {
		return nil, translate("liked ids", err)
	}
	return out, nil
}

func (s *Store) LikerIDs(ctx context.Context, userID string) ([]string, error) {
	var out []string
	err := s.db.WithContext(ctx).Model(&models.Like{}).
		Where("to_user_id = ?", userID).
		Order("from_user_id").
		Pluck("from_user_id", &out).Error
	if err != nil {
		return nil, translate("liker ids", err)
	}
	return out, nil
}

func (s *Store) ListMatchesForUser(ctx context.Context, userID string) ([]models.Match, error) {
	var out []models.Match
	err := s.db.WithContext(ctx).
		Where("user1_id = ? OR user2_id = ?", userID, userID).
		Order("created_at DESC, id").
		Find(&out).Error
	if err != nil {
		return nil, translate("list matches", err)
	}
	return out, nil
}

func (s *Store) GetMatch(ctx context.Context, matchID string) (*models.Match, error) {
	var m models.Match
	if err := s.db.WithContext(ctx).Where("id = ?", matchID).First(&m).Error; err != nil {
		return nil, translate("get match", err)
	}
	return &m, nil
}

func (s *Store) ListMessages(ctx context.Context, matchID string) ([]models.Message, error) {
	var out []models.Message
	err := s.db.WithContext(ctx).
		Where("match_id = ?", matchID).
		Order("created_at, id").
		Find(&out).Error
	if err != nil {
		return nil, translate("list messages", err)
	}
	return out, nil
}

func (s *Store) ListMessagesForMatches(ctx context.Context, matchIDs []string) (map[string][]models.Message, error) {
	out := make(map[string][]models.Message, len(matchIDs))
	if len(matchIDs) == 0 {
		return out, nil
	}

	var rows []models.Message
	err := s.db.WithContext(ctx).
		Where("match_id IN ?", matchIDs).
		Order("created_at, id").
		Find(&rows).Error
	if err != nil {
		return nil, translate("list messages", err)
	}
	for _, m := range rows {
		out[m.MatchID] = append(out[m.MatchID], m)
	}
	return out, nil
}

func (s *Store) InsertMessage(ctx context.Context, matchID, senderID, content string) (*models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperr.Invalid("message is empty")
	}

	var (
		msg   models.Message
		after []events.Event
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m models.Match
		if err := tx.Where("id = ?", matchID).First(&m).Error; err != nil {
			return err
		}
		if !m.Involves(senderID) {
			return fmt.Errorf("sender %s in match %s: %w", senderID, matchID, apperr.ErrForbidden)
		}

		msg = models.Message{MatchID: matchID, SenderID: senderID, Content: content}
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}
		return s.emit(tx, events.NewMessageCreated(m, msg), &after)
	})
	if err != nil {
		return nil, translate("insert message", err)
	}

	s.publish(after)
	return &msg, nil
}

func (s *Store) ListAirports(ctx context.Context) ([]models.Airport, error) {
	var out []models.Airport
	if err := s.db.WithContext(ctx).Order("code").Find(&out).Error; err != nil {
		return nil, translate("list airports", err)
	}
	return out, nil
}
