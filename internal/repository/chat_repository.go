package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/revitek/scheduling-engine/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChatSessionRepository stores per-phone conversation sessions. Redis is
// the hot store on the message path (TTL doubles as the session expiry);
// every write is also snapshotted to the chat_sessions table so a session
// can be rehydrated after a cache eviction or Redis restart. Redis is
// optional: with a nil client the SQL snapshot serves reads alone.
type ChatSessionRepository struct {
	rdb *redis.Client
	db  *gorm.DB
}

// NewChatSessionRepository creates a new chat session repository.
func NewChatSessionRepository(rdb *redis.Client, db *gorm.DB) *ChatSessionRepository {
	return &ChatSessionRepository{rdb: rdb, db: db}
}

func sessionKey(phone string) string {
	return "chat:session:" + phone
}

// Get loads the session for a phone, preferring Redis and falling back to
// the SQL snapshot. ErrNotFound means no live session exists.
func (r *ChatSessionRepository) Get(ctx context.Context, phone string) (*models.ChatSession, error) {
	if r.rdb != nil {
		raw, err := r.rdb.Get(ctx, sessionKey(phone)).Bytes()
		switch {
		case err == nil:
			var session models.ChatSession
			if err := json.Unmarshal(raw, &session); err != nil {
				return nil, fmt.Errorf("decoding cached chat session: %w", err)
			}
			return &session, nil
		case !errors.Is(err, redis.Nil):
			return nil, fmt.Errorf("reading chat session from redis: %w", err)
		}
	}

	var session models.ChatSession
	err := r.db.WithContext(ctx).
		Where("phone = ? AND expires_at > ?", phone, time.Now()).
		First(&session).Error
	if err != nil {
		return nil, wrapNotFound(fmt.Errorf("fetching chat session for %s: %w", phone, err))
	}
	return &session, nil
}

// Save writes the session to both stores. The TTL bounds the Redis entry
// and sets the snapshot's ExpiresAt.
func (r *ChatSessionRepository) Save(ctx context.Context, session *models.ChatSession, ttl time.Duration) error {
	session.ExpiresAt = time.Now().Add(ttl)

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "phone"}},
			DoUpdates: clause.AssignmentColumns([]string{"state", "data", "expires_at", "updated_at"}),
		}).
		Create(session).Error
	if err != nil {
		return fmt.Errorf("snapshotting chat session for %s: %w", session.Phone, err)
	}

	if r.rdb != nil {
		raw, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("encoding chat session: %w", err)
		}
		if err := r.rdb.Set(ctx, sessionKey(session.Phone), raw, ttl).Err(); err != nil {
			return fmt.Errorf("caching chat session for %s: %w", session.Phone, err)
		}
	}
	return nil
}

// Delete drops the session from both stores.
func (r *ChatSessionRepository) Delete(ctx context.Context, phone string) error {
	if r.rdb != nil {
		if err := r.rdb.Del(ctx, sessionKey(phone)).Err(); err != nil {
			return fmt.Errorf("evicting chat session for %s: %w", phone, err)
		}
	}
	if err := r.db.WithContext(ctx).Delete(&models.ChatSession{}, "phone = ?", phone).Error; err != nil {
		return fmt.Errorf("deleting chat session snapshot for %s: %w", phone, err)
	}
	return nil
}
