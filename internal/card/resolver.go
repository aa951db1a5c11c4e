package card

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"punchclock/internal/attendance"
)

// Resolver maps scanned card numbers to active person bindings. Student
// bindings are searched before staff bindings; a card that is somehow active
// in both tables resolves as the student, with no conflict detection.
type Resolver struct {
	db    *sql.DB
	cache *redis.Client // nil disables caching
	ttl   time.Duration
}

// NewResolver creates a resolver with an optional redis read-through cache.
func NewResolver(db *sql.DB, cache *redis.Client, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Resolver{db: db, cache: cache, ttl: ttl}
}

// Resolve returns the identity bound to the card, or ErrCardNotRegistered.
// Cache traffic is best-effort; a broken cache degrades to plain lookups.
func (r *Resolver) Resolve(ctx context.Context, cardNumber string) (attendance.Identity, error) {
	if cardNumber == "" {
		return attendance.Identity{}, attendance.ErrCardRequired
	}

	if ident, ok := r.cached(ctx, cardNumber); ok {
		return ident, nil
	}

	var studentID string
	err := r.db.QueryRowContext(ctx, `
		SELECT student_id FROM student_cards
		WHERE card_number = $1 AND active
		LIMIT 1
	`, cardNumber).Scan(&studentID)
	if err == nil {
		ident := attendance.Identity{PersonID: studentID, Kind: attendance.KindStudent}
		r.remember(ctx, cardNumber, ident)
		return ident, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return attendance.Identity{}, err
	}

	var staffID string
	err = r.db.QueryRowContext(ctx, `
		SELECT staff_id FROM staff_cards
		WHERE card_number = $1 AND active
		LIMIT 1
	`, cardNumber).Scan(&staffID)
	if err == nil {
		ident := attendance.Identity{PersonID: staffID, Kind: attendance.KindStaff}
		r.remember(ctx, cardNumber, ident)
		return ident, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return attendance.Identity{}, err
	}

	return attendance.Identity{}, attendance.ErrCardNotRegistered
}

func cacheKey(cardNumber string) string { return "punchclock:card:" + cardNumber }

func (r *Resolver) cached(ctx context.Context, cardNumber string) (attendance.Identity, bool) {
	if r.cache == nil {
		return attendance.Identity{}, false
	}
	val, err := r.cache.Get(ctx, cacheKey(cardNumber)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("card cache get failed: %v", err)
		}
		return attendance.Identity{}, false
	}
	kind, id, found := strings.Cut(val, "|")
	if !found || id == "" {
		return attendance.Identity{}, false
	}
	return attendance.Identity{PersonID: id, Kind: attendance.Kind(kind)}, true
}

func (r *Resolver) remember(ctx context.Context, cardNumber string, ident attendance.Identity) {
	if r.cache == nil {
		return
	}
	val := string(ident.Kind) + "|" + ident.PersonID
	if err := r.cache.Set(ctx, cacheKey(cardNumber), val, r.ttl).Err(); err != nil {
		log.Printf("card cache set failed: %v", err)
	}
}
