package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Identity is the point-in-time caller snapshot copied onto events.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Directory looks up the profile behind a caller id. The storefront's user
// store owns the data; this package only reads it.
type Directory interface {
	Lookup(ctx context.Context, callerID string) (email, name string, err error)
}

var (
	ErrInvalidCredential = errors.New("invalid credential")
	ErrNotFound          = errors.New("caller not found")
)

const cacheTTL = 5 * time.Minute

// Resolver turns a bearer token into a caller identity. Resolved identities
// are cached in Redis so the hot record path rarely touches Postgres.
type Resolver struct {
	secret []byte
	dir    Directory
	cache  *redis.Client
}

func NewResolver(secret []byte, dir Directory, cache *redis.Client) *Resolver {
	return &Resolver{secret: secret, dir: dir, cache: cache}
}

type tokenClaims struct {
	ID string `json:"id"`
	jwt.RegisteredClaims
}

// Resolve verifies the credential and returns the caller snapshot.
//
// An unverifiable token is an error; the caller downgrades to anonymous.
// A verified token whose profile lookup fails still resolves, with only the
// id populated, so the event keeps its caller attribution.
func (r *Resolver) Resolve(ctx context.Context, credential string) (*Identity, error) {
	if credential == "" {
		return nil, ErrInvalidCredential
	}

	if id, ok := r.cached(ctx, credential); ok {
		return id, nil
	}

	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(credential, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidCredential
		}
		return r.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidCredential
	}

	callerID := claims.ID
	if callerID == "" {
		callerID = claims.Subject
	}
	if callerID == "" {
		return nil, ErrInvalidCredential
	}

	id := &Identity{ID: callerID}
	email, name, err := r.dir.Lookup(ctx, callerID)
	if err != nil {
		// The token already proved who the caller is; attribute the event
		// by id and move on without the profile snapshot.
		log.Warn().Err(err).Str("caller_id", callerID).Msg("Caller profile lookup failed")
	} else {
		id.Email = email
		id.Name = name
	}

	r.store(ctx, credential, id)
	return id, nil
}

func cacheKey(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return "identity:" + hex.EncodeToString(sum[:])
}

func (r *Resolver) cached(ctx context.Context, credential string) (*Identity, bool) {
	if r.cache == nil {
		return nil, false
	}
	data, err := r.cache.Get(ctx, cacheKey(credential)).Bytes()
	if err != nil {
		return nil, false
	}
	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, false
	}
	return &id, true
}

func (r *Resolver) store(ctx context.Context, credential string, id *Identity) {
	if r.cache == nil {
		return
	}
	data, err := json.Marshal(id)
	if err != nil {
		return
	}
	r.cache.Set(ctx, cacheKey(credential), data, cacheTTL)
}
