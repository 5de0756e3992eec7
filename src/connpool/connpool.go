// Package connpool implements the connection pool of spec §4.2: origin
// allow-listing, bearer/signed-token authentication, opaque connection id
// assignment, capacity rejection, and idle-activity tracking. The
// connection registry shape (map keyed by id, guarded by one mutex, each
// entry holding its own cancellation) is grounded on teacher's
// src/transports/websocket.go conns map; the signed session token is a
// golang-jwt/jwt/v5 HMAC-SHA256 token with exp/sid claims, following the
// sign/verify idiom of xpanvictor-xarvis's internal/domains/user/service.go.
package connpool

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrForbiddenOrigin  = errors.New("connpool: origin not allow-listed")
	ErrAuthFailed       = errors.New("connpool: auth failed")
	ErrServerOverloaded = errors.New("connpool: server overloaded")
)

// SessionClaims is the payload of the optional per-session signed token
// carried in session.start (spec §4.2: "HMAC-SHA256 over header.payload,
// exp and sid required in payload").
type SessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// TokenSigner signs and verifies SessionClaims with a shared HMAC secret.
type TokenSigner struct {
	secret []byte
}

func NewTokenSigner(secret string) *TokenSigner {
	return &TokenSigner{secret: []byte(secret)}
}

// Sign issues a session token valid for ttl.
func (s *TokenSigner) Sign(sessionID string, ttl time.Duration) (string, error) {
	claims := &SessionClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify parses and validates a session token, returning its claims.
func (s *TokenSigner) Verify(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("connpool: unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, ErrAuthFailed
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || claims.SessionID == "" {
		return nil, ErrAuthFailed
	}
	return claims, nil
}

// AuthConfig bundles the connection-admission rules of spec §4.2 and §6.
type AuthConfig struct {
	AllowedOrigins []string // empty means allow all
	BearerToken    string   // empty disables the static bearer check
	Signer         *TokenSigner
}

// CheckOrigin reports whether origin is allow-listed. An empty allow-list
// means every origin is accepted (local/dev default).
func (a AuthConfig) CheckOrigin(origin string) bool {
	if len(a.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range a.AllowedOrigins {
		if strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// CheckBearer validates an `Authorization: Bearer …` header value or a
// `?token=` query parameter against the configured static token. If no
// static token is configured the check is skipped (the per-session
// signed token, if present, is validated separately once session.start
// arrives).
func (a AuthConfig) CheckBearer(authHeader string, query url.Values) bool {
	if a.BearerToken == "" {
		return true
	}
	if tok := query.Get("token"); tok == a.BearerToken {
		return true
	}
	const prefix = "Bearer "
	if strings.HasPrefix(authHeader, prefix) && authHeader[len(prefix):] == a.BearerToken {
		return true
	}
	return false
}

// Conn is one tracked connection's pool-owned bookkeeping. The session
// state itself belongs to the orchestrator (spec §3 Ownership); the pool
// only tracks connection identity and activity.
type Conn struct {
	ID          string
	Origin      string
	ConnectedAt time.Time
	lastActive  atomic.Int64 // unix nanoseconds
}

// Touch records activity on the connection (used for idle eviction).
func (c *Conn) Touch() { c.lastActive.Store(time.Now().UnixNano()) }

// IdleSince reports how long the connection has been without activity.
func (c *Conn) IdleSince() time.Duration {
	return time.Since(time.Unix(0, c.lastActive.Load()))
}

// Pool is the process-wide connection registry.
type Pool struct {
	mu       sync.RWMutex
	conns    map[string]*Conn
	capacity int
}

// NewPool builds a Pool rejecting new connections once capacity is
// reached (spec §4.2: "rejects new connections past capacity with close
// code server overloaded").
func NewPool(capacity int) *Pool {
	return &Pool{
		conns:    make(map[string]*Conn),
		capacity: capacity,
	}
}

// Admit assigns a new opaque connection id and registers it, or returns
// ErrServerOverloaded if the pool is at capacity.
func (p *Pool) Admit(origin string) (*Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.capacity > 0 && len(p.conns) >= p.capacity {
		return nil, ErrServerOverloaded
	}

	c := &Conn{
		ID:          uuid.New().String(),
		Origin:      origin,
		ConnectedAt: time.Now(),
	}
	c.Touch()
	p.conns[c.ID] = c
	return c, nil
}

// Remove drops a connection from the pool (on disconnect or session.end).
func (p *Pool) Remove(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.conns, id)
}

// Len reports the current number of tracked connections.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.conns)
}

// IdleConnections returns the ids of connections idle for at least d,
// for the gateway's idle-eviction sweep.
func (p *Pool) IdleConnections(d time.Duration) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var idle []string
	for id, c := range p.conns {
		if c.IdleSince() >= d {
			idle = append(idle, id)
		}
	}
	return idle
}
