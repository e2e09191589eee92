// Session management: pluggable storage, secure ID generation, and
// regeneration to prevent session fixation.
//
//	app.Use(middleware.Sessions(middleware.SessionConfig{
//		Store:      middleware.NewMemoryStore(),
//		TTL:        24 * time.Hour,
//		CookieName: "session_id",
//		HTTPOnly:   true,
//		Secure:     true,
//	}))
//
//	func handler(c *reqctx.Context, deps *di.Container) (any, error) {
//		session := middleware.SessionFromCtx(c)
//		session.Set("user_id", "123")
//		return map[string]string{"status": "logged in"}, nil
//	}
package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nexuscore/nexus/di"
	"github.com/nexuscore/nexus/pipeline"
	"github.com/nexuscore/nexus/reqctx"
)

const sessionContextKey = "__session"

// Store abstracts session persistence. Implementations must provide
// thread-safe Get, Save, and Delete by session ID.
//
// Security considerations for implementations:
//   - Use timing-safe comparison for session ID lookups
//   - Clean up expired sessions to avoid unbounded growth
//   - Consider encryption at rest for sensitive session data
type Store interface {
	// Get retrieves session data by ID. Returns false if not found or expired.
	Get(id string) (map[string]any, bool)

	// Save persists session data with the given ID and TTL. TTL of 0 means no expiry.
	Save(id string, data map[string]any, ttl time.Duration) error

	// Delete removes session data by ID. Idempotent.
	Delete(id string) error
}

// MemoryStore is an in-memory session store with TTL and optional
// background cleanup. Suitable for development, testing, and
// single-instance deployments.
type MemoryStore struct {
	mu            sync.RWMutex
	data          map[string]entry
	cleanupTicker *time.Ticker
	cleanupDone   chan struct{}
	cleanupOnce   sync.Once
}

type entry struct {
	v        map[string]any
	exp      time.Time
	accessed int64
}

// NewMemoryStore creates a new in-memory session store. Call
// StartCleanup to enable periodic eviction of expired sessions.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:        make(map[string]entry),
		cleanupDone: make(chan struct{}),
	}
}

// Get retrieves session data by ID with timing attack protection.
// Returns a copy of the session data to prevent external modification.
func (m *MemoryStore) Get(id string) (map[string]any, bool) {
	now := time.Now()

	m.mu.RLock()
	e, ok := m.data[id]
	m.mu.RUnlock()

	if !ok {
		_ = subtle.ConstantTimeCompare([]byte(id), []byte("dummy_session_id_for_timing"))
		return nil, false
	}

	if !e.exp.IsZero() && now.After(e.exp) {
		_ = m.Delete(id)
		return nil, false
	}

	atomic.StoreInt64(&e.accessed, now.Unix())
	return copyMapEfficient(e.v), true
}

// Save persists session data with the given ID and TTL. Stores a shallow
// copy of data, so later top-level key changes by the caller don't leak
// through; nested values are shared.
func (m *MemoryStore) Save(id string, data map[string]any, ttl time.Duration) error {
	if id == "" {
		return errors.New("session: empty session id")
	}

	now := time.Now()
	var exp time.Time
	if ttl > 0 {
		exp = now.Add(ttl)
	}

	e := entry{
		v:        copyMapEfficient(data),
		exp:      exp,
		accessed: now.Unix(),
	}

	m.mu.Lock()
	m.data[id] = e
	m.mu.Unlock()
	return nil
}

// Delete removes session data by ID. Idempotent.
func (m *MemoryStore) Delete(id string) error {
	m.mu.Lock()
	delete(m.data, id)
	m.mu.Unlock()
	return nil
}

// StartCleanup starts a background goroutine that periodically removes
// expired sessions. Safe to call at most once; later calls are no-ops.
func (m *MemoryStore) StartCleanup(interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	m.cleanupOnce.Do(func() {
		m.cleanupTicker = time.NewTicker(interval)
		go m.cleanupLoop()
	})
}

// StopCleanup stops the background cleanup goroutine.
func (m *MemoryStore) StopCleanup() {
	if m.cleanupTicker != nil {
		m.cleanupTicker.Stop()
		close(m.cleanupDone)
	}
}

func (m *MemoryStore) cleanupLoop() {
	for {
		select {
		case <-m.cleanupTicker.C:
			m.cleanupExpired()
		case <-m.cleanupDone:
			return
		}
	}
}

func (m *MemoryStore) cleanupExpired() {
	now := time.Now()
	toDelete := make([]string, 0, 16)

	m.mu.RLock()
	for id, e := range m.data {
		if !e.exp.IsZero() && now.After(e.exp) {
			toDelete = append(toDelete, id)
		}
	}
	m.mu.RUnlock()

	if len(toDelete) > 0 {
		m.mu.Lock()
		for _, id := range toDelete {
			if e, exists := m.data[id]; exists && !e.exp.IsZero() && now.After(e.exp) {
				delete(m.data, id)
			}
		}
		m.mu.Unlock()
	}
}

// Len returns the current number of sessions in the store.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	count := len(m.data)
	m.mu.RUnlock()
	return count
}

// copyMapEfficient creates a shallow copy of a map, returning nil for nil input.
func copyMapEfficient(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	if len(src) == 0 {
		return make(map[string]any)
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// Session is the per-request view of session state.
type Session struct {
	ID          string
	Values      map[string]any
	changed     bool
	new         bool
	regenerated bool
	oldID       string
}

// Get retrieves a value from the session by key.
func (s *Session) Get(key string) (any, bool) {
	if s.Values == nil {
		return nil, false
	}
	v, ok := s.Values[key]
	return v, ok
}

// Set stores a value in the session by key, marking the session changed.
func (s *Session) Set(key string, v any) {
	if s.Values == nil {
		s.Values = make(map[string]any)
	}
	s.Values[key] = v
	s.changed = true
}

// Delete removes a value from the session by key.
func (s *Session) Delete(key string) {
	if s.Values == nil {
		return
	}
	delete(s.Values, key)
	s.changed = true
}

// Clear removes all values from the session.
func (s *Session) Clear() {
	if s.Values == nil {
		s.Values = make(map[string]any)
	} else {
		for k := range s.Values {
			delete(s.Values, k)
		}
	}
	s.changed = true
}

// Regenerate replaces the session ID while preserving session data, to
// prevent session fixation. Call after authentication or privilege changes.
func (s *Session) Regenerate() {
	if s.ID != "" {
		s.oldID = s.ID
	}
	s.ID = newSessionID()
	s.regenerated = true
	s.changed = true
}

// IsNew returns true if this is a newly created session.
func (s *Session) IsNew() bool { return s.new }

// IsChanged returns true if the session data has been modified.
func (s *Session) IsChanged() bool { return s.changed }

// IsRegenerated returns true if the session ID has been regenerated.
func (s *Session) IsRegenerated() bool { return s.regenerated }

// SessionConfig configures the session middleware.
type SessionConfig struct {
	// Store is the session storage backend. Defaults to NewMemoryStore().
	Store Store

	// TTL is the session time-to-live. Defaults to 24 hours.
	TTL time.Duration

	// CookieName is the session cookie name. Defaults to "nexus.sid"; an
	// empty value selects the default, so the cookie is always written.
	CookieName string

	// CookiePath sets the cookie's Path attribute. Defaults to "/".
	CookiePath string

	// Domain sets the cookie's Domain attribute.
	Domain string

	// Secure sets the cookie's Secure attribute.
	Secure bool

	// HTTPOnly sets the cookie's HttpOnly attribute.
	HTTPOnly bool

	// SameSite sets the cookie's SameSite attribute. Defaults to http.SameSiteLaxMode.
	SameSite http.SameSite

	// HeaderName, if set, also transports the session ID via this header,
	// in addition to the cookie. Useful for API clients.
	HeaderName string

	// IdleTimeout is currently unused by Sessions; reserved for a future
	// idle-expiry pass distinct from the absolute TTL.
	IdleTimeout time.Duration

	// MaxAge is currently unused by Sessions; reserved for absolute
	// session lifetime enforcement independent of TTL.
	MaxAge time.Duration

	// RegenerateOnAuth is currently unused by Sessions; callers regenerate
	// explicitly via Session.Regenerate.
	RegenerateOnAuth bool
}

func defaultSessionConfig() SessionConfig {
	return SessionConfig{
		Store:      NewMemoryStore(),
		TTL:        24 * time.Hour,
		CookieName: "nexus.sid",
		CookiePath: "/",
		HTTPOnly:   true,
		SameSite:   http.SameSiteLaxMode,
	}
}

// Sessions loads the session referenced by the incoming cookie/header (or
// starts a new one), makes it available via SessionFromCtx, and persists
// it after the handler runs if it was created or modified.
//
//	store := middleware.NewMemoryStore()
//	store.StartCleanup(5 * time.Minute)
//	app.Use(middleware.Sessions(middleware.SessionConfig{
//		Store:    store,
//		TTL:      12 * time.Hour,
//		Secure:   true,
//		SameSite: http.SameSiteStrictMode,
//	}))
func Sessions(cfg SessionConfig) pipeline.Middleware {
	def := defaultSessionConfig()
	if cfg.Store == nil {
		cfg.Store = def.Store
	}
	if cfg.TTL == 0 {
		cfg.TTL = def.TTL
	}
	if cfg.CookieName == "" {
		cfg.CookieName = def.CookieName
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = def.CookiePath
	}
	if cfg.SameSite == 0 {
		cfg.SameSite = def.SameSite
	}

	return func(c *reqctx.Context, next pipeline.Next, deps *di.Container) (any, error) {
		id := readSessionID(c.Request(), cfg)

		var sess Session
		if id != "" {
			if vals, ok := cfg.Store.Get(id); ok {
				sess = Session{ID: id, Values: vals}
			} else {
				sess = Session{ID: id, Values: map[string]any{}, new: true}
			}
		} else {
			sess = Session{ID: "", Values: map[string]any{}, new: true}
		}

		c.Set(sessionContextKey, &sess)

		flushed := false
		flush := func() {
			if flushed {
				return
			}
			if sess.changed || (sess.new && sess.ID != "") {
				if sess.ID == "" {
					sess.ID = newSessionID()
				}
				if sess.regenerated && sess.oldID != "" {
					_ = cfg.Store.Delete(sess.oldID)
				}
				_ = cfg.Store.Save(sess.ID, sess.Values, cfg.TTL)
				writeSessionID(c.ResponseWriter(), sess.ID, cfg)
			}
			flushed = true
		}
		c.SetResponseWriter(&headerWriteInterceptor{rw: c.ResponseWriter(), before: flush})

		result, err := next(c)
		flush()
		return result, err
	}
}

// SessionFromCtx retrieves the Session loaded by Sessions. Safe to call
// even without the middleware installed; returns an empty, unsaved session.
func SessionFromCtx(c *reqctx.Context) *Session {
	v := c.Get(sessionContextKey)
	if s, ok := v.(*Session); ok {
		return s
	}
	return &Session{Values: make(map[string]any)}
}

func readSessionID(r *http.Request, cfg SessionConfig) string {
	if cfg.HeaderName != "" {
		if hv := r.Header.Get(cfg.HeaderName); hv != "" {
			return hv
		}
	}
	if cfg.CookieName != "" {
		if ck, err := r.Cookie(cfg.CookieName); err == nil && ck.Value != "" {
			return ck.Value
		}
	}
	return ""
}

func writeSessionID(w http.ResponseWriter, id string, cfg SessionConfig) {
	if cfg.HeaderName != "" {
		w.Header().Set(cfg.HeaderName, id)
	}
	if cfg.CookieName != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     cfg.CookieName,
			Value:    id,
			Path:     cfg.CookiePath,
			Domain:   cfg.Domain,
			Secure:   cfg.Secure,
			HttpOnly: cfg.HTTPOnly,
			SameSite: cfg.SameSite,
			Expires:  time.Now().Add(cfg.TTL),
		})
	}
}

// newSessionID generates a cryptographically secure, URL-safe session ID
// from 32 bytes (256 bits) of randomness.
func newSessionID() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("session: failed to generate secure random bytes: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// headerWriteInterceptor invokes a callback before the first header write,
// used to flush session state just before the response commits.
type headerWriteInterceptor struct {
	rw      http.ResponseWriter
	before  func()
	written bool
}

func (h *headerWriteInterceptor) Header() http.Header { return h.rw.Header() }

func (h *headerWriteInterceptor) WriteHeader(status int) {
	if !h.written {
		h.before()
		h.written = true
	}
	h.rw.WriteHeader(status)
}

func (h *headerWriteInterceptor) Write(p []byte) (int, error) {
	if !h.written {
		h.WriteHeader(http.StatusOK)
	}
	return h.rw.Write(p)
}

func (h *headerWriteInterceptor) Flush() {
	if f, ok := h.rw.(http.Flusher); ok {
		f.Flush()
	}
}

var _ http.ResponseWriter = (*headerWriteInterceptor)(nil)
var _ http.Flusher = (*headerWriteInterceptor)(nil)
