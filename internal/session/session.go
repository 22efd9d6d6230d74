// Package session issues anonymous visitor ids and keeps the per-visitor
// CSRF token in a signed cookie.
package session

import (
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
)

const (
	// IDCookie holds the visitor id handed out by /start.
	IDCookie = "session_id"
	// DoneCookie is set by the recorder script once every clip is uploaded.
	DoneCookie = "all_done"
	// SignedCookie carries the signed session values.
	SignedCookie = "session"
	// TokenParam is the query parameter POST requests carry the token in.
	TokenParam = "_csrf_token"

	tokenKey = "_csrf_token"
)

var (
	ErrMissingToken  = errors.New("session: no csrf token in session")
	ErrTokenMismatch = errors.New("session: csrf token mismatch")
)

// NewID returns 128 random bits as 32 lowercase hex characters.
func NewID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// ValidID reports whether id has the shape NewID produces.
func ValidID(id string) bool {
	if len(id) != 32 {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Token is a CSRF token bound to one signed session.
type Token struct {
	value string
}

func NewToken() Token {
	return Token{value: NewID()}
}

func (t Token) String() string { return t.value }

// Matches reports whether supplied equals the token. The zero Token matches nothing.
func (t Token) Matches(supplied string) bool {
	if t.value == "" || supplied == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(t.value), []byte(supplied)) == 1
}

// Store reads and writes the signed session cookie.
type Store struct {
	codec  *securecookie.SecureCookie
	secure bool
}

// NewStore derives the signing key from secret. When secure is set the
// signed cookie is only sent over HTTPS.
func NewStore(secret []byte, secure bool) *Store {
	codec := securecookie.New(secret, nil)
	codec.SetSerializer(securecookie.JSONEncoder{})
	return &Store{codec: codec, secure: secure}
}

func (s *Store) load(r *http.Request) (map[string]string, error) {
	c, err := r.Cookie(SignedCookie)
	if err != nil {
		return nil, err
	}
	values := map[string]string{}
	if err := s.codec.Decode(SignedCookie, c.Value, &values); err != nil {
		return nil, err
	}
	return values, nil
}

// Token returns the session's CSRF token, creating and storing one on first use.
func (s *Store) Token(w http.ResponseWriter, r *http.Request) (Token, error) {
	values, err := s.load(r)
	if err == nil && values[tokenKey] != "" {
		return Token{value: values[tokenKey]}, nil
	}
	if values == nil {
		values = map[string]string{}
	}

	tok := NewToken()
	values[tokenKey] = tok.String()
	encoded, err := s.codec.Encode(SignedCookie, values)
	if err != nil {
		return Token{}, fmt.Errorf("encode session cookie: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SignedCookie,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return tok, nil
}

// Verify checks supplied against the token held in the request's signed cookie.
func (s *Store) Verify(r *http.Request, supplied string) error {
	values, err := s.load(r)
	if err != nil || values[tokenKey] == "" {
		return ErrMissingToken
	}
	if !(Token{value: values[tokenKey]}).Matches(supplied) {
		return ErrTokenMismatch
	}
	return nil
}

// VisitorID returns the session_id cookie value, or "" when there is none.
func VisitorID(r *http.Request) string {
	c, err := r.Cookie(IDCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

// Start issues a fresh visitor id cookie and returns the id.
func Start(w http.ResponseWriter) string {
	id := NewID()
	http.SetCookie(w, &http.Cookie{
		Name:  IDCookie,
		Value: id,
		Path:  "/",
	})
	return id
}
