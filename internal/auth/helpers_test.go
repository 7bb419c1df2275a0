package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"marketplace/internal/auth"
	"marketplace/internal/store/memory"
)

const testPassword = "correct horse battery staple"

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Now().UTC().Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	clock       *testClock
	store       *memory.Store
	revocations *memory.Revocations
	codec       *auth.TokenCodec
	sessions    *auth.SessionManager
	authn       *auth.Authenticator
}

func newFixture(t *testing.T, opts ...auth.Option) *fixture {
	t.Helper()
	clock := newTestClock()
	opts = append([]auth.Option{auth.WithClock(clock.Now)}, opts...)

	store := memory.New()
	revocations := memory.NewRevocations(clock.Now)
	t.Cleanup(revocations.Close)

	codec, err := auth.NewTokenCodec([]byte("test-secret"), opts...)
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	sessions, err := auth.NewSessionManager(store, store, revocations, codec, opts...)
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}
	authn, err := auth.NewAuthenticator(codec, revocations, store, opts...)
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	return &fixture{
		clock:       clock,
		store:       store,
		revocations: revocations,
		codec:       codec,
		sessions:    sessions,
		authn:       authn,
	}
}

// addUser stores an active user whose password is testPassword. bcrypt at minimum
// cost keeps the suite fast.
func (f *fixture) addUser(t *testing.T, email string) *auth.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	u := &auth.User{Email: email, Username: email, PasswordHash: string(hash), Active: true}
	if err := f.store.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func (f *fixture) login(t *testing.T, email string) auth.TokenPair {
	t.Helper()
	pair, err := f.sessions.Login(context.Background(), email, testPassword, auth.ClientMeta{IP: "203.0.113.7", UserAgent: "test"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	return pair
}

func bearer(token string) string {
	return "Bearer " + token
}
