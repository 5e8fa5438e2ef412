package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/inventory/internal/repo"
	"github.com/Skotchmaster/inventory/internal/search"
	"github.com/Skotchmaster/inventory/pkg/cache"
	pkgdb "github.com/Skotchmaster/inventory/pkg/db"
	"github.com/Skotchmaster/inventory/pkg/events"
	"github.com/Skotchmaster/inventory/pkg/tokens"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
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

type sentCode struct {
	channel, contact, code string
}

// captureSender records delivered codes and can be told to fail.
type captureSender struct {
	mu   sync.Mutex
	sent []sentCode
	fail bool
}

func (s *captureSender) Send(_ context.Context, channel, contact, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("smtp: connection refused")
	}
	s.sent = append(s.sent, sentCode{channel: channel, contact: contact, code: code})
	return nil
}

func (s *captureSender) last() sentCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return sentCode{}
	}
	return s.sent[len(s.sent)-1]
}

type testEnv struct {
	repo    *repo.GormRepo
	cache   *cache.Memory
	clock   *testClock
	sender  *captureSender
	events  *events.Recorder
	tokens  *tokens.Service
	otp     *OTPService
	auth    *AuthService
	catalog *CatalogService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	ctx := context.Background()
	gdb, err := pkgdb.Open(ctx, pkgdb.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = pkgdb.Close(gdb) })

	r := repo.New(gdb)
	require.NoError(t, r.Migrate(ctx))

	clock := &testClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	mem := cache.NewMemoryWithClock(clock.Now)
	sender := &captureSender{}
	rec := &events.Recorder{}

	tok, err := tokens.NewService([]byte("service-test-secret"), tokens.WithClock(clock.Now))
	require.NoError(t, err)

	otp := NewOTPService(mem, sender, DefaultOTPTTL, DefaultOTPResendInterval)

	return &testEnv{
		repo:   r,
		cache:  mem,
		clock:  clock,
		sender: sender,
		events: rec,
		tokens: tok,
		otp:    otp,
		auth: &AuthService{
			Users:  r,
			Tokens: tok,
			OTP:    otp,
			Events: rec,
		},
		catalog: &CatalogService{
			Store:  r,
			Cache:  mem,
			Search: search.StoreIndex{Store: r},
			Events: rec,
		},
	}
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func intPtr(i int64) *int64 { return &i }
