package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/mailsmith/internal/domain"
	"github.com/ashureev/mailsmith/internal/gateway"
	"github.com/ashureev/mailsmith/internal/gateway/gatewaytest"
	"github.com/ashureev/mailsmith/internal/guard"
	"github.com/ashureev/mailsmith/internal/identity"
	"github.com/ashureev/mailsmith/internal/session"
)

type fakeRepo struct {
	mu      sync.Mutex
	users   map[string]*domain.User
	ended   []session.Key
	pingErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: make(map[string]*domain.User)}
}

func (f *fakeRepo) GetUser(_ context.Context, userID string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := f.users[userID]
	if user == nil {
		return nil, nil
	}
	copy := *user
	return &copy, nil
}

func (f *fakeRepo) UpsertUser(_ context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copy := *user
	f.users[user.UserID] = &copy
	return nil
}

func (f *fakeRepo) UpdateLastSeen(_ context.Context, _ string, _ time.Time) error { return nil }

func (f *fakeRepo) TouchSession(_ context.Context, _, _ string, _ time.Time) error { return nil }

func (f *fakeRepo) GetSession(_ context.Context, _, _ string) (*domain.SessionRecord, error) {
	return nil, nil
}

func (f *fakeRepo) EndSession(_ context.Context, userID, sessionID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, session.Key{UserID: userID, SessionID: sessionID})
	return nil
}

func (f *fakeRepo) GetExpiredSessions(_ context.Context, _ time.Duration) ([]*domain.SessionRecord, error) {
	return nil, nil
}

func (f *fakeRepo) CleanupEndedSessions(_ context.Context, _ time.Duration) (int64, error) {
	return 0, nil
}

func (f *fakeRepo) Ping(_ context.Context) error { return f.pingErr }
func (f *fakeRepo) Close() error                 { return nil }

type fakeBreaker struct{ state gateway.BreakerState }

func (b fakeBreaker) State() gateway.BreakerState { return b.state }

type fakeConns struct {
	mu     sync.Mutex
	closed []session.Key
}

func (c *fakeConns) CloseSession(userID, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = append(c.closed, session.Key{UserID: userID, SessionID: sessionID})
}

type testEnv struct {
	repo   *fakeRepo
	arena  *session.Arena
	gw     *gatewaytest.Fake
	conns  *fakeConns
	h      *Handler
	router http.Handler
}

func newTestEnv(gw *gatewaytest.Fake, breaker BreakerStater) *testEnv {
	env := &testEnv{
		repo:  newFakeRepo(),
		arena: session.NewArena(),
		gw:    gw,
		conns: &fakeConns{},
	}
	env.h = NewHandler(Deps{
		Repo:    env.repo,
		Arena:   env.arena,
		Gateway: gw,
		Breaker: breaker,
		Conns:   env.conns,
		Info:    ServerInfo{Provider: "fake", Model: "test-model", MaxSteps: 5},
	})

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(identity.WithIdentity(r.Context(), "user-1", "sess-1")))
		})
	})
	env.h.RegisterRoutes(r)
	env.h.RegisterEmailRoutes(r, guard.Default())
	env.router = r
	return env
}
