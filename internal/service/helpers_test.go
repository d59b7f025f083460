package service

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/prperemyshlev/portfolio-backend/internal/domain"
	"github.com/prperemyshlev/portfolio-backend/internal/dto"
	"github.com/prperemyshlev/portfolio-backend/internal/repository"
	"github.com/prperemyshlev/portfolio-backend/internal/repository/repotest"
	"github.com/prperemyshlev/portfolio-backend/internal/utils"
	"github.com/prperemyshlev/portfolio-backend/pkg/database"
	"github.com/prperemyshlev/portfolio-backend/pkg/mailer"
)

const (
	gracePeriod  = 10 * time.Minute
	pollInterval = 15 * time.Second
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type captureMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (m *captureMailer) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *captureMailer) messages() []mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mailer.Message(nil), m.sent...)
}

type testEnv struct {
	svc      AuthService
	users    *repotest.UserStore
	queue    repository.CleanupQueue
	reaper   *Reaper
	notifier *Notifier
	jwt      *utils.JWTManager
	mail     *captureMailer
	clock    *fakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	redis := database.NewRedisFromClient(client)

	clock := &fakeClock{now: time.Now().Truncate(time.Second)}
	logger := zap.NewNop()

	metrics, err := NewMetrics(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	jwtManager := utils.NewJWTManager(map[domain.TokenKind]utils.TokenSpec{
		domain.TokenKindAccess:        {Secret: "access-secret-access-secret-access-secret", TTL: 24 * time.Hour},
		domain.TokenKindRefresh:       {Secret: "refresh-secret-refresh-secret-refresh-secret", TTL: 7 * 24 * time.Hour},
		domain.TokenKindEmailVerify:   {Secret: "verify-secret-verify-secret-verify-secret", TTL: 10 * time.Minute},
		domain.TokenKindResetPassword: {Secret: "reset-secret-reset-secret-reset-secret", TTL: 15 * time.Minute},
	}).WithClock(clock.Now)

	validator, err := utils.NewValidator()
	require.NoError(t, err)

	users := repotest.NewUserStore()
	queue := repository.NewCleanupQueue(redis)

	reaper := NewReaper(queue, users, gracePeriod, pollInterval, 100, metrics, logger)
	reaper.now = clock.Now

	mail := &captureMailer{}
	notifier := NewNotifier(mail, "http://localhost:3000/", time.Second, metrics, logger)

	svc := NewAuthService(
		users,
		jwtManager,
		utils.NewPasswordHasher(4),
		validator,
		NewTokenBlacklistService(redis),
		reaper,
		notifier,
		metrics,
		logger,
	)
	svc.(*authService).now = clock.Now

	return &testEnv{
		svc:      svc,
		users:    users,
		queue:    queue,
		reaper:   reaper,
		notifier: notifier,
		jwt:      jwtManager,
		mail:     mail,
		clock:    clock,
	}
}

var linkPattern = regexp.MustCompile(`/(verify-email|reset-password)/([A-Za-z0-9_\-.]+)`)

// lastLinkToken waits for pending emails and returns the token in the newest link of kind
func (e *testEnv) lastLinkToken(t *testing.T, kind string) string {
	t.Helper()
	require.NoError(t, e.notifier.Wait(context.Background()))

	msgs := e.mail.messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		m := linkPattern.FindStringSubmatch(msgs[i].HTMLBody)
		if m != nil && m[1] == kind {
			return m[2]
		}
	}
	t.Fatalf("no %s link mailed", kind)
	return ""
}

func (e *testEnv) register(t *testing.T, username, email, password string) *domain.PublicUser {
	t.Helper()
	user, err := e.svc.Register(context.Background(), &dto.RegisterRequest{
		Username: username,
		Email:    email,
		Fullname: username + " tester",
		Password: password,
	})
	require.NoError(t, err)
	return user
}

// registerVerified registers and verifies a user
func (e *testEnv) registerVerified(t *testing.T, username, email, password string) *domain.PublicUser {
	t.Helper()
	user := e.register(t, username, email, password)
	require.NoError(t, e.svc.VerifyEmail(context.Background(), e.lastLinkToken(t, "verify-email")))
	return user
}

func (e *testEnv) login(t *testing.T, username, password string) *Session {
	t.Helper()
	session, err := e.svc.Login(context.Background(), &dto.LoginRequest{Username: username, Password: password})
	require.NoError(t, err)
	return session
}
