package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/hartline/accountd/internal/auth"
	"github.com/hartline/accountd/internal/auth/pepper"
	"github.com/hartline/accountd/internal/database"
	"github.com/hartline/accountd/internal/models"
	"github.com/hartline/accountd/pkg/crypto"
	"github.com/hartline/accountd/pkg/mail"
)

func openServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := database.Open(database.Config{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}

func newTestSigner(t *testing.T, clock func() time.Time) *auth.TokenSigner {
	t.Helper()
	signer, err := auth.NewTokenSigner(auth.SignerConfig{Key: "test-signing-key", Clock: clock})
	require.NoError(t, err)
	return signer
}

func newTestJWT(t *testing.T, clock func() time.Time) *auth.JWTService {
	t.Helper()
	svc, err := auth.NewJWTService(auth.JWTConfig{Secret: "test-jwt-secret", Issuer: "accountd", Clock: clock})
	require.NoError(t, err)
	return svc
}

// noSleep satisfies the Sleeper contract without blocking and counts calls.
type sleepRecorder struct {
	mu    sync.Mutex
	calls int
}

func (r *sleepRecorder) sleep(_ context.Context, _ time.Duration) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
}

func (r *sleepRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func zeroRand(int) int { return 0 }

func testPeppers() pepper.Table { return pepper.Default() }

// recordingMailer captures outbound messages instead of delivering them.
type recordingMailer struct {
	mu       sync.Mutex
	messages []mail.Message
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	m.messages = append(m.messages, msg)
	m.mu.Unlock()
	return nil
}

func (m *recordingMailer) sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mail.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

func (m *recordingMailer) last() mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return mail.Message{}
	}
	return m.messages[len(m.messages)-1]
}

var otpPattern = regexp.MustCompile(`code(?: is)?: ([0-9]+)`)

func extractOTP(t *testing.T, body string) string {
	t.Helper()
	match := otpPattern.FindStringSubmatch(body)
	require.Len(t, match, 2, "mail body carries no code: %q", body)
	return match[1]
}

var wirePattern = regexp.MustCompile(`token: (\S+)`)

func extractWire(t *testing.T, body string) string {
	t.Helper()
	match := wirePattern.FindStringSubmatch(body)
	require.Len(t, match, 2, "mail body carries no token: %q", body)
	return match[1]
}

func createTestAccount(t *testing.T, db *gorm.DB, peppers pepper.Table, email, password string, createdAt time.Time) *models.Account {
	t.Helper()

	salt, err := crypto.GenerateSalt()
	require.NoError(t, err)
	hash, err := crypto.HashCredential(password, salt, peppers.ForDate(createdAt))
	require.NoError(t, err)
	sessionKey, err := crypto.GenerateToken(32)
	require.NoError(t, err)

	account := &models.Account{
		Email:        email,
		PasswordHash: hash,
		Salt:         salt,
		SessionKey:   sessionKey,
		AccessLevel:  models.AccessLevelUser,
		Verified:     true,
		CreatedAt:    createdAt,
	}
	require.NoError(t, db.Create(account).Error)
	return account
}
