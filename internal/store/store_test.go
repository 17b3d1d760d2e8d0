package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bitatlas/trustgate/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestStoreWithSQLite runs the store suite against in-memory SQLite.
func TestStoreWithSQLite(t *testing.T) {
	testStoreOperations(t, "sqlite", nil)
}

// TestStoreWithPostgres runs the same suite against a real PostgreSQL
// instance via testcontainers.
func TestStoreWithPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping PostgreSQL integration test in short mode")
	}

	defer func() {
		if r := recover(); r != nil {
			t.Skipf("Skipping PostgreSQL test: Docker not available (panic: %v)", r)
		}
	}()

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("Skipping PostgreSQL test: Docker not available (%v)", err)
		return
	}
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	testStoreOperations(t, "postgres", pgContainer)
}

// createFreshStore creates an isolated store per subtest. SQLite gets a
// fresh :memory: database; PostgreSQL gets a uniquely-named database in the
// shared container.
func createFreshStore(t *testing.T, driver string, pgContainer *postgres.PostgresContainer) *Store {
	t.Helper()

	var dsn string
	switch driver {
	case "sqlite":
		dsn = ":memory:"
	case "postgres":
		dbName := "test_" + uuid.New().String()[:8]
		ctx := context.Background()

		createDBCmd := fmt.Sprintf("CREATE DATABASE %s", dbName)
		_, _, err := pgContainer.Exec(
			ctx,
			[]string{"psql", "-U", "testuser", "-d", "testdb", "-c", createDBCmd},
		)
		require.NoError(t, err)

		host, err := pgContainer.Host(ctx)
		require.NoError(t, err)
		port, err := pgContainer.MappedPort(ctx, "5432")
		require.NoError(t, err)
		dsn = fmt.Sprintf(
			"host=%s port=%s user=testuser password=testpass dbname=%s sslmode=disable",
			host, port.Port(), dbName,
		)

		t.Cleanup(func() {
			dropDBCmd := fmt.Sprintf("DROP DATABASE IF EXISTS %s", dbName)
			_, _, _ = pgContainer.Exec(
				context.Background(),
				[]string{"psql", "-U", "testuser", "-d", "testdb", "-c", dropDBCmd},
			)
		})
	default:
		t.Fatalf("unsupported driver: %s", driver)
	}

	store, err := New(driver, dsn)
	require.NoError(t, err)
	require.NotNil(t, store)

	return store
}

func createTestUser(t *testing.T, s *Store) *models.User {
	t.Helper()
	user := &models.User{
		ID:           uuid.New().String(),
		Email:        "alice@example.com",
		PasswordHash: "$2a$12$notarealhashbutlookslikeone",
	}
	require.NoError(t, s.CreateUser(user))
	return user
}

func testStoreOperations(t *testing.T, driver string, pgContainer *postgres.PostgresContainer) {
	t.Run("CreateAndGetUser", func(t *testing.T) {
		s := createFreshStore(t, driver, pgContainer)
		user := createTestUser(t, s)

		byEmail, err := s.GetUserByEmail("alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, user.ID, byEmail.ID)

		byID, err := s.GetUserByID(user.ID)
		require.NoError(t, err)
		assert.Equal(t, user.Email, byID.Email)

		_, err = s.GetUserByEmail("nobody@example.com")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("CreateUserDuplicateEmail", func(t *testing.T) {
		s := createFreshStore(t, driver, pgContainer)
		createTestUser(t, s)

		err := s.CreateUser(&models.User{
			ID:           uuid.New().String(),
			Email:        "alice@example.com",
			PasswordHash: "hash",
		})
		assert.ErrorIs(t, err, ErrDuplicateEmail)
	})

	t.Run("RecordFailedLoginIncrementsAndLocks", func(t *testing.T) {
		s := createFreshStore(t, driver, pgContainer)
		user := createTestUser(t, s)
		now := time.Now()

		for i := 1; i <= 4; i++ {
			attempts, err := s.RecordFailedLogin(user.ID, now, 5)
			require.NoError(t, err)
			assert.Equal(t, i, attempts)
		}

		fresh, err := s.GetUserByID(user.ID)
		require.NoError(t, err)
		assert.False(t, fresh.AccountLocked)
		assert.Equal(t, 4, fresh.FailedLoginAttempts)

		attempts, err := s.RecordFailedLogin(user.ID, now, 5)
		require.NoError(t, err)
		assert.Equal(t, 5, attempts)

		fresh, err = s.GetUserByID(user.ID)
		require.NoError(t, err)
		assert.True(t, fresh.AccountLocked)
		require.NotNil(t, fresh.LastLoginAttempt)
	})

	t.Run("RecordFailedLoginConcurrent", func(t *testing.T) {
		if driver == "sqlite" {
			t.Skip("SQLite :memory: gives each pooled connection its own database")
		}
		s := createFreshStore(t, driver, pgContainer)
		user := createTestUser(t, s)
		now := time.Now()

		const n = 10
		var wg sync.WaitGroup
		wg.Add(n)
		for i := 0; i < n; i++ {
			go func() {
				defer wg.Done()
				_, _ = s.RecordFailedLogin(user.ID, now, 5)
			}()
		}
		wg.Wait()

		fresh, err := s.GetUserByID(user.ID)
		require.NoError(t, err)
		assert.Equal(t, n, fresh.FailedLoginAttempts)
		assert.True(t, fresh.AccountLocked)
	})

	t.Run("RecordSuccessfulLoginResetsLockout", func(t *testing.T) {
		s := createFreshStore(t, driver, pgContainer)
		user := createTestUser(t, s)
		now := time.Now()

		for i := 0; i < 5; i++ {
			_, err := s.RecordFailedLogin(user.ID, now, 5)
			require.NoError(t, err)
		}

		require.NoError(t, s.RecordSuccessfulLogin(user.ID, now))

		fresh, err := s.GetUserByID(user.ID)
		require.NoError(t, err)
		assert.False(t, fresh.AccountLocked)
		assert.Equal(t, 0, fresh.FailedLoginAttempts)
	})

	t.Run("UpsertSessionReplacesPriorSession", func(t *testing.T) {
		s := createFreshStore(t, driver, pgContainer)
		user := createTestUser(t, s)

		first := &models.Session{
			UserID:           user.ID,
			RefreshTokenHash: "hash-one",
			ExpiresAt:        time.Now().Add(time.Hour),
		}
		require.NoError(t, s.UpsertSession(first))

		second := &models.Session{
			UserID:           user.ID,
			RefreshTokenHash: "hash-two",
			ExpiresAt:        time.Now().Add(time.Hour),
		}
		require.NoError(t, s.UpsertSession(second))

		// The old token no longer resolves; the new one does.
		_, err := s.GetSessionByTokenHash("hash-one", time.Now())
		assert.ErrorIs(t, err, ErrNotFound)

		got, err := s.GetSessionByTokenHash("hash-two", time.Now())
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.UserID)
	})

	t.Run("GetSessionByTokenHashExcludesExpired", func(t *testing.T) {
		s := createFreshStore(t, driver, pgContainer)
		user := createTestUser(t, s)

		require.NoError(t, s.UpsertSession(&models.Session{
			UserID:           user.ID,
			RefreshTokenHash: "expired-hash",
			ExpiresAt:        time.Now().Add(-time.Minute),
		}))

		_, err := s.GetSessionByTokenHash("expired-hash", time.Now())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("DeleteSessionIdempotent", func(t *testing.T) {
		s := createFreshStore(t, driver, pgContainer)
		user := createTestUser(t, s)

		require.NoError(t, s.UpsertSession(&models.Session{
			UserID:           user.ID,
			RefreshTokenHash: "hash",
			ExpiresAt:        time.Now().Add(time.Hour),
		}))

		require.NoError(t, s.DeleteSessionByTokenHash("hash"))
		require.NoError(t, s.DeleteSessionByTokenHash("hash"))
		require.NoError(t, s.DeleteSessionByTokenHash("never-existed"))
	})

	t.Run("ConsumeAuthorizationCodeOnce", func(t *testing.T) {
		s := createFreshStore(t, driver, pgContainer)
		user := createTestUser(t, s)

		code := &models.AuthorizationCode{
			CodeHash:    "code-hash",
			CodePrefix:  "deadbeef",
			UserID:      user.ID,
			ClientID:    "bitatlas-cli",
			RedirectURI: "http://localhost:8765/callback",
			Scope:       "files:read",
			ExpiresAt:   time.Now().Add(10 * time.Minute),
		}
		require.NoError(t, s.CreateAuthorizationCode(code))

		require.NoError(t, s.ConsumeAuthorizationCode(code.ID, time.Now()))

		err := s.ConsumeAuthorizationCode(code.ID, time.Now())
		assert.ErrorIs(t, err, ErrCodeAlreadyUsed)
	})

	t.Run("ConsumeAuthorizationCodeConcurrent", func(t *testing.T) {
		if driver == "sqlite" {
			t.Skip("SQLite :memory: gives each pooled connection its own database")
		}
		s := createFreshStore(t, driver, pgContainer)
		user := createTestUser(t, s)

		code := &models.AuthorizationCode{
			CodeHash:    "race-hash",
			CodePrefix:  "cafef00d",
			UserID:      user.ID,
			ClientID:    "bitatlas-cli",
			RedirectURI: "http://localhost:8765/callback",
			Scope:       "files:read",
			ExpiresAt:   time.Now().Add(10 * time.Minute),
		}
		require.NoError(t, s.CreateAuthorizationCode(code))

		const n = 8
		results := make(chan error, n)
		var wg sync.WaitGroup
		wg.Add(n)
		for i := 0; i < n; i++ {
			go func() {
				defer wg.Done()
				results <- s.ConsumeAuthorizationCode(code.ID, time.Now())
			}()
		}
		wg.Wait()
		close(results)

		var succeeded int
		for err := range results {
			if err == nil {
				succeeded++
			} else {
				assert.ErrorIs(t, err, ErrCodeAlreadyUsed)
			}
		}
		assert.Equal(t, 1, succeeded, "exactly one exchange may win")
	})

	t.Run("OAuthTokenLifecycle", func(t *testing.T) {
		s := createFreshStore(t, driver, pgContainer)
		user := createTestUser(t, s)

		tok := &models.OAuthToken{
			ID:        uuid.New().String(),
			UserID:    user.ID,
			ClientID:  "bitatlas-cli",
			TokenHash: "token-hash",
			Scopes:    "files:read",
			ExpiresAt: time.Now().Add(time.Hour),
		}
		require.NoError(t, s.CreateOAuthToken(tok))

		listed, err := s.ListOAuthTokensByUserID(user.ID)
		require.NoError(t, err)
		require.Len(t, listed, 1)
		assert.Equal(t, tok.ID, listed[0].ID)

		active, err := s.OAuthTokenActive("token-hash", time.Now())
		require.NoError(t, err)
		assert.True(t, active)

		// Expiry counts as inactive even while the row exists.
		active, err = s.OAuthTokenActive("token-hash", time.Now().Add(2*time.Hour))
		require.NoError(t, err)
		assert.False(t, active)

		// Wrong owner cannot delete.
		err = s.DeleteOAuthTokenByHash("other-user", "token-hash")
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, s.DeleteOAuthTokenByHash(user.ID, "token-hash"))

		listed, err = s.ListOAuthTokensByUserID(user.ID)
		require.NoError(t, err)
		assert.Empty(t, listed)

		// Revocation removed the row, so the hash no longer authenticates.
		active, err = s.OAuthTokenActive("token-hash", time.Now())
		require.NoError(t, err)
		assert.False(t, active)
	})

	t.Run("DeleteExpiredRows", func(t *testing.T) {
		s := createFreshStore(t, driver, pgContainer)
		user := createTestUser(t, s)
		now := time.Now()

		require.NoError(t, s.UpsertSession(&models.Session{
			UserID:           user.ID,
			RefreshTokenHash: "old",
			ExpiresAt:        now.Add(-time.Hour),
		}))
		require.NoError(t, s.CreateAuthorizationCode(&models.AuthorizationCode{
			CodeHash: "old-code", CodePrefix: "00000000", UserID: user.ID,
			ClientID: "c", RedirectURI: "u", Scope: "files:read",
			ExpiresAt: now.Add(-time.Hour),
		}))
		require.NoError(t, s.CreateOAuthToken(&models.OAuthToken{
			ID: uuid.New().String(), UserID: user.ID, ClientID: "c",
			TokenHash: "old-token", Scopes: "files:read",
			ExpiresAt: now.Add(-time.Hour),
		}))

		n, err := s.DeleteExpiredSessions(now)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = s.DeleteExpiredCodes(now)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = s.DeleteExpiredOAuthTokens(now)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("Health", func(t *testing.T) {
		s := createFreshStore(t, driver, pgContainer)
		assert.NoError(t, s.Health())
	})
}
