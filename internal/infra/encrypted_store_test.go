package infra

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

// newTestStore creates an encrypted store in a temp directory for testing.
func newTestStore(t *testing.T) (*EncryptedStore, string) {
	t.Helper()
	dataDir := t.TempDir()
	key, err := GenerateKey()
	require.NoError(t, err)

	store, err := NewEncryptedStore(dataDir, key)
	require.NoError(t, err)

	t.Cleanup(func() { store.Close() })
	return store, dataDir
}

func TestEncryptedStore_Rules(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		testFn func(t *testing.T, store *EncryptedStore)
	}{
		{
			name: "unknown package returns nil rule",
			testFn: func(t *testing.T, store *EncryptedStore) {
				rule, err := store.GetRule(ctx, "com.example.unknown")
				require.NoError(t, err)
				assert.Nil(t, rule)
			},
		},
		{
			name: "save and get round trips every field",
			testFn: func(t *testing.T, store *EncryptedStore) {
				require.NoError(t, store.SaveRule(ctx, domain.TrackedAppRule{
					PackageName:   "com.example.game",
					DisplayName:   "Game",
					LockDates:     []string{"2024-06-15", "2024-06-16"},
					LockStartTime: "21:00",
					LockEndTime:   "07:00",
					Recurrence:    domain.RecurrenceByWeekday,
				}))

				rule, err := store.GetRule(ctx, "com.example.game")
				require.NoError(t, err)
				require.NotNil(t, rule)
				assert.Equal(t, "Game", rule.DisplayName)
				assert.False(t, rule.PermanentLock)
				assert.Equal(t, []string{"2024-06-15", "2024-06-16"}, rule.LockDates)
				assert.Equal(t, "21:00", rule.LockStartTime)
				assert.Equal(t, "07:00", rule.LockEndTime)
				assert.Equal(t, domain.RecurrenceByWeekday, rule.Recurrence)
				assert.False(t, rule.UpdatedAt.IsZero())
			},
		},
		{
			name: "empty recurrence is stored as one shot",
			testFn: func(t *testing.T, store *EncryptedStore) {
				require.NoError(t, store.SaveRule(ctx, domain.TrackedAppRule{
					PackageName:   "com.example.video",
					PermanentLock: true,
				}))

				rule, err := store.GetRule(ctx, "com.example.video")
				require.NoError(t, err)
				require.NotNil(t, rule)
				assert.True(t, rule.PermanentLock)
				assert.Empty(t, rule.LockDates)
				assert.Equal(t, domain.RecurrenceOneShot, rule.Recurrence)
			},
		},
		{
			name: "save overwrites existing rule",
			testFn: func(t *testing.T, store *EncryptedStore) {
				require.NoError(t, store.SaveRule(ctx, domain.TrackedAppRule{
					PackageName: "com.example.game", PermanentLock: true,
				}))
				require.NoError(t, store.SaveRule(ctx, domain.TrackedAppRule{
					PackageName: "com.example.game", LockStartTime: "09:00", LockEndTime: "17:00",
				}))

				rule, err := store.GetRule(ctx, "com.example.game")
				require.NoError(t, err)
				assert.False(t, rule.PermanentLock)
				assert.Equal(t, "09:00", rule.LockStartTime)
			},
		},
		{
			name: "save rejects empty package name",
			testFn: func(t *testing.T, store *EncryptedStore) {
				assert.Error(t, store.SaveRule(ctx, domain.TrackedAppRule{PermanentLock: true}))
			},
		},
		{
			name: "delete removes rule",
			testFn: func(t *testing.T, store *EncryptedStore) {
				require.NoError(t, store.SaveRule(ctx, domain.TrackedAppRule{
					PackageName: "com.example.game", PermanentLock: true,
				}))
				require.NoError(t, store.DeleteRule(ctx, "com.example.game"))

				rule, err := store.GetRule(ctx, "com.example.game")
				require.NoError(t, err)
				assert.Nil(t, rule)
			},
		},
		{
			name: "list is ordered by package name",
			testFn: func(t *testing.T, store *EncryptedStore) {
				for _, pkg := range []string{"org.zeta", "com.alpha", "net.mid"} {
					require.NoError(t, store.SaveRule(ctx, domain.TrackedAppRule{PackageName: pkg, PermanentLock: true}))
				}

				rules, err := store.ListRules(ctx)
				require.NoError(t, err)
				require.Len(t, rules, 3)
				assert.Equal(t, "com.alpha", rules[0].PackageName)
				assert.Equal(t, "net.mid", rules[1].PackageName)
				assert.Equal(t, "org.zeta", rules[2].PackageName)
			},
		},
		{
			name: "get honours cancelled context",
			testFn: func(t *testing.T, store *EncryptedStore) {
				cctx, cancel := context.WithCancel(ctx)
				cancel()
				_, err := store.GetRule(cctx, "com.example.game")
				assert.Error(t, err)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := newTestStore(t)
			tt.testFn(t, store)
		})
	}
}

func TestEncryptedStore_Session(t *testing.T) {
	t.Run("auth token is empty when logged out", func(t *testing.T) {
		store, _ := newTestStore(t)
		token, err := store.AuthToken()
		require.NoError(t, err)
		assert.Empty(t, token)
	})

	t.Run("set and clear auth token", func(t *testing.T) {
		store, _ := newTestStore(t)
		require.NoError(t, store.SetAuthToken("tok-123"))

		token, err := store.AuthToken()
		require.NoError(t, err)
		assert.Equal(t, "tok-123", token)

		require.NoError(t, store.SetAuthToken(""))
		token, err = store.AuthToken()
		require.NoError(t, err)
		assert.Empty(t, token)
	})

	t.Run("device id is generated once", func(t *testing.T) {
		store, _ := newTestStore(t)
		first, err := store.DeviceID()
		require.NoError(t, err)
		_, err = uuid.Parse(first)
		assert.NoError(t, err)

		second, err := store.DeviceID()
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}

func TestEncryptedStore_Daemon(t *testing.T) {
	t.Run("register and get", func(t *testing.T) {
		store, _ := newTestStore(t)
		require.NoError(t, store.Register(domain.Daemon{PID: 1234, Role: domain.RoleWatcher, AppVersion: "0.1.0"}))

		entry, err := store.GetAll()
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.Equal(t, 1234, entry.WatcherPID)
		assert.Equal(t, "0.1.0", entry.AppVersion)
		assert.NotZero(t, entry.StartedAt)
		assert.NotZero(t, entry.LastHeartbeat)

		wantMode := string(ExecModeUser)
		if os.Geteuid() == 0 {
			wantMode = string(ExecModeSystem)
		}
		assert.Equal(t, wantMode, entry.Mode)
	})

	t.Run("re-register overwrites PID", func(t *testing.T) {
		store, _ := newTestStore(t)
		require.NoError(t, store.Register(domain.Daemon{PID: 1111, Role: domain.RoleWatcher}))
		require.NoError(t, store.Register(domain.Daemon{PID: 2222, Role: domain.RoleWatcher}))

		entry, err := store.GetAll()
		require.NoError(t, err)
		assert.Equal(t, 2222, entry.WatcherPID)
	})

	t.Run("heartbeat requires registration", func(t *testing.T) {
		store, _ := newTestStore(t)
		assert.Error(t, store.UpdateHeartbeat(domain.RoleWatcher))

		require.NoError(t, store.Register(domain.Daemon{PID: 1234, Role: domain.RoleWatcher}))
		assert.NoError(t, store.UpdateHeartbeat(domain.RoleWatcher))
	})

	t.Run("get all is nil when empty", func(t *testing.T) {
		store, _ := newTestStore(t)
		entry, err := store.GetAll()
		require.NoError(t, err)
		assert.Nil(t, entry)
	})

	t.Run("clear keeps rules and secrets", func(t *testing.T) {
		ctx := context.Background()
		store, _ := newTestStore(t)
		require.NoError(t, store.SetAuthToken("tok"))
		require.NoError(t, store.SaveRule(ctx, domain.TrackedAppRule{PackageName: "com.example.game", PermanentLock: true}))
		require.NoError(t, store.Register(domain.Daemon{PID: 1234, Role: domain.RoleWatcher}))

		require.NoError(t, store.Clear())

		entry, err := store.GetAll()
		require.NoError(t, err)
		assert.Nil(t, entry)

		token, err := store.AuthToken()
		require.NoError(t, err)
		assert.Equal(t, "tok", token)

		rule, err := store.GetRule(ctx, "com.example.game")
		require.NoError(t, err)
		assert.NotNil(t, rule)
	})
}

func TestEncryptedStore_Secrets(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.GetSecret("nonexistent")
	assert.ErrorIs(t, err, ErrSecretNotFound)

	require.NoError(t, store.SetSecret("a", "1"))
	require.NoError(t, store.SetSecret("b", "2"))
	require.NoError(t, store.SetSecret("a", "3"))

	secrets, err := store.GetAllSecrets()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "3", "b": "2"}, secrets)
}

func TestEncryptedStore_Encryption(t *testing.T) {
	tests := []struct {
		name   string
		testFn func(t *testing.T)
	}{
		{
			name: "database file is unreadable without key",
			testFn: func(t *testing.T) {
				dataDir := t.TempDir()
				key, err := GenerateKey()
				require.NoError(t, err)

				store, err := NewEncryptedStore(dataDir, key)
				require.NoError(t, err)
				require.NoError(t, store.SetAuthToken("secret_token_value"))
				require.NoError(t, store.SaveRule(context.Background(), domain.TrackedAppRule{
					PackageName: "com.example.hidden_game", PermanentLock: true,
				}))
				store.Close()

				rawData, err := os.ReadFile(filepath.Join(dataDir, storeDBName))
				require.NoError(t, err)
				assert.NotContains(t, string(rawData), "secret_token_value")
				assert.NotContains(t, string(rawData), "com.example.hidden_game")
			},
		},
		{
			name: "wrong key fails to open",
			testFn: func(t *testing.T) {
				dataDir := t.TempDir()
				key1, _ := GenerateKey()
				key2, _ := GenerateKey()

				store1, err := NewEncryptedStore(dataDir, key1)
				require.NoError(t, err)
				require.NoError(t, store1.SetSecret("test", "value"))
				store1.Close()

				_, err = NewEncryptedStore(dataDir, key2)
				assert.Error(t, err)
			},
		},
		{
			name: "correct key reads data",
			testFn: func(t *testing.T) {
				dataDir := t.TempDir()
				key, _ := GenerateKey()

				store1, err := NewEncryptedStore(dataDir, key)
				require.NoError(t, err)
				require.NoError(t, store1.SetSecret("test", "secret_value"))
				store1.Close()

				store2, err := NewEncryptedStore(dataDir, key)
				require.NoError(t, err)
				defer store2.Close()

				val, err := store2.GetSecret("test")
				require.NoError(t, err)
				assert.Equal(t, "secret_value", val)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.testFn)
	}
}

func TestOpenStore_CreatesKey(t *testing.T) {
	dataDir := t.TempDir()

	store, err := OpenStore(dataDir)
	require.NoError(t, err)
	require.NoError(t, store.SetSecret("k", "v"))
	require.NoError(t, store.Close())

	assert.True(t, NewFileKeyProvider(dataDir).KeyExists())

	reopened, err := OpenStore(dataDir)
	require.NoError(t, err)
	defer reopened.Close()
	val, err := reopened.GetSecret("k")
	require.NoError(t, err)
	assert.Equal(t, "v", val)
}

func TestEncryptedStore_Close_Idempotent(t *testing.T) {
	store, dataDir := newTestStore(t)
	assert.Equal(t, filepath.Join(dataDir, storeDBName), store.Path())

	assert.NoError(t, store.Close())
	store.db = nil
	assert.NoError(t, store.Close())
}
