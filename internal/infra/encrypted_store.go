package infra

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

// Ensure sqlcipher driver is registered.
var _ = sqlcipher.ErrBusy

const (
	storeDBName = "applock.db"

	// Secret keys used by the session.
	SecretAuthToken = "auth_token"
	SecretDeviceID  = "device_id"
)

// ErrSecretNotFound is returned by GetSecret for unknown keys.
var ErrSecretNotFound = errors.New("secret not found")

// EncryptedStore is the local SQLCipher database. It holds tracked app
// rules, the guardian session secrets, and the watcher's registry entry.
type EncryptedStore struct {
	db     *sql.DB
	dbPath string

	deviceMu sync.Mutex // serializes device ID generation
}

// NewEncryptedStore opens (or creates) the encrypted store in dataDir.
// The key is used as the SQLCipher raw key via PRAGMA key.
func NewEncryptedStore(dataDir string, key []byte) (*EncryptedStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, storeDBName)
	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096&_busy_timeout=5000", dbPath, hex.EncodeToString(key))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	store := &EncryptedStore{db: db, dbPath: dbPath}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

// OpenStore ensures the key in dataDir and opens the store with it.
func OpenStore(dataDir string) (*EncryptedStore, error) {
	key, err := EnsureKey(NewFileKeyProvider(dataDir))
	if err != nil {
		return nil, err
	}
	return NewEncryptedStore(dataDir, key)
}

func (s *EncryptedStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tracked_apps (
		package_name TEXT PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		lock_status INTEGER NOT NULL DEFAULT 0,
		lock_dates TEXT NOT NULL DEFAULT '',
		lock_start_time TEXT NOT NULL DEFAULT '',
		lock_end_time TEXT NOT NULL DEFAULT '',
		recurring TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS secrets (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS daemon_state (
		role TEXT PRIMARY KEY,
		pid INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		last_heartbeat INTEGER NOT NULL,
		app_version TEXT DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database file path.
func (s *EncryptedStore) Path() string {
	return s.dbPath
}

// --- domain.RuleRepository implementation ---

const ruleColumns = `package_name, display_name, lock_status, lock_dates, lock_start_time, lock_end_time, recurring, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*domain.TrackedAppRule, error) {
	var (
		rule      domain.TrackedAppRule
		locked    int
		dates     string
		recurring string
		updatedAt int64
	)
	err := row.Scan(&rule.PackageName, &rule.DisplayName, &locked, &dates,
		&rule.LockStartTime, &rule.LockEndTime, &recurring, &updatedAt)
	if err != nil {
		return nil, err
	}
	rule.PermanentLock = locked != 0
	rule.LockDates = domain.SplitLockDates(dates)
	rule.Recurrence, _ = domain.ParseRecurrenceMode(recurring)
	rule.UpdatedAt = time.Unix(updatedAt, 0)
	return &rule, nil
}

// GetRule returns the rule for packageName, or nil when it is not tracked.
func (s *EncryptedStore) GetRule(ctx context.Context, packageName string) (*domain.TrackedAppRule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM tracked_apps WHERE package_name = ?`, packageName)
	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query rule %s: %w", packageName, err)
	}
	return rule, nil
}

// SaveRule inserts or replaces a rule.
func (s *EncryptedStore) SaveRule(ctx context.Context, rule domain.TrackedAppRule) error {
	if rule.PackageName == "" {
		return fmt.Errorf("rule has no package name")
	}
	if rule.Recurrence == "" {
		rule.Recurrence = domain.RecurrenceOneShot
	}
	locked := 0
	if rule.PermanentLock {
		locked = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO tracked_apps (`+ruleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.PackageName, rule.DisplayName, locked, domain.JoinLockDates(rule.LockDates),
		rule.LockStartTime, rule.LockEndTime, string(rule.Recurrence), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save rule %s: %w", rule.PackageName, err)
	}
	return nil
}

// DeleteRule stops tracking packageName.
func (s *EncryptedStore) DeleteRule(ctx context.Context, packageName string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tracked_apps WHERE package_name = ?`, packageName)
	if err != nil {
		return fmt.Errorf("delete rule %s: %w", packageName, err)
	}
	return nil
}

// ListRules returns all rules ordered by package name.
func (s *EncryptedStore) ListRules(ctx context.Context) ([]domain.TrackedAppRule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+ruleColumns+` FROM tracked_apps ORDER BY package_name`)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var rules []domain.TrackedAppRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

// --- domain.SessionStore implementation ---

// AuthToken returns the guardian bearer token, or "" when none is stored.
func (s *EncryptedStore) AuthToken() (string, error) {
	token, err := s.GetSecret(SecretAuthToken)
	if errors.Is(err, ErrSecretNotFound) {
		return "", nil
	}
	return token, err
}

// SetAuthToken stores the bearer token. An empty token logs the session out.
func (s *EncryptedStore) SetAuthToken(token string) error {
	if token == "" {
		_, err := s.db.Exec(`DELETE FROM secrets WHERE key = ?`, SecretAuthToken)
		return err
	}
	return s.SetSecret(SecretAuthToken, token)
}

// DeviceID returns the device identifier, generating it on first use.
func (s *EncryptedStore) DeviceID() (string, error) {
	s.deviceMu.Lock()
	defer s.deviceMu.Unlock()

	id, err := s.GetSecret(SecretDeviceID)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, ErrSecretNotFound) {
		return "", err
	}

	id = uuid.New().String()
	if err := s.SetSecret(SecretDeviceID, id); err != nil {
		return "", err
	}
	return id, nil
}

// --- domain.SecretStore implementation ---

// GetSecret retrieves a secret by key.
func (s *EncryptedStore) GetSecret(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM secrets WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: %q", ErrSecretNotFound, key)
	}
	return value, err
}

// SetSecret stores a secret.
func (s *EncryptedStore) SetSecret(key, value string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO secrets (key, value, created_at) VALUES (?, ?, ?)`,
		key, value, time.Now().Unix())
	return err
}

// GetAllSecrets returns all stored secrets.
func (s *EncryptedStore) GetAllSecrets() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM secrets`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	secrets := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		secrets[k] = v
	}
	return secrets, rows.Err()
}

// --- domain.DaemonRegistry implementation ---

// Register records the running daemon.
func (s *EncryptedStore) Register(daemon domain.Daemon) error {
	now := time.Now().Unix()
	startedAt := daemon.StartedAt.Unix()
	if daemon.StartedAt.IsZero() {
		startedAt = now
	}

	mode := string(ExecModeUser)
	if os.Geteuid() == 0 {
		mode = string(ExecModeSystem)
	}

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO daemon_state (role, pid, started_at, last_heartbeat, app_version)
		VALUES (?, ?, ?, ?, ?)`,
		string(daemon.Role), daemon.PID, startedAt, now, daemon.AppVersion,
	)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES ('mode', ?)`, mode)
	return err
}

// UpdateHeartbeat updates timestamp for liveness check.
func (s *EncryptedStore) UpdateHeartbeat(role domain.DaemonRole) error {
	result, err := s.db.Exec(`UPDATE daemon_state SET last_heartbeat = ? WHERE role = ?`,
		time.Now().Unix(), string(role))
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("daemon %s not registered", role)
	}
	return nil
}

// GetAll returns the watcher's registry entry, or nil when none is registered.
func (s *EncryptedStore) GetAll() (*domain.RegistryEntry, error) {
	entry := &domain.RegistryEntry{}
	err := s.db.QueryRow(`SELECT pid, started_at, last_heartbeat, app_version FROM daemon_state WHERE role = ?`,
		string(domain.RoleWatcher)).Scan(&entry.WatcherPID, &entry.StartedAt, &entry.LastHeartbeat, &entry.AppVersion)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var mode string
	if err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'mode'`).Scan(&mode); err == nil {
		entry.Mode = mode
	}
	return entry, nil
}

// Clear removes all daemon state.
func (s *EncryptedStore) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM daemon_state`); err != nil {
		return err
	}
	_, err := s.db.Exec(`DELETE FROM meta WHERE key = 'mode'`)
	return err
}

// Close releases the database connection.
func (s *EncryptedStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ensure EncryptedStore implements the storage interfaces.
var (
	_ domain.RuleRepository = (*EncryptedStore)(nil)
	_ domain.SessionStore   = (*EncryptedStore)(nil)
	_ domain.SecretStore    = (*EncryptedStore)(nil)
	_ domain.DaemonRegistry = (*EncryptedStore)(nil)
)
