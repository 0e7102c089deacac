package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcpulse-project/mcpulse/internal/util"
)

// AuthDatabase manages API bearer tokens and their roles using SQLite.
// Permissions are resolved through roles so new capabilities can be
// granted without reissuing tokens.
type AuthDatabase struct {
	db *Database
}

// Role represents a role in the access control system.
type Role struct {
	ID          int      `json:"id"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
	Inherits    string   `json:"inherits,omitempty"`
}

// TokenInfo describes an issued token. The stored token value is never
// returned in full after creation, only its prefix.
type TokenInfo struct {
	ID        int        `json:"id"`
	Name      string     `json:"name"`
	Role      string     `json:"role"`
	Prefix    string     `json:"prefix"`
	CreatedAt time.Time  `json:"created_at"`
	LastUsed  *time.Time `json:"last_used,omitempty"`
}

// NewAuthDatabase creates and initializes the auth database.
func NewAuthDatabase(dbPath string) (*AuthDatabase, error) {
	database, err := NewDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	adb := &AuthDatabase{db: database}

	// Run migrations
	if err := adb.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate auth database: %w", err)
	}

	// Seed default roles
	if err := adb.seedDefaults(); err != nil {
		return nil, fmt.Errorf("failed to seed default roles: %w", err)
	}

	return adb, nil
}

// migrate creates the database schema.
func (adb *AuthDatabase) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS roles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL,
			inherits TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS permissions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL
		);

		CREATE TABLE IF NOT EXISTS role_permissions (
			role_id INTEGER NOT NULL,
			permission_id INTEGER NOT NULL,
			PRIMARY KEY (role_id, permission_id),
			FOREIGN KEY (role_id) REFERENCES roles(id) ON DELETE CASCADE,
			FOREIGN KEY (permission_id) REFERENCES permissions(id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS tokens (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			token TEXT UNIQUE NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			role_id INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			last_used DATETIME,
			FOREIGN KEY (role_id) REFERENCES roles(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_tokens_token ON tokens(token);
	`

	_, err := adb.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	log.Debug().Msg("auth schema migrated")
	return nil
}

// seedDefaults creates the default roles and permissions if they don't exist.
func (adb *AuthDatabase) seedDefaults() error {
	return adb.db.Transaction(func(tx *sql.Tx) error {
		// Seed permissions
		permissions := []string{"monitor", "control", "configure"}
		for _, perm := range permissions {
			_, err := tx.Exec(
				"INSERT OR IGNORE INTO permissions (name) VALUES (?)", perm)
			if err != nil {
				return err
			}
		}

		// Seed roles with permission mappings
		roles := []struct {
			name     string
			perms    []string
			inherits string
		}{
			{name: "viewer", perms: []string{"monitor"}, inherits: ""},
			{name: "operator", perms: []string{"monitor", "control"}, inherits: "viewer"},
			{name: "admin", perms: []string{"monitor", "control", "configure"}, inherits: "operator"},
		}

		for _, role := range roles {
			res, err := tx.Exec(
				"INSERT OR IGNORE INTO roles (name, inherits) VALUES (?, ?)",
				role.name, role.inherits)
			if err != nil {
				return err
			}

			// Get role ID
			var roleID int64
			rowsAffected, _ := res.RowsAffected()
			if rowsAffected > 0 {
				roleID, _ = res.LastInsertId()
			} else {
				row := tx.QueryRow("SELECT id FROM roles WHERE name = ?", role.name)
				row.Scan(&roleID)
			}

			// Assign permissions to role
			for _, perm := range role.perms {
				var permID int64
				row := tx.QueryRow("SELECT id FROM permissions WHERE name = ?", perm)
				if err := row.Scan(&permID); err != nil {
					continue
				}
				tx.Exec(
					"INSERT OR IGNORE INTO role_permissions (role_id, permission_id) VALUES (?, ?)",
					roleID, permID)
			}
		}

		return nil
	})
}

// CreateToken issues a new token bound to the named role and returns the
// token value. This is the only time the full value is available.
func (adb *AuthDatabase) CreateToken(name, role string) (string, error) {
	token, err := util.GenerateToken()
	if err != nil {
		return "", err
	}

	err = adb.db.Transaction(func(tx *sql.Tx) error {
		var roleID int64
		if err := tx.QueryRow("SELECT id FROM roles WHERE name = ?", role).Scan(&roleID); err != nil {
			return fmt.Errorf("role '%s' not found: %w", role, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO tokens (token, name, role_id) VALUES (?, ?, ?)",
			token, name, roleID); err != nil {
			return fmt.Errorf("failed to create token: %w", err)
		}

		log.Info().
			Str("name", name).
			Str("role", role).
			Msg("API token created")

		return nil
	})
	if err != nil {
		return "", err
	}

	return token, nil
}

// EnsureAdminToken creates a default admin token if no admin token exists.
// The returned bool reports whether a new token was created; the value is
// only non-empty in that case.
func (adb *AuthDatabase) EnsureAdminToken() (string, bool, error) {
	var count int
	err := adb.db.QueryRow(`
		SELECT COUNT(*) FROM tokens t
		JOIN roles r ON t.role_id = r.id
		WHERE r.name = 'admin'
	`).Scan(&count)
	if err != nil {
		return "", false, fmt.Errorf("admin token check failed: %w", err)
	}
	if count > 0 {
		return "", false, nil
	}

	token, err := adb.CreateToken("default-admin", "admin")
	if err != nil {
		return "", false, err
	}
	return token, true, nil
}

// TokenRole resolves a token to its role name. The bool reports whether
// the token exists.
func (adb *AuthDatabase) TokenRole(token string) (string, bool, error) {
	var role string
	err := adb.db.QueryRow(`
		SELECT r.name FROM tokens t
		JOIN roles r ON t.role_id = r.id
		WHERE t.token = ?
	`, token).Scan(&role)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("token lookup failed: %w", err)
	}
	return role, true, nil
}

// TokenHasPermission checks if a token grants a specific permission.
func (adb *AuthDatabase) TokenHasPermission(token, permission string) (bool, error) {
	query := `
		SELECT COUNT(*) FROM tokens t
		JOIN role_permissions rp ON t.role_id = rp.role_id
		JOIN permissions p ON rp.permission_id = p.id
		WHERE t.token = ? AND p.name = ?
	`

	var count int
	err := adb.db.QueryRow(query, token, permission).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("permission check failed: %w", err)
	}

	return count > 0, nil
}

// TouchToken records that a token was used.
func (adb *AuthDatabase) TouchToken(token string) error {
	_, err := adb.db.Exec(
		"UPDATE tokens SET last_used = CURRENT_TIMESTAMP WHERE token = ?", token)
	return err
}

// ListTokens returns all issued tokens with their role and a short prefix
// of the value for identification.
func (adb *AuthDatabase) ListTokens() ([]TokenInfo, error) {
	rows, err := adb.db.Query(`
		SELECT t.id, t.name, r.name, substr(t.token, 1, 8), t.created_at, t.last_used
		FROM tokens t
		JOIN roles r ON t.role_id = r.id
		ORDER BY t.created_at, t.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []TokenInfo
	for rows.Next() {
		var info TokenInfo
		var lastUsed sql.NullTime
		if err := rows.Scan(&info.ID, &info.Name, &info.Role, &info.Prefix,
			&info.CreatedAt, &lastUsed); err != nil {
			continue
		}
		if lastUsed.Valid {
			info.LastUsed = &lastUsed.Time
		}
		tokens = append(tokens, info)
	}

	return tokens, nil
}

// DeleteToken revokes a token by ID.
func (adb *AuthDatabase) DeleteToken(id int) error {
	res, err := adb.db.Exec("DELETE FROM tokens WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("token %d not found", id)
	}

	log.Info().Int("id", id).Msg("API token revoked")
	return nil
}

// Roles returns all available roles with their permissions.
func (adb *AuthDatabase) Roles() ([]Role, error) {
	rows, err := adb.db.Query("SELECT id, name, inherits FROM roles ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var r Role
		if err := rows.Scan(&r.ID, &r.Name, &r.Inherits); err != nil {
			continue
		}

		// Get permissions
		permRows, err := adb.db.Query(`
			SELECT p.name FROM permissions p
			JOIN role_permissions rp ON p.id = rp.permission_id
			WHERE rp.role_id = ?
		`, r.ID)
		if err == nil {
			for permRows.Next() {
				var perm string
				permRows.Scan(&perm)
				r.Permissions = append(r.Permissions, perm)
			}
			permRows.Close()
		}

		roles = append(roles, r)
	}

	return roles, nil
}

// Close closes the database.
func (adb *AuthDatabase) Close() error {
	return adb.db.Close()
}
