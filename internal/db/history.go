package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// HistoryDatabase stores ping results, the persistent watchlist, and the
// alert log.
type HistoryDatabase struct {
	db *Database
}

// ResultRecord is one stored ping outcome.
type ResultRecord struct {
	ID            int64     `json:"id"`
	Address       string    `json:"address"`
	Edition       string    `json:"edition"`
	Online        bool      `json:"online"`
	LatencyMs     float64   `json:"latency_ms"`
	PlayersOnline int       `json:"players_online"`
	PlayersMax    int       `json:"players_max"`
	Version       string    `json:"version,omitempty"`
	Error         string    `json:"error,omitempty"`
	CheckedAt     time.Time `json:"checked_at"`
}

// WatchEntry is one persisted watchlist row.
type WatchEntry struct {
	ID      int64     `json:"id"`
	Address string    `json:"address"`
	Edition string    `json:"edition"`
	AddedAt time.Time `json:"added_at"`
}

// Alert represents an alert record.
type Alert struct {
	ID        int       `json:"id"`
	Type      string    `json:"type"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// NewHistoryDatabase creates and initializes the history database.
func NewHistoryDatabase(dbPath string) (*HistoryDatabase, error) {
	database, err := NewDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	hdb := &HistoryDatabase{db: database}

	if err := hdb.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}

	return hdb, nil
}

// migrate creates the database schema.
func (hdb *HistoryDatabase) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			address TEXT NOT NULL,
			edition TEXT NOT NULL,
			online INTEGER NOT NULL,
			latency_ms REAL NOT NULL DEFAULT 0,
			players_online INTEGER NOT NULL DEFAULT 0,
			players_max INTEGER NOT NULL DEFAULT 0,
			version TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			checked_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS watchlist (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			address TEXT NOT NULL,
			edition TEXT NOT NULL,
			added_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(address, edition)
		);

		CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			level TEXT NOT NULL,
			message TEXT NOT NULL,
			acknowledged INTEGER DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_results_target ON results(address, edition);
		CREATE INDEX IF NOT EXISTS idx_results_checked_at ON results(checked_at);
		CREATE INDEX IF NOT EXISTS idx_alerts_acknowledged ON alerts(acknowledged);
	`

	_, err := hdb.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	log.Debug().Msg("history schema migrated")
	return nil
}

// InsertResult stores one ping outcome. A zero CheckedAt is replaced with
// the current time.
func (hdb *HistoryDatabase) InsertResult(rec ResultRecord) error {
	checkedAt := rec.CheckedAt
	if checkedAt.IsZero() {
		checkedAt = time.Now().UTC()
	}

	_, err := hdb.db.Exec(`
		INSERT INTO results
			(address, edition, online, latency_ms, players_online, players_max, version, error, checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Address, rec.Edition, rec.Online, rec.LatencyMs,
		rec.PlayersOnline, rec.PlayersMax, rec.Version, rec.Error, checkedAt)
	if err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}
	return nil
}

// History returns the most recent results for one server, newest first.
func (hdb *HistoryDatabase) History(address, edition string, limit int) ([]ResultRecord, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := hdb.db.Query(`
		SELECT id, address, edition, online, latency_ms, players_online, players_max, version, error, checked_at
		FROM results
		WHERE address = ? AND edition = ?
		ORDER BY checked_at DESC, id DESC
		LIMIT ?`, address, edition, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanResults(rows)
}

// Recent returns the most recent results across all servers, newest first.
func (hdb *HistoryDatabase) Recent(limit int) ([]ResultRecord, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := hdb.db.Query(`
		SELECT id, address, edition, online, latency_ms, players_online, players_max, version, error, checked_at
		FROM results
		ORDER BY checked_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanResults(rows)
}

func scanResults(rows *sql.Rows) ([]ResultRecord, error) {
	var records []ResultRecord
	for rows.Next() {
		var rec ResultRecord
		if err := rows.Scan(&rec.ID, &rec.Address, &rec.Edition, &rec.Online, &rec.LatencyMs,
			&rec.PlayersOnline, &rec.PlayersMax, &rec.Version, &rec.Error, &rec.CheckedAt); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Uptime reports what percentage of stored checks within the window saw
// the server online, along with the sample count.
func (hdb *HistoryDatabase) Uptime(address, edition string, days int) (float64, int, error) {
	if days < 1 {
		days = 1
	}

	var total, up int
	err := hdb.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(online), 0)
		FROM results
		WHERE address = ? AND edition = ? AND checked_at >= datetime('now', ?)`,
		address, edition, fmt.Sprintf("-%d days", days)).Scan(&total, &up)
	if err != nil {
		return 0, 0, fmt.Errorf("uptime query failed: %w", err)
	}
	if total == 0 {
		return 0, 0, nil
	}
	return float64(up) / float64(total) * 100, total, nil
}

// ResultCount returns the total number of stored results.
func (hdb *HistoryDatabase) ResultCount() (int64, error) {
	var count int64
	err := hdb.db.QueryRow("SELECT COUNT(*) FROM results").Scan(&count)
	return count, err
}

// Prune deletes results older than the retention window and returns the
// number of rows removed.
func (hdb *HistoryDatabase) Prune(days int) (int64, error) {
	res, err := hdb.db.Exec(
		"DELETE FROM results WHERE checked_at < datetime('now', ?)",
		fmt.Sprintf("-%d days", days))
	if err != nil {
		return 0, fmt.Errorf("failed to prune results: %w", err)
	}
	removed, _ := res.RowsAffected()
	if removed > 0 {
		log.Info().Int64("rows", removed).Int("days", days).Msg("pruned old results")
	}
	return removed, nil
}

// WatchlistAdd persists a server on the watchlist. It reports whether the
// list changed.
func (hdb *HistoryDatabase) WatchlistAdd(address, edition string) (bool, error) {
	res, err := hdb.db.Exec(
		"INSERT OR IGNORE INTO watchlist (address, edition) VALUES (?, ?)",
		address, edition)
	if err != nil {
		return false, fmt.Errorf("failed to add watchlist entry: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// WatchlistRemove deletes a server from the persistent watchlist. It
// reports whether the list changed.
func (hdb *HistoryDatabase) WatchlistRemove(address, edition string) (bool, error) {
	res, err := hdb.db.Exec(
		"DELETE FROM watchlist WHERE address = ? AND edition = ?",
		address, edition)
	if err != nil {
		return false, fmt.Errorf("failed to remove watchlist entry: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Watchlist returns all persisted watchlist entries.
func (hdb *HistoryDatabase) Watchlist() ([]WatchEntry, error) {
	rows, err := hdb.db.Query(
		"SELECT id, address, edition, added_at FROM watchlist ORDER BY added_at, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []WatchEntry
	for rows.Next() {
		var e WatchEntry
		if err := rows.Scan(&e.ID, &e.Address, &e.Edition, &e.AddedAt); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// CreateAlert creates a new alert record.
func (hdb *HistoryDatabase) CreateAlert(alertType, level, message string) error {
	_, err := hdb.db.Exec(
		"INSERT INTO alerts (type, level, message) VALUES (?, ?, ?)",
		alertType, level, message)
	return err
}

// UnacknowledgedAlerts returns all unacknowledged alerts, newest first.
func (hdb *HistoryDatabase) UnacknowledgedAlerts() ([]Alert, error) {
	rows, err := hdb.db.Query(
		"SELECT id, type, level, message, created_at FROM alerts WHERE acknowledged = 0 ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		var a Alert
		if err := rows.Scan(&a.ID, &a.Type, &a.Level, &a.Message, &a.CreatedAt); err != nil {
			continue
		}
		alerts = append(alerts, a)
	}

	return alerts, nil
}

// AcknowledgeAlert marks an alert as acknowledged.
func (hdb *HistoryDatabase) AcknowledgeAlert(alertID int) error {
	_, err := hdb.db.Exec("UPDATE alerts SET acknowledged = 1 WHERE id = ?", alertID)
	return err
}

// PruneAlerts removes acknowledged alerts older than the specified days.
func (hdb *HistoryDatabase) PruneAlerts(days int) error {
	_, err := hdb.db.Exec(
		"DELETE FROM alerts WHERE acknowledged = 1 AND created_at < datetime('now', ?)",
		fmt.Sprintf("-%d days", days))
	return err
}

// Path returns the location of the database file.
func (hdb *HistoryDatabase) Path() string {
	return hdb.db.Path()
}

// Close closes the database.
func (hdb *HistoryDatabase) Close() error {
	return hdb.db.Close()
}
