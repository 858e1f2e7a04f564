package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/thitiwat-dev/go-shortlink/pkg/core/domain"
	_ "github.com/tursodatabase/libsql-client-go/libsql" // Turso driver
	_ "modernc.org/sqlite"                               // Local SQLite driver
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbURL string) (*SQLiteRepository, error) {
	driverName := "sqlite"
	if strings.Contains(dbURL, "libsql://") || strings.Contains(dbURL, "wss://") {
		driverName = "libsql"
	}

	db, err := sql.Open(driverName, dbURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	if err := migrate(db); err != nil {
		return nil, err
	}

	return &SQLiteRepository{db: db}, nil
}

// Close releases the connection pool. Called once at process shutdown.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func migrate(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS links (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL UNIQUE,
		target_url TEXT NOT NULL,
		owner_id TEXT NOT NULL DEFAULT '',
		clicks INTEGER NOT NULL DEFAULT 0,
		last_clicked_at DATETIME,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_links_code ON links(code);
	CREATE INDEX IF NOT EXISTS idx_links_owner_created ON links(owner_id, created_at);

	CREATE TABLE IF NOT EXISTS visits (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		link_id INTEGER NOT NULL,
		referer TEXT,
		user_agent TEXT,
		ip_hash TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(link_id) REFERENCES links(id)
	);
	CREATE INDEX IF NOT EXISTS idx_visits_link_id ON visits(link_id);
	`
	_, err := db.Exec(query)
	return err
}

// Create inserts the link; the UNIQUE constraint on code is the
// atomic check-and-insert demanded by concurrent reservations.
func (r *SQLiteRepository) Create(ctx context.Context, link *domain.Link) error {
	query := `INSERT INTO links (code, target_url, owner_id, clicks, created_at)
			  VALUES (?, ?, ?, ?, ?)`

	res, err := r.db.ExecContext(ctx, query, link.Code, link.TargetURL, link.OwnerID, link.Clicks, link.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.E(domain.KindDuplicate, "code already exists")
		}
		return err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	link.ID = id
	return nil
}

func (r *SQLiteRepository) FindByCode(ctx context.Context, code string) (*domain.Link, error) {
	query := `SELECT id, code, target_url, owner_id, clicks, last_clicked_at, created_at
			  FROM links WHERE code = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, code))
}

// IncrementClicks applies the counter bump and timestamp as a single
// UPDATE so concurrent resolutions never lose updates.
func (r *SQLiteRepository) IncrementClicks(ctx context.Context, code string, at time.Time) error {
	query := `UPDATE links SET clicks = clicks + 1, last_clicked_at = ? WHERE code = ?`

	res, err := r.db.ExecContext(ctx, query, at, code)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.E(domain.KindNotFound, "link not found")
	}
	return nil
}

// ListByOwner returns links newest first. An empty ownerID matches all
// links (ownership disabled).
func (r *SQLiteRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Link, error) {
	query := `SELECT id, code, target_url, owner_id, clicks, last_clicked_at, created_at
			  FROM links`
	args := []interface{}{}

	if ownerID != "" {
		query += " WHERE owner_id = ?"
		args = append(args, ownerID)
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLinks(rows)
}

// DeleteByIDAndOwner removes the link only when the owner matches; an
// empty ownerID skips the owner check (ownership disabled).
func (r *SQLiteRepository) DeleteByIDAndOwner(ctx context.Context, id int64, ownerID string) (bool, error) {
	query := `DELETE FROM links WHERE id = ?`
	args := []interface{}{id}

	if ownerID != "" {
		query += " AND owner_id = ?"
		args = append(args, ownerID)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *SQLiteRepository) Dump(ctx context.Context) ([]domain.Link, error) {
	query := `SELECT id, code, target_url, owner_id, clicks, last_clicked_at, created_at FROM links`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLinks(rows)
}

func (r *SQLiteRepository) RecordVisit(ctx context.Context, visit *domain.Visit) error {
	query := `INSERT INTO visits (link_id, referer, user_agent, ip_hash, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, visit.LinkID, visit.Referer, visit.UserAgent, visit.IPHash,
		visit.CreatedAt.Format("2006-01-02 15:04:05"))
	return err
}

func (r *SQLiteRepository) GetLinkStats(ctx context.Context, linkID int64) (*domain.LinkStats, error) {
	stats := &domain.LinkStats{
		Referrers:   make(map[string]int64),
		DailyClicks: []domain.DailyClick{},
	}

	// The clicks column is authoritative; visit rows are recorded
	// asynchronously and may lag behind it.
	err := r.db.QueryRowContext(ctx, `SELECT clicks FROM links WHERE id = ?`, linkID).Scan(&stats.TotalClicks)
	if err == sql.ErrNoRows {
		return nil, domain.E(domain.KindNotFound, "link not found")
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `SELECT referer, COUNT(*) as c FROM visits WHERE link_id = ? GROUP BY referer ORDER BY c DESC LIMIT 10`, linkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var ref string
		var count int64
		if err := rows.Scan(&ref, &count); err != nil {
			return nil, err
		}
		if ref == "" {
			ref = "Direct"
		}
		stats.Referrers[ref] = count
	}

	rows2, err := r.db.QueryContext(ctx, `
		SELECT strftime('%Y-%m-%d', created_at) as date, COUNT(*)
		FROM visits
		WHERE link_id = ?
		GROUP BY date
		ORDER BY date DESC
		LIMIT 30`, linkID)
	if err != nil {
		return nil, err
	}
	defer rows2.Close()
	for rows2.Next() {
		var dc domain.DailyClick
		if err := rows2.Scan(&dc.Date, &dc.Count); err != nil {
			return nil, err
		}
		stats.DailyClicks = append(stats.DailyClicks, dc)
	}

	return stats, nil
}

func (r *SQLiteRepository) scanOne(row *sql.Row) (*domain.Link, error) {
	var link domain.Link
	var lastClicked sql.NullTime

	err := row.Scan(&link.ID, &link.Code, &link.TargetURL, &link.OwnerID,
		&link.Clicks, &lastClicked, &link.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lastClicked.Valid {
		link.LastClickedAt = &lastClicked.Time
	}
	return &link, nil
}

func scanLinks(rows *sql.Rows) ([]domain.Link, error) {
	var links []domain.Link
	for rows.Next() {
		var l domain.Link
		var lastClicked sql.NullTime
		if err := rows.Scan(&l.ID, &l.Code, &l.TargetURL, &l.OwnerID,
			&l.Clicks, &lastClicked, &l.CreatedAt); err != nil {
			return nil, err
		}
		if lastClicked.Valid {
			l.LastClickedAt = &lastClicked.Time
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique")
}
