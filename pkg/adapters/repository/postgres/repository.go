package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/thitiwat-dev/go-shortlink/pkg/core/domain"
)

// PostgresRepository implements the link store on PostgreSQL. Same
// contract as the sqlite adapter; conflict detection uses the
// unique_violation error code instead of message sniffing.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(dbURL string) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", dbURL)
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

	return &PostgresRepository{db: db}, nil
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

func migrate(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS links (
		id BIGSERIAL PRIMARY KEY,
		code VARCHAR(64) NOT NULL UNIQUE,
		target_url TEXT NOT NULL,
		owner_id TEXT NOT NULL DEFAULT '',
		clicks BIGINT NOT NULL DEFAULT 0,
		last_clicked_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_links_owner_created ON links(owner_id, created_at);

	CREATE TABLE IF NOT EXISTS visits (
		id BIGSERIAL PRIMARY KEY,
		link_id BIGINT NOT NULL REFERENCES links(id) ON DELETE CASCADE,
		referer TEXT,
		user_agent TEXT,
		ip_hash TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_visits_link_id ON visits(link_id);
	`
	_, err := db.Exec(query)
	return err
}

func (r *PostgresRepository) Create(ctx context.Context, link *domain.Link) error {
	query := `INSERT INTO links (code, target_url, owner_id, clicks, created_at)
			  VALUES ($1, $2, $3, $4, $5) RETURNING id`

	err := r.db.QueryRowContext(ctx, query, link.Code, link.TargetURL, link.OwnerID,
		link.Clicks, link.CreatedAt).Scan(&link.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.E(domain.KindDuplicate, "code already exists")
		}
		return err
	}
	return nil
}

func (r *PostgresRepository) FindByCode(ctx context.Context, code string) (*domain.Link, error) {
	query := `SELECT id, code, target_url, owner_id, clicks, last_clicked_at, created_at
			  FROM links WHERE code = $1`
	return scanOne(r.db.QueryRowContext(ctx, query, code))
}

func (r *PostgresRepository) IncrementClicks(ctx context.Context, code string, at time.Time) error {
	query := `UPDATE links SET clicks = clicks + 1, last_clicked_at = $1 WHERE code = $2`

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

func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Link, error) {
	query := `SELECT id, code, target_url, owner_id, clicks, last_clicked_at, created_at
			  FROM links`
	args := []interface{}{}

	if ownerID != "" {
		query += " WHERE owner_id = $1"
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

func (r *PostgresRepository) DeleteByIDAndOwner(ctx context.Context, id int64, ownerID string) (bool, error) {
	query := `DELETE FROM links WHERE id = $1`
	args := []interface{}{id}

	if ownerID != "" {
		query += " AND owner_id = $2"
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

func (r *PostgresRepository) Dump(ctx context.Context) ([]domain.Link, error) {
	query := `SELECT id, code, target_url, owner_id, clicks, last_clicked_at, created_at FROM links`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLinks(rows)
}

func (r *PostgresRepository) RecordVisit(ctx context.Context, visit *domain.Visit) error {
	query := `INSERT INTO visits (link_id, referer, user_agent, ip_hash, created_at) VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(ctx, query, visit.LinkID, visit.Referer, visit.UserAgent, visit.IPHash, visit.CreatedAt)
	return err
}

func (r *PostgresRepository) GetLinkStats(ctx context.Context, linkID int64) (*domain.LinkStats, error) {
	stats := &domain.LinkStats{
		Referrers:   make(map[string]int64),
		DailyClicks: []domain.DailyClick{},
	}

	err := r.db.QueryRowContext(ctx, `SELECT clicks FROM links WHERE id = $1`, linkID).Scan(&stats.TotalClicks)
	if err == sql.ErrNoRows {
		return nil, domain.E(domain.KindNotFound, "link not found")
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `SELECT referer, COUNT(*) AS c FROM visits WHERE link_id = $1 GROUP BY referer ORDER BY c DESC LIMIT 10`, linkID)
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
		SELECT to_char(created_at, 'YYYY-MM-DD') AS date, COUNT(*)
		FROM visits
		WHERE link_id = $1
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

func scanOne(row *sql.Row) (*domain.Link, error) {
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

// unique_violation, per the PostgreSQL error code table
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
