package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/article"
)

// Search returns every committed document matching q, decoded from the
// stored article snapshots. Meant for small result sets such as archive
// or tag pages.
func (db *DB) Search(ctx context.Context, q, sortField string, reverse bool) ([]article.Info, error) {
	cond, args, order, err := db.plan(q, sortField, reverse)
	if err != nil {
		return nil, err
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT info FROM docs WHERE `+cond+` ORDER BY `+order, args...)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return decodeRows(rows)
}

// SearchPage returns page (1-based) of at most pageLen results plus the
// total number of matches.
func (db *DB) SearchPage(ctx context.Context, q, sortField string, page, pageLen int, reverse bool) ([]article.Info, int, error) {
	if page < 1 || pageLen < 1 {
		return nil, 0, fmt.Errorf("%w: page %d of length %d", apperr.ErrBadQuery, page, pageLen)
	}
	cond, args, order, err := db.plan(q, sortField, reverse)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM docs WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count: %w", err)
	}

	pageArgs := append(append([]any{}, args...), pageLen, (page-1)*pageLen)
	rows, err := db.conn.QueryContext(ctx,
		`SELECT info FROM docs WHERE `+cond+` ORDER BY `+order+` LIMIT ? OFFSET ?`, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: search page: %w", err)
	}
	out, err := decodeRows(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Count returns the number of committed documents.
func (db *DB) Count(ctx context.Context) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM docs`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("index: count: %w", err)
	}
	return n, nil
}

func (db *DB) plan(q, sortField string, reverse bool) (string, []any, string, error) {
	if db.schema == nil {
		return "", nil, "", errors.New("index: query before InitIndex")
	}
	cond, args, err := where(*db.schema, q)
	if err != nil {
		return "", nil, "", err
	}
	order, err := orderBy(*db.schema, sortField, reverse)
	if err != nil {
		return "", nil, "", err
	}
	return cond, args, order, nil
}

func decodeRows(rows *sql.Rows) ([]article.Info, error) {
	defer rows.Close()
	var out []article.Info
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var info article.Info
		if err := json.Unmarshal([]byte(raw), &info); err != nil {
			return nil, fmt.Errorf("index: decode snapshot: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}
