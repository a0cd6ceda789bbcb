// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package repository implements the uniform Repository[ID, Data] façade of
// spec §2 and §4.1: list/find_by_id/set/checked_set/delete, backed by a
// SQLite table per entity kind (grounded on the teacher's own
// modernc.org/sqlite usage in internal/analytics and internal/state,
// generalized to a type-parameterized store rather than one schema per
// concern).
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"grimm.is/flywall/internal/domain"
	"grimm.is/flywall/internal/errors"
)

// Entity is the constraint every stored row type must satisfy.
type Entity[ID comparable] interface {
	GetID() ID
	GetUpdateAt() float64
	SetUpdateAt(float64)
}

// Clock abstracts "now" for optimistic-concurrency stamping, so tests can
// control ordering deterministically.
type Clock func() float64

// Repository is a generic, SQLite-backed entity store implementing spec
// §4.1. One Repository[ID, D] is constructed per entity kind, sharing the
// *sql.DB connection pool but owning its own table.
type Repository[ID comparable, D Entity[ID]] struct {
	db    *sql.DB
	table string
	clock Clock

	idToString func(ID) string
	newZero    func() D
}

// Options configures a Repository.
type Options[ID comparable, D Entity[ID]] struct {
	DB         *sql.DB
	Table      string
	Clock      Clock
	IDToString func(ID) string
	// NewZero returns a fresh zero value of D's underlying struct (D is
	// usually *T, so NewZero returns new(T) as D).
	NewZero func() D
}

// New constructs a Repository and ensures its backing table exists.
func New[ID comparable, D Entity[ID]](ctx context.Context, opts Options[ID, D]) (*Repository[ID, D], error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("repository %q: DB is required", opts.Table)
	}
	r := &Repository[ID, D]{
		db:         opts.DB,
		table:      opts.Table,
		clock:      opts.Clock,
		idToString: opts.IDToString,
		newZero:    opts.NewZero,
	}
	if r.clock == nil {
		r.clock = defaultClock
	}

	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		update_at REAL NOT NULL,
		data BLOB NOT NULL
	)`, r.table)
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return nil, errors.Wrapf(err, errors.KindInternal, "create table %s", r.table)
	}
	return r, nil
}

// List returns every row, in no particular order.
func (r *Repository[ID, D]) List(ctx context.Context) ([]D, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf("SELECT data FROM %s", r.table))
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "list")
	}
	defer rows.Close()

	var out []D
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, errors.Wrap(err, errors.KindInternal, "scan")
		}
		d := r.newZero()
		if err := json.Unmarshal(blob, d); err != nil {
			return nil, errors.Wrap(err, errors.KindInternal, "unmarshal")
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// FindByID returns the row with the given id, or a NotFound error.
func (r *Repository[ID, D]) FindByID(ctx context.Context, id ID) (D, error) {
	var zero D
	key := r.idToString(id)
	row := r.db.QueryRowContext(ctx, fmt.Sprintf("SELECT data FROM %s WHERE id = ?", r.table), key)
	var blob []byte
	if err := row.Scan(&blob); err != nil {
		if err == sql.ErrNoRows {
			return zero, errors.Errorf(errors.KindNotFound, "%s %s not found", r.table, key)
		}
		return zero, errors.Wrap(err, errors.KindInternal, "find_by_id")
	}
	d := r.newZero()
	if err := json.Unmarshal(blob, d); err != nil {
		return zero, errors.Wrap(err, errors.KindInternal, "unmarshal")
	}
	return d, nil
}

// FindByIDs returns every row whose id is in ids, skipping ids not found.
func (r *Repository[ID, D]) FindByIDs(ctx context.Context, ids []ID) ([]D, error) {
	out := make([]D, 0, len(ids))
	for _, id := range ids {
		d, err := r.FindByID(ctx, id)
		if err != nil {
			if errors.GetKind(err) == errors.KindNotFound {
				continue
			}
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Set is an unconditional upsert; update_at is always stamped to "now".
func (r *Repository[ID, D]) Set(ctx context.Context, d D) error {
	d.SetUpdateAt(r.clock())
	return r.write(ctx, d)
}

// CheckedSet performs optimistic-concurrency upsert (spec I4, §4.1): if a
// row with this id already exists and d's caller-supplied update_at is
// strictly less than the stored value, the write is rejected with a
// Conflict error. On success update_at is stamped to "now".
func (r *Repository[ID, D]) CheckedSet(ctx context.Context, d D) error {
	key := r.idToString(d.GetID())
	var storedUpdateAt float64
	row := r.db.QueryRowContext(ctx, fmt.Sprintf("SELECT update_at FROM %s WHERE id = ?", r.table), key)
	switch err := row.Scan(&storedUpdateAt); err {
	case nil:
		if d.GetUpdateAt() < storedUpdateAt {
			return errors.Attr(
				errors.Errorf(errors.KindConflict, "%s %s: stale update_at", r.table, key),
				"error_id", "config.conflict",
			)
		}
	case sql.ErrNoRows:
		// New row, nothing to compare against.
	default:
		return errors.Wrap(err, errors.KindInternal, "checked_set: read current")
	}

	d.SetUpdateAt(r.clock())
	return r.write(ctx, d)
}

func (r *Repository[ID, D]) write(ctx context.Context, d D) error {
	key := r.idToString(d.GetID())
	blob, err := json.Marshal(d)
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "marshal")
	}
	_, err = r.db.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (id, update_at, data) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET update_at = excluded.update_at, data = excluded.data`,
		r.table), key, d.GetUpdateAt(), blob)
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "write")
	}
	return nil
}

// Delete removes the row with the given id. Deleting a missing row is not
// an error (idempotent, per spec §4.7 Set/SetList/Delete contract).
func (r *Repository[ID, D]) Delete(ctx context.Context, id ID) error {
	key := r.idToString(id)
	_, err := r.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", r.table), key)
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "delete")
	}
	return nil
}

func defaultClock() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// StringIDToString and UUIDIDToString are convenience IDToString functions
// for the two ID shapes used throughout domain.
func StringIDToString(s string) string { return s }

func UUIDIDToString(id domain.ConfigID) string { return id.String() }
