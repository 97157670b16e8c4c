package store

import (
	"context"
	"database/sql"
	"fmt"

	errs "vkharvest/pkg/errors"
	"vkharvest/pkg/features"
)

// Tx groups the writes of one round. Inserts ignore rows that already
// exist, so every row is written at most once.
type Tx struct {
	tx  *sql.Tx
	ctx context.Context
}

func (t *Tx) exec(what, query string, args ...any) error {
	if _, err := t.tx.ExecContext(t.ctx, query, args...); err != nil {
		return errs.Wrap(errs.ErrorTypeStorage, what, err)
	}
	return nil
}

// InsertProfile writes the progress row of a freshly fetched profile
func (t *Tx) InsertProfile(id int64, deactivated, closed bool) error {
	return t.exec(fmt.Sprintf("insert profile %d", id),
		`INSERT OR IGNORE INTO users (user_id, deactivated, is_close) VALUES (?, ?, ?)`,
		id, deactivated, closed)
}

// InsertDetail writes a profile detail row of variant v
func (t *Tx) InsertDetail(v features.Variant, row features.Row) error {
	return t.insertRow(DetailTable(v), row)
}

// InsertGroupSummary writes the group summary and marks groups checked
func (t *Tx) InsertGroupSummary(row features.Row) error {
	if err := t.insertRow(TableGroupSummary, row); err != nil {
		return err
	}
	return t.exec(fmt.Sprintf("mark groups checked %d", row.ID),
		`UPDATE users SET group_checked = 1 WHERE user_id = ?`, row.ID)
}

// InsertWallSummary writes the wall summary and marks the wall checked
func (t *Tx) InsertWallSummary(row features.Row) error {
	if err := t.insertRow(TableWallSummary, row); err != nil {
		return err
	}
	return t.exec(fmt.Sprintf("mark wall checked %d", row.ID),
		`UPDATE users SET wall_checked = 1 WHERE user_id = ?`, row.ID)
}

func (t *Tx) insertRow(table string, row features.Row) error {
	cols := columnsOf(table)
	if len(row.Values) != len(cols) {
		return errs.Newf(errs.ErrorTypeStorage, "%s row for %d has %d values, want %d", table, row.ID, len(row.Values), len(cols))
	}
	args := make([]any, 0, len(cols)+1)
	args = append(args, row.ID)
	for _, v := range row.Values {
		args = append(args, v)
	}
	return t.exec(fmt.Sprintf("insert %s %d", table, row.ID), insertRowSQL(table), args...)
}

// Purge deletes the identifier from every table so the next pass fetches it
// from scratch
func (t *Tx) Purge(id int64) error {
	for _, table := range []string{TableUsers, TableDetailOpen, TableDetailClosed, TableGroupSummary, TableWallSummary, TableResults} {
		if err := t.exec(fmt.Sprintf("purge %d from %s", id, table), "DELETE FROM "+table+" WHERE user_id = ?", id); err != nil {
			return err
		}
	}
	return nil
}
