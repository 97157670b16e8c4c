package store

import (
	"fmt"
	"strings"

	"vkharvest/pkg/features"
)

// Table names
const (
	TableUsers        = "users"
	TableDetailOpen   = "profile_detail_open"
	TableDetailClosed = "profile_detail_closed"
	TableGroupSummary = "group_summary"
	TableWallSummary  = "wall_summary"
	TableResults      = "results"
)

// DetailTable returns the table holding rows of variant v
func DetailTable(v features.Variant) string {
	if v == features.Closed {
		return TableDetailClosed
	}
	return TableDetailOpen
}

// featureTables are the id-keyed numeric tables and their value columns
var featureTables = []struct {
	name    string
	columns []string
}{
	{TableDetailOpen, features.ProfileColumns(features.Open)},
	{TableDetailClosed, features.ProfileColumns(features.Closed)},
	{TableGroupSummary, features.GroupColumns},
	{TableWallSummary, features.WallColumns},
}

func columnsOf(table string) []string {
	for _, t := range featureTables {
		if t.name == table {
			return t.columns
		}
	}
	return nil
}

func schema() []string {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id INTEGER PRIMARY KEY,
			deactivated INTEGER NOT NULL,
			is_close INTEGER NOT NULL,
			group_checked INTEGER NOT NULL DEFAULT 0,
			wall_checked INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_pending
			ON users(deactivated, is_close, group_checked, wall_checked)`,
		`CREATE TABLE IF NOT EXISTS results (
			user_id INTEGER PRIMARY KEY,
			bot_prob REAL NOT NULL
		)`,
	}
	for _, t := range featureTables {
		cols := make([]string, 0, len(t.columns)+1)
		cols = append(cols, "user_id INTEGER PRIMARY KEY")
		for _, c := range t.columns {
			cols = append(cols, c+" REAL NOT NULL")
		}
		stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", t.name, strings.Join(cols, ",\n\t")))
	}
	return stmts
}

func insertRowSQL(table string) string {
	cols := columnsOf(table)
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)+1), ", ")
	return fmt.Sprintf("INSERT OR IGNORE INTO %s (user_id, %s) VALUES (%s)", table, strings.Join(cols, ", "), marks)
}

func selectRowsSQL(table string) string {
	return fmt.Sprintf("SELECT user_id, %s FROM %s WHERE user_id > ? ORDER BY user_id LIMIT ?", strings.Join(columnsOf(table), ", "), table)
}
