package store

import (
	"context"

	errs "vkharvest/pkg/errors"
	"vkharvest/pkg/features"
)

// Score is a probability produced by the external scoring collaborator
type Score struct {
	ID      int64   `json:"user_id"`
	BotProb float64 `json:"bot_prob"`
}

// Stats counts rows per table plus outstanding group and wall work
type Stats struct {
	Users         int `json:"users"`
	Deactivated   int `json:"deactivated"`
	Closed        int `json:"closed"`
	DetailOpen    int `json:"profile_detail_open"`
	DetailClosed  int `json:"profile_detail_closed"`
	GroupSummary  int `json:"group_summary"`
	WallSummary   int `json:"wall_summary"`
	PendingGroups int `json:"pending_groups"`
	PendingWalls  int `json:"pending_walls"`
	Results       int `json:"results"`
}

// DetailBatches reads detail rows of variant v in ascending id order and
// hands them to fn size rows at a time
func (s *Store) DetailBatches(ctx context.Context, v features.Variant, size int, fn func([]features.Row) error) error {
	if size <= 0 {
		size = 500
	}
	table := DetailTable(v)
	query := selectRowsSQL(table)
	width := len(columnsOf(table))

	var after int64 = -1 << 63
	for {
		batch, err := s.readRows(ctx, query, width, after, size)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		if len(batch) < size {
			return nil
		}
		after = batch[len(batch)-1].ID
	}
}

func (s *Store) readRows(ctx context.Context, query string, width int, after int64, limit int) ([]features.Row, error) {
	rows, err := s.db.QueryContext(ctx, query, after, limit)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeStorage, "read detail rows", err)
	}
	defer rows.Close()

	var out []features.Row
	for rows.Next() {
		row := features.Row{Values: make([]float64, width)}
		dest := make([]any, 0, width+1)
		dest = append(dest, &row.ID)
		for i := range row.Values {
			dest = append(dest, &row.Values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, errs.Wrap(errs.ErrorTypeStorage, "scan detail row", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeStorage, "iterate detail rows", err)
	}
	return out, nil
}

// SaveScores upserts scores in one transaction
func (s *Store) SaveScores(ctx context.Context, scores []Score) error {
	return s.Update(ctx, func(tx *Tx) error {
		for _, sc := range scores {
			if err := tx.exec("save score",
				`INSERT INTO results (user_id, bot_prob) VALUES (?, ?)
				ON CONFLICT(user_id) DO UPDATE SET bot_prob = excluded.bot_prob`,
				sc.ID, sc.BotProb); err != nil {
				return err
			}
		}
		return nil
	})
}

// Scores returns all stored scores ordered by id
func (s *Store) Scores(ctx context.Context) ([]Score, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, bot_prob FROM results ORDER BY user_id`)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeStorage, "read scores", err)
	}
	defer rows.Close()

	var out []Score
	for rows.Next() {
		var sc Score
		if err := rows.Scan(&sc.ID, &sc.BotProb); err != nil {
			return nil, errs.Wrap(errs.ErrorTypeStorage, "scan score", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// Stats counts what the store holds
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	counts := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(*) FROM users`, &st.Users},
		{`SELECT COUNT(*) FROM users WHERE deactivated = 1`, &st.Deactivated},
		{`SELECT COUNT(*) FROM users WHERE deactivated = 0 AND is_close = 1`, &st.Closed},
		{`SELECT COUNT(*) FROM profile_detail_open`, &st.DetailOpen},
		{`SELECT COUNT(*) FROM profile_detail_closed`, &st.DetailClosed},
		{`SELECT COUNT(*) FROM group_summary`, &st.GroupSummary},
		{`SELECT COUNT(*) FROM wall_summary`, &st.WallSummary},
		{`SELECT COUNT(*) FROM (` + pendingGroupsSQL + `)`, &st.PendingGroups},
		{`SELECT COUNT(*) FROM (` + pendingWallsSQL + `)`, &st.PendingWalls},
		{`SELECT COUNT(*) FROM results`, &st.Results},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return Stats{}, errs.Wrap(errs.ErrorTypeStorage, "count rows", err)
		}
	}
	return st, nil
}
