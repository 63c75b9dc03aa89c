package db

import (
	"context"
	"database/sql"
	"time"
)

// Chatter is one row of a top-chatters leaderboard.
type Chatter struct {
	Author   string
	Messages int
}

// SessionStats aggregates a session's persisted activity.
type SessionStats struct {
	TotalMessages int
	TotalCommands int
	PeakViewers   int
	StartedAt     time.Time
	EndedAt       sql.NullTime
}

// CreateSession inserts a new analytics session row.
func CreateSession(ctx context.Context, dbx *sql.DB, id, platform, streamRef, title, game string) error {
	_, err := dbx.ExecContext(ctx, `INSERT INTO sessions (id, platform, stream_ref, title, game, started_at) VALUES ($1,$2,$3,$4,$5,NOW())`,
		id, platform, streamRef, title, game)
	return err
}

// EndSession stamps the session's end time.
func EndSession(ctx context.Context, dbx *sql.DB, id string) error {
	_, err := dbx.ExecContext(ctx, `UPDATE sessions SET ended_at=NOW() WHERE id=$1`, id)
	return err
}

// LogMessage records one processed chat message. Duplicate message ids are ignored
// so a replayed id never double-counts.
func LogMessage(ctx context.Context, dbx *sql.DB, sessionID, messageID, author, authorRef, text string, isCommand bool, commandName string) error {
	_, err := dbx.ExecContext(ctx, `INSERT INTO chat_messages (session_id, message_id, author, author_ref, message, is_command, command_name)
		VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,'')) ON CONFLICT (message_id) DO NOTHING`,
		sessionID, messageID, author, authorRef, text, isCommand, commandName)
	return err
}

// BumpCommandStat upserts per-command execution counters for a session.
func BumpCommandStat(ctx context.Context, dbx *sql.DB, sessionID, command string, success bool, elapsed time.Duration) error {
	fail := 0
	if !success {
		fail = 1
	}
	_, err := dbx.ExecContext(ctx, `INSERT INTO command_stats (session_id, command, executions, failures, total_ms)
		VALUES ($1,$2,1,$3,$4)
		ON CONFLICT (session_id, command) DO UPDATE SET
		  executions=command_stats.executions+1,
		  failures=command_stats.failures+$3,
		  total_ms=command_stats.total_ms+$4`,
		sessionID, command, fail, float64(elapsed.Milliseconds()))
	return err
}

// LogViewerSnapshot records a point-in-time viewer/like count.
func LogViewerSnapshot(ctx context.Context, dbx *sql.DB, sessionID string, viewers, likes int) error {
	_, err := dbx.ExecContext(ctx, `INSERT INTO viewer_snapshots (session_id, viewers, likes) VALUES ($1,$2,$3)`,
		sessionID, viewers, likes)
	return err
}

// TopChatters returns the most active authors for a session, busiest first.
func TopChatters(ctx context.Context, dbx *sql.DB, sessionID string, limit int) ([]Chatter, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := dbx.QueryContext(ctx, `SELECT author, COUNT(1) FROM chat_messages
		WHERE session_id=$1 GROUP BY author ORDER BY COUNT(1) DESC, author ASC LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChatters(rows)
}

// AllTimeTopChatters returns the most active authors across every session.
func AllTimeTopChatters(ctx context.Context, dbx *sql.DB, limit int) ([]Chatter, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := dbx.QueryContext(ctx, `SELECT author, COUNT(1) FROM chat_messages
		GROUP BY author ORDER BY COUNT(1) DESC, author ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChatters(rows)
}

// TopChattersByDate returns the most active authors across all sessions on a UTC date (YYYY-MM-DD).
func TopChattersByDate(ctx context.Context, dbx *sql.DB, date string, limit int) ([]Chatter, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := dbx.QueryContext(ctx, `SELECT author, COUNT(1) FROM chat_messages
		WHERE created_at >= $1::date AND created_at < ($1::date + INTERVAL '1 day')
		GROUP BY author ORDER BY COUNT(1) DESC, author ASC LIMIT $2`, date, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChatters(rows)
}

func scanChatters(rows *sql.Rows) ([]Chatter, error) {
	var out []Chatter
	for rows.Next() {
		var c Chatter
		if err := rows.Scan(&c.Author, &c.Messages); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetSessionStats aggregates persisted message/command totals and peak viewers.
func GetSessionStats(ctx context.Context, dbx *sql.DB, sessionID string) (*SessionStats, error) {
	st := &SessionStats{}
	row := dbx.QueryRowContext(ctx, `SELECT started_at, ended_at FROM sessions WHERE id=$1`, sessionID)
	if err := row.Scan(&st.StartedAt, &st.EndedAt); err != nil {
		return nil, err
	}
	_ = dbx.QueryRowContext(ctx, `SELECT COUNT(1), COUNT(1) FILTER (WHERE is_command) FROM chat_messages WHERE session_id=$1`, sessionID).
		Scan(&st.TotalMessages, &st.TotalCommands)
	_ = dbx.QueryRowContext(ctx, `SELECT COALESCE(MAX(viewers),0) FROM viewer_snapshots WHERE session_id=$1`, sessionID).
		Scan(&st.PeakViewers)
	return st, nil
}
