// Package store persists player profiles and match history in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"tdm-server/internal/match"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrUsernameTaken = errors.New("username already taken")
	ErrInvalidSort   = errors.New("invalid sort field")
)

const (
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 100
	DefaultHistoryLimit     = 20
)

// leaderboardColumns maps public sort keys to columns.
var leaderboardColumns = map[string]string{
	"kdRatio":      "kd_ratio",
	"totalKills":   "total_kills",
	"totalMatches": "total_matches",
	"wins":         "wins",
	"accuracy":     "accuracy",
}

// ProfileStats are the lifetime totals of a user.
type ProfileStats struct {
	TotalMatches int     `json:"totalMatches"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	TotalKills   int     `json:"totalKills"`
	TotalDeaths  int     `json:"totalDeaths"`
	KDRatio      float64 `json:"kdRatio"`
	Accuracy     float64 `json:"accuracy"`
}

// User is a registered player profile.
type User struct {
	ID        string       `json:"id"`
	Username  string       `json:"username"`
	PassHash  string       `json:"-"`
	CreatedAt time.Time    `json:"createdAt"`
	LastLogin time.Time    `json:"lastLogin"`
	Stats     ProfileStats `json:"stats"`
}

// MatchSummary is one line of a user's match history.
type MatchSummary struct {
	MatchID     string     `json:"matchId"`
	Mode        string     `json:"mode"`
	WinningTeam match.Team `json:"winningTeam"`
	Cause       string     `json:"cause"`
	Team        match.Team `json:"team"`
	Won         bool       `json:"won"`
	Kills       int        `json:"kills"`
	Deaths      int        `json:"deaths"`
	Accuracy    float64    `json:"accuracy"`
	RedScore    int        `json:"redScore"`
	BlueScore   int        `json:"blueScore"`
	Duration    int        `json:"duration"`
	EndedAt     time.Time  `json:"endedAt"`
}

// Store wraps the SQLite connection.
type Store struct {
	db *sql.DB
}

func toMillis(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return time.UnixMilli(value).UTC()
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		username_key TEXT NOT NULL UNIQUE,
		pass_hash TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		last_login INTEGER NOT NULL DEFAULT 0,
		total_matches INTEGER NOT NULL DEFAULT 0,
		wins INTEGER NOT NULL DEFAULT 0,
		losses INTEGER NOT NULL DEFAULT 0,
		total_kills INTEGER NOT NULL DEFAULT 0,
		total_deaths INTEGER NOT NULL DEFAULT 0,
		kd_ratio REAL NOT NULL DEFAULT 0,
		accuracy REAL NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS matches (
		id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		winning_team TEXT NOT NULL,
		cause TEXT NOT NULL,
		duration INTEGER NOT NULL DEFAULT 0,
		red_score INTEGER NOT NULL DEFAULT 0,
		blue_score INTEGER NOT NULL DEFAULT 0,
		mvp_id TEXT NOT NULL DEFAULT '',
		ended_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS match_players (
		match_id TEXT NOT NULL REFERENCES matches(id) ON DELETE CASCADE,
		player_id TEXT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		username TEXT NOT NULL,
		team TEXT NOT NULL,
		kills INTEGER NOT NULL DEFAULT 0,
		deaths INTEGER NOT NULL DEFAULT 0,
		assists INTEGER NOT NULL DEFAULT 0,
		accuracy REAL NOT NULL DEFAULT 0,
		PRIMARY KEY (match_id, player_id)
	);

	CREATE INDEX IF NOT EXISTS idx_match_players_user ON match_players(user_id);
	CREATE INDEX IF NOT EXISTS idx_matches_ended ON matches(ended_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateUser registers a new profile. Usernames are unique ignoring case.
func (s *Store) CreateUser(ctx context.Context, username, passHash string) (User, error) {
	u := User{
		ID:        uuid.NewString(),
		Username:  username,
		PassHash:  passHash,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, username_key, pass_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Username, strings.ToLower(u.Username), u.PassHash, toMillis(u.CreatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return User{}, ErrUsernameTaken
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

const userColumns = `id, username, pass_hash, created_at, last_login,
	total_matches, wins, losses, total_kills, total_deaths, kd_ratio, accuracy`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var u User
	var created, lastLogin int64
	err := row.Scan(&u.ID, &u.Username, &u.PassHash, &created, &lastLogin,
		&u.Stats.TotalMatches, &u.Stats.Wins, &u.Stats.Losses,
		&u.Stats.TotalKills, &u.Stats.TotalDeaths, &u.Stats.KDRatio, &u.Stats.Accuracy)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	u.CreatedAt = fromMillis(created)
	u.LastLogin = fromMillis(lastLogin)
	return u, nil
}

// GetUserByID returns a profile by id.
func (s *Store) GetUserByID(ctx context.Context, id string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

// GetUserByUsername returns a profile by username, ignoring case.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username_key = ?`, strings.ToLower(username)))
}

// TouchLogin records a successful login.
func (s *Store) TouchLogin(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET last_login = ? WHERE id = ?`, toMillis(at), id)
	return err
}

// RecordMatch stores a finished match and folds every registered
// combatant's line into their profile, in one transaction.
func (s *Store) RecordMatch(ctx context.Context, result match.MatchResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := saveMatchResult(ctx, tx, result); err != nil {
		return err
	}
	for _, ps := range result.PlayerStats {
		if ps.UserID == "" || (ps.Team != match.TeamRed && ps.Team != match.TeamBlue) {
			continue
		}
		if err := updateStats(ctx, tx, ps, ps.Team == result.WinningTeam); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func saveMatchResult(ctx context.Context, tx *sql.Tx, r match.MatchResult) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO matches (id, mode, winning_team, cause, duration, red_score, blue_score, mvp_id, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.MatchID, r.Mode, string(r.WinningTeam), r.Cause, r.Duration, r.RedScore, r.BlueScore, r.MVPID, toMillis(r.EndedAt),
	)
	if err != nil {
		return fmt.Errorf("insert match %s: %w", r.MatchID, err)
	}
	for _, ps := range r.PlayerStats {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO match_players (match_id, player_id, user_id, username, team, kills, deaths, assists, accuracy)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.MatchID, ps.PlayerID, ps.UserID, ps.Username, string(ps.Team), ps.Kills, ps.Deaths, ps.Assists, ps.Accuracy,
		)
		if err != nil {
			return fmt.Errorf("insert match player %s: %w", ps.PlayerID, err)
		}
	}
	return nil
}

// updateStats adds one match to a profile. Accuracy is the mean over
// matches played; K/D falls back to kills when there are no deaths.
func updateStats(ctx context.Context, tx *sql.Tx, ps match.PlayerResult, won bool) error {
	u, err := scanUser(tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, ps.UserID))
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load user %s: %w", ps.UserID, err)
	}

	st := u.Stats
	prevMatches := float64(st.TotalMatches)
	st.TotalMatches++
	if won {
		st.Wins++
	} else {
		st.Losses++
	}
	st.TotalKills += ps.Kills
	st.TotalDeaths += ps.Deaths
	st.KDRatio = kdRatio(st.TotalKills, st.TotalDeaths)
	st.Accuracy = (st.Accuracy*prevMatches + ps.Accuracy) / float64(st.TotalMatches)

	_, err = tx.ExecContext(ctx,
		`UPDATE users SET total_matches = ?, wins = ?, losses = ?, total_kills = ?, total_deaths = ?,
		 kd_ratio = ?, accuracy = ? WHERE id = ?`,
		st.TotalMatches, st.Wins, st.Losses, st.TotalKills, st.TotalDeaths, st.KDRatio, st.Accuracy, u.ID,
	)
	if err != nil {
		return fmt.Errorf("update stats %s: %w", u.ID, err)
	}
	return nil
}

func kdRatio(kills, deaths int) float64 {
	if deaths == 0 {
		return float64(kills)
	}
	return float64(kills) / float64(deaths)
}

// MatchHistory returns the latest matches a user played, newest first.
func (s *Store) MatchHistory(ctx context.Context, userID string, limit int) ([]MatchSummary, error) {
	if limit <= 0 || limit > MaxLeaderboardLimit {
		limit = DefaultHistoryLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.id, m.mode, m.winning_team, m.cause, mp.team, mp.kills, mp.deaths, mp.accuracy,
		        m.red_score, m.blue_score, m.duration, m.ended_at
		 FROM match_players mp JOIN matches m ON m.id = mp.match_id
		 WHERE mp.user_id = ?
		 ORDER BY m.ended_at DESC
		 LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	out := []MatchSummary{}
	for rows.Next() {
		var ms MatchSummary
		var winner, team string
		var ended int64
		if err := rows.Scan(&ms.MatchID, &ms.Mode, &winner, &ms.Cause, &team, &ms.Kills, &ms.Deaths,
			&ms.Accuracy, &ms.RedScore, &ms.BlueScore, &ms.Duration, &ended); err != nil {
			return nil, err
		}
		ms.WinningTeam = match.Team(winner)
		ms.Team = match.Team(team)
		ms.Won = ms.Team == ms.WinningTeam
		ms.EndedAt = fromMillis(ended)
		out = append(out, ms)
	}
	return out, rows.Err()
}

// TopPlayers ranks profiles that played at least one match.
func (s *Store) TopPlayers(ctx context.Context, sortBy string, limit int) ([]User, error) {
	if sortBy == "" {
		sortBy = "kdRatio"
	}
	column, ok := leaderboardColumns[sortBy]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSort, sortBy)
	}
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	if limit > MaxLeaderboardLimit {
		limit = MaxLeaderboardLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE total_matches > 0
		 ORDER BY `+column+` DESC, username_key ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	out := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
