package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/chess-room/internal/room"
)

const schema = `CREATE TABLE IF NOT EXISTS match_results (
    match_id       TEXT PRIMARY KEY,
    white_identity TEXT NOT NULL DEFAULT '',
    white_name     TEXT NOT NULL,
    black_identity TEXT NOT NULL DEFAULT '',
    black_name     TEXT NOT NULL,
    time_control   TEXT NOT NULL,
    result         TEXT NOT NULL,
    result_method  TEXT NOT NULL,
    moves_uci      JSONB NOT NULL,
    moves_san      JSONB NOT NULL,
    final_fen      TEXT NOT NULL,
    pgn            TEXT NOT NULL,
    started_at     TIMESTAMPTZ,
    ended_at       TIMESTAMPTZ NOT NULL,
    duration_ms    BIGINT NOT NULL DEFAULT 0
)`

// Repository persists finished matches to Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository opens and pings the results database.
func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// EnsureSchema creates the results table if missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// SaveResult upserts a finished match keyed by match id.
func (r *Repository) SaveResult(ctx context.Context, res room.Result) error {
	if r == nil || r.db == nil {
		return nil
	}
	if strings.TrimSpace(res.MatchID) == "" {
		return fmt.Errorf("result without match id")
	}
	token := resultToken(res.Winner)
	movesUCI, _ := json.Marshal(nonNil(res.MovesUCI))
	movesSAN, _ := json.Marshal(nonNil(res.MovesSAN))
	var started any
	if !res.StartedAt.IsZero() {
		started = res.StartedAt
	}

	q := `INSERT INTO match_results (
        match_id, white_identity, white_name, black_identity, black_name,
        time_control, result, result_method, moves_uci, moves_san,
        final_fen, pgn, started_at, ended_at, duration_ms
      ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
      ) ON CONFLICT (match_id) DO UPDATE SET
        white_identity=EXCLUDED.white_identity,
        white_name=EXCLUDED.white_name,
        black_identity=EXCLUDED.black_identity,
        black_name=EXCLUDED.black_name,
        time_control=EXCLUDED.time_control,
        result=EXCLUDED.result,
        result_method=EXCLUDED.result_method,
        moves_uci=EXCLUDED.moves_uci,
        moves_san=EXCLUDED.moves_san,
        final_fen=EXCLUDED.final_fen,
        pgn=EXCLUDED.pgn,
        started_at=EXCLUDED.started_at,
        ended_at=EXCLUDED.ended_at,
        duration_ms=EXCLUDED.duration_ms`

	_, err := r.db.ExecContext(ctx, q,
		res.MatchID,
		res.White.Identity, res.White.Name,
		res.Black.Identity, res.Black.Name,
		timeControl(res), token, strings.TrimSpace(res.Method),
		string(movesUCI), string(movesSAN),
		res.FEN, BuildPGN(res), started, res.EndedAt, durationMillis(res),
	)
	return err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func timeControl(res room.Result) string {
	return fmt.Sprintf("%d+%d", res.BaseMins*60, res.Inc)
}

func durationMillis(res room.Result) int64 {
	if res.StartedAt.IsZero() || res.EndedAt.IsZero() {
		return 0
	}
	d := res.EndedAt.Sub(res.StartedAt).Milliseconds()
	if d < 0 {
		return 0
	}
	return d
}

func resultToken(winner string) string {
	switch winner {
	case "w":
		return "white"
	case "b":
		return "black"
	default:
		return "draw"
	}
}

func mapResultToPGN(result string) string {
	switch strings.ToLower(strings.TrimSpace(result)) {
	case "white":
		return "1-0"
	case "black":
		return "0-1"
	case "draw":
		return "1/2-1/2"
	default:
		return "*"
	}
}

// BuildPGN renders a finished match as PGN text.
func BuildPGN(res room.Result) string {
	pgnResult := mapResultToPGN(resultToken(res.Winner))
	date := res.EndedAt
	if date.IsZero() {
		date = time.Now()
	}
	var b strings.Builder
	b.WriteString("[Event \"Chess Room\"]\n")
	b.WriteString("[Site \"chess-room\"]\n")
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(res.White.Name)))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(res.Black.Name)))
	b.WriteString(fmt.Sprintf("[TimeControl \"%s\"]\n", timeControl(res)))
	if m := strings.TrimSpace(res.Method); m != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(strings.ToLower(m))))
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", pgnResult))

	for i := 0; i < len(res.MovesSAN); i += 2 {
		b.WriteString(fmt.Sprintf("%d. %s", i/2+1, strings.TrimSpace(res.MovesSAN[i])))
		if i+1 < len(res.MovesSAN) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(res.MovesSAN[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(pgnResult)
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
