package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/park285/chess-room/internal/room"
	"github.com/park285/chess-room/pkg/roomproto"
	"github.com/redis/go-redis/v9"
)

const (
	keyState   = "chessroom:state"
	keyRecent  = "chessroom:results"
	channel    = "chessroom:events"
	stateTTL   = 24 * time.Hour
	resultTTL  = 7 * 24 * time.Hour
	recentKeep = 50
)

// Event is the JSON published on the events channel.
type Event struct {
	Kind    string          `json:"kind"`
	MatchID string          `json:"matchId,omitempty"`
	Data    json.RawMessage `json:"data"`
}

// Store mirrors room state into Redis for outside readers. Nothing is read back
// into the room.
type Store struct{ rdb *redis.Client }

func NewStore(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

// Open connects using a redis:// or rediss:// URL and pings the server.
func Open(ctx context.Context, rawURL string) (*Store, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for state mirror")
	}
	opts, err := parseRedisURL(rawURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{rdb: rdb}, nil
}

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func resultKey(id string) string { return "chessroom:result:" + strings.TrimSpace(id) }

// PublishState stores the latest snapshot and announces it.
func (s *Store) PublishState(ctx context.Context, matchID string, st roomproto.State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	ev, err := json.Marshal(Event{Kind: "state", MatchID: matchID, Data: raw})
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, keyState, raw, stateTTL)
	pipe.Publish(ctx, channel, ev)
	_, err = pipe.Exec(ctx)
	return err
}

// SaveResult stores a finished match, keeps a bounded recent list and announces it.
func (s *Store) SaveResult(ctx context.Context, res room.Result) error {
	if strings.TrimSpace(res.MatchID) == "" {
		return fmt.Errorf("result without match id")
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return err
	}
	ev, err := json.Marshal(Event{Kind: "result", MatchID: res.MatchID, Data: raw})
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, resultKey(res.MatchID), raw, resultTTL)
	pipe.LRem(ctx, keyRecent, 0, res.MatchID)
	pipe.LPush(ctx, keyRecent, res.MatchID)
	pipe.LTrim(ctx, keyRecent, 0, recentKeep-1)
	pipe.Publish(ctx, channel, ev)
	_, err = pipe.Exec(ctx)
	return err
}

// RecentResults returns up to n finished matches, newest first. Expired entries are skipped.
func (s *Store) RecentResults(ctx context.Context, n int) ([]room.Result, error) {
	if n <= 0 || n > recentKeep {
		n = recentKeep
	}
	ids, err := s.rdb.LRange(ctx, keyRecent, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]room.Result, 0, len(ids))
	for _, id := range ids {
		raw, err := s.rdb.Get(ctx, resultKey(id)).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		var r room.Result
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redis db %q", p)
		}
		db = n
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Username: u.User.Username(), Password: pass, DB: db}, nil
}
