package matchmaker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisRepo struct {
	rdb *redis.Client
}

func NewRedisRepo(rdb *redis.Client) Repo {
	return &redisRepo{rdb: rdb}
}

// key 约定：
//
//	set: mm:pool:{pool}          -> Set(teamID,...)
//	kv : mm:team:{teamID}        -> JSON ticket（含 pool，便于取消时定位池）
//	kv : mm:teamRoom:{teamID}    -> roomID
//	kv : mm:teamSecret:{teamID}  -> ticket 密钥哈希
//	ttl 辅助: 对 ticket 设置 TTL，避免长期遗留
func poolKey(pool string) string {
	return fmt.Sprintf("mm:pool:%s", pool)
}
func ticketKey(teamID string) string {
	return fmt.Sprintf("mm:team:%s", teamID)
}
func teamRoomKey(teamID string) string {
	return fmt.Sprintf("mm:teamRoom:%s", teamID)
}
func teamSecretKey(teamID string) string {
	return fmt.Sprintf("mm:teamSecret:%s", teamID)
}

func (r *redisRepo) Enqueue(ctx context.Context, t Ticket, ttlSeconds int) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	p := r.rdb.Pipeline()
	p.SAdd(ctx, poolKey(t.Pool), t.TeamID)
	p.Set(ctx, ticketKey(t.TeamID), data, time.Duration(ttlSeconds)*time.Second)
	_, err = p.Exec(ctx)
	return err
}

// PopNRandom pops n team IDs with SPOP COUNT. Teams whose ticket expired
// while waiting are dropped; if that leaves fewer than n, the survivors go
// back into the pool.
func (r *redisRepo) PopNRandom(ctx context.Context, pool string, n int) ([]Ticket, error) {
	key := poolKey(pool)
	ids, err := r.rdb.SPopN(ctx, key, int64(n)).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []Ticket{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = ticketKey(id)
	}
	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Ticket, 0, len(ids))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var t Ticket
		if err := json.Unmarshal([]byte(s), &t); err != nil {
			continue
		}
		out = append(out, t)
	}

	if len(out) < n {
		if len(out) > 0 {
			back := make([]any, len(out))
			for i, t := range out {
				back[i] = t.TeamID
			}
			if err := r.rdb.SAdd(ctx, key, back...).Err(); err != nil {
				return nil, err
			}
		}
		return []Ticket{}, nil
	}

	_ = r.rdb.Del(ctx, keys...).Err()
	return out, nil
}

func (r *redisRepo) Remove(ctx context.Context, teamID string) error {
	raw, err := r.rdb.Get(ctx, ticketKey(teamID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	var t Ticket
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		// 格式不对，仍删除 ticket
		return r.rdb.Del(ctx, ticketKey(teamID)).Err()
	}

	// Lua 脚本：删除 ticket、从集合中移除成员；若集合空则删除集合
	// KEYS[1] = ticketKey, KEYS[2] = poolKey, ARGV[1] = teamID
	script := `
        redis.call("DEL", KEYS[1])
        redis.call("SREM", KEYS[2], ARGV[1])
        if redis.call("SCARD", KEYS[2]) == 0 then
            redis.call("DEL", KEYS[2])
        end
        return 1
    `
	return r.rdb.Eval(ctx, script, []string{ticketKey(teamID), poolKey(t.Pool)}, teamID).Err()
}

func (r *redisRepo) Count(ctx context.Context, pool string) (int64, error) {
	return r.rdb.SCard(ctx, poolKey(pool)).Result()
}

func (r *redisRepo) SetTeamRoom(ctx context.Context, teamID, roomID string, ttlSeconds int) error {
	return r.rdb.Set(ctx, teamRoomKey(teamID), roomID, time.Duration(ttlSeconds)*time.Second).Err()
}

func (r *redisRepo) GetTeamRoom(ctx context.Context, teamID string) (string, error) {
	val, err := r.rdb.Get(ctx, teamRoomKey(teamID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (r *redisRepo) SetSecret(ctx context.Context, teamID, hash string, ttlSeconds int) error {
	return r.rdb.Set(ctx, teamSecretKey(teamID), hash, time.Duration(ttlSeconds)*time.Second).Err()
}

func (r *redisRepo) SecretHash(ctx context.Context, teamID string) (string, error) {
	val, err := r.rdb.Get(ctx, teamSecretKey(teamID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}
