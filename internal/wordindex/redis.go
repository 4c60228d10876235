package wordindex

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	apperrors "github.com/Adithya-Monish-Kumar-K/kokuto/pkg/errors"
	pkgredis "github.com/Adithya-Monish-Kumar-K/kokuto/pkg/redis"
)

// Redis key layout:
//
//	aws:<tenant>              ZSET  word -> global count
//	astws:<tenant>:<section>  ZSET  word -> section count
//	awh:<tenant>:<word>       HASH  "global" and "s_<section>" -> count
//
// The sorted sets double as the membership sets; their scores move in the
// same MULTI/EXEC as the hash fields, so rankings never drift from counters.
const (
	globalField   = "global"
	sectionPrefix = "s_"
)

type RedisStore struct {
	client *pkgredis.Client
}

func NewRedisStore(client *pkgredis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func appWordSetKey(tenantID string) string {
	return "aws:" + tenantID
}

func appSectionWordSetKey(tenantID, section string) string {
	return "astws:" + tenantID + ":" + section
}

func appWordHashKey(tenantID, word string) string {
	return "awh:" + tenantID + ":" + word
}

func (s *RedisStore) Name() string { return "redis" }

func (s *RedisStore) Incr(ctx context.Context, tenantID, word string, sections []string, count int64) error {
	hashKey := appWordHashKey(tenantID, word)
	err := s.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.HIncrBy(ctx, hashKey, globalField, count)
		p.ZIncrBy(ctx, appWordSetKey(tenantID), float64(count), word)
		for _, section := range sections {
			p.HIncrBy(ctx, hashKey, sectionPrefix+section, count)
			p.ZIncrBy(ctx, appSectionWordSetKey(tenantID, section), float64(count), word)
		}
		return nil
	})
	return apperrors.Storage("redis incr", err)
}

func (s *RedisStore) Top(ctx context.Context, tenantID, section string, offset, limit int) ([]WordCount, error) {
	key := appWordSetKey(tenantID)
	if section != "" {
		key = appSectionWordSetKey(tenantID, section)
	}
	members, err := s.client.ZRevRange(ctx, key, offset, limit)
	if err != nil {
		return nil, apperrors.Storage("redis top", err)
	}
	out := make([]WordCount, 0, len(members))
	for _, m := range members {
		out = append(out, WordCount{Word: m.Member, Count: int64(m.Score)})
	}
	return out, nil
}

func (s *RedisStore) Entry(ctx context.Context, tenantID, word string) (Entry, error) {
	fields, err := s.client.HGetAll(ctx, appWordHashKey(tenantID, word))
	if err != nil {
		return Entry{}, apperrors.Storage("redis entry", err)
	}
	entry := Entry{Sections: make(map[string]int64)}
	for field, raw := range fields {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Entry{}, fmt.Errorf("parsing counter %s of %q: %w", field, word, err)
		}
		switch {
		case field == globalField:
			entry.Global = n
		case strings.HasPrefix(field, sectionPrefix):
			entry.Sections[strings.TrimPrefix(field, sectionPrefix)] = n
		}
	}
	return entry, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

var _ Store = (*RedisStore)(nil)
