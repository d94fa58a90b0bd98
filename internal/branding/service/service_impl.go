package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/recouply/internal/branding/domain"
	"github.com/smallbiznis/recouply/internal/cache"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	cacheTTL       = 10 * time.Minute
	cacheKeyPrefix = "recouply:branding"
)

var ErrAccountNotFound = errors.New("account_not_found")

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  domain.Repository
	Redis *redis.Client `optional:"true"`
}

// Service reads branding through Redis when configured and an in-process
// TTL cache otherwise. Cache failures fall through to the database.
type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	redis *redis.Client
	local cache.Cache[snowflake.ID, domain.Branding]
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("branding.service"),
		repo:  p.Repo,
		redis: p.Redis,
		local: cache.NewTTLCache[snowflake.ID, domain.Branding](),
	}
}

func (s *Service) Get(ctx context.Context, accountID snowflake.ID) (domain.Branding, error) {
	if item, ok := s.cached(ctx, accountID); ok {
		return item, nil
	}

	item, err := s.repo.Find(ctx, s.db, accountID)
	if err != nil {
		return domain.Branding{}, err
	}
	if item == nil {
		return domain.Branding{}, ErrAccountNotFound
	}
	s.store(ctx, *item)
	return *item, nil
}

func (s *Service) cached(ctx context.Context, accountID snowflake.ID) (domain.Branding, bool) {
	if s.redis == nil {
		return s.local.Get(accountID)
	}
	raw, err := s.redis.Get(ctx, redisKey(accountID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn("branding cache read failed", zap.String("account_id", accountID.String()), zap.Error(err))
		}
		return domain.Branding{}, false
	}
	var item domain.Branding
	if err := json.Unmarshal(raw, &item); err != nil {
		return domain.Branding{}, false
	}
	return item, true
}

func (s *Service) store(ctx context.Context, item domain.Branding) {
	if s.redis == nil {
		s.local.Set(item.AccountID, item, cacheTTL)
		return
	}
	raw, err := json.Marshal(item)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, redisKey(item.AccountID), raw, cacheTTL).Err(); err != nil {
		s.log.Warn("branding cache write failed", zap.String("account_id", item.AccountID.String()), zap.Error(err))
	}
}

func redisKey(accountID snowflake.ID) string {
	return cache.Key(cacheKeyPrefix, accountID.String())
}
