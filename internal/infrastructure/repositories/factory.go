package repositories

import (
	"studymesh/internal/core/ports"
	"studymesh/internal/infrastructure/repositories/memory"
	redisrepo "studymesh/internal/infrastructure/repositories/redis"
	"studymesh/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory creates record-store repositories backed by Redis, with
// a memory fallback when Redis is not configured or unreachable.
type RepositoryFactory struct {
	useRedis    bool
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		useRedis: cfg.Backend.Store == "redis",
		logger:   logger,
	}

	if factory.useRedis {
		client, err := redisrepo.NewRedisClient(
			cfg.Backend.Redis.Address,
			cfg.Backend.Redis.Password,
			cfg.Backend.Redis.DB,
			cfg.Backend.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis repositories")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory repositories")
	}

	return factory, nil
}

// RedisClient returns the shared client, or nil when running on memory.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	return f.redisClient
}

func (f *RepositoryFactory) Close() error {
	return redisrepo.CloseRedisClient(f.redisClient)
}

func (f *RepositoryFactory) CreateRoomRepository() ports.RoomRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisRoomRepository(f.redisClient)
	}
	return memory.NewMemoryRoomRepository()
}

func (f *RepositoryFactory) CreateMembershipRepository() ports.MembershipRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisMembershipRepository(f.redisClient)
	}
	return memory.NewMemoryMembershipRepository()
}

func (f *RepositoryFactory) CreateProfileRepository() ports.ProfileRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisProfileRepository(f.redisClient)
	}
	return memory.NewMemoryProfileRepository()
}

func (f *RepositoryFactory) CreateFollowerRepository() ports.FollowerRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisFollowerRepository(f.redisClient)
	}
	return memory.NewMemoryFollowerRepository()
}

func (f *RepositoryFactory) CreatePostRepository() ports.PostRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisPostRepository(f.redisClient)
	}
	return memory.NewMemoryPostRepository()
}

func (f *RepositoryFactory) CreateIdentityMapRepository() ports.IdentityMapRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisIdentityMapRepository(f.redisClient)
	}
	return memory.NewMemoryIdentityMapRepository()
}
