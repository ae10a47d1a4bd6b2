package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mmdatafocus/craftstock_backend/config"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// CapacityCache stores advisory restock-capacity answers.
// Entries are dropped whenever a committed operation changes one of their materials.
type CapacityCache interface {
	Get(ctx context.Context, skuId int) (*RestockCapacity, bool)
	Put(ctx context.Context, capacity *RestockCapacity)
	InvalidateMaterials(ctx context.Context, materialIds []int)
}

// RedisCapacityCache keeps one JSON value per SKU plus, per material, the set of SKU keys
// computed from it. Cache errors are logged and treated as misses.
type RedisCapacityCache struct {
	Client *redis.Client
	TTL    time.Duration
	Logger *logrus.Logger
}

// NewRedisCapacityCache returns nil when redis is not connected or the TTL is zero.
func NewRedisCapacityCache(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisCapacityCache {
	if client == nil || ttl <= 0 {
		return nil
	}
	return &RedisCapacityCache{Client: client, TTL: ttl, Logger: logger}
}

func capacityKey(skuId int) string {
	return fmt.Sprintf("restock_capacity:sku:%d", skuId)
}

func capacityMaterialKey(materialId int) string {
	return fmt.Sprintf("restock_capacity:material:%d", materialId)
}

func (c *RedisCapacityCache) logError(funcName string, data any, err error) {
	logger := c.Logger
	if logger == nil {
		logger = config.GetLogger()
	}
	config.LogError(logger, "RedisCapacityCache", funcName, "redis", data, err)
}

func (c *RedisCapacityCache) Get(ctx context.Context, skuId int) (*RestockCapacity, bool) {
	raw, err := c.Client.Get(ctx, capacityKey(skuId)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logError("Get", skuId, err)
		return nil, false
	}
	var capacity RestockCapacity
	if err := json.Unmarshal(raw, &capacity); err != nil {
		c.logError("Get", skuId, err)
		return nil, false
	}
	return &capacity, true
}

func (c *RedisCapacityCache) Put(ctx context.Context, capacity *RestockCapacity) {
	raw, err := json.Marshal(capacity)
	if err != nil {
		c.logError("Put", capacity.SkuId, err)
		return
	}
	_, err = c.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, capacityKey(capacity.SkuId), raw, c.TTL)
		for _, materialId := range capacity.MaterialIds() {
			key := capacityMaterialKey(materialId)
			pipe.SAdd(ctx, key, strconv.Itoa(capacity.SkuId))
			pipe.Expire(ctx, key, c.TTL)
		}
		return nil
	})
	if err != nil {
		c.logError("Put", capacity.SkuId, err)
	}
}

func (c *RedisCapacityCache) InvalidateMaterials(ctx context.Context, materialIds []int) {
	for _, materialId := range materialIds {
		setKey := capacityMaterialKey(materialId)
		members, err := c.Client.SMembers(ctx, setKey).Result()
		if err != nil {
			c.logError("InvalidateMaterials", materialId, err)
			continue
		}
		keys := make([]string, 0, len(members)+1)
		for _, member := range members {
			skuId, err := strconv.Atoi(member)
			if err != nil {
				continue
			}
			keys = append(keys, capacityKey(skuId))
		}
		keys = append(keys, setKey)
		if err := c.Client.Del(ctx, keys...).Err(); err != nil {
			c.logError("InvalidateMaterials", materialId, err)
		}
	}
}
