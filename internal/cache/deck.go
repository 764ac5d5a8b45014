package cache

import "time"

// DeckCache 记录已确认存在的Anki牌组，避免每次导入都查询牌组列表
type DeckCache struct {
	cache Cache
	scope string
	ttl   time.Duration
}

// NewDeckCache 创建牌组缓存
// scope 通常是AnkiConnect地址，不同的Anki实例互不影响
func NewDeckCache(c Cache, scope string, ttl time.Duration) *DeckCache {
	return &DeckCache{cache: c, scope: scope, ttl: ttl}
}

// DeckKey 返回牌组在缓存中的键
func DeckKey(scope, deck string) string {
	return GenerateCacheKey("deck", scope, deck)
}

// Known 判断牌组是否已确认存在
// 缓存出错时按未知处理
func (d *DeckCache) Known(deck string) bool {
	if d == nil || d.cache == nil {
		return false
	}
	_, found, err := d.cache.Get(DeckKey(d.scope, deck))
	return err == nil && found
}

// Remember 记录牌组已存在
func (d *DeckCache) Remember(deck string) error {
	if d == nil || d.cache == nil {
		return nil
	}
	return d.cache.Set(DeckKey(d.scope, deck), "1", d.ttl)
}

// Forget 移除牌组记录
func (d *DeckCache) Forget(deck string) error {
	if d == nil || d.cache == nil {
		return nil
	}
	return d.cache.Delete(DeckKey(d.scope, deck))
}
