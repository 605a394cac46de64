package forecast

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mmcloughlin/geohash"

	"github.com/flybeeper/routecast/internal/models"
)

// Cache хранилище рядов прогноза по ключу локации
type Cache interface {
	Get(ctx context.Context, key string) (*models.ForecastSeries, bool)
	Set(ctx context.Context, key string, series *models.ForecastSeries)
}

// KeyFunc строит ключ кэша по провайдеру и координатам
type KeyFunc func(provider string, lat, lon float64) string

// RoundedKey ключ с координатами, округленными до сотых градуса (~1 км)
func RoundedKey(provider string, lat, lon float64) string {
	return fmt.Sprintf("%s:%.2f,%.2f", provider, lat, lon)
}

// GeohashKey ключ по ячейке geohash заданной точности
func GeohashKey(precision uint) KeyFunc {
	return func(provider string, lat, lon float64) string {
		return provider + ":" + geohash.EncodeWithPrecision(lat, lon, precision)
	}
}

type cacheEntry struct {
	key       string
	series    *models.ForecastSeries
	timestamp time.Time
}

// MemoryCache потокобезопасный LRU кэш с TTL
type MemoryCache struct {
	capacity  int
	ttl       time.Duration
	now       func() time.Time
	items     map[string]*list.Element
	evictList *list.List
	mu        sync.Mutex

	hits   uint64
	misses uint64
}

// NewMemoryCache создает кэш; now можно подменить в тестах (nil - time.Now)
func NewMemoryCache(capacity int, ttl time.Duration, now func() time.Time) *MemoryCache {
	if now == nil {
		now = time.Now
	}
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryCache{
		capacity:  capacity,
		ttl:       ttl,
		now:       now,
		items:     make(map[string]*list.Element),
		evictList: list.New(),
	}
}

// Get возвращает ряд из кэша
func (c *MemoryCache) Get(_ context.Context, key string) (*models.ForecastSeries, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*cacheEntry)
		if c.ttl > 0 && c.now().Sub(entry.timestamp) > c.ttl {
			c.removeElement(elem)
			c.misses++
			return nil, false
		}
		c.evictList.MoveToFront(elem)
		c.hits++
		return entry.series, true
	}

	c.misses++
	return nil, false
}

// Set добавляет или обновляет ряд
func (c *MemoryCache) Set(_ context.Context, key string, series *models.ForecastSeries) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.evictList.MoveToFront(elem)
		entry := elem.Value.(*cacheEntry)
		entry.series = series
		entry.timestamp = c.now()
		return
	}

	elem := c.evictList.PushFront(&cacheEntry{key: key, series: series, timestamp: c.now()})
	c.items[key] = elem

	if c.evictList.Len() > c.capacity {
		if oldest := c.evictList.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}
}

// Len количество записей
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats статистика попаданий
func (c *MemoryCache) Stats() (hits, misses uint64, hitRate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hits, misses = c.hits, c.misses
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return
}

// Clean удаляет просроченные записи
func (c *MemoryCache) Clean() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ttl <= 0 {
		return 0
	}
	removed := 0
	now := c.now()
	for elem := c.evictList.Back(); elem != nil; {
		entry := elem.Value.(*cacheEntry)
		if now.Sub(entry.timestamp) <= c.ttl {
			break
		}
		prev := elem.Prev()
		c.removeElement(elem)
		removed++
		elem = prev
	}
	return removed
}

func (c *MemoryCache) removeElement(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	delete(c.items, entry.key)
	c.evictList.Remove(elem)
}

// TieredCache проверяет уровни по порядку и прогревает верхние при попадании ниже
type TieredCache struct {
	layers []Cache
}

// NewTieredCache создает многоуровневый кэш, nil уровни пропускаются
func NewTieredCache(layers ...Cache) *TieredCache {
	t := &TieredCache{}
	for _, l := range layers {
		if l != nil {
			t.layers = append(t.layers, l)
		}
	}
	return t
}

// Get ищет ряд во всех уровнях
func (t *TieredCache) Get(ctx context.Context, key string) (*models.ForecastSeries, bool) {
	for i, layer := range t.layers {
		if s, ok := layer.Get(ctx, key); ok {
			for j := 0; j < i; j++ {
				t.layers[j].Set(ctx, key, s)
			}
			return s, true
		}
	}
	return nil, false
}

// Set записывает ряд во все уровни
func (t *TieredCache) Set(ctx context.Context, key string, series *models.ForecastSeries) {
	for _, layer := range t.layers {
		layer.Set(ctx, key, series)
	}
}
