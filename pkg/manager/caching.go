package manager

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/guided-traffic/envelope-keyring/pkg/materials"
	"github.com/guided-traffic/envelope-keyring/pkg/suite"
)

// CachingConfig bounds how long and how often cached materials may be
// reused.
type CachingConfig struct {
	MaxEntries int
	MaxAge     time.Duration
	MaxUses    int
}

// Caching wraps a MaterialsManager with an LRU cache so repeated operations
// can reuse materials instead of re-running the keyring (and re-generating a
// data key) for every message. Entries expire by age and by use count.
type Caching struct {
	cache    *lru.Cache
	mutex    sync.Mutex
	maxAge   time.Duration
	maxUses  int
	delegate MaterialsManager
}

type cacheEntry struct {
	encMat    *materials.EncryptionMaterials
	decMat    *materials.DecryptionMaterials
	createdAt time.Time
	uses      int
}

// NewCaching creates a caching decorator around delegate.
func NewCaching(delegate MaterialsManager, config CachingConfig) (*Caching, error) {
	if delegate == nil {
		return nil, fmt.Errorf("caching materials manager requires a delegate")
	}
	if config.MaxEntries <= 0 || config.MaxAge <= 0 || config.MaxUses <= 0 {
		return nil, fmt.Errorf("caching config requires positive max entries, age and uses")
	}

	cache, err := lru.New(config.MaxEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	return &Caching{
		cache:    cache,
		maxAge:   config.MaxAge,
		maxUses:  config.MaxUses,
		delegate: delegate,
	}, nil
}

// GetEncryptionMaterials returns cached materials for the suite while they
// are within the age and use bounds, falling back to the delegate otherwise.
func (c *Caching) GetEncryptionMaterials(ctx context.Context, alg suite.AlgorithmID) (*materials.EncryptionMaterials, error) {
	key := encryptCacheKey(alg)

	c.mutex.Lock()
	if cached, ok := c.cache.Get(key); ok {
		entry := cached.(*cacheEntry)
		if c.entryValid(entry) {
			entry.uses++
			c.mutex.Unlock()
			return entry.encMat, nil
		}
		c.cache.Remove(key)
	}
	c.mutex.Unlock()

	mat, err := c.delegate.GetEncryptionMaterials(ctx, alg)
	if err != nil {
		return nil, err
	}

	c.mutex.Lock()
	c.cache.Add(key, &cacheEntry{encMat: mat, createdAt: time.Now(), uses: 1})
	c.mutex.Unlock()

	return mat, nil
}

// DecryptMaterials returns cached materials for an identical candidate set,
// falling back to the delegate otherwise.
func (c *Caching) DecryptMaterials(ctx context.Context, req *materials.DecryptionRequest) (*materials.DecryptionMaterials, error) {
	key := decryptCacheKey(req)

	c.mutex.Lock()
	if cached, ok := c.cache.Get(key); ok {
		entry := cached.(*cacheEntry)
		if c.entryValid(entry) {
			entry.uses++
			c.mutex.Unlock()
			return entry.decMat, nil
		}
		c.cache.Remove(key)
	}
	c.mutex.Unlock()

	mat, err := c.delegate.DecryptMaterials(ctx, req)
	if err != nil {
		return nil, err
	}

	c.mutex.Lock()
	c.cache.Add(key, &cacheEntry{decMat: mat, createdAt: time.Now(), uses: 1})
	c.mutex.Unlock()

	return mat, nil
}

func (c *Caching) entryValid(entry *cacheEntry) bool {
	if time.Since(entry.createdAt) > c.maxAge {
		return false
	}
	if entry.uses >= c.maxUses {
		return false
	}
	return true
}

func encryptCacheKey(alg suite.AlgorithmID) string {
	return fmt.Sprintf("enc:%04x", uint16(alg))
}

// decryptCacheKey hashes the algorithm and the full candidate list so two
// requests share an entry only when their wrapped keys are identical.
func decryptCacheKey(req *materials.DecryptionRequest) string {
	h := sha256.New()
	var alg [2]byte
	binary.BigEndian.PutUint16(alg[:], uint16(req.Algorithm))
	h.Write(alg[:])
	for _, edk := range req.EncryptedDataKeys {
		h.Write([]byte(edk.ProviderID))
		h.Write([]byte{0})
		h.Write(edk.ProviderInfo)
		h.Write([]byte{0})
		h.Write(edk.Ciphertext)
		h.Write([]byte{0})
	}
	return "dec:" + hex.EncodeToString(h.Sum(nil))
}
