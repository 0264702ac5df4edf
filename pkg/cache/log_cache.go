// Copyright 2025 Alexander Alten (novatechflow), NovaTechflow (novatechflow.com).
// This project is supported and financed by Scalytics, Inc. (www.scalytics.io).
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cache

import (
	"container/list"
	"sync"
)

// LogCache is a byte-bounded LRU of whole partition log files keyed by
// topic/partition. Returned slices are shared and must not be modified.
type LogCache struct {
	mu       sync.Mutex
	capacity int
	size     int
	ll       *list.List
	items    map[logKey]*list.Element
}

type logKey struct {
	topic     string
	partition int32
}

type cacheEntry struct {
	key  logKey
	data []byte
}

// NewLogCache creates a cache with capacity in bytes.
func NewLogCache(capacityBytes int) *LogCache {
	if capacityBytes <= 0 {
		capacityBytes = 1
	}
	return &LogCache{
		capacity: capacityBytes,
		ll:       list.New(),
		items:    make(map[logKey]*list.Element),
	}
}

// Get returns cached log bytes if present.
func (c *LogCache) Get(topic string, partition int32) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[logKey{topic, partition}]; ok {
		c.ll.MoveToFront(elem)
		return elem.Value.(*cacheEntry).data, true
	}
	return nil, false
}

// Set stores a copy of data. Logs larger than the whole cache are not kept.
func (c *LogCache) Set(topic string, partition int32, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := logKey{topic, partition}
	c.removeLocked(key)
	if len(data) > c.capacity {
		return
	}
	entry := &cacheEntry{key: key, data: append([]byte(nil), data...)}
	c.items[key] = c.ll.PushFront(entry)
	c.size += len(entry.data)
	c.evictIfNeeded()
}

// Invalidate drops the entry for topic/partition.
func (c *LogCache) Invalidate(topic string, partition int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(logKey{topic, partition})
}

// Size reports the cached byte count.
func (c *LogCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Len reports the number of cached logs.
func (c *LogCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *LogCache) removeLocked(key logKey) {
	elem, ok := c.items[key]
	if !ok {
		return
	}
	delete(c.items, key)
	c.ll.Remove(elem)
	c.size -= len(elem.Value.(*cacheEntry).data)
}

func (c *LogCache) evictIfNeeded() {
	for c.size > c.capacity && c.ll.Len() > 0 {
		c.removeLocked(c.ll.Back().Value.(*cacheEntry).key)
	}
}
