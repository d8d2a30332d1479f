package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/cygirat-cmd/kiki-server/gear"
)

// Item is one cosmetic item definition from the catalog file.
type Item struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Slot   string `json:"slot"`
	Rarity string `json:"rarity"`
	Price  int    `json:"price"`
}

// Catalog is the read-only item metadata store. Loaded once at startup;
// Reload swaps the whole index atomically.
type Catalog struct {
	mu    sync.RWMutex
	path  string
	items map[int64]*Item
}

// NewCatalog creates a Catalog reading from the given JSON file.
func NewCatalog(path string) *Catalog {
	return &Catalog{path: path, items: make(map[int64]*Item)}
}

// Load reads and validates the catalog file.
func (c *Catalog) Load() error {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("catalog: read %s: %w", c.path, err)
	}
	var list []*Item
	if err := json.Unmarshal(raw, &list); err != nil {
		return fmt.Errorf("catalog: parse %s: %w", c.path, err)
	}
	items := make(map[int64]*Item, len(list))
	for _, it := range list {
		if it == nil {
			continue
		}
		if !gear.Slot(it.Slot).Valid() {
			return fmt.Errorf("catalog: item %d has unknown slot %q", it.ID, it.Slot)
		}
		if _, dup := items[it.ID]; dup {
			return fmt.Errorf("catalog: duplicate item id %d", it.ID)
		}
		items[it.ID] = it
	}
	c.mu.Lock()
	c.items = items
	c.mu.Unlock()
	return nil
}

// Get returns the item with the given ID, or nil if unknown.
func (c *Catalog) Get(itemID int64) *Item {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.items[itemID]
}

// SlotOf returns the declared slot of an item.
func (c *Catalog) SlotOf(itemID int64) (gear.Slot, error) {
	it := c.Get(itemID)
	if it == nil {
		return "", fmt.Errorf("catalog: unknown item %d", itemID)
	}
	return gear.Slot(it.Slot), nil
}

// Count returns the number of loaded items.
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Put inserts or replaces a single item definition. Intended for tests
// and admin tooling; normal operation goes through Load.
func (c *Catalog) Put(it *Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[it.ID] = it
}
