package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const costCacheFile = "daily_cost.json"

const retainDays = 7

// DailyCostCache tracks USD spend per calendar day, truncated to the last
// seven days on every write so it never grows unbounded.
type DailyCostCache struct {
	mu   sync.Mutex
	path string
	days map[string]float64 // "2026-08-01" -> usd
}

// OpenDailyCostCache loads the cost cache for repoPath.
func OpenDailyCostCache(repoPath string) (*DailyCostCache, error) {
	dir, err := CacheDir(repoPath)
	if err != nil {
		return nil, err
	}
	c := &DailyCostCache{path: filepath.Join(dir, costCacheFile), days: map[string]float64{}}
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &c.days); err != nil {
		c.days = map[string]float64{}
	}
	return c, nil
}

// Add accrues usd to today's (UTC) total and persists the truncated cache.
func (c *DailyCostCache) Add(usd float64) error {
	return c.AddForDate(time.Now().UTC().Format("2006-01-02"), usd)
}

// AddForDate accrues usd to the given date key (exposed so callers stamping
// timestamps externally, per the no-wallclock-in-workflows constraint, can
// supply the date explicitly).
func (c *DailyCostCache) AddForDate(date string, usd float64) error {
	c.mu.Lock()
	c.days[date] += usd
	c.truncateLocked()
	data, err := json.MarshalIndent(c.days, "", "  ")
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return atomicWriteFile(c.path, data)
}

// Total returns the accrued cost for date.
func (c *DailyCostCache) Total(date string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.days[date]
}

// truncateLocked drops every date entry outside the most recent retainDays
// days. Must be called with c.mu held.
func (c *DailyCostCache) truncateLocked() {
	if len(c.days) <= retainDays {
		return
	}
	dates := make([]string, 0, len(c.days))
	for d := range c.days {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	cut := len(dates) - retainDays
	for _, d := range dates[:cut] {
		delete(c.days, d)
	}
}
