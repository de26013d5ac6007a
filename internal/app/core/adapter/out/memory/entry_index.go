package memory

import (
	"time"

	"github.com/JoeShih716/go-mem-payout/internal/app/core/domain"
)

// DefaultEntryRetention 已套用分錄的冪等紀錄預設保留時間
const DefaultEntryRetention = 24 * time.Hour

// Option 帳本的選項函數
type Option func(*options)

type options struct {
	retention time.Duration
	now       func() time.Time
}

// WithEntryRetention 設定冪等紀錄保留多久，<= 0 代表永久保留
func WithEntryRetention(d time.Duration) Option {
	return func(o *options) {
		o.retention = d
	}
}

func withClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func newOptions(opts []Option) options {
	o := options{retention: DefaultEntryRetention, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// entryIndex 已套用分錄的索引，過期的紀錄在新增時順便清掉
// 不是 thread safe，由帳本自己的鎖或核心迴圈保護
type entryIndex struct {
	seen      map[domain.EntryKey]time.Time
	retention time.Duration
	lastSweep time.Time
}

func newEntryIndex(retention time.Duration) *entryIndex {
	return &entryIndex{
		seen:      make(map[domain.EntryKey]time.Time),
		retention: retention,
	}
}

func (x *entryIndex) contains(key domain.EntryKey) bool {
	_, ok := x.seen[key]
	return ok
}

// add 記錄分錄；距上次清理超過保留時間的四分之一才會掃一次
func (x *entryIndex) add(key domain.EntryKey, at time.Time) {
	x.seen[key] = at
	if x.retention <= 0 || at.Sub(x.lastSweep) < x.retention/4 {
		return
	}
	x.sweep(at)
}

func (x *entryIndex) sweep(now time.Time) {
	cutoff := now.Add(-x.retention)
	for key, at := range x.seen {
		if at.Before(cutoff) {
			delete(x.seen, key)
		}
	}
	x.lastSweep = now
}

func (x *entryIndex) len() int {
	return len(x.seen)
}
