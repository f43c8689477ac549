// Package lock 提供借用准入用的按 key 互斥锁：单进程用 Local，多副本用 Redis。
package lock

import (
	"context"
	"errors"
	"sort"
)

var ErrNotAcquired = errors.New("lock not acquired")

// Locker 同时锁住一组 key；返回的 unlock 必须调用且只调用一次
type Locker interface {
	Lock(ctx context.Context, keys ...string) (unlock func(), err error)
}

// normalize 去重并排序，所有调用方按同一顺序加锁
func normalize(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
