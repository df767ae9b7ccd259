package repository

import "time"

// WindowStartMs 滚动窗口起点（Unix ms）；days<=0 表示不限时间，返回 0。
func WindowStartMs(now time.Time, days int) int64 {
	if days <= 0 {
		return 0
	}
	return now.AddDate(0, 0, -days).UnixMilli()
}
