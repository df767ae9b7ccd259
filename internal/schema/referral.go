package schema

import "time"

// ReferralRecord 一次成功邀请
// ReferredID 全局唯一：先入群者生效，记录存在即表示已发放过入群奖励。
type ReferralRecord struct {
	ID         int64     `gorm:"primaryKey;autoIncrement"`
	ReferrerID int64     `gorm:"not null;index"`
	ReferredID int64     `gorm:"not null;uniqueIndex"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

func (ReferralRecord) TableName() string {
	return "referrals"
}

// PendingReferral 等待入群确认的邀请，只存在于临时存储中
type PendingReferral struct {
	ReferrerID int64 `json:"referrer_id"`
	ExpiresAt  int64 `json:"expires_at"` // Unix ms
}

// Expired 是否已过期
func (p PendingReferral) Expired(now time.Time) bool {
	return p.ExpiresAt > 0 && now.UnixMilli() >= p.ExpiresAt
}
