package schema

// ArchivedActivity 冷存储中的流水副本
// 同一次归档共享 ArchiveTimestamp 与 ArchiveOperationID；(operation, original_id) 唯一，重跑同一次归档不会重复写入。
type ArchivedActivity struct {
	ID                 int64   `gorm:"primaryKey;autoIncrement"`
	OriginalID         int64   `gorm:"not null;uniqueIndex:uniq_archive_row,priority:2"`
	ArchiveOperationID string  `gorm:"size:36;not null;index;uniqueIndex:uniq_archive_row,priority:1"`
	ArchiveTimestamp   string  `gorm:"size:32;not null;index"` // 2006-01-02_15-04-05
	UserID             int64   `gorm:"not null;index"`
	Username           *string `gorm:"size:64"`
	FirstName          *string `gorm:"size:255"`
	Kind               Kind    `gorm:"column:activity_type;size:16;not null"`
	Points             int     `gorm:"not null"`
	Timestamp          int64   `gorm:"not null"`
	PostID             *int64
	PostTimestamp      *int64
}

func (ArchivedActivity) TableName() string {
	return "activity_log_archive"
}

// NewArchivedActivity 由线上流水生成归档行
func NewArchivedActivity(e ActivityEvent, opID, archivedAt string) ArchivedActivity {
	return ArchivedActivity{
		OriginalID:         e.ID,
		ArchiveOperationID: opID,
		ArchiveTimestamp:   archivedAt,
		UserID:             e.UserID,
		Username:           e.Username,
		FirstName:          e.FirstName,
		Kind:               e.Kind,
		Points:             e.Points,
		Timestamp:          e.Timestamp,
		PostID:             e.PostID,
		PostTimestamp:      e.PostTimestamp,
	}
}
