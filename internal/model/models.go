package model

import "time"

// Task 表示用户的一个待办事项。
//
// 任务只对其所属用户可见；标题、描述与完成状态只能由所属用户修改，
// 删除同样只能由所属用户执行。
type Task struct {
	ID        uint      `gorm:"primaryKey" json:"id"` // 任务唯一标识
	CreatedAt time.Time `json:"created_at"`           // 创建时间

	UserID      uint   `gorm:"not null;index" json:"user_id"` // 所属用户 ID
	User        User   `gorm:"foreignKey:UserID" json:"-"`    // 所属用户
	Title       string `gorm:"not null" json:"title"`         // 标题（必填）
	Description string `gorm:"default:''" json:"description"` // 描述（可选）
	Completed   bool   `gorm:"default:false" json:"completed"` // 是否已完成
}
