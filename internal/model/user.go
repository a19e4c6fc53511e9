package model

import "time"

// User 表示系统用户。
//
// 注册时创建，之后不可修改，本系统也不会删除用户。
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`                                   // 用户 ID
	Username     string    `gorm:"type:varchar(191);uniqueIndex;not null" json:"username"` // 用户名（唯一）
	PasswordHash string    `gorm:"not null" json:"-"`                                      // bcrypt 哈希
	CreatedAt    time.Time `json:"created_at"`                                             // 创建时间

	Tasks []Task `gorm:"foreignKey:UserID" json:"-"`
}
