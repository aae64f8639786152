package model

import "time"

// Profile 用户资料表，对应 profiles，与 users 一对一
type Profile struct {
	ID        uint       `gorm:"primaryKey"                       json:"id"`
	UserID    uint       `gorm:"not null;uniqueIndex"             json:"user_id"`
	Bio       string     `gorm:"type:text;not null;default:''"    json:"bio"`
	Location  string     `gorm:"type:varchar(30);not null;default:''" json:"location"`
	BirthDate *time.Time `gorm:"type:date"                        json:"birth_date,omitempty"`
	Avatar    string     `gorm:"type:varchar(255);not null;default:''" json:"avatar"` // 存储键，空表示未设置
	BaseModel
}

// TableName 指定表名
func (Profile) TableName() string { return "profiles" }

// HasAvatar 是否已设置头像
func (p *Profile) HasAvatar() bool { return p != nil && p.Avatar != "" }
