package model

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

type PairFlag int64

const (
	// 关闭富头部 仅转发正文
	FlagDisableRichHeader PairFlag = 1 << 0
	// 锁定群名 不随对端改名
	FlagNameLocked PairFlag = 1 << 1
	FlagDisableQQ2TG PairFlag = 1 << 2
	FlagDisableTG2QQ PairFlag = 1 << 3
)

// QQ 群与 Telegram 会话的绑定 由 bind/unbind 指令维护 核心只读
type ForwardPair struct {
	ID         uint  `gorm:"primaryKey"`
	QQRoomID   int64 `gorm:"not null;uniqueIndex:idx_pair_qq"`
	TGChatID   int64 `gorm:"not null;index:idx_pair_tg"`
	TGThreadID int
	Flags      PairFlag
	// 逗号分隔的忽略发送者 ID 列表
	IgnoreSenders string `gorm:"type:varchar(512)"`
	IgnoreRegex   string `gorm:"type:varchar(512)"`
	APIKey        string `gorm:"type:varchar(128)"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     gorm.DeletedAt `gorm:"index"`
}

func (p *ForwardPair) HasFlag(f PairFlag) bool {
	return p.Flags&f != 0
}

// 发送者是否在忽略列表里
func (p *ForwardPair) IgnoresSender(senderID string) bool {
	if p.IgnoreSenders == "" {
		return false
	}
	for _, id := range strings.Split(p.IgnoreSenders, ",") {
		if strings.TrimSpace(id) == senderID {
			return true
		}
	}
	return false
}
