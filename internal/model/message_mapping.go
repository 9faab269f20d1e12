package model

import "time"

// 两个平台消息标识的映射行 回复与撤回解析的唯一依据
// 每条成功转发的消息至多写入一行
type MessageMapping struct {
	ID       uint  `gorm:"primaryKey"`
	QQRoomID int64 `gorm:"not null;uniqueIndex:idx_map_qq,priority:1;index:idx_map_room"`
	Seq      int32 `gorm:"not null;uniqueIndex:idx_map_qq,priority:2"`
	TGChatID int64 `gorm:"not null;uniqueIndex:idx_map_tg,priority:1"`
	TGMsgID  int   `gorm:"not null;uniqueIndex:idx_map_tg,priority:2"`
	// 逗号分隔 两端发送者 ID
	SenderIDs string `gorm:"type:varchar(128)"`
	Time      int64
	Brief     string `gorm:"type:varchar(256)"`
	Deleted   bool
	// 本行的撤回由对端撤回引起 撤回处理器见到该标记必须跳过
	// 否则 A→B→A 的撤回会无限回传
	IgnoreDelete bool
	CreatedAt    time.Time
}

// 回复解析结果 只携带目标平台自己的标识
type ReplyTarget struct {
	QQRoomID  int64
	Seq       int32
	TGChatID  int64
	TGMsgID   int
	Time      int64
	SenderIDs string
}
