package interfaces

import (
	"context"

	"go-qtbridge/internal/model"
)

// QQ 侧平台客户端 由 internal/platform/onebot 实现
type QQClient interface {
	SendMessage(ctx context.Context, roomID int64, segments []model.QQSegment) (*model.QQSendReceipt, error)
	SendGroupForwardMsg(ctx context.Context, roomID int64, nodes []model.QQForwardNode) (*model.QQSendReceipt, error)
	RecallMessage(ctx context.Context, roomID int64, messageID int32) error
	GetGroupMemberInfo(ctx context.Context, roomID, userID int64) (*model.GroupMember, error)
	GetGroupInfo(ctx context.Context, roomID int64) (*model.GroupInfo, error)
	DownloadMedia(ctx context.Context, file string) ([]byte, error)
}

// Telegram 侧平台客户端 由 internal/platform/telegram 实现
type TelegramClient interface {
	SendMessage(ctx context.Context, chatID int64, out model.TGOutgoing) (*model.TGSendReceipt, error)
	SendMediaGroup(ctx context.Context, chatID int64, items []model.TGOutgoing) ([]model.TGSendReceipt, error)
	DeleteMessages(ctx context.Context, chatID int64, messageIDs []int) error
	EditChatTitle(ctx context.Context, chatID int64, title string) error
	SetChatPhoto(ctx context.Context, chatID int64, photo []byte) error
	DownloadMedia(ctx context.Context, fileID string) ([]byte, error)
}

// 媒体管线按引用取回字节的回调 由消息来源平台的客户端提供
type MediaFetcher func(ctx context.Context, handle string) ([]byte, error)

// 媒体 URL 合成所需的基础地址 纯配置函数
type EndpointResolver interface {
	InternalBase() string
	PublicBase() string
	FallbackBase() string
}

// 绑定关系读取 由 repository 实现
type PairStore interface {
	FindByQQRoom(roomID int64) (*model.ForwardPair, error)
	FindByTGChat(chatID int64) (*model.ForwardPair, error)
}

// 映射行持久化 由 repository 实现
type MappingStore interface {
	Create(m *model.MessageMapping) error
	FindByQQ(roomID int64, seq int32) (*model.MessageMapping, error)
	FindByTG(chatID int64, msgID int) (*model.MessageMapping, error)
	MarkDeleted(id uint, ignoreDelete bool) error
}
