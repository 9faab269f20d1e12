package model

import "encoding/json"

// OneBot v11 消息段
type QQSegment struct {
	Type string            `json:"type"`
	Data map[string]string `json:"data"`
}

func NewQQSegment(segType string, data map[string]string) QQSegment {
	if data == nil {
		data = map[string]string{}
	}
	return QQSegment{Type: segType, Data: data}
}

// 合并转发的单个节点
type QQForwardNode struct {
	Name     string      `json:"name"`
	UserID   int64       `json:"user_id"`
	Segments []QQSegment `json:"segments"`
}

// QQ 群消息事件
type QQEvent struct {
	MessageID int32       `json:"message_id"`
	Seq       int32       `json:"seq"`
	RoomID    int64       `json:"room_id"`
	UserID    int64       `json:"user_id"`
	Nickname  string      `json:"nickname"`
	Card      string      `json:"card"`
	Time      int64       `json:"time"`
	Private   bool        `json:"private"`
	Segments  []QQSegment `json:"segments"`
	Raw       json.RawMessage
}

// QQ 撤回事件
type QQRecallEvent struct {
	RoomID     int64 `json:"room_id"`
	Seq        int32 `json:"seq"`
	MessageID  int32 `json:"message_id"`
	OperatorID int64 `json:"operator_id"`
}

type QQSendReceipt struct {
	MessageID int32 `json:"message_id"`
	Seq       int32 `json:"seq"`
}

type GroupMember struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
	Card     string `json:"card"`
	Role     string `json:"role"`
}

func (m *GroupMember) DisplayName() string {
	if m.Card != "" {
		return m.Card
	}
	return m.Nickname
}

type GroupInfo struct {
	GroupID   int64  `json:"group_id"`
	GroupName string `json:"group_name"`
}

// Telegram Bot API 收到的消息 已摊平到桥接关心的字段
type TGUpdate struct {
	UpdateID     int64  `json:"update_id"`
	MessageID    int    `json:"message_id"`
	ChatID       int64  `json:"chat_id"`
	ChatType     string `json:"chat_type"`
	ThreadID     int    `json:"thread_id"`
	FromID       int64  `json:"from_id"`
	FromName     string `json:"from_name"`
	Date         int64  `json:"date"`
	Text         string `json:"text"`
	Caption      string `json:"caption"`
	MediaGroupID string `json:"media_group_id"`

	ReplyToMessageID int `json:"reply_to_message_id"`

	PhotoFileID    string  `json:"photo_file_id"`
	VideoFileID    string  `json:"video_file_id"`
	VideoDuration  int     `json:"video_duration"`
	VoiceFileID    string  `json:"voice_file_id"`
	VoiceDuration  int     `json:"voice_duration"`
	AudioFileID    string  `json:"audio_file_id"`
	DocumentFileID string  `json:"document_file_id"`
	DocumentName   string  `json:"document_name"`
	DocumentSize   int64   `json:"document_size"`
	StickerFileID  string  `json:"sticker_file_id"`
	StickerIsAnim  bool    `json:"sticker_is_animated"`
	StickerEmoji   string  `json:"sticker_emoji"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	VenueTitle     string  `json:"venue_title"`
	VenueAddress   string  `json:"venue_address"`
	DiceEmoji      string  `json:"dice_emoji"`
	DiceValue      int     `json:"dice_value"`

	MentionIDs []int64 `json:"mention_ids"`
	Raw        json.RawMessage
}

// Telegram 删除消息通知
type TGDeleteEvent struct {
	ChatID     int64 `json:"chat_id"`
	MessageIDs []int `json:"message_ids"`
}

type TGSendReceipt struct {
	MessageID int `json:"message_id"`
}

// Telegram 出站消息单元 由出站转换器产出 由发送策略决定打包方式
type TGOutgoing struct {
	Kind    TGOutgoingKind
	Text    string
	Caption string
	// 本地路径或可公开访问的 URL
	Media            string
	FileName         string
	Duration         int
	Latitude         float64
	Longitude        float64
	VenueTitle       string
	VenueAddress     string
	ReplyToMessageID int
	ThreadID         int
}

type TGOutgoingKind string

const (
	TGOutText     TGOutgoingKind = "text"
	TGOutPhoto    TGOutgoingKind = "photo"
	TGOutVideo    TGOutgoingKind = "video"
	TGOutVoice    TGOutgoingKind = "voice"
	TGOutAudio    TGOutgoingKind = "audio"
	TGOutDocument TGOutgoingKind = "document"
	TGOutLocation TGOutgoingKind = "location"
	TGOutVenue    TGOutgoingKind = "venue"
)
