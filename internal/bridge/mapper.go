package bridge

import (
	"strconv"

	"go-qtbridge/internal/interfaces"
	"go-qtbridge/internal/model"
	"go-qtbridge/pkg/logger"

	"go.uber.org/zap"
)

// 回复与撤回的跨平台解析 建立在映射行之上
type Mapper struct {
	store interfaces.MappingStore
}

func NewMapper(store interfaces.MappingStore) *Mapper {
	return &Mapper{store: store}
}

// QQ 侧回复引用解析为 Telegram 目标 缺失返回 nil 不是错误
// 调用方必须在无关联的情况下继续发送
func (m *Mapper) ResolveQQReply(roomID int64, replyID string) *model.ReplyTarget {
	seq, err := strconv.ParseInt(replyID, 10, 32)
	if err != nil {
		logger.L.Debug("unparsable QQ reply id", zap.String("id", replyID))
		return nil
	}

	row, err := m.store.FindByQQ(roomID, int32(seq))
	if err != nil {
		logger.L.Warn("mapping lookup failed", zap.Int64("roomID", roomID), zap.Error(err))
		return nil
	}
	if row == nil {
		return nil
	}
	return targetFromRow(row)
}

// Telegram 侧回复引用解析为 QQ 目标
func (m *Mapper) ResolveTelegramReply(chatID int64, msgID int) *model.ReplyTarget {
	row, err := m.store.FindByTG(chatID, msgID)
	if err != nil {
		logger.L.Warn("mapping lookup failed", zap.Int64("chatID", chatID), zap.Error(err))
		return nil
	}
	if row == nil {
		return nil
	}
	return targetFromRow(row)
}

func targetFromRow(row *model.MessageMapping) *model.ReplyTarget {
	return &model.ReplyTarget{
		QQRoomID:  row.QQRoomID,
		Seq:       row.Seq,
		TGChatID:  row.TGChatID,
		TGMsgID:   row.TGMsgID,
		Time:      row.Time,
		SenderIDs: row.SenderIDs,
	}
}

// 发送确认后写入恰好一行映射
// 持久化失败只记日志 转发已经完成 不回滚不重试
func (m *Mapper) RecordMapping(msg *model.UnifiedMessage, qqRoomID int64, seq int32, tgChatID int64, tgMsgID int, senderIDs string) {
	brief := msg.PlainText()
	if len(brief) > 200 {
		brief = brief[:200]
	}

	row := &model.MessageMapping{
		QQRoomID:  qqRoomID,
		Seq:       seq,
		TGChatID:  tgChatID,
		TGMsgID:   tgMsgID,
		SenderIDs: senderIDs,
		Time:      msg.Timestamp.Unix(),
		Brief:     brief,
	}
	if err := m.store.Create(row); err != nil {
		logger.L.Error("failed to persist message mapping",
			zap.Int64("qqRoomID", qqRoomID),
			zap.Int32("seq", seq),
			zap.Int("tgMsgID", tgMsgID),
			zap.Error(err))
	}
}
