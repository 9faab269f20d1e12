package bridge

import (
	"sync"
	"time"

	"go-qtbridge/internal/model"
	"go-qtbridge/pkg/logger"

	"go.uber.org/zap"
)

type groupKey struct {
	chatID  int64
	groupID string
}

type groupState struct {
	items []*model.UnifiedMessage
	timer *time.Timer
	// 代际号 防止已重置的定时器认领新一代的缓冲
	gen int
}

// 媒体组去抖 同一 (chatID, mediaGroupID) 的碎片聚成一次转发
// 每个新碎片都会顺延截止时间 截止触发时在锁内整体认领缓冲
// 认领后同键的晚到碎片开启全新一组 每个逻辑组恰好派发一次
type Batcher struct {
	mu       sync.Mutex
	window   time.Duration
	groups   map[groupKey]*groupState
	dispatch func(msgs []*model.UnifiedMessage)
}

func NewBatcher(window time.Duration, dispatch func(msgs []*model.UnifiedMessage)) *Batcher {
	if window <= 0 {
		window = time.Second
	}
	return &Batcher{
		window:   window,
		groups:   make(map[groupKey]*groupState),
		dispatch: dispatch,
	}
}

// 无组标识的消息不经手 返回 false 管线同步继续
func (b *Batcher) Offer(msg *model.UnifiedMessage, chatID int64, mediaGroupID string) bool {
	if mediaGroupID == "" {
		return false
	}
	key := groupKey{chatID: chatID, groupID: mediaGroupID}

	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.groups[key]
	if !ok {
		st = &groupState{}
		b.groups[key] = st
		logger.L.Debug("media group opened", zap.String("groupID", mediaGroupID), zap.Int64("chatID", chatID))
	}

	st.items = append(st.items, msg)

	// 顺延截止 旧定时器作废 由代际号兜底 Stop 竞态
	if st.timer != nil {
		st.timer.Stop()
	}
	st.gen++
	gen := st.gen
	st.timer = time.AfterFunc(b.window, func() {
		b.flush(key, gen)
	})
	return true
}

// 截止触发 在锁内认领缓冲并从表中摘除 晚到的 Offer 只会看到空位
func (b *Batcher) flush(key groupKey, gen int) {
	b.mu.Lock()
	st, ok := b.groups[key]
	if !ok || st.gen != gen {
		// 已被更新一代顺延或已派发
		b.mu.Unlock()
		return
	}
	delete(b.groups, key)
	items := st.items
	b.mu.Unlock()

	if len(items) == 0 {
		return
	}
	logger.L.Debug("media group dispatched",
		zap.String("groupID", key.groupID),
		zap.Int("fragments", len(items)))
	b.dispatch(items)
}

// 聚合为单条规范消息 媒体按到达顺序在前 文本说明在后
func MergeGroup(msgs []*model.UnifiedMessage) *model.UnifiedMessage {
	if len(msgs) == 0 {
		return nil
	}
	merged := *msgs[0]
	merged.Contents = nil

	var captions []model.MessageContent
	for _, m := range msgs {
		for _, c := range m.Contents {
			if c.Type == model.ContentText {
				captions = append(captions, c)
			} else {
				merged.Contents = append(merged.Contents, c)
			}
		}
	}
	merged.Contents = append(merged.Contents, captions...)
	return &merged
}
