package bridge

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"go-qtbridge/internal/converter"
	"go-qtbridge/internal/interfaces"
	"go-qtbridge/internal/media"
	"go-qtbridge/internal/model"
	"go-qtbridge/pkg/cache"
	"go-qtbridge/pkg/config"
	"go-qtbridge/pkg/logger"
	"go-qtbridge/pkg/metrics"
	"go-qtbridge/pkg/queue"
	"go-qtbridge/pkg/utils"

	"go.uber.org/zap"
)

type SendStrategy int

const (
	// 纯文本 单条消息
	StrategyPlain SendStrategy = iota
	// 视频或文件 多节点合并转发
	StrategyForwardBundle
	// 音频或图片且需要显示头部 先发头部文本再发媒体
	StrategyTwoPhase
)

const recallPriority = 10

type recallTask struct {
	rowID    uint
	toTG     bool
	tgChatID int64
	tgMsgID  int
	qqRoomID int64
	seq      int32
}

type Deps struct {
	QQ        interfaces.QQClient
	TG        interfaces.TelegramClient
	Pairs     interfaces.PairStore
	Mappings  interfaces.MappingStore
	Media     *media.Pipeline
	Endpoints interfaces.EndpointResolver
	// QQ 侧进程能否读取本进程的文件系统
	SharesFilesystem bool
}

// 转发编排器 两个方向的门禁与阶段管线
// 任何一条消息在任一阶段失败都只影响自己 不影响并发处理中的其他消息
type Orchestrator struct {
	qq    interfaces.QQClient
	tg    interfaces.TelegramClient
	pairs interfaces.PairStore
	store interfaces.MappingStore

	mapper    *Mapper
	media     *media.Pipeline
	endpoints interfaces.EndpointResolver
	qqConv    *converter.QQConverter
	tgConv    *converter.TelegramConverter
	batcher   *Batcher
	nameCache *cache.Cache
	recalls   *queue.Queue
	sharesFS  bool
}

func NewOrchestrator(deps Deps) *Orchestrator {
	bc := config.GlobalConfig.Bridge

	o := &Orchestrator{
		qq:        deps.QQ,
		tg:        deps.TG,
		pairs:     deps.Pairs,
		store:     deps.Mappings,
		mapper:    NewMapper(deps.Mappings),
		media:     deps.Media,
		endpoints: deps.Endpoints,
		qqConv:    converter.NewQQConverter(),
		tgConv:    converter.NewTelegramConverter(),
		sharesFS:  deps.SharesFilesystem,
	}

	o.nameCache = cache.New(bc.NameCacheSize,
		time.Duration(bc.NameCacheTTLSecs)*time.Second,
		time.Minute)
	o.recalls = queue.New(queue.Options{
		MaxSize:   bc.RecallQueueSize,
		BatchSize: bc.RecallBatchSize,
		Interval:  time.Duration(bc.RecallIntervalMs) * time.Millisecond,
		Priority:  true,
	}, o.drainRecalls)
	o.batcher = NewBatcher(config.GlobalConfig.Media.GroupDebounce(), o.dispatchGroup)
	return o
}

func (o *Orchestrator) Close() {
	o.recalls.Close()
	o.nameCache.Close()
}

// ---- QQ → Telegram ----

func (o *Orchestrator) HandleQQMessage(ctx context.Context, ev *model.QQEvent) {
	defer o.guard("qq_to_tg")

	msg := o.qqConv.FromEvent(ev)

	pair, ok := o.gates(msg, "qq_to_tg", func() (*model.ForwardPair, error) {
		return o.pairs.FindByQQRoom(ev.RoomID)
	}, model.FlagDisableQQ2TG)
	if !ok {
		return
	}

	o.resolveQQAtNames(ctx, ev.RoomID, msg)

	replyTo := 0
	if target := o.resolveReply(msg, pair); target != nil {
		replyTo = target.TGMsgID
	}

	o.normalizeForTelegram(ctx, msg)
	o.prependHeader(msg, pair)

	strategy := SelectStrategy(msg, !pair.HasFlag(model.FlagDisableRichHeader))
	outs := o.tgConv.ToOutgoing(msg, replyTo, pair.TGThreadID)

	receipt, err := o.sendToTelegram(ctx, pair.TGChatID, outs, strategy)
	if err != nil {
		logger.L.Error("failed to send to Telegram",
			zap.Int64("chatID", pair.TGChatID), zap.Error(err))
		metrics.MessagesDropped.WithLabelValues("qq_to_tg", "send").Inc()
		return
	}
	if receipt == nil {
		return
	}

	o.mapper.RecordMapping(msg, ev.RoomID, ev.Seq, pair.TGChatID, receipt.MessageID,
		msg.Sender.ID)
	metrics.MessagesForwarded.WithLabelValues("qq_to_tg").Inc()
}

func (o *Orchestrator) HandleQQRecall(ctx context.Context, ev *model.QQRecallEvent) {
	defer o.guard("qq_recall")

	row, err := o.store.FindByQQ(ev.RoomID, ev.Seq)
	if err != nil {
		logger.L.Warn("recall mapping lookup failed", zap.Int64("roomID", ev.RoomID), zap.Error(err))
		return
	}
	if row == nil || row.Deleted || row.IgnoreDelete {
		// IgnoreDelete 这次撤回本就是对端撤回传播过来的 到此为止
		return
	}

	o.recalls.Enqueue(recallTask{
		rowID:    row.ID,
		toTG:     true,
		tgChatID: row.TGChatID,
		tgMsgID:  row.TGMsgID,
	}, recallPriority)
}

// ---- Telegram → QQ ----

func (o *Orchestrator) HandleTelegramUpdate(ctx context.Context, u *model.TGUpdate) {
	defer o.guard("tg_to_qq")

	msg := o.tgConv.FromUpdate(u)

	// 媒体组碎片先进批处理器 去抖后合并重入
	if o.batcher.Offer(msg, u.ChatID, u.MediaGroupID) {
		return
	}
	o.processTelegramMessage(ctx, msg)
}

func (o *Orchestrator) dispatchGroup(msgs []*model.UnifiedMessage) {
	defer o.guard("tg_to_qq")
	merged := MergeGroup(msgs)
	if merged != nil {
		o.processTelegramMessage(context.Background(), merged)
	}
}

func (o *Orchestrator) processTelegramMessage(ctx context.Context, msg *model.UnifiedMessage) {
	chatID, err := strconv.ParseInt(msg.Chat.ID, 10, 64)
	if err != nil {
		logger.L.Warn("unparsable Telegram chat id", zap.String("chatID", msg.Chat.ID))
		return
	}

	pair, ok := o.gates(msg, "tg_to_qq", func() (*model.ForwardPair, error) {
		return o.pairs.FindByTGChat(chatID)
	}, model.FlagDisableTG2QQ)
	if !ok {
		return
	}

	var target *model.ReplyTarget
	if t := o.resolveReply(msg, pair); t != nil {
		target = t
	}

	o.normalizeForQQ(ctx, msg)
	o.prependHeader(msg, pair)

	strategy := SelectStrategy(msg, !pair.HasFlag(model.FlagDisableRichHeader))
	segs := o.qqConv.ToSegments(msg, target)

	receipt, err := o.sendToQQ(ctx, pair.QQRoomID, msg, segs, strategy)
	if err != nil {
		logger.L.Error("failed to send to QQ",
			zap.Int64("roomID", pair.QQRoomID), zap.Error(err))
		metrics.MessagesDropped.WithLabelValues("tg_to_qq", "send").Inc()
		return
	}
	if receipt == nil {
		return
	}

	tgMsgID, _ := strconv.Atoi(msg.ID)
	o.mapper.RecordMapping(msg, pair.QQRoomID, receipt.Seq, chatID, tgMsgID, msg.Sender.ID)
	metrics.MessagesForwarded.WithLabelValues("tg_to_qq").Inc()
}

func (o *Orchestrator) HandleTelegramDelete(ctx context.Context, ev *model.TGDeleteEvent) {
	defer o.guard("tg_delete")

	for _, msgID := range ev.MessageIDs {
		row, err := o.store.FindByTG(ev.ChatID, msgID)
		if err != nil {
			logger.L.Warn("delete mapping lookup failed", zap.Int64("chatID", ev.ChatID), zap.Error(err))
			continue
		}
		if row == nil || row.Deleted || row.IgnoreDelete {
			continue
		}

		o.recalls.Enqueue(recallTask{
			rowID:    row.ID,
			qqRoomID: row.QQRoomID,
			seq:      row.Seq,
		}, recallPriority)
	}
}

// ---- 公共门禁 ----

// 阶段 1-4 绑定查找 方向开关 发送者黑名单 正则去重
func (o *Orchestrator) gates(msg *model.UnifiedMessage, direction string,
	lookup func() (*model.ForwardPair, error), disableFlag model.PairFlag) (*model.ForwardPair, bool) {

	pair, err := lookup()
	if err != nil {
		logger.L.Error("pair lookup failed", zap.Error(err))
		metrics.MessagesDropped.WithLabelValues(direction, "pair").Inc()
		return nil, false
	}
	if pair == nil {
		logger.L.Debug("no forward pair bound, dropping", zap.String("chatID", msg.Chat.ID))
		metrics.MessagesDropped.WithLabelValues(direction, "pair").Inc()
		return nil, false
	}

	if pair.HasFlag(disableFlag) {
		metrics.MessagesDropped.WithLabelValues(direction, "mode").Inc()
		return nil, false
	}

	if pair.IgnoresSender(msg.Sender.ID) {
		logger.L.Debug("sender in blocklist, dropping", zap.String("senderID", msg.Sender.ID))
		metrics.MessagesDropped.WithLabelValues(direction, "blocklist").Inc()
		return nil, false
	}

	if o.matchesIgnoreRegex(pair, msg) {
		metrics.MessagesDropped.WithLabelValues(direction, "regex").Inc()
		return nil, false
	}

	return pair, true
}

// 用户配置的正则非法时按不匹配处理 绝不让它弄垮管线
func (o *Orchestrator) matchesIgnoreRegex(pair *model.ForwardPair, msg *model.UnifiedMessage) bool {
	if pair.IgnoreRegex == "" {
		return false
	}

	var re *regexp.Regexp
	if v, ok := o.nameCache.Get("regex:" + pair.IgnoreRegex); ok {
		re = v.(*regexp.Regexp)
	} else {
		var err error
		re, err = regexp.Compile(pair.IgnoreRegex)
		if err != nil {
			logger.L.Warn("invalid ignore regex, treating as non-matching",
				zap.String("regex", pair.IgnoreRegex), zap.Error(err))
			return false
		}
		o.nameCache.Set("regex:"+pair.IgnoreRegex, re)
	}

	return re.MatchString(msg.PlainText())
}

// 阶段 5 at 段缺显示名时查群成员 带缓存 失败回退原始 ID
func (o *Orchestrator) resolveQQAtNames(ctx context.Context, roomID int64, msg *model.UnifiedMessage) {
	for i := range msg.Contents {
		c := &msg.Contents[i]
		if c.Type != model.ContentAt || c.At == nil || c.At.Name != "" {
			continue
		}

		key := fmt.Sprintf("member:%d:%s", roomID, c.At.UserID)
		if v, ok := o.nameCache.Get(key); ok {
			c.At.Name = v.(string)
			continue
		}

		userID, err := strconv.ParseInt(c.At.UserID, 10, 64)
		if err != nil {
			continue
		}
		member, err := o.qq.GetGroupMemberInfo(ctx, roomID, userID)
		if err != nil || member == nil {
			logger.L.Debug("member lookup failed, keeping raw id",
				zap.String("userID", c.At.UserID), zap.Error(err))
			continue
		}
		c.At.Name = member.DisplayName()
		o.nameCache.Set(key, c.At.Name)
	}
}

// 阶段 7 剥掉入站回复段并经映射器解析 缺失不是错误
func (o *Orchestrator) resolveReply(msg *model.UnifiedMessage, pair *model.ForwardPair) *model.ReplyTarget {
	var target *model.ReplyTarget
	kept := msg.Contents[:0]
	for _, c := range msg.Contents {
		if c.Type != model.ContentReply || c.Reply == nil {
			kept = append(kept, c)
			continue
		}
		if msg.Platform == model.PlatformQQ {
			target = o.mapper.ResolveQQReply(pair.QQRoomID, c.Reply.MessageID)
		} else {
			msgID, err := strconv.Atoi(c.Reply.MessageID)
			if err == nil {
				target = o.mapper.ResolveTelegramReply(pair.TGChatID, msgID)
			}
		}
	}
	msg.Contents = kept
	return target
}

// ---- 头部与策略 ----

// 富头部 发送者名加签名链接 关闭时只留名字前缀
func (o *Orchestrator) prependHeader(msg *model.UnifiedMessage, pair *model.ForwardPair) {
	if msg.Sender.Name == "" {
		return
	}

	header := msg.Sender.Name + ":\n"
	if !pair.HasFlag(model.FlagDisableRichHeader) {
		if token, err := utils.GeneratePairToken(pair.ID, msg.Sender.ID); err == nil {
			base := o.endpoints.PublicBase()
			if base == "" {
				base = o.endpoints.FallbackBase()
			}
			header = msg.Sender.Name + " (" + base + "/rich/" + token + "):\n"
		} else {
			logger.L.Warn("rich header token generation failed", zap.Error(err))
		}
	}

	msg.Contents = append([]model.MessageContent{model.TextContent(header)}, msg.Contents...)
}

// 阶段 8 按内容占比选发送方式
func SelectStrategy(msg *model.UnifiedMessage, showHeader bool) SendStrategy {
	hasVideoOrFile := false
	hasAudioOrImage := false
	for _, c := range msg.Contents {
		switch c.Type {
		case model.ContentVideo, model.ContentFile:
			hasVideoOrFile = true
		case model.ContentAudio, model.ContentImage:
			hasAudioOrImage = true
		}
	}
	if hasVideoOrFile {
		return StrategyForwardBundle
	}
	if hasAudioOrImage && showHeader {
		return StrategyTwoPhase
	}
	return StrategyPlain
}

// ---- 发送 ----

func (o *Orchestrator) sendToTelegram(ctx context.Context, chatID int64, outs []model.TGOutgoing, strategy SendStrategy) (*model.TGSendReceipt, error) {
	if len(outs) == 0 {
		return nil, nil
	}

	if strategy == StrategyTwoPhase && len(outs) > 1 && outs[0].Kind == model.TGOutText {
		first, err := o.tg.SendMessage(ctx, chatID, outs[0])
		if err != nil {
			return nil, err
		}
		for _, out := range outs[1:] {
			if _, err := o.tg.SendMessage(ctx, chatID, out); err != nil {
				logger.L.Warn("two-phase media send failed", zap.Error(err))
			}
		}
		return first, nil
	}

	mediaCount := 0
	for _, out := range outs {
		if groupableKind(out.Kind) {
			mediaCount++
		}
	}
	if mediaCount > 1 {
		// 媒体组只收可成组的媒体 文本并入首项说明 其余逐条补发
		var group, rest []model.TGOutgoing
		var caption string
		for _, out := range outs {
			switch {
			case out.Kind == model.TGOutText:
				caption += out.Text
			case groupableKind(out.Kind):
				group = append(group, out)
			default:
				rest = append(rest, out)
			}
		}
		if caption != "" {
			group[0].Caption = caption
		}
		receipts, err := o.tg.SendMediaGroup(ctx, chatID, group)
		if err != nil {
			return nil, err
		}
		for _, out := range rest {
			if _, err := o.tg.SendMessage(ctx, chatID, out); err != nil {
				logger.L.Warn("trailing send failed", zap.Error(err))
			}
		}
		if len(receipts) == 0 {
			return nil, nil
		}
		return &receipts[0], nil
	}

	var first *model.TGSendReceipt
	for _, out := range outs {
		r, err := o.tg.SendMessage(ctx, chatID, out)
		if err != nil {
			if first == nil {
				return nil, err
			}
			logger.L.Warn("trailing send failed", zap.Error(err))
			continue
		}
		if first == nil {
			first = r
		}
	}
	return first, nil
}

// Bot API sendMediaGroup 只接受这四种成员
func groupableKind(k model.TGOutgoingKind) bool {
	switch k {
	case model.TGOutPhoto, model.TGOutVideo, model.TGOutAudio, model.TGOutDocument:
		return true
	}
	return false
}

func (o *Orchestrator) sendToQQ(ctx context.Context, roomID int64, msg *model.UnifiedMessage, segs []model.QQSegment, strategy SendStrategy) (*model.QQSendReceipt, error) {
	if len(segs) == 0 {
		return nil, nil
	}

	if strategy == StrategyForwardBundle {
		userID, _ := strconv.ParseInt(msg.Sender.ID, 10, 64)
		node := model.QQForwardNode{Name: msg.Sender.Name, UserID: userID, Segments: segs}
		return o.qq.SendGroupForwardMsg(ctx, roomID, []model.QQForwardNode{node})
	}

	if strategy == StrategyTwoPhase && len(segs) > 1 && segs[0].Type == "text" {
		first, err := o.qq.SendMessage(ctx, roomID, segs[:1])
		if err != nil {
			return nil, err
		}
		if _, err := o.qq.SendMessage(ctx, roomID, segs[1:]); err != nil {
			logger.L.Warn("two-phase media send failed", zap.Error(err))
		}
		return first, nil
	}

	return o.qq.SendMessage(ctx, roomID, segs)
}

// ---- 撤回传播 ----

func (o *Orchestrator) drainRecalls(batch []*queue.Item) {
	ctx := context.Background()
	for _, item := range batch {
		task, ok := item.Payload.(recallTask)
		if !ok {
			continue
		}

		var err error
		if task.toTG {
			err = o.tg.DeleteMessages(ctx, task.tgChatID, []int{task.tgMsgID})
			if err == nil {
				metrics.RecallsPropagated.WithLabelValues("qq_to_tg").Inc()
			}
		} else {
			err = o.qq.RecallMessage(ctx, task.qqRoomID, int32(task.seq))
			if err == nil {
				metrics.RecallsPropagated.WithLabelValues("tg_to_qq").Inc()
			}
		}
		if err != nil {
			logger.L.Warn("recall propagation failed", zap.Uint("rowID", task.rowID), zap.Error(err))
			continue
		}

		// 标记 IgnoreDelete 对端随后的删除通知必须空转 防止撤回风暴
		if err := o.store.MarkDeleted(task.rowID, true); err != nil {
			logger.L.Error("failed to mark mapping deleted", zap.Uint("rowID", task.rowID), zap.Error(err))
		}
	}
}

// 消息级兜底 单条消息的任何阶段抛出都不得波及其他消息
func (o *Orchestrator) guard(direction string) {
	if r := recover(); r != nil {
		logger.L.Error("message processing panicked",
			zap.String("direction", direction),
			zap.Any("panic", r))
		metrics.MessagesDropped.WithLabelValues(direction, "panic").Inc()
	}
}
