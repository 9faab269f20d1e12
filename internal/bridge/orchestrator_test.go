package bridge

import (
	"context"
	"testing"
	"time"

	"go-qtbridge/internal/media"
	"go-qtbridge/internal/model"
	"go-qtbridge/pkg/config"

	"github.com/stretchr/testify/assert"
)

func newTestOrchestrator(t *testing.T, pair *model.ForwardPair) (*Orchestrator, *fakeQQClient, *fakeTGClient, *fakeMappingStore) {
	t.Helper()
	return newTestOrchestratorFS(t, pair, true)
}

func newTestOrchestratorFS(t *testing.T, pair *model.ForwardPair, sharesFS bool) (*Orchestrator, *fakeQQClient, *fakeTGClient, *fakeMappingStore) {
	t.Helper()

	mediaCfg := config.MediaConfig{
		ScratchDir:    t.TempDir(),
		FallbackBase:  "https://media.qtbridge.example",
		SilkPath:      "/nonexistent/silk",
		FFmpegPath:    "/nonexistent/ffmpeg",
		ToolTimeoutMs: 1000,
	}
	pipeline, err := media.NewPipeline(mediaCfg, media.NewConfigEndpoints(mediaCfg))
	assert.NoError(t, err)

	qq := newFakeQQClient()
	tg := newFakeTGClient()
	store := newFakeMappingStore()

	o := NewOrchestrator(Deps{
		QQ:               qq,
		TG:               tg,
		Pairs:            &fakePairStore{pair: pair},
		Mappings:         store,
		Media:            pipeline,
		Endpoints:        media.NewConfigEndpoints(mediaCfg),
		SharesFilesystem: sharesFS,
	})
	t.Cleanup(o.Close)
	return o, qq, tg, store
}

func testPair() *model.ForwardPair {
	return &model.ForwardPair{
		ID:       1,
		QQRoomID: 123,
		TGChatID: -100,
		Flags:    model.FlagDisableRichHeader,
	}
}

func textEvent(text string) *model.QQEvent {
	return &model.QQEvent{
		MessageID: 2001,
		Seq:       42,
		RoomID:    123,
		UserID:    10086,
		Nickname:  "tester",
		Time:      1700000000,
		Segments:  []model.QQSegment{model.NewQQSegment("text", map[string]string{"text": text})},
	}
}

func TestOrchestrator_QQTextForwardedAndMapped(t *testing.T) {
	o, _, tg, store := newTestOrchestrator(t, testPair())

	o.HandleQQMessage(context.Background(), textEvent("hello"))

	assert.Equal(t, 1, tg.sentCount())
	assert.Contains(t, tg.sent[0].out.Text, "hello")
	assert.Contains(t, tg.sent[0].out.Text, "tester")

	assert.Equal(t, 1, store.rowCount())
	row := store.row(0)
	assert.Equal(t, int64(123), row.QQRoomID)
	assert.Equal(t, int32(42), row.Seq)
	assert.Equal(t, int64(-100), row.TGChatID)
	assert.Equal(t, 1, row.TGMsgID)
}

func TestOrchestrator_NoPairDropsSilently(t *testing.T) {
	o, _, tg, store := newTestOrchestrator(t, nil)

	o.HandleQQMessage(context.Background(), textEvent("hello"))

	assert.Equal(t, 0, tg.sentCount())
	assert.Equal(t, 0, store.rowCount())
}

func TestOrchestrator_DirectionFlagGate(t *testing.T) {
	pair := testPair()
	pair.Flags |= model.FlagDisableQQ2TG
	o, _, tg, _ := newTestOrchestrator(t, pair)

	o.HandleQQMessage(context.Background(), textEvent("hello"))
	assert.Equal(t, 0, tg.sentCount())
}

func TestOrchestrator_SenderBlocklist(t *testing.T) {
	pair := testPair()
	pair.IgnoreSenders = "999, 10086"
	o, _, tg, _ := newTestOrchestrator(t, pair)

	o.HandleQQMessage(context.Background(), textEvent("hello"))
	assert.Equal(t, 0, tg.sentCount())
}

func TestOrchestrator_IgnoreRegexMatchDrops(t *testing.T) {
	pair := testPair()
	pair.IgnoreRegex = `^\[bot\]`
	o, _, tg, _ := newTestOrchestrator(t, pair)

	o.HandleQQMessage(context.Background(), textEvent("[bot] automated"))
	assert.Equal(t, 0, tg.sentCount())

	o.HandleQQMessage(context.Background(), textEvent("human message"))
	assert.Equal(t, 1, tg.sentCount())
}

func TestOrchestrator_InvalidRegexNeverCrashes(t *testing.T) {
	pair := testPair()
	pair.IgnoreRegex = `([`
	o, _, tg, _ := newTestOrchestrator(t, pair)

	assert.NotPanics(t, func() {
		o.HandleQQMessage(context.Background(), textEvent("hello"))
	})
	assert.Equal(t, 1, tg.sentCount(), "invalid regex must be treated as non-matching")
}

func TestOrchestrator_AtNameResolvedViaMemberLookup(t *testing.T) {
	o, qq, tg, _ := newTestOrchestrator(t, testPair())
	qq.members[555] = &model.GroupMember{UserID: 555, Nickname: "Alice"}

	ev := textEvent("ping ")
	ev.Segments = append(ev.Segments, model.NewQQSegment("at", map[string]string{"qq": "555"}))
	o.HandleQQMessage(context.Background(), ev)

	assert.Equal(t, 1, tg.sentCount())
	assert.Contains(t, tg.sent[0].out.Text, "@Alice")
}

func TestOrchestrator_AtNameFallsBackToRawID(t *testing.T) {
	o, _, tg, _ := newTestOrchestrator(t, testPair())

	ev := textEvent("ping ")
	ev.Segments = append(ev.Segments, model.NewQQSegment("at", map[string]string{"qq": "777"}))
	o.HandleQQMessage(context.Background(), ev)

	assert.Equal(t, 1, tg.sentCount())
	assert.Contains(t, tg.sent[0].out.Text, "@777")
}

func TestOrchestrator_UnresolvableMediaDowngrades(t *testing.T) {
	o, _, tg, store := newTestOrchestrator(t, testPair())

	ev := textEvent("see pic")
	ev.Segments = append(ev.Segments, model.NewQQSegment("image", map[string]string{"file": "gone"}))
	o.HandleQQMessage(context.Background(), ev)

	// 图片取回失败只降级该段 消息仍然转发并建立映射
	assert.Equal(t, 1, tg.sentCount())
	assert.Contains(t, tg.sent[0].out.Text, "[图片]")
	assert.Equal(t, 1, store.rowCount())
}

func TestOrchestrator_TelegramReplyRebuilt(t *testing.T) {
	o, qq, _, store := newTestOrchestrator(t, testPair())

	assert.NoError(t, store.Create(&model.MessageMapping{
		QQRoomID: 123, Seq: 77, TGChatID: -100, TGMsgID: 9,
	}))

	o.HandleTelegramUpdate(context.Background(), &model.TGUpdate{
		MessageID: 10, ChatID: -100, FromID: 777, FromName: "Bob",
		ReplyToMessageID: 9, Text: "re",
	})

	assert.Equal(t, 1, qq.sentCount())
	segs := qq.sent[0].segs
	assert.Equal(t, "reply", segs[0].Type)
	assert.Equal(t, "77", segs[0].Data["id"])
	assert.Equal(t, 2, store.rowCount(), "forwarded reply also records a mapping")
}

func TestOrchestrator_ReplyMissStillSends(t *testing.T) {
	o, qq, _, _ := newTestOrchestrator(t, testPair())

	o.HandleTelegramUpdate(context.Background(), &model.TGUpdate{
		MessageID: 11, ChatID: -100, FromID: 777, FromName: "Bob",
		ReplyToMessageID: 404, Text: "orphan reply",
	})

	assert.Equal(t, 1, qq.sentCount())
	for _, seg := range qq.sent[0].segs {
		assert.NotEqual(t, "reply", seg.Type, "missing mapping must not produce a reply segment")
	}
}

func TestOrchestrator_RecallCycleBreaking(t *testing.T) {
	o, qq, tg, store := newTestOrchestrator(t, testPair())

	assert.NoError(t, store.Create(&model.MessageMapping{
		QQRoomID: 123, Seq: 42, TGChatID: -100, TGMsgID: 9,
	}))

	// QQ 侧撤回 传播为 Telegram 删除
	o.HandleQQRecall(context.Background(), &model.QQRecallEvent{RoomID: 123, Seq: 42})
	assert.Eventually(t, func() bool {
		return len(tg.deletedIn(-100)) == 1
	}, 3*time.Second, 20*time.Millisecond)

	row := store.row(0)
	assert.True(t, row.Deleted)
	assert.True(t, row.IgnoreDelete)

	// Telegram 随之发来的删除通知必须空转 不得再撤回 QQ
	o.HandleTelegramDelete(context.Background(), &model.TGDeleteEvent{ChatID: -100, MessageIDs: []int{9}})
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, 0, qq.recallCount())
}

func TestOrchestrator_TelegramDeletePropagatesOnce(t *testing.T) {
	o, qq, _, store := newTestOrchestrator(t, testPair())

	assert.NoError(t, store.Create(&model.MessageMapping{
		QQRoomID: 123, Seq: 55, TGChatID: -100, TGMsgID: 20,
	}))

	o.HandleTelegramDelete(context.Background(), &model.TGDeleteEvent{ChatID: -100, MessageIDs: []int{20}})
	assert.Eventually(t, func() bool {
		return qq.recallCount() == 1
	}, 3*time.Second, 20*time.Millisecond)

	// 重复投递同一通知 行已标记 不再传播
	o.HandleTelegramDelete(context.Background(), &model.TGDeleteEvent{ChatID: -100, MessageIDs: []int{20}})
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, 1, qq.recallCount())
}

func TestSelectStrategy(t *testing.T) {
	text := &model.UnifiedMessage{Contents: []model.MessageContent{model.TextContent("a")}}
	assert.Equal(t, StrategyPlain, SelectStrategy(text, true))

	video := &model.UnifiedMessage{Contents: []model.MessageContent{
		{Type: model.ContentVideo, Video: &model.VideoData{File: "v"}},
	}}
	assert.Equal(t, StrategyForwardBundle, SelectStrategy(video, true))

	image := &model.UnifiedMessage{Contents: []model.MessageContent{
		model.TextContent("caption"),
		{Type: model.ContentImage, Image: &model.ImageData{File: "i"}},
	}}
	assert.Equal(t, StrategyTwoPhase, SelectStrategy(image, true))
	assert.Equal(t, StrategyPlain, SelectStrategy(image, false))

	// 视频优先于图片的两段式
	mixed := &model.UnifiedMessage{Contents: []model.MessageContent{
		{Type: model.ContentImage, Image: &model.ImageData{File: "i"}},
		{Type: model.ContentVideo, Video: &model.VideoData{File: "v"}},
	}}
	assert.Equal(t, StrategyForwardBundle, SelectStrategy(mixed, true))
}

func TestOrchestrator_MediaGroupExcludesTextItems(t *testing.T) {
	o, qq, tg, store := newTestOrchestrator(t, testPair())
	qq.media["p1"] = []byte("first image bytes")
	qq.media["p2"] = []byte("second image bytes")

	ev := textEvent("two pics")
	ev.Segments = append(ev.Segments,
		model.NewQQSegment("image", map[string]string{"file": "p1"}),
		model.NewQQSegment("image", map[string]string{"file": "p2"}))
	o.HandleQQMessage(context.Background(), ev)

	// 文本不能进媒体组 必须并入首项说明
	assert.Len(t, tg.groups, 1)
	for _, item := range tg.groups[0] {
		assert.NotEqual(t, model.TGOutText, item.Kind)
		assert.NotEmpty(t, item.Media)
	}
	assert.Contains(t, tg.groups[0][0].Caption, "two pics")
	assert.Equal(t, 0, tg.sentCount())
	assert.Equal(t, 1, store.rowCount())
}

func TestOrchestrator_VoiceURLWhenNoSharedFilesystem(t *testing.T) {
	o, qq, tg, _ := newTestOrchestratorFS(t, testPair(), false)
	tg.media["v-1"] = []byte("fake voice bytes")

	o.HandleTelegramUpdate(context.Background(), &model.TGUpdate{
		MessageID: 13, ChatID: -100, FromID: 777, FromName: "Bob",
		VoiceFileID: "v-1", VoiceDuration: 3,
	})

	// 转码兜底为文件附件 且对端读不到本地盘 引用必须是合成 URL
	assert.Len(t, qq.forwards, 1)
	found := false
	for _, seg := range qq.forwards[0][0].Segments {
		if seg.Type == "file" {
			found = true
			assert.Contains(t, seg.Data["file"], "https://media.qtbridge.example/media/voice-")
		}
	}
	assert.True(t, found, "voice fallback segment missing")
}

func TestOrchestrator_VideoUsesForwardBundle(t *testing.T) {
	o, qq, tg, _ := newTestOrchestrator(t, testPair())
	tg.media["vid-1"] = []byte("fake video bytes")

	o.HandleTelegramUpdate(context.Background(), &model.TGUpdate{
		MessageID: 12, ChatID: -100, FromID: 777, FromName: "Bob",
		VideoFileID: "vid-1", VideoDuration: 42,
	})

	assert.Equal(t, 0, qq.sentCount())
	assert.Len(t, qq.forwards, 1, "video goes out as a forward bundle")
}
