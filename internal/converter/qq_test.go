package converter

import (
	"errors"
	"strings"
	"testing"

	"go-qtbridge/internal/model"
	"go-qtbridge/pkg/logger"

	"github.com/stretchr/testify/assert"
)

func TestMain(m *testing.M) {
	logger.InitForTest()
	m.Run()
}

func qqEvent(segs ...model.QQSegment) *model.QQEvent {
	return &model.QQEvent{
		MessageID: 1001,
		Seq:       42,
		RoomID:    123456,
		UserID:    10086,
		Nickname:  "tester",
		Time:      1700000000,
		Segments:  segs,
	}
}

func TestQQConverter_TextRoundTrip(t *testing.T) {
	c := NewQQConverter()

	msg := c.FromEvent(qqEvent(model.NewQQSegment("text", map[string]string{"text": "hello world"})))
	assert.Len(t, msg.Contents, 1)
	assert.Equal(t, model.ContentText, msg.Contents[0].Type)
	assert.Equal(t, "hello world", msg.Contents[0].Text.Text)

	segs := c.ToSegments(msg, nil)
	assert.Len(t, segs, 1)
	assert.Equal(t, "text", segs[0].Type)
	assert.Equal(t, "hello world", segs[0].Data["text"])
}

func TestQQConverter_VideoDurationPassthrough(t *testing.T) {
	c := NewQQConverter()

	msg := c.FromEvent(qqEvent(model.NewQQSegment("video", map[string]string{
		"file":     "video-abc.mp4",
		"duration": "42",
	})))
	assert.Len(t, msg.Contents, 1)
	assert.Equal(t, model.ContentVideo, msg.Contents[0].Type)
	assert.Equal(t, "video-abc.mp4", msg.Contents[0].Video.File)
	assert.Equal(t, 42, msg.Contents[0].Video.Duration)
}

func TestQQConverter_ReplyRebuiltFromMapper(t *testing.T) {
	c := NewQQConverter()

	// 入站消息带 Telegram 侧回复段 出站时必须被剥离
	msg := &model.UnifiedMessage{
		Platform: model.PlatformTelegram,
		Contents: []model.MessageContent{
			{Type: model.ContentReply, Reply: &model.ReplyData{MessageID: "987"}},
			model.TextContent("reply body"),
		},
	}

	segs := c.ToSegments(msg, &model.ReplyTarget{Seq: 77})
	assert.Len(t, segs, 2)
	assert.Equal(t, "reply", segs[0].Type)
	assert.Equal(t, "77", segs[0].Data["id"])
	assert.Equal(t, "text", segs[1].Type)

	// 无映射时不得携带对端 ID
	segs = c.ToSegments(msg, nil)
	assert.Len(t, segs, 1)
	assert.Equal(t, "text", segs[0].Type)
}

func TestQQConverter_LocationStructured(t *testing.T) {
	c := NewQQConverter()

	msg := &model.UnifiedMessage{Contents: []model.MessageContent{{
		Type: model.ContentLocation,
		Location: &model.LocationData{
			Latitude: 22.3, Longitude: 114.1,
			Title: "Harbor", Address: "Somewhere",
		},
	}}}

	segs := c.ToSegments(msg, nil)
	assert.Len(t, segs, 1)
	assert.Equal(t, "json", segs[0].Type)
	card := segs[0].Data["data"]
	assert.Contains(t, card, "Harbor")
	assert.Contains(t, card, "Somewhere")
	assert.Contains(t, card, "22.3")
	assert.Contains(t, card, "114.1")
}

func TestQQConverter_LocationFallbackNeverRaises(t *testing.T) {
	c := NewQQConverter()
	c.encodeLocation = func(model.LocationData) ([]byte, error) {
		return nil, errors.New("encoding broken")
	}

	msg := &model.UnifiedMessage{Contents: []model.MessageContent{{
		Type: model.ContentLocation,
		Location: &model.LocationData{
			Latitude: 22.3, Longitude: 114.1,
			Title: "Harbor", Address: "Somewhere",
		},
	}}}

	var segs []model.QQSegment
	assert.NotPanics(t, func() { segs = c.ToSegments(msg, nil) })
	assert.Len(t, segs, 1)
	assert.Equal(t, "text", segs[0].Type)

	text := segs[0].Data["text"]
	assert.Contains(t, text, "Harbor")
	assert.Contains(t, text, "Somewhere")
	assert.Contains(t, text, "maps.google.com")
	assert.Contains(t, text, "22.3")
	assert.Contains(t, text, "114.1")
}

func TestQQConverter_UnknownSegmentDegradesToText(t *testing.T) {
	c := NewQQConverter()

	msg := c.FromEvent(qqEvent(
		model.NewQQSegment("text", map[string]string{"text": "before"}),
		model.NewQQSegment("rps", map[string]string{}),
	))
	assert.Len(t, msg.Contents, 2, "unknown segment must not be dropped")
	assert.Equal(t, model.ContentText, msg.Contents[1].Type)
	assert.True(t, strings.Contains(msg.Contents[1].Text.Text, "rps"))
}

func TestQQConverter_DiceDowngrade(t *testing.T) {
	c := NewQQConverter()

	msg := &model.UnifiedMessage{Contents: []model.MessageContent{{
		Type: model.ContentDice,
		Dice: &model.DiceData{Value: 4},
	}}}

	segs := c.ToSegments(msg, nil)
	assert.Len(t, segs, 1)
	assert.Equal(t, "text", segs[0].Type)
	assert.Contains(t, segs[0].Data["text"], "4")
}

func TestQQConverter_AtRenderedAsText(t *testing.T) {
	c := NewQQConverter()

	msg := &model.UnifiedMessage{Contents: []model.MessageContent{{
		Type: model.ContentAt,
		At:   &model.AtData{UserID: "555", Name: "Alice"},
	}}}

	segs := c.ToSegments(msg, nil)
	assert.Len(t, segs, 1)
	assert.Equal(t, "text", segs[0].Type)
	assert.Contains(t, segs[0].Data["text"], "Alice")
}

func TestQQConverter_AtTargetIDPreserved(t *testing.T) {
	c := NewQQConverter()

	msg := c.FromEvent(qqEvent(model.NewQQSegment("at", map[string]string{"qq": "10001"})))
	assert.Len(t, msg.Contents, 1)
	assert.Equal(t, model.ContentAt, msg.Contents[0].Type)
	assert.Equal(t, "10001", msg.Contents[0].At.UserID)
}
