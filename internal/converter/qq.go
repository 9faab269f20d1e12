package converter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go-qtbridge/internal/model"
	"go-qtbridge/pkg/logger"

	"go.uber.org/zap"
)

// OneBot v11 消息段与规范消息的双向转换
type QQConverter struct {
	// 位置卡片的结构化编码 可注入以便测试失败路径
	encodeLocation func(model.LocationData) ([]byte, error)
}

func NewQQConverter() *QQConverter {
	return &QQConverter{
		encodeLocation: defaultLocationCard,
	}
}

// 腾讯地图卡片格式的位置 JSON
func defaultLocationCard(loc model.LocationData) ([]byte, error) {
	card := map[string]interface{}{
		"app": "com.tencent.map",
		"desc": "地图",
		"view": "LocationShare",
		"meta": map[string]interface{}{
			"Location.Search": map[string]interface{}{
				"lat":     fmt.Sprintf("%f", loc.Latitude),
				"lng":     fmt.Sprintf("%f", loc.Longitude),
				"name":    loc.Title,
				"address": loc.Address,
			},
		},
	}
	return json.Marshal(card)
}

// 每个可识别的原生段都必须产出一个合法变体
// 无法识别或解析失败的段降级为占位文本 绝不丢段
func (c *QQConverter) FromEvent(ev *model.QQEvent) *model.UnifiedMessage {
	msg := &model.UnifiedMessage{
		ID:       strconv.FormatInt(int64(ev.MessageID), 10),
		Platform: model.PlatformQQ,
		Sender: model.Sender{
			ID:   strconv.FormatInt(ev.UserID, 10),
			Name: qqDisplayName(ev),
		},
		Chat: model.Chat{
			ID:   strconv.FormatInt(ev.RoomID, 10),
			Type: model.ChatGroup,
		},
		Timestamp: time.Unix(ev.Time, 0),
		Raw:       model.RawNative{Platform: model.PlatformQQ, Data: ev.Raw},
	}
	if ev.Private {
		msg.Chat.Type = model.ChatPrivate
	}

	for _, seg := range ev.Segments {
		msg.Contents = append(msg.Contents, c.fromSegment(seg))
	}
	return msg
}

func qqDisplayName(ev *model.QQEvent) string {
	if ev.Card != "" {
		return ev.Card
	}
	return ev.Nickname
}

func (c *QQConverter) fromSegment(seg model.QQSegment) model.MessageContent {
	switch seg.Type {
	case "text":
		return model.TextContent(seg.Data["text"])
	case "image":
		return model.MessageContent{Type: model.ContentImage, Image: &model.ImageData{
			File:      seg.Data["file"],
			URL:       seg.Data["url"],
			IsSticker: seg.Data["sub_type"] != "" && seg.Data["sub_type"] != "0",
			FileName:  seg.Data["file"],
		}}
	case "record":
		return model.MessageContent{Type: model.ContentAudio, Audio: &model.AudioData{
			File: seg.Data["file"],
			URL:  seg.Data["url"],
		}}
	case "video":
		dur, _ := strconv.Atoi(seg.Data["duration"])
		return model.MessageContent{Type: model.ContentVideo, Video: &model.VideoData{
			File:     seg.Data["file"],
			URL:      seg.Data["url"],
			Duration: dur,
		}}
	case "file":
		size, _ := strconv.ParseInt(seg.Data["size"], 10, 64)
		return model.MessageContent{Type: model.ContentFile, File: &model.FileData{
			File:     seg.Data["file"],
			URL:      seg.Data["url"],
			FileName: seg.Data["name"],
			Size:     size,
		}}
	case "at":
		return model.MessageContent{Type: model.ContentAt, At: &model.AtData{
			UserID: seg.Data["qq"],
			Name:   seg.Data["name"],
		}}
	case "face":
		return model.MessageContent{Type: model.ContentFace, Face: &model.FaceData{
			ID: seg.Data["id"],
		}}
	case "reply":
		return model.MessageContent{Type: model.ContentReply, Reply: &model.ReplyData{
			MessageID: seg.Data["id"],
		}}
	case "forward":
		count, _ := strconv.Atoi(seg.Data["count"])
		return model.MessageContent{Type: model.ContentForward, Forward: &model.ForwardData{
			ResID: seg.Data["id"],
			Count: count,
		}}
	case "location":
		lat, latErr := strconv.ParseFloat(seg.Data["lat"], 64)
		lng, lngErr := strconv.ParseFloat(seg.Data["lon"], 64)
		if latErr != nil || lngErr != nil {
			return model.TextContent("[位置] " + seg.Data["title"])
		}
		return model.MessageContent{Type: model.ContentLocation, Location: &model.LocationData{
			Latitude:  lat,
			Longitude: lng,
			Title:     seg.Data["title"],
			Address:   seg.Data["content"],
		}}
	case "dice":
		val, _ := strconv.Atoi(seg.Data["result"])
		return model.MessageContent{Type: model.ContentDice, Dice: &model.DiceData{Value: val}}
	default:
		logger.L.Debug("unrecognized QQ segment, degrading to text", zap.String("type", seg.Type))
		return model.TextContent("[" + seg.Type + "]")
	}
}

// 规范消息转出站 OneBot 段
// reply 为映射器解析出的回复目标 nil 表示无回复关联
// 入站消息里的 reply/at 段绝不原样带过来 只能由 reply 重建
func (c *QQConverter) ToSegments(msg *model.UnifiedMessage, reply *model.ReplyTarget) []model.QQSegment {
	var segs []model.QQSegment

	if reply != nil && reply.Seq != 0 {
		segs = append(segs, model.NewQQSegment("reply", map[string]string{
			"id": strconv.FormatInt(int64(reply.Seq), 10),
		}))
	}

	for _, content := range msg.Contents {
		switch content.Type {
		case model.ContentText:
			if content.Text != nil {
				segs = append(segs, model.NewQQSegment("text", map[string]string{"text": content.Text.Text}))
			}
		case model.ContentImage:
			if content.Image != nil {
				segs = append(segs, model.NewQQSegment("image", map[string]string{"file": content.Image.File}))
			}
		case model.ContentAudio:
			if content.Audio != nil {
				segs = append(segs, model.NewQQSegment("record", map[string]string{"file": content.Audio.File}))
			}
		case model.ContentVideo:
			if content.Video != nil {
				segs = append(segs, model.NewQQSegment("video", map[string]string{"file": content.Video.File}))
			}
		case model.ContentFile:
			if content.File != nil {
				segs = append(segs, model.NewQQSegment("file", map[string]string{
					"file": content.File.File,
					"name": content.File.FileName,
				}))
			}
		case model.ContentAt:
			if content.At != nil {
				segs = append(segs, c.atToSegment(content.At))
			}
		case model.ContentFace:
			if content.Face != nil {
				segs = append(segs, model.NewQQSegment("face", map[string]string{"id": content.Face.ID}))
			}
		case model.ContentLocation:
			if content.Location != nil {
				segs = append(segs, c.locationToSegment(*content.Location))
			}
		case model.ContentForward:
			if content.Forward != nil {
				segs = append(segs, model.NewQQSegment("text", map[string]string{
					"text": fmt.Sprintf("[聊天记录 %d条]", content.Forward.Count),
				}))
			}
		case model.ContentDice:
			if content.Dice != nil {
				segs = append(segs, model.NewQQSegment("text", map[string]string{
					"text": fmt.Sprintf("[骰子 %d点]", content.Dice.Value),
				}))
			}
		case model.ContentReply:
			// 入站回复段已在上游剥离并经映射器重建 此处跳过
		default:
			segs = append(segs, model.NewQQSegment("text", map[string]string{"text": "[" + string(content.Type) + "]"}))
		}
	}
	return segs
}

// 对端平台的用户在本平台无法 @ 渲染为纯文本
func (c *QQConverter) atToSegment(at *model.AtData) model.QQSegment {
	name := at.Name
	if name == "" {
		name = at.UserID
	}
	return model.NewQQSegment("text", map[string]string{"text": "@" + name + " "})
}

// 结构化编码成功发 JSON 卡片 任何失败都退回单个文本段 该路径不允许出错
func (c *QQConverter) locationToSegment(loc model.LocationData) model.QQSegment {
	card, err := c.encodeLocation(loc)
	if err == nil {
		return model.NewQQSegment("json", map[string]string{"data": string(card)})
	}

	logger.L.Warn("location card encoding failed, falling back to text", zap.Error(err))
	return model.NewQQSegment("text", map[string]string{"text": LocationFallbackText(loc)})
}

// 位置降级文本 "[位置] 标题\n地址\n地图链接"
func LocationFallbackText(loc model.LocationData) string {
	text := "[位置] " + loc.Title
	if loc.Address != "" {
		text += "\n" + loc.Address
	}
	if loc.Latitude != 0 || loc.Longitude != 0 {
		text += "\n" + MapsLink(loc.Latitude, loc.Longitude)
	}
	return text
}

func MapsLink(lat, lng float64) string {
	return fmt.Sprintf("https://maps.google.com/?q=%f,%f", lat, lng)
}
