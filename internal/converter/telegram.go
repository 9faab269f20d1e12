package converter

import (
	"fmt"
	"strconv"
	"time"

	"go-qtbridge/internal/model"
	"go-qtbridge/pkg/logger"

	"go.uber.org/zap"
)

// Telegram Bot API 消息与规范消息的双向转换
type TelegramConverter struct{}

func NewTelegramConverter() *TelegramConverter {
	return &TelegramConverter{}
}

const animatedStickerMime = "application/x-tgsticker"

func (c *TelegramConverter) FromUpdate(u *model.TGUpdate) *model.UnifiedMessage {
	msg := &model.UnifiedMessage{
		ID:       strconv.Itoa(u.MessageID),
		Platform: model.PlatformTelegram,
		Sender: model.Sender{
			ID:   strconv.FormatInt(u.FromID, 10),
			Name: u.FromName,
		},
		Chat: model.Chat{
			ID:   strconv.FormatInt(u.ChatID, 10),
			Type: model.ChatGroup,
		},
		Timestamp: time.Unix(u.Date, 0),
		Raw:       model.RawNative{Platform: model.PlatformTelegram, Data: u.Raw},
	}
	if u.ChatType == "private" {
		msg.Chat.Type = model.ChatPrivate
	}

	if u.ReplyToMessageID != 0 {
		msg.Contents = append(msg.Contents, model.MessageContent{
			Type:  model.ContentReply,
			Reply: &model.ReplyData{MessageID: strconv.Itoa(u.ReplyToMessageID)},
		})
	}

	msg.Contents = append(msg.Contents, c.mediaContents(u)...)

	if u.Text != "" {
		msg.Contents = append(msg.Contents, model.TextContent(u.Text))
	}
	if u.Caption != "" {
		msg.Contents = append(msg.Contents, model.TextContent(u.Caption))
	}

	for _, id := range u.MentionIDs {
		msg.Contents = append(msg.Contents, model.MessageContent{
			Type: model.ContentAt,
			At:   &model.AtData{UserID: strconv.FormatInt(id, 10)},
		})
	}

	return msg
}

func (c *TelegramConverter) mediaContents(u *model.TGUpdate) []model.MessageContent {
	var out []model.MessageContent

	if u.PhotoFileID != "" {
		out = append(out, model.MessageContent{Type: model.ContentImage, Image: &model.ImageData{
			File: u.PhotoFileID,
		}})
	}
	if u.StickerFileID != "" {
		mime := ""
		if u.StickerIsAnim {
			mime = animatedStickerMime
		}
		out = append(out, model.MessageContent{Type: model.ContentImage, Image: &model.ImageData{
			File:      u.StickerFileID,
			MimeType:  mime,
			IsSticker: true,
		}})
	}
	if u.VideoFileID != "" {
		out = append(out, model.MessageContent{Type: model.ContentVideo, Video: &model.VideoData{
			File:     u.VideoFileID,
			Duration: u.VideoDuration,
		}})
	}
	if u.VoiceFileID != "" {
		out = append(out, model.MessageContent{Type: model.ContentAudio, Audio: &model.AudioData{
			File:     u.VoiceFileID,
			Duration: u.VoiceDuration,
		}})
	}
	if u.AudioFileID != "" {
		out = append(out, model.MessageContent{Type: model.ContentAudio, Audio: &model.AudioData{
			File: u.AudioFileID,
		}})
	}
	if u.DocumentFileID != "" {
		out = append(out, model.MessageContent{Type: model.ContentFile, File: &model.FileData{
			File:     u.DocumentFileID,
			FileName: u.DocumentName,
			Size:     u.DocumentSize,
		}})
	}
	if u.Latitude != 0 || u.Longitude != 0 {
		out = append(out, model.MessageContent{Type: model.ContentLocation, Location: &model.LocationData{
			Latitude:  u.Latitude,
			Longitude: u.Longitude,
			Title:     u.VenueTitle,
			Address:   u.VenueAddress,
		}})
	}
	if u.DiceEmoji != "" {
		out = append(out, model.MessageContent{Type: model.ContentDice, Dice: &model.DiceData{
			Value: u.DiceValue,
			Emoji: u.DiceEmoji,
		}})
	}
	return out
}

// 规范消息转 Telegram 出站单元
// replyTo 为映射器解析出的目标消息 ID 0 表示无回复关联
func (c *TelegramConverter) ToOutgoing(msg *model.UnifiedMessage, replyTo int, threadID int) []model.TGOutgoing {
	var out []model.TGOutgoing
	var text string

	flushText := func() {
		if text != "" {
			out = append(out, model.TGOutgoing{Kind: model.TGOutText, Text: text})
			text = ""
		}
	}

	for _, content := range msg.Contents {
		switch content.Type {
		case model.ContentText:
			if content.Text != nil {
				text += content.Text.Text
			}
		case model.ContentAt:
			if content.At != nil {
				name := content.At.Name
				if name == "" {
					name = content.At.UserID
				}
				text += "@" + name + " "
			}
		case model.ContentFace:
			if content.Face != nil {
				name := content.Face.Name
				if name == "" {
					name = content.Face.ID
				}
				text += "[" + name + "]"
			}
		case model.ContentImage:
			if content.Image != nil {
				flushText()
				out = append(out, model.TGOutgoing{Kind: model.TGOutPhoto, Media: content.Image.File})
			}
		case model.ContentVideo:
			if content.Video != nil {
				flushText()
				out = append(out, model.TGOutgoing{
					Kind:     model.TGOutVideo,
					Media:    content.Video.File,
					Duration: content.Video.Duration,
				})
			}
		case model.ContentAudio:
			if content.Audio != nil {
				flushText()
				out = append(out, model.TGOutgoing{
					Kind:     model.TGOutVoice,
					Media:    content.Audio.File,
					Duration: content.Audio.Duration,
				})
			}
		case model.ContentFile:
			if content.File != nil {
				flushText()
				out = append(out, model.TGOutgoing{
					Kind:     model.TGOutDocument,
					Media:    content.File.File,
					FileName: content.File.FileName,
				})
			}
		case model.ContentLocation:
			if content.Location != nil {
				flushText()
				out = append(out, c.locationToOutgoing(*content.Location))
			}
		case model.ContentForward:
			if content.Forward != nil {
				text += fmt.Sprintf("[合并转发 %d条消息]", content.Forward.Count)
			}
		case model.ContentDice:
			if content.Dice != nil {
				text += fmt.Sprintf("[骰子 %d点]", content.Dice.Value)
			}
		case model.ContentReply:
			// 经映射器重建 不携带对端原始 ID
		default:
			logger.L.Debug("unrecognized content type for Telegram, degrading to text",
				zap.String("type", string(content.Type)))
			text += "[" + string(content.Type) + "]"
		}
	}
	flushText()

	if len(out) > 0 {
		out[0].ReplyToMessageID = replyTo
	}
	for i := range out {
		out[i].ThreadID = threadID
	}
	return out
}

// 带标题地址发 venue 否则发裸坐标 两者都是结构化变体
func (c *TelegramConverter) locationToOutgoing(loc model.LocationData) model.TGOutgoing {
	if loc.Title != "" || loc.Address != "" {
		return model.TGOutgoing{
			Kind:         model.TGOutVenue,
			Latitude:     loc.Latitude,
			Longitude:    loc.Longitude,
			VenueTitle:   loc.Title,
			VenueAddress: loc.Address,
		}
	}
	return model.TGOutgoing{
		Kind:      model.TGOutLocation,
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
	}
}
