package model

import (
	"encoding/json"
	"time"
)

type Platform string

const (
	PlatformQQ       Platform = "qq"
	PlatformTelegram Platform = "telegram"
)

type ChatType string

const (
	ChatPrivate ChatType = "private"
	ChatGroup   ChatType = "group"
)

type ContentType string

const (
	ContentText     ContentType = "text"
	ContentImage    ContentType = "image"
	ContentVideo    ContentType = "video"
	ContentAudio    ContentType = "audio"
	ContentFile     ContentType = "file"
	ContentAt       ContentType = "at"
	ContentFace     ContentType = "face"
	ContentReply    ContentType = "reply"
	ContentForward  ContentType = "forward"
	ContentLocation ContentType = "location"
	ContentDice     ContentType = "dice"
)

type Sender struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Chat struct {
	ID   string   `json:"id"`
	Type ChatType `json:"type"`
}

// 原生对象的不透明透传 核心管线从不解读其内容
type RawNative struct {
	Platform Platform        `json:"platform"`
	Data     json.RawMessage `json:"data"`
}

// 平台无关的规范消息 内容段顺序即发送顺序
type UnifiedMessage struct {
	ID        string           `json:"id"`
	Platform  Platform         `json:"platform"`
	Sender    Sender           `json:"sender"`
	Chat      Chat             `json:"chat"`
	Contents  []MessageContent `json:"contents"`
	Timestamp time.Time        `json:"timestamp"`
	Raw       RawNative        `json:"-"`
}

// 标签联合 Type 决定哪个载荷字段有效
type MessageContent struct {
	Type     ContentType   `json:"type"`
	Text     *TextData     `json:"text,omitempty"`
	Image    *ImageData    `json:"image,omitempty"`
	Video    *VideoData    `json:"video,omitempty"`
	Audio    *AudioData    `json:"audio,omitempty"`
	File     *FileData     `json:"file,omitempty"`
	At       *AtData       `json:"at,omitempty"`
	Face     *FaceData     `json:"face,omitempty"`
	Reply    *ReplyData    `json:"reply,omitempty"`
	Forward  *ForwardData  `json:"forward,omitempty"`
	Location *LocationData `json:"location,omitempty"`
	Dice     *DiceData     `json:"dice,omitempty"`
}

type TextData struct {
	Text string `json:"text"`
}

type ImageData struct {
	// 平台侧的文件引用 可能是路径 URL 或媒体句柄
	File      string `json:"file"`
	URL       string `json:"url,omitempty"`
	MimeType  string `json:"mimeType,omitempty"`
	IsSticker bool   `json:"isSticker,omitempty"`
	FileName  string `json:"fileName,omitempty"`
}

type VideoData struct {
	File     string `json:"file"`
	URL      string `json:"url,omitempty"`
	Duration int    `json:"duration,omitempty"`
	FileName string `json:"fileName,omitempty"`
}

type AudioData struct {
	File     string `json:"file"`
	URL      string `json:"url,omitempty"`
	Duration int    `json:"duration,omitempty"`
	FileName string `json:"fileName,omitempty"`
}

type FileData struct {
	File     string `json:"file"`
	URL      string `json:"url,omitempty"`
	FileName string `json:"fileName,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

type AtData struct {
	UserID string `json:"userId"`
	Name   string `json:"name,omitempty"`
}

type FaceData struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type ReplyData struct {
	// 回复目标在本平台内的标识 QQ 为 seq Telegram 为消息 ID
	MessageID string `json:"messageId,omitempty"`
	Seq       int32  `json:"seq,omitempty"`
	Text      string `json:"text,omitempty"`
}

type ForwardData struct {
	ResID string `json:"resId"`
	Count int    `json:"count,omitempty"`
}

type LocationData struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Title     string  `json:"title,omitempty"`
	Address   string  `json:"address,omitempty"`
}

type DiceData struct {
	Value int    `json:"value"`
	Emoji string `json:"emoji,omitempty"`
}

func TextContent(text string) MessageContent {
	return MessageContent{Type: ContentText, Text: &TextData{Text: text}}
}

// 拼接消息的全部文本段 用于黑名单正则与摘要
func (m *UnifiedMessage) PlainText() string {
	var out string
	for _, c := range m.Contents {
		if c.Type == ContentText && c.Text != nil {
			out += c.Text.Text
		}
	}
	return out
}

// 是否包含任一媒体段
func (m *UnifiedMessage) HasMedia() bool {
	for _, c := range m.Contents {
		switch c.Type {
		case ContentImage, ContentVideo, ContentAudio, ContentFile:
			return true
		}
	}
	return false
}
