package bridge

import (
	"context"

	"go-qtbridge/internal/media"
	"go-qtbridge/internal/model"
	"go-qtbridge/pkg/logger"
	"go-qtbridge/pkg/metrics"

	"go.uber.org/zap"
)

const animatedStickerMime = "application/x-tgsticker"

// 阶段 6 出站平台所需的媒体规范化
// 单段失败只降级该段为占位文本 消息其余部分照常转发

// QQ → Telegram Telegram 客户端可直接上传本地文件 统一落到本地路径
func (o *Orchestrator) normalizeForTelegram(ctx context.Context, msg *model.UnifiedMessage) {
	for i := range msg.Contents {
		c := &msg.Contents[i]
		switch c.Type {
		case model.ContentImage, model.ContentVideo, model.ContentAudio, model.ContentFile:
			src := o.media.ResolveSource(ctx, c, o.qq.DownloadMedia)
			if src == nil {
				o.downgrade(c)
				continue
			}
			ref, err := o.media.Materialize(mediaKind(c.Type), src, "", true)
			if err != nil {
				logger.L.Warn("materialize failed", zap.Error(err))
				o.downgrade(c)
				continue
			}
			setMediaRef(c, ref)
		}
	}
}

// Telegram → QQ 贴纸转 GIF/PNG 语音走 silk 回退链
// QQ 进程读不到本地文件时改为合成 URL
func (o *Orchestrator) normalizeForQQ(ctx context.Context, msg *model.UnifiedMessage) {
	for i := range msg.Contents {
		c := &msg.Contents[i]
		switch c.Type {
		case model.ContentImage:
			if c.Image != nil && c.Image.IsSticker {
				o.normalizeSticker(ctx, c)
				continue
			}
			o.normalizeGeneric(ctx, c)
		case model.ContentVideo, model.ContentFile:
			o.normalizeGeneric(ctx, c)
		case model.ContentAudio:
			o.normalizeVoice(ctx, c)
		}
	}
}

func (o *Orchestrator) normalizeGeneric(ctx context.Context, c *model.MessageContent) {
	src := o.media.ResolveSource(ctx, c, o.tg.DownloadMedia)
	if src == nil {
		o.downgrade(c)
		return
	}
	ref, err := o.media.Materialize(mediaKind(c.Type), src, "", o.sharesFS)
	if err != nil {
		logger.L.Warn("materialize failed", zap.Error(err))
		o.downgrade(c)
		return
	}
	setMediaRef(c, ref)
}

// 动态贴纸转 GIF 静态转 PNG 转换失败就地降级为占位文本 不丢段
func (o *Orchestrator) normalizeSticker(ctx context.Context, c *model.MessageContent) {
	src := o.media.ResolveSource(ctx, c, o.tg.DownloadMedia)
	if src == nil || len(src.Bytes) == 0 {
		o.downgrade(c)
		return
	}

	var path string
	var err error
	if c.Image.MimeType == animatedStickerMime {
		path, err = o.media.ConvertAnimatedSticker(ctx, src.Bytes)
	} else {
		path, err = o.media.ConvertStaticSticker(src.Bytes)
	}
	if err != nil {
		logger.L.Warn("sticker conversion failed, downgrading", zap.Error(err))
		*c = model.TextContent("[贴纸]")
		metrics.MediaFallbacks.WithLabelValues("sticker").Inc()
		return
	}

	if !o.sharesFS {
		if url, merr := o.media.Materialize("image", &media.Source{Path: path}, "", false); merr == nil {
			path = url
		}
	}
	c.Image.File = path
}

// 语音回退链的出口有两种 silk 语音或原样文件附件
func (o *Orchestrator) normalizeVoice(ctx context.Context, c *model.MessageContent) {
	src := o.media.ResolveSource(ctx, c, o.tg.DownloadMedia)
	if src == nil {
		o.downgrade(c)
		return
	}
	local, err := o.media.Materialize("voice", src, "", true)
	if err != nil {
		o.downgrade(c)
		return
	}

	res := o.media.ConvertToVoice(ctx, local)

	// 对端读不到本地文件时 两种出口都要换成合成 URL
	ref := res.Path
	if !o.sharesFS {
		if url, merr := o.media.Materialize("voice", &media.Source{Path: ref}, "", false); merr == nil {
			ref = url
		}
	}

	if res.AsFile {
		*c = model.MessageContent{Type: model.ContentFile, File: &model.FileData{
			File:     ref,
			FileName: c.Audio.FileName,
		}}
		return
	}
	c.Audio.File = ref
}

func (o *Orchestrator) downgrade(c *model.MessageContent) {
	logger.L.Warn("media unresolvable, downgrading to placeholder",
		zap.String("type", string(c.Type)))
	metrics.MediaFallbacks.WithLabelValues(string(c.Type)).Inc()
	*c = model.TextContent(placeholder(c.Type))
}

func placeholder(t model.ContentType) string {
	switch t {
	case model.ContentImage:
		return "[图片]"
	case model.ContentVideo:
		return "[视频]"
	case model.ContentAudio:
		return "[语音]"
	case model.ContentFile:
		return "[文件]"
	default:
		return "[" + string(t) + "]"
	}
}

func mediaKind(t model.ContentType) string {
	switch t {
	case model.ContentImage:
		return "image"
	case model.ContentVideo:
		return "video"
	case model.ContentAudio:
		return "voice"
	default:
		return "file"
	}
}

func setMediaRef(c *model.MessageContent, ref string) {
	switch c.Type {
	case model.ContentImage:
		if c.Image != nil {
			c.Image.File = ref
		}
	case model.ContentVideo:
		if c.Video != nil {
			c.Video.File = ref
		}
	case model.ContentAudio:
		if c.Audio != nil {
			c.Audio.File = ref
		}
	case model.ContentFile:
		if c.File != nil {
			c.File.File = ref
		}
	}
}
