package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"go-qtbridge/pkg/logger"
	"go-qtbridge/pkg/metrics"
	"go-qtbridge/pkg/utils"

	"go.uber.org/zap"
	"golang.org/x/image/webp"
)

// 动态贴纸(lottie)转 GIF 结果按内容键缓存在共享目录里
// 转换失败返回错误 由调用方降级为 "[贴纸]" 占位文本
func (p *Pipeline) ConvertAnimatedSticker(ctx context.Context, data []byte) (string, error) {
	if p.cfg.LottiePath == "" {
		return "", fmt.Errorf("lottie converter not configured")
	}

	key := utils.CacheKey(data)
	out := filepath.Join(p.cfg.ScratchDir, "sticker-"+key+".gif")
	if _, err := os.Stat(out); err == nil {
		return out, nil
	}

	in := p.scratchName("sticker", ".tgs")
	if err := os.WriteFile(in, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write sticker input: %w", err)
	}
	defer os.Remove(in)

	if err := p.runTool(ctx, p.cfg.LottiePath, in, out); err != nil {
		metrics.MediaFallbacks.WithLabelValues("sticker").Inc()
		return "", fmt.Errorf("lottie conversion failed: %w", err)
	}
	return out, nil
}

// 静态贴纸规范化为 PNG 写入共享目录 返回本地路径
// 解码失败时按探测到的扩展名原样落盘 探测不出默认 .jpg
func (p *Pipeline) ConvertStaticSticker(data []byte) (string, error) {
	img, err := decodeSticker(data)
	if err != nil {
		logger.L.Warn("sticker decode failed, keeping original buffer", zap.Error(err))
		return p.Materialize("image", &Source{Bytes: data}, DetectExtension(data), true)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode sticker as png: %w", err)
	}
	return p.Materialize("image", &Source{Bytes: buf.Bytes()}, ".png", true)
}

// Telegram 静态贴纸是 webp 先试 webp 再走通用解码
func decodeSticker(data []byte) (image.Image, error) {
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("undecodable sticker image: %w", err)
	}
	return img, nil
}
