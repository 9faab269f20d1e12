package media

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go-qtbridge/internal/interfaces"
	"go-qtbridge/internal/model"
	"go-qtbridge/pkg/config"
	"go-qtbridge/pkg/logger"

	"go.uber.org/zap"
)

// 已取回的媒体 二选一 字节缓冲或本地路径
type Source struct {
	Bytes []byte
	Path  string
}

// 媒体管线 负责取回 落盘 转码与 URL 合成
type Pipeline struct {
	cfg        config.MediaConfig
	endpoints  interfaces.EndpointResolver
	httpClient *http.Client
}

func NewPipeline(cfg config.MediaConfig, endpoints interfaces.EndpointResolver) (*Pipeline, error) {
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = "media"
	}
	if err := os.MkdirAll(cfg.ScratchDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	return &Pipeline{
		cfg:        cfg,
		endpoints:  endpoints,
		httpClient: &http.Client{Timeout: cfg.ToolTimeout()},
	}, nil
}

// 依次尝试 本地路径 URL 下载 平台媒体句柄
// 全部失败返回 nil 调用方须降级为占位文本 不得中断整条消息
func (p *Pipeline) ResolveSource(ctx context.Context, content *model.MessageContent, fetch interfaces.MediaFetcher) *Source {
	ref, url := contentRefs(content)
	if ref == "" && url == "" {
		return nil
	}

	if ref != "" {
		if _, err := os.Stat(ref); err == nil {
			return &Source{Path: ref}
		}
	}

	for _, u := range []string{url, ref} {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			continue
		}
		data, err := p.download(ctx, u)
		if err != nil {
			logger.L.Warn("media download failed", zap.String("url", u), zap.Error(err))
			continue
		}
		return &Source{Bytes: data}
	}

	if fetch != nil && ref != "" {
		data, err := fetch(ctx, ref)
		if err != nil {
			logger.L.Warn("platform media fetch failed", zap.String("ref", ref), zap.Error(err))
		} else if len(data) > 0 {
			return &Source{Bytes: data}
		}
	}

	logger.L.Warn("media source unresolvable", zap.String("ref", ref), zap.String("url", url))
	return nil
}

func contentRefs(content *model.MessageContent) (ref, url string) {
	switch content.Type {
	case model.ContentImage:
		if content.Image != nil {
			return content.Image.File, content.Image.URL
		}
	case model.ContentVideo:
		if content.Video != nil {
			return content.Video.File, content.Video.URL
		}
	case model.ContentAudio:
		if content.Audio != nil {
			return content.Audio.File, content.Audio.URL
		}
	case model.ContentFile:
		if content.File != nil {
			return content.File.File, content.File.URL
		}
	}
	return "", ""
}

func (p *Pipeline) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// 落盘并给出引用 文件名为 时间戳+随机后缀 避免跨任务加锁
// forceLocal 时直接返回本地路径 供目标进程可读本地文件系统的场景
func (p *Pipeline) Materialize(kind string, src *Source, extHint string, forceLocal bool) (string, error) {
	if src == nil {
		return "", fmt.Errorf("nil media source")
	}

	if src.Path != "" && len(src.Bytes) == 0 {
		if forceLocal {
			return src.Path, nil
		}
		data, err := os.ReadFile(src.Path)
		if err != nil {
			return "", fmt.Errorf("failed to read media file: %w", err)
		}
		if extHint == "" {
			extHint = filepath.Ext(src.Path)
		}
		src = &Source{Bytes: data}
	}

	ext := extHint
	if ext == "" {
		ext = DetectExtension(src.Bytes)
	}

	name := fmt.Sprintf("%s-%d-%d%s", kind, nowMilli(), randSuffix(), ext)
	path := filepath.Join(p.cfg.ScratchDir, name)
	if err := os.WriteFile(path, src.Bytes, 0644); err != nil {
		return "", fmt.Errorf("failed to write media file: %w", err)
	}

	if forceLocal {
		return path, nil
	}
	return p.urlFor(name), nil
}

// 基础地址优先级 内网 > 公网 > 文档化的兜底主机
func (p *Pipeline) urlFor(name string) string {
	base := p.endpoints.InternalBase()
	if base == "" {
		base = p.endpoints.PublicBase()
	}
	if base == "" {
		base = p.endpoints.FallbackBase()
	}
	return strings.TrimSuffix(base, "/") + "/media/" + name
}

// 按魔数探测扩展名 探测不出默认 .jpg
func DetectExtension(data []byte) string {
	switch http.DetectContentType(data) {
	case "image/webp":
		return ".webp"
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "video/mp4":
		return ".mp4"
	case "audio/mpeg":
		return ".mp3"
	case "application/ogg":
		return ".ogg"
	case "application/pdf":
		return ".pdf"
	default:
		return ".jpg"
	}
}

// 配置驱动的端点解析器
type ConfigEndpoints struct {
	cfg config.MediaConfig
}

func NewConfigEndpoints(cfg config.MediaConfig) *ConfigEndpoints {
	return &ConfigEndpoints{cfg: cfg}
}

func (e *ConfigEndpoints) InternalBase() string { return e.cfg.InternalBase }
func (e *ConfigEndpoints) PublicBase() string   { return e.cfg.PublicBase }
func (e *ConfigEndpoints) FallbackBase() string { return e.cfg.FallbackBase }

func nowMilli() int64 {
	return time.Now().UnixMilli()
}

func randSuffix() int {
	return rand.Intn(100000)
}
