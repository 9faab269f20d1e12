package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go-qtbridge/pkg/logger"
	"go-qtbridge/pkg/metrics"

	"go.uber.org/zap"
)

// 语音转换结果 AsFile 为 true 表示走了兜底 按普通文件附件发送
type AudioResult struct {
	Path   string
	AsFile bool
}

// QQ 语音要求 silk 编码 按固定顺序回退 调用方依赖该顺序
//  1. silk 编码器直接转
//  2. ffmpeg 重编码为 wav 中间容器后再转
//  3. 同名 .wav 兄弟文件存在则用它重试
//  4. 彻底失败 原文件按普通附件发送 保证不丢消息
//
// 每步失败只记日志 不中断
func (p *Pipeline) ConvertToVoice(ctx context.Context, path string) *AudioResult {
	if out, err := p.encodeSilk(ctx, path); err == nil {
		return &AudioResult{Path: out}
	} else {
		logger.L.Warn("direct silk encode failed", zap.String("path", path), zap.Error(err))
	}

	if wav, err := p.reencodeWav(ctx, path); err == nil {
		if out, err := p.encodeSilk(ctx, wav); err == nil {
			return &AudioResult{Path: out}
		} else {
			logger.L.Warn("silk encode of ffmpeg output failed", zap.String("path", wav), zap.Error(err))
		}
	} else {
		logger.L.Warn("ffmpeg reencode failed", zap.String("path", path), zap.Error(err))
	}

	sibling := strings.TrimSuffix(path, filepath.Ext(path)) + ".wav"
	if sibling != path {
		if _, statErr := os.Stat(sibling); statErr == nil {
			if out, err := p.encodeSilk(ctx, sibling); err == nil {
				return &AudioResult{Path: out}
			} else {
				logger.L.Warn("silk encode of sibling wav failed", zap.String("path", sibling), zap.Error(err))
			}
		}
	}

	logger.L.Warn("voice conversion exhausted all fallbacks, sending as file", zap.String("path", path))
	metrics.MediaFallbacks.WithLabelValues("audio").Inc()
	return &AudioResult{Path: path, AsFile: true}
}

func (p *Pipeline) encodeSilk(ctx context.Context, path string) (string, error) {
	if p.cfg.SilkPath == "" {
		return "", fmt.Errorf("silk encoder not configured")
	}
	out := p.scratchName("voice", ".silk")
	if err := p.runTool(ctx, p.cfg.SilkPath, path, out); err != nil {
		return "", err
	}
	return out, nil
}

func (p *Pipeline) reencodeWav(ctx context.Context, path string) (string, error) {
	out := p.scratchName("voice", ".wav")
	if err := p.runTool(ctx, p.cfg.FFmpegPath, "-y", "-i", path, "-ar", "24000", "-ac", "1", out); err != nil {
		return "", err
	}
	return out, nil
}

// 外部工具调用统一走这里 由超时限定时长
func (p *Pipeline) runTool(ctx context.Context, bin string, args ...string) error {
	toolCtx, cancel := context.WithTimeout(ctx, p.cfg.ToolTimeout())
	defer cancel()

	cmd := exec.CommandContext(toolCtx, bin, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s failed: %w: %s", filepath.Base(bin), err, truncate(string(output), 200))
	}
	return nil
}

func (p *Pipeline) scratchName(kind, ext string) string {
	name := fmt.Sprintf("%s-%d-%d%s", kind, nowMilli(), randSuffix(), ext)
	return filepath.Join(p.cfg.ScratchDir, name)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
