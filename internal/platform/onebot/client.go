package onebot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go-qtbridge/internal/model"
	"go-qtbridge/pkg/config"
	"go-qtbridge/pkg/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// OneBot v11 正向 WebSocket 客户端 实现 interfaces.QQClient
// API 调用按 echo 关联响应 事件回调各自独立派发
type Client struct {
	cfg config.QQConfig

	conn    *websocket.Conn
	writeMu sync.Mutex
	connMu  sync.RWMutex

	echoSeq   atomic.Int64
	pending   map[string]chan json.RawMessage
	pendingMu sync.Mutex

	onMessage func(*model.QQEvent)
	onRecall  func(*model.QQRecallEvent)
}

func NewClient(cfg config.QQConfig) *Client {
	return &Client{
		cfg:     cfg,
		pending: make(map[string]chan json.RawMessage),
	}
}

func (c *Client) OnMessage(fn func(*model.QQEvent)) { c.onMessage = fn }

func (c *Client) OnRecall(fn func(*model.QQRecallEvent)) { c.onRecall = fn }

// 连接并阻塞读事件 断线按固定间隔重连 ctx 取消后返回
func (c *Client) Run(ctx context.Context) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}

		if err := c.connect(ctx); err != nil {
			logger.L.Warn("onebot connect failed", zap.String("url", c.cfg.WSURL), zap.Error(err))
		} else {
			backoff = time.Second
			c.readLoop(ctx)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (c *Client) connect(ctx context.Context) error {
	header := http.Header{}
	if c.cfg.AccessToken != "" {
		header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.WSURL, header)
	if err != nil {
		return fmt.Errorf("failed to dial onebot endpoint: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	logger.L.Info("onebot connected", zap.String("url", c.cfg.WSURL))
	return nil
}

func (c *Client) readLoop(ctx context.Context) {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	defer conn.Close()

	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			logger.L.Warn("onebot read failed, reconnecting", zap.Error(err))
			c.failPending()
			return
		}
		c.handleFrame(ctx, data)
	}
}

type rawEvent struct {
	PostType    string          `json:"post_type"`
	MessageType string          `json:"message_type"`
	NoticeType  string          `json:"notice_type"`
	MessageID   int32           `json:"message_id"`
	GroupID     int64           `json:"group_id"`
	UserID      int64           `json:"user_id"`
	OperatorID  int64           `json:"operator_id"`
	Time        int64           `json:"time"`
	Message     json.RawMessage `json:"message"`
	Sender      struct {
		Nickname string `json:"nickname"`
		Card     string `json:"card"`
	} `json:"sender"`
	Echo string          `json:"echo"`
	Data json.RawMessage `json:"data"`
}

func (c *Client) handleFrame(ctx context.Context, data []byte) {
	var ev rawEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		logger.L.Warn("undecodable onebot frame", zap.Error(err))
		return
	}

	// API 响应
	if ev.Echo != "" {
		c.pendingMu.Lock()
		ch, ok := c.pending[ev.Echo]
		delete(c.pending, ev.Echo)
		c.pendingMu.Unlock()
		if ok {
			ch <- json.RawMessage(data)
		}
		return
	}

	switch {
	case ev.PostType == "message":
		if c.onMessage == nil {
			return
		}
		qev := &model.QQEvent{
			MessageID: ev.MessageID,
			Seq:       ev.MessageID,
			RoomID:    ev.GroupID,
			UserID:    ev.UserID,
			Nickname:  ev.Sender.Nickname,
			Card:      ev.Sender.Card,
			Time:      ev.Time,
			Private:   ev.MessageType == "private",
			Segments:  parseSegments(ev.Message),
			Raw:       json.RawMessage(data),
		}
		if qev.Private {
			qev.RoomID = ev.UserID
		}
		// 每条消息独立任务 互不影响
		go c.onMessage(qev)

	case ev.PostType == "notice" && ev.NoticeType == "group_recall":
		if c.onRecall == nil {
			return
		}
		go c.onRecall(&model.QQRecallEvent{
			RoomID:     ev.GroupID,
			Seq:        ev.MessageID,
			MessageID:  ev.MessageID,
			OperatorID: ev.OperatorID,
		})
	}
}

// OneBot 消息数组里 data 的值可能是字符串或数字 统一转成字符串
func parseSegments(raw json.RawMessage) []model.QQSegment {
	var arr []struct {
		Type string                     `json:"type"`
		Data map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &arr); err != nil {
		// CQ 码字符串格式不展开 整体视为文本
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return []model.QQSegment{model.NewQQSegment("text", map[string]string{"text": s})}
		}
		return nil
	}

	segs := make([]model.QQSegment, 0, len(arr))
	for _, item := range arr {
		data := make(map[string]string, len(item.Data))
		for k, v := range item.Data {
			var s string
			if json.Unmarshal(v, &s) == nil {
				data[k] = s
			} else {
				data[k] = string(v)
			}
		}
		segs = append(segs, model.QQSegment{Type: item.Type, Data: data})
	}
	return segs
}

// ---- API 调用 ----

func (c *Client) callAPI(ctx context.Context, action string, params interface{}) (json.RawMessage, error) {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return nil, fmt.Errorf("onebot not connected")
	}

	echo := strconv.FormatInt(c.echoSeq.Add(1), 10)
	ch := make(chan json.RawMessage, 1)
	c.pendingMu.Lock()
	c.pending[echo] = ch
	c.pendingMu.Unlock()

	req := map[string]interface{}{"action": action, "params": params, "echo": echo}
	c.writeMu.Lock()
	err := conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		c.dropPending(echo)
		return nil, fmt.Errorf("onebot api write failed: %w", err)
	}

	timeout := time.Duration(c.cfg.APITimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	select {
	case resp := <-ch:
		var envelope struct {
			Status  string          `json:"status"`
			RetCode int             `json:"retcode"`
			Data    json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(resp, &envelope); err != nil {
			return nil, fmt.Errorf("undecodable onebot response: %w", err)
		}
		if envelope.Status == "failed" {
			return nil, fmt.Errorf("onebot action %s failed with retcode %d", action, envelope.RetCode)
		}
		return envelope.Data, nil
	case <-time.After(timeout):
		c.dropPending(echo)
		return nil, fmt.Errorf("onebot action %s timed out", action)
	case <-ctx.Done():
		c.dropPending(echo)
		return nil, ctx.Err()
	}
}

func (c *Client) dropPending(echo string) {
	c.pendingMu.Lock()
	delete(c.pending, echo)
	c.pendingMu.Unlock()
}

func (c *Client) failPending() {
	c.pendingMu.Lock()
	for echo, ch := range c.pending {
		close(ch)
		delete(c.pending, echo)
	}
	c.pendingMu.Unlock()
}

// ---- interfaces.QQClient ----

func (c *Client) SendMessage(ctx context.Context, roomID int64, segments []model.QQSegment) (*model.QQSendReceipt, error) {
	data, err := c.callAPI(ctx, "send_group_msg", map[string]interface{}{
		"group_id": roomID,
		"message":  obSegments(segments),
	})
	if err != nil {
		return nil, err
	}
	return receiptFrom(data)
}

func (c *Client) SendGroupForwardMsg(ctx context.Context, roomID int64, nodes []model.QQForwardNode) (*model.QQSendReceipt, error) {
	obNodes := make([]map[string]interface{}, 0, len(nodes))
	for _, n := range nodes {
		obNodes = append(obNodes, map[string]interface{}{
			"type": "node",
			"data": map[string]interface{}{
				"name":    n.Name,
				"uin":     strconv.FormatInt(n.UserID, 10),
				"content": obSegments(n.Segments),
			},
		})
	}
	data, err := c.callAPI(ctx, "send_group_forward_msg", map[string]interface{}{
		"group_id": roomID,
		"messages": obNodes,
	})
	if err != nil {
		return nil, err
	}
	return receiptFrom(data)
}

func (c *Client) RecallMessage(ctx context.Context, roomID int64, messageID int32) error {
	_, err := c.callAPI(ctx, "delete_msg", map[string]interface{}{"message_id": messageID})
	return err
}

func (c *Client) GetGroupMemberInfo(ctx context.Context, roomID, userID int64) (*model.GroupMember, error) {
	data, err := c.callAPI(ctx, "get_group_member_info", map[string]interface{}{
		"group_id": roomID,
		"user_id":  userID,
	})
	if err != nil {
		return nil, err
	}
	var member model.GroupMember
	if err := json.Unmarshal(data, &member); err != nil {
		return nil, fmt.Errorf("undecodable member info: %w", err)
	}
	return &member, nil
}

func (c *Client) GetGroupInfo(ctx context.Context, roomID int64) (*model.GroupInfo, error) {
	data, err := c.callAPI(ctx, "get_group_info", map[string]interface{}{"group_id": roomID})
	if err != nil {
		return nil, err
	}
	var info model.GroupInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("undecodable group info: %w", err)
	}
	return &info, nil
}

// 媒体句柄取回 get_image 返回缓存文件路径或 URL
func (c *Client) DownloadMedia(ctx context.Context, file string) ([]byte, error) {
	data, err := c.callAPI(ctx, "get_image", map[string]interface{}{"file": file})
	if err != nil {
		return nil, err
	}
	var res struct {
		File string `json:"file"`
		URL  string `json:"url"`
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("undecodable media info: %w", err)
	}
	if res.File != "" {
		if buf, err := os.ReadFile(res.File); err == nil {
			return buf, nil
		}
	}
	if res.URL != "" {
		return httpGet(ctx, res.URL)
	}
	return nil, fmt.Errorf("media %s has no readable source", file)
}

func obSegments(segments []model.QQSegment) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(segments))
	for _, s := range segments {
		out = append(out, map[string]interface{}{"type": s.Type, "data": s.Data})
	}
	return out
}

func receiptFrom(data json.RawMessage) (*model.QQSendReceipt, error) {
	var receipt model.QQSendReceipt
	if err := json.Unmarshal(data, &receipt); err != nil {
		return nil, fmt.Errorf("undecodable send receipt: %w", err)
	}
	if receipt.Seq == 0 {
		receipt.Seq = receipt.MessageID
	}
	return &receipt, nil
}

func httpGet(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
