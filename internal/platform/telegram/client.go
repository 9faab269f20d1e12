package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go-qtbridge/internal/model"
	"go-qtbridge/pkg/config"
	"go-qtbridge/pkg/logger"

	"go.uber.org/zap"
)

// Telegram Bot API 客户端 长轮询收消息 实现 interfaces.TelegramClient
// 本地文件走 multipart 上传 URL 和 file_id 直接透传
type Client struct {
	base  string
	token string
	http  *http.Client

	pollTimeout int
	offset      int64

	onMessage func(*model.TGUpdate)
	onDelete  func(*model.TGDeleteEvent)
}

func NewClient(cfg config.TelegramConfig) *Client {
	base := strings.TrimSuffix(cfg.APIBase, "/")
	if base == "" {
		base = "https://api.telegram.org"
	}
	timeout := cfg.PollTimeoutSecs
	if timeout <= 0 {
		timeout = 30
	}
	return &Client{
		base:        base,
		token:       cfg.BotToken,
		pollTimeout: timeout,
		http:        &http.Client{Timeout: time.Duration(timeout+15) * time.Second},
	}
}

func (c *Client) OnMessage(fn func(*model.TGUpdate)) { c.onMessage = fn }

func (c *Client) OnDelete(fn func(*model.TGDeleteEvent)) { c.onDelete = fn }

// ---- 长轮询 ----

func (c *Client) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := c.pollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.L.Warn("telegram poll failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(3 * time.Second):
			}
		}
	}
}

func (c *Client) pollOnce(ctx context.Context) error {
	var updates []json.RawMessage
	err := c.call(ctx, "getUpdates", map[string]interface{}{
		"offset":          c.offset,
		"timeout":         c.pollTimeout,
		"allowed_updates": []string{"message", "deleted_business_messages"},
	}, &updates)
	if err != nil {
		return err
	}

	for _, raw := range updates {
		c.handleUpdate(raw)
	}
	return nil
}

type apiUpdate struct {
	UpdateID int64       `json:"update_id"`
	Message  *apiMessage `json:"message"`
	Deleted  *struct {
		Chat       apiChat `json:"chat"`
		MessageIDs []int   `json:"message_ids"`
	} `json:"deleted_business_messages"`
}

type apiChat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type apiMessage struct {
	MessageID    int     `json:"message_id"`
	ThreadID     int     `json:"message_thread_id"`
	Date         int64   `json:"date"`
	Chat         apiChat `json:"chat"`
	From         *struct {
		ID        int64  `json:"id"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Username  string `json:"username"`
	} `json:"from"`
	Text           string `json:"text"`
	Caption        string `json:"caption"`
	MediaGroupID   string `json:"media_group_id"`
	ReplyToMessage *struct {
		MessageID int `json:"message_id"`
	} `json:"reply_to_message"`

	Photo []struct {
		FileID string `json:"file_id"`
	} `json:"photo"`
	Video *struct {
		FileID   string `json:"file_id"`
		Duration int    `json:"duration"`
	} `json:"video"`
	Voice *struct {
		FileID   string `json:"file_id"`
		Duration int    `json:"duration"`
	} `json:"voice"`
	Audio *struct {
		FileID string `json:"file_id"`
	} `json:"audio"`
	Document *struct {
		FileID   string `json:"file_id"`
		FileName string `json:"file_name"`
		FileSize int64  `json:"file_size"`
	} `json:"document"`
	Sticker *struct {
		FileID     string `json:"file_id"`
		IsAnimated bool   `json:"is_animated"`
		Emoji      string `json:"emoji"`
	} `json:"sticker"`
	Location *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location"`
	Venue *struct {
		Location struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"location"`
		Title   string `json:"title"`
		Address string `json:"address"`
	} `json:"venue"`
	Dice *struct {
		Emoji string `json:"emoji"`
		Value int    `json:"value"`
	} `json:"dice"`
	Entities []struct {
		Type string `json:"type"`
		User *struct {
			ID int64 `json:"id"`
		} `json:"user"`
	} `json:"entities"`
}

func (c *Client) handleUpdate(raw json.RawMessage) {
	var up apiUpdate
	if err := json.Unmarshal(raw, &up); err != nil {
		logger.L.Warn("undecodable telegram update", zap.Error(err))
		return
	}
	if up.UpdateID >= c.offset {
		c.offset = up.UpdateID + 1
	}

	switch {
	case up.Message != nil:
		if c.onMessage == nil {
			return
		}
		go c.onMessage(flatten(up.Message, raw))
	case up.Deleted != nil:
		if c.onDelete == nil {
			return
		}
		go c.onDelete(&model.TGDeleteEvent{
			ChatID:     up.Deleted.Chat.ID,
			MessageIDs: up.Deleted.MessageIDs,
		})
	}
}

func flatten(m *apiMessage, raw json.RawMessage) *model.TGUpdate {
	u := &model.TGUpdate{
		MessageID:    m.MessageID,
		ChatID:       m.Chat.ID,
		ChatType:     m.Chat.Type,
		ThreadID:     m.ThreadID,
		Date:         m.Date,
		Text:         m.Text,
		Caption:      m.Caption,
		MediaGroupID: m.MediaGroupID,
		Raw:          raw,
	}
	if m.From != nil {
		u.FromID = m.From.ID
		u.FromName = strings.TrimSpace(m.From.FirstName + " " + m.From.LastName)
		if u.FromName == "" {
			u.FromName = m.From.Username
		}
	}
	if m.ReplyToMessage != nil {
		u.ReplyToMessageID = m.ReplyToMessage.MessageID
	}
	if len(m.Photo) > 0 {
		// 取最大尺寸
		u.PhotoFileID = m.Photo[len(m.Photo)-1].FileID
	}
	if m.Video != nil {
		u.VideoFileID = m.Video.FileID
		u.VideoDuration = m.Video.Duration
	}
	if m.Voice != nil {
		u.VoiceFileID = m.Voice.FileID
		u.VoiceDuration = m.Voice.Duration
	}
	if m.Audio != nil {
		u.AudioFileID = m.Audio.FileID
	}
	if m.Document != nil {
		u.DocumentFileID = m.Document.FileID
		u.DocumentName = m.Document.FileName
		u.DocumentSize = m.Document.FileSize
	}
	if m.Sticker != nil {
		u.StickerFileID = m.Sticker.FileID
		u.StickerIsAnim = m.Sticker.IsAnimated
		u.StickerEmoji = m.Sticker.Emoji
	}
	if m.Location != nil {
		u.Latitude = m.Location.Latitude
		u.Longitude = m.Location.Longitude
	}
	if m.Venue != nil {
		u.Latitude = m.Venue.Location.Latitude
		u.Longitude = m.Venue.Location.Longitude
		u.VenueTitle = m.Venue.Title
		u.VenueAddress = m.Venue.Address
	}
	if m.Dice != nil {
		u.DiceEmoji = m.Dice.Emoji
		u.DiceValue = m.Dice.Value
	}
	for _, ent := range m.Entities {
		if ent.Type == "text_mention" && ent.User != nil {
			u.MentionIDs = append(u.MentionIDs, ent.User.ID)
		}
	}
	return u
}

// ---- interfaces.TelegramClient ----

func (c *Client) SendMessage(ctx context.Context, chatID int64, out model.TGOutgoing) (*model.TGSendReceipt, error) {
	params := map[string]interface{}{"chat_id": chatID}
	if out.ReplyToMessageID != 0 {
		params["reply_to_message_id"] = out.ReplyToMessageID
		params["allow_sending_without_reply"] = true
	}
	if out.ThreadID != 0 {
		params["message_thread_id"] = out.ThreadID
	}

	var method, fileField string
	switch out.Kind {
	case model.TGOutText:
		method = "sendMessage"
		params["text"] = out.Text
	case model.TGOutPhoto:
		method, fileField = "sendPhoto", "photo"
	case model.TGOutVideo:
		method, fileField = "sendVideo", "video"
		if out.Duration > 0 {
			params["duration"] = out.Duration
		}
	case model.TGOutVoice:
		method, fileField = "sendVoice", "voice"
		if out.Duration > 0 {
			params["duration"] = out.Duration
		}
	case model.TGOutAudio:
		method, fileField = "sendAudio", "audio"
	case model.TGOutDocument:
		method, fileField = "sendDocument", "document"
	case model.TGOutLocation:
		method = "sendLocation"
		params["latitude"] = out.Latitude
		params["longitude"] = out.Longitude
	case model.TGOutVenue:
		method = "sendVenue"
		params["latitude"] = out.Latitude
		params["longitude"] = out.Longitude
		params["title"] = out.VenueTitle
		params["address"] = out.VenueAddress
	default:
		return nil, fmt.Errorf("unsupported outgoing kind %q", out.Kind)
	}

	if fileField != "" && out.Caption != "" {
		params["caption"] = out.Caption
	}

	var msg apiMessage
	var err error
	if fileField != "" && isLocalFile(out.Media) {
		err = c.callMultipart(ctx, method, params, fileField, out.Media, out.FileName, &msg)
	} else {
		if fileField != "" {
			params[fileField] = out.Media
		}
		err = c.call(ctx, method, params, &msg)
	}
	if err != nil {
		return nil, err
	}
	return &model.TGSendReceipt{MessageID: msg.MessageID}, nil
}

func (c *Client) SendMediaGroup(ctx context.Context, chatID int64, items []model.TGOutgoing) ([]model.TGSendReceipt, error) {
	params := map[string]interface{}{"chat_id": chatID}
	if items[0].ReplyToMessageID != 0 {
		params["reply_to_message_id"] = items[0].ReplyToMessageID
		params["allow_sending_without_reply"] = true
	}
	if items[0].ThreadID != 0 {
		params["message_thread_id"] = items[0].ThreadID
	}

	type attachment struct {
		field string
		path  string
	}
	var attachments []attachment
	media := make([]map[string]interface{}, 0, len(items))
	for i, item := range items {
		entry := map[string]interface{}{"type": groupMediaType(item.Kind)}
		if item.Caption != "" {
			entry["caption"] = item.Caption
		}
		if isLocalFile(item.Media) {
			field := "file" + strconv.Itoa(i)
			entry["media"] = "attach://" + field
			attachments = append(attachments, attachment{field: field, path: item.Media})
		} else {
			entry["media"] = item.Media
		}
		media = append(media, entry)
	}
	mediaJSON, err := json.Marshal(media)
	if err != nil {
		return nil, fmt.Errorf("failed to encode media group: %w", err)
	}
	params["media"] = string(mediaJSON)

	var msgs []apiMessage
	if len(attachments) > 0 {
		body := &bytes.Buffer{}
		w := multipart.NewWriter(body)
		for k, v := range params {
			if err := w.WriteField(k, fmt.Sprint(v)); err != nil {
				return nil, err
			}
		}
		for _, att := range attachments {
			if err := writeFilePart(w, att.field, att.path, ""); err != nil {
				return nil, err
			}
		}
		w.Close()
		err = c.post(ctx, "sendMediaGroup", w.FormDataContentType(), body, &msgs)
	} else {
		err = c.call(ctx, "sendMediaGroup", params, &msgs)
	}
	if err != nil {
		return nil, err
	}

	receipts := make([]model.TGSendReceipt, 0, len(msgs))
	for _, m := range msgs {
		receipts = append(receipts, model.TGSendReceipt{MessageID: m.MessageID})
	}
	return receipts, nil
}

func (c *Client) DeleteMessages(ctx context.Context, chatID int64, messageIDs []int) error {
	var ok bool
	return c.call(ctx, "deleteMessages", map[string]interface{}{
		"chat_id":     chatID,
		"message_ids": messageIDs,
	}, &ok)
}

func (c *Client) EditChatTitle(ctx context.Context, chatID int64, title string) error {
	var ok bool
	return c.call(ctx, "setChatTitle", map[string]interface{}{
		"chat_id": chatID,
		"title":   title,
	}, &ok)
}

func (c *Client) SetChatPhoto(ctx context.Context, chatID int64, photo []byte) error {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if err := w.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return err
	}
	part, err := w.CreateFormFile("photo", "photo.jpg")
	if err != nil {
		return err
	}
	if _, err := part.Write(photo); err != nil {
		return err
	}
	w.Close()

	var ok bool
	return c.post(ctx, "setChatPhoto", w.FormDataContentType(), body, &ok)
}

func (c *Client) DownloadMedia(ctx context.Context, fileID string) ([]byte, error) {
	var file struct {
		FilePath string `json:"file_path"`
	}
	if err := c.call(ctx, "getFile", map[string]interface{}{"file_id": fileID}, &file); err != nil {
		return nil, err
	}
	if file.FilePath == "" {
		return nil, fmt.Errorf("file %s has no path", fileID)
	}

	url := fmt.Sprintf("%s/file/bot%s/%s", c.base, c.token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download telegram file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram file download returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// ---- HTTP 底层 ----

func (c *Client) call(ctx context.Context, method string, params map[string]interface{}, out interface{}) error {
	payload, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to encode %s params: %w", method, err)
	}
	return c.post(ctx, method, "application/json", bytes.NewReader(payload), out)
}

func (c *Client) post(ctx context.Context, method, contentType string, body io.Reader, out interface{}) error {
	url := fmt.Sprintf("%s/bot%s/%s", c.base, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	var envelope struct {
		OK          bool            `json:"ok"`
		Result      json.RawMessage `json:"result"`
		Description string          `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("undecodable telegram %s response: %w", method, err)
	}
	if !envelope.OK {
		return fmt.Errorf("telegram %s failed: %s", method, envelope.Description)
	}
	if out != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("undecodable telegram %s result: %w", method, err)
		}
	}
	return nil
}

func (c *Client) callMultipart(ctx context.Context, method string, params map[string]interface{}, fileField, path, fileName string, out interface{}) error {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range params {
		if err := w.WriteField(k, fmt.Sprint(v)); err != nil {
			return err
		}
	}
	if err := writeFilePart(w, fileField, path, fileName); err != nil {
		return err
	}
	w.Close()
	return c.post(ctx, method, w.FormDataContentType(), body, out)
}

func writeFilePart(w *multipart.Writer, field, path, fileName string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open upload file: %w", err)
	}
	defer f.Close()

	if fileName == "" {
		fileName = filepath.Base(path)
	}
	part, err := w.CreateFormFile(field, fileName)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("failed to copy upload file: %w", err)
	}
	return nil
}

func isLocalFile(media string) bool {
	if media == "" || strings.HasPrefix(media, "http://") || strings.HasPrefix(media, "https://") {
		return false
	}
	_, err := os.Stat(media)
	return err == nil
}

func groupMediaType(kind model.TGOutgoingKind) string {
	switch kind {
	case model.TGOutVideo:
		return "video"
	case model.TGOutAudio:
		return "audio"
	case model.TGOutDocument:
		return "document"
	default:
		return "photo"
	}
}
