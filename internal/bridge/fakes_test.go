package bridge

import (
	"context"
	"errors"
	"sync"

	"go-qtbridge/internal/model"
)

// 内存版映射行存储
type fakeMappingStore struct {
	mu     sync.Mutex
	rows   []*model.MessageMapping
	nextID uint
	failCreate bool
}

func newFakeMappingStore() *fakeMappingStore {
	return &fakeMappingStore{}
}

func (s *fakeMappingStore) Create(m *model.MessageMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate {
		return errors.New("store unavailable")
	}
	s.nextID++
	m.ID = s.nextID
	cp := *m
	s.rows = append(s.rows, &cp)
	return nil
}

func (s *fakeMappingStore) FindByQQ(roomID int64, seq int32) (*model.MessageMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.QQRoomID == roomID && r.Seq == seq {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeMappingStore) FindByTG(chatID int64, msgID int) (*model.MessageMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.TGChatID == chatID && r.TGMsgID == msgID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeMappingStore) MarkDeleted(id uint, ignoreDelete bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.ID == id {
			r.Deleted = true
			r.IgnoreDelete = ignoreDelete
			return nil
		}
	}
	return errors.New("row not found")
}

func (s *fakeMappingStore) rowCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func (s *fakeMappingStore) row(i int) model.MessageMapping {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.rows[i]
}

type fakePairStore struct {
	pair *model.ForwardPair
}

func (s *fakePairStore) FindByQQRoom(roomID int64) (*model.ForwardPair, error) {
	if s.pair != nil && s.pair.QQRoomID == roomID {
		return s.pair, nil
	}
	return nil, nil
}

func (s *fakePairStore) FindByTGChat(chatID int64) (*model.ForwardPair, error) {
	if s.pair != nil && s.pair.TGChatID == chatID {
		return s.pair, nil
	}
	return nil, nil
}

type qqSent struct {
	roomID int64
	segs   []model.QQSegment
}

type fakeQQClient struct {
	mu       sync.Mutex
	sent     []qqSent
	forwards [][]model.QQForwardNode
	recalled []int32
	members  map[int64]*model.GroupMember
	media    map[string][]byte
	nextSeq  int32
}

func newFakeQQClient() *fakeQQClient {
	return &fakeQQClient{
		members: make(map[int64]*model.GroupMember),
		media:   make(map[string][]byte),
	}
}

func (c *fakeQQClient) SendMessage(ctx context.Context, roomID int64, segments []model.QQSegment) (*model.QQSendReceipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, qqSent{roomID: roomID, segs: segments})
	c.nextSeq++
	return &model.QQSendReceipt{MessageID: int32(1000 + c.nextSeq), Seq: c.nextSeq}, nil
}

func (c *fakeQQClient) SendGroupForwardMsg(ctx context.Context, roomID int64, nodes []model.QQForwardNode) (*model.QQSendReceipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forwards = append(c.forwards, nodes)
	c.nextSeq++
	return &model.QQSendReceipt{MessageID: int32(1000 + c.nextSeq), Seq: c.nextSeq}, nil
}

func (c *fakeQQClient) RecallMessage(ctx context.Context, roomID int64, messageID int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recalled = append(c.recalled, messageID)
	return nil
}

func (c *fakeQQClient) GetGroupMemberInfo(ctx context.Context, roomID, userID int64) (*model.GroupMember, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.members[userID]; ok {
		return m, nil
	}
	return nil, errors.New("member not found")
}

func (c *fakeQQClient) GetGroupInfo(ctx context.Context, roomID int64) (*model.GroupInfo, error) {
	return &model.GroupInfo{GroupID: roomID, GroupName: "test group"}, nil
}

func (c *fakeQQClient) DownloadMedia(ctx context.Context, file string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if data, ok := c.media[file]; ok {
		return data, nil
	}
	return nil, errors.New("media not found")
}

func (c *fakeQQClient) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func (c *fakeQQClient) recallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.recalled)
}

type tgSent struct {
	chatID int64
	out    model.TGOutgoing
}

type fakeTGClient struct {
	mu      sync.Mutex
	sent    []tgSent
	groups  [][]model.TGOutgoing
	deleted map[int64][]int
	media   map[string][]byte
	nextID  int
}

func newFakeTGClient() *fakeTGClient {
	return &fakeTGClient{
		deleted: make(map[int64][]int),
		media:   make(map[string][]byte),
	}
}

func (c *fakeTGClient) SendMessage(ctx context.Context, chatID int64, out model.TGOutgoing) (*model.TGSendReceipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, tgSent{chatID: chatID, out: out})
	c.nextID++
	return &model.TGSendReceipt{MessageID: c.nextID}, nil
}

func (c *fakeTGClient) SendMediaGroup(ctx context.Context, chatID int64, items []model.TGOutgoing) ([]model.TGSendReceipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups = append(c.groups, items)
	var receipts []model.TGSendReceipt
	for range items {
		c.nextID++
		receipts = append(receipts, model.TGSendReceipt{MessageID: c.nextID})
	}
	return receipts, nil
}

func (c *fakeTGClient) DeleteMessages(ctx context.Context, chatID int64, messageIDs []int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted[chatID] = append(c.deleted[chatID], messageIDs...)
	return nil
}

func (c *fakeTGClient) EditChatTitle(ctx context.Context, chatID int64, title string) error {
	return nil
}

func (c *fakeTGClient) SetChatPhoto(ctx context.Context, chatID int64, photo []byte) error {
	return nil
}

func (c *fakeTGClient) DownloadMedia(ctx context.Context, fileID string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if data, ok := c.media[fileID]; ok {
		return data, nil
	}
	return nil, errors.New("media not found")
}

func (c *fakeTGClient) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func (c *fakeTGClient) deletedIn(chatID int64) []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.deleted[chatID]...)
}
