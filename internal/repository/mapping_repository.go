package repository

import (
	"errors"

	"go-qtbridge/internal/model"
	"go-qtbridge/pkg/db"

	"gorm.io/gorm"
)

type MappingRepository struct {
	db *gorm.DB
}

func NewMappingRepository() *MappingRepository {
	return &MappingRepository{db: db.DB}
}

func (r *MappingRepository) Create(m *model.MessageMapping) error {
	return r.db.Create(m).Error
}

// 按 QQ 侧复合键查映射 缺失返回 nil
func (r *MappingRepository) FindByQQ(roomID int64, seq int32) (*model.MessageMapping, error) {
	var m model.MessageMapping
	err := r.db.Where("qq_room_id = ? AND seq = ?", roomID, seq).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// 按 Telegram 侧复合键查映射 缺失返回 nil
func (r *MappingRepository) FindByTG(chatID int64, msgID int) (*model.MessageMapping, error) {
	var m model.MessageMapping
	err := r.db.Where("tg_chat_id = ? AND tg_msg_id = ?", chatID, msgID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MappingRepository) MarkDeleted(id uint, ignoreDelete bool) error {
	return r.db.Model(&model.MessageMapping{}).Where("id = ?", id).
		Updates(map[string]interface{}{"deleted": true, "ignore_delete": ignoreDelete}).Error
}
