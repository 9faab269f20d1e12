package repository

import (
	"errors"

	"go-qtbridge/internal/model"
	"go-qtbridge/pkg/db"

	"gorm.io/gorm"
)

type PairRepository struct {
	db *gorm.DB
}

func NewPairRepository() *PairRepository {
	return &PairRepository{db: db.DB}
}

// 按 QQ 群号查绑定 未绑定返回 nil 不视为错误
func (r *PairRepository) FindByQQRoom(roomID int64) (*model.ForwardPair, error) {
	var pair model.ForwardPair
	err := r.db.Where("qq_room_id = ?", roomID).First(&pair).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pair, nil
}

func (r *PairRepository) FindByTGChat(chatID int64) (*model.ForwardPair, error) {
	var pair model.ForwardPair
	err := r.db.Where("tg_chat_id = ?", chatID).First(&pair).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pair, nil
}
