package repository

import (
	"Amoura/internal/model"
	"context"
	"errors"

	"gorm.io/gorm"
)

type UserRepo interface {
	GetUserById(ctx context.Context, id uint64) (*model.User, error)
	GetUserSimpleInfoByIds(ctx context.Context, ids []uint64) ([]*model.UserDetail, error)
	ExistsById(ctx context.Context, id uint64) (bool, error)
}

type UserRepoImpl struct {
	db *gorm.DB
}

func NewUserRepo(db *gorm.DB) UserRepo {
	return &UserRepoImpl{db: db}
}

func (s *UserRepoImpl) GetUserById(ctx context.Context, id uint64) (*model.User, error) {
	user := &model.User{}
	result := s.db.WithContext(ctx).
		Preload("UserDetail").
		First(user, id)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}

	return user, nil
}

// GetUserSimpleInfoByIds 批量获取昵称与头像，用于会话列表装配
func (s *UserRepoImpl) GetUserSimpleInfoByIds(ctx context.Context, ids []uint64) ([]*model.UserDetail, error) {
	details := make([]*model.UserDetail, 0, len(ids))
	result := s.db.WithContext(ctx).
		Where("user_id IN ?", ids).
		Find(&details)
	if result.Error != nil {
		return nil, result.Error
	}
	return details, nil
}

// ExistsById 仅校验用户存在且未注销
func (s *UserRepoImpl) ExistsById(ctx context.Context, id uint64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ? AND is_delete = 0", id).
		Count(&count).Error
	return count > 0, err
}
