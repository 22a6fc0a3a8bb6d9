package service

import (
	"Amoura/internal/api/dto"
	"Amoura/internal/pkg/consts"
	"Amoura/internal/pkg/redis"
	"Amoura/internal/repository"
	"context"
	log "log/slog"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// UserService 用户目录只读切面：存在性校验与基础资料
type UserService interface {
	ExistsById(ctx context.Context, id uint64) (bool, error)
	GetUserSimpleInfoById(ctx context.Context, id uint64) (*dto.UserSimpleDTO, error)
	GetUserSimpleInfoByIds(ctx context.Context, ids []uint64) (map[uint64]*dto.UserSimpleDTO, error)
}

type userServiceImpl struct {
	userRepo repository.UserRepo
}

func NewUserService(userRepo repository.UserRepo) UserService {
	return &userServiceImpl{userRepo: userRepo}
}

func (s *userServiceImpl) ExistsById(ctx context.Context, id uint64) (bool, error) {
	return s.userRepo.ExistsById(ctx, id)
}

// GetUserSimpleInfoById 带 Redis 缓存的单用户查询
func (s *userServiceImpl) GetUserSimpleInfoById(ctx context.Context, id uint64) (*dto.UserSimpleDTO, error) {
	cacheKey := consts.UserSimpleInfoKey + strconv.FormatUint(id, 10)

	if cached, err := redis.GetValue(ctx, cacheKey); err == nil && cached != "" {
		var info dto.UserSimpleDTO
		if err := json.Unmarshal([]byte(cached), &info); err == nil {
			return &info, nil
		}
	}

	user, err := s.userRepo.GetUserById(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	info := &dto.UserSimpleDTO{
		UserID:    user.ID,
		Nickname:  user.UserDetail.Nickname,
		AvatarURL: user.UserDetail.AvatarURL,
	}

	if raw, err := json.Marshal(info); err == nil {
		if err := redis.SetWithExpiration(ctx, cacheKey, string(raw), 10*time.Minute); err != nil {
			log.WarnContext(ctx, "failed to cache user simple info", "userID", id, "err", err)
		}
	}

	return info, nil
}

// GetUserSimpleInfoByIds 批量查询，用于会话列表装配
func (s *userServiceImpl) GetUserSimpleInfoByIds(ctx context.Context, ids []uint64) (map[uint64]*dto.UserSimpleDTO, error) {
	if len(ids) == 0 {
		return map[uint64]*dto.UserSimpleDTO{}, nil
	}

	details, err := s.userRepo.GetUserSimpleInfoByIds(ctx, ids)
	if err != nil {
		return nil, err
	}

	res := make(map[uint64]*dto.UserSimpleDTO, len(details))
	for _, d := range details {
		res[d.UserID] = &dto.UserSimpleDTO{
			UserID:    d.UserID,
			Nickname:  d.Nickname,
			AvatarURL: d.AvatarURL,
		}
	}
	return res, nil
}
