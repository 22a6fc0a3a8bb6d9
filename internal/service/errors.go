package service

import (
	"errors"
)

const (
	BadRequest          = 400
	Unauthorized        = 401
	Forbidden           = 403
	NotFound            = 404
	InternalServerError = 500
)

var (
	ErrParamInvalid      = errors.New("参数错误")
	ErrMessageEmpty      = errors.New("消息内容不能为空")
	ErrUserNotFound      = errors.New("用户不存在")
	ErrTargetUserInvalid = errors.New("目标用户无效")
	ErrMessageNotFound   = errors.New("消息不存在")
	ErrNotMessageSender  = errors.New("仅发送者可删除该消息")
	ErrImageInvalid      = errors.New("图片数据无效")
	UnauthorizedError    = errors.New("权限不足")
	UnExpectedError      = errors.New("系统异常，请稍后重试")
)

var ErrorMap = map[error]int{
	ErrParamInvalid:      BadRequest,
	ErrMessageEmpty:      BadRequest,
	ErrUserNotFound:      NotFound,
	ErrTargetUserInvalid: BadRequest,
	ErrMessageNotFound:   NotFound,
	ErrNotMessageSender:  Forbidden,
	ErrImageInvalid:      BadRequest,
	UnauthorizedError:    Unauthorized,
	UnExpectedError:      InternalServerError,
}
