// Package transport 封装客户端与服务端的两条通道：
// REST 调用与 WebSocket 实时事件流。
package transport

import (
	"Amoura/internal/client/chat"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
)

// 服务端业务错误的客户端镜像
var (
	ErrValidation   = errors.New("请求参数被拒绝")
	ErrUnauthorized = errors.New("登录状态失效")
	ErrPermission   = errors.New("没有操作权限")
	ErrNotFound     = errors.New("目标不存在")
	ErrServer       = errors.New("服务端异常")
	ErrTransport    = errors.New("网络请求失败")
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// REST 服务端 REST 面的客户端
type REST struct {
	http *resty.Client
}

func NewREST(baseURL, token string) *REST {
	client := resty.New().
		SetBaseURL(baseURL+"/api").
		SetAuthToken(token).
		SetTimeout(15 * time.Second)
	return &REST{http: client}
}

func (r *REST) do(ctx context.Context, method, path string, body any, out any) error {
	req := r.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return fmt.Errorf("%w: 响应格式异常", ErrTransport)
	}
	if env.Code != http.StatusOK {
		return fmt.Errorf("%w: %s", codeToErr(env.Code), env.Message)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%w: 响应数据异常", ErrTransport)
		}
	}
	return nil
}

func codeToErr(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrValidation
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrPermission
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return ErrServer
	}
}

// SendMessage 持久化一条消息并返回权威副本
func (r *REST) SendMessage(ctx context.Context, peerID uint64, req *chat.SendMessageReq) (*chat.Message, error) {
	var msg chat.Message
	if err := r.do(ctx, resty.MethodPost, fmt.Sprintf("/messages/send/%d", peerID), req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetMessages 拉取与某个对手方的全部消息，服务端保证按时间升序
func (r *REST) GetMessages(ctx context.Context, peerID uint64) ([]*chat.Message, error) {
	var messages []*chat.Message
	if err := r.do(ctx, resty.MethodGet, fmt.Sprintf("/messages/%d", peerID), nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// GetChats 拉取会话列表
func (r *REST) GetChats(ctx context.Context) ([]*chat.SummaryRow, error) {
	var rows []*chat.SummaryRow
	if err := r.do(ctx, resty.MethodGet, "/messages/chats", nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// DeleteMessage 删除自己发出的消息
func (r *REST) DeleteMessage(ctx context.Context, messageID string) error {
	return r.do(ctx, resty.MethodDelete, "/messages/delete/"+messageID, nil, nil)
}

// GetUserSimple 拉取用户基础资料
func (r *REST) GetUserSimple(ctx context.Context, userID uint64) (*chat.Profile, error) {
	var info chat.Profile
	if err := r.do(ctx, resty.MethodGet, fmt.Sprintf("/user/%d/simple", userID), nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
