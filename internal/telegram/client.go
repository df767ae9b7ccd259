package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.telegram.org"

	ParseModeMarkdownV2 = "MarkdownV2"
)

// Config 客户端配置
type Config struct {
	Token            string
	BaseURL          string
	MembershipChatID int64 // getChatMember 查询的群/频道
	HTTPTimeout      time.Duration
}

// Client Telegram Bot API 客户端
type Client struct {
	token            string
	baseURL          string
	membershipChatID int64
	client           *http.Client
}

// NewClient 创建客户端
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.HTTPTimeout <= 0 {
		// 需大于长轮询超时
		cfg.HTTPTimeout = 90 * time.Second
	}
	return &Client{
		token:            cfg.Token,
		baseURL:          strings.TrimRight(cfg.BaseURL, "/"),
		membershipChatID: cfg.MembershipChatID,
		client:           &http.Client{Timeout: cfg.HTTPTimeout},
	}
}

// APIError Bot API 返回 ok=false
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

// call POST JSON 调用；错误信息里不带 token
func (c *Client) call(ctx context.Context, method string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化请求失败: %w", err)
	}

	endpoint := c.baseURL + "/bot" + c.token + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("创建请求失败: %s", method)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return fmt.Errorf("发送请求失败: %s: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应失败: %w", err)
	}

	var r apiResponse
	if err := json.Unmarshal(respBody, &r); err != nil {
		slog.Error("Telegram API 响应无法解析", "method", method, "status", resp.StatusCode)
		return fmt.Errorf("解析响应失败: %w", err)
	}
	if !r.OK {
		return &APIError{Method: method, Code: r.ErrorCode, Description: r.Description}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(r.Result, out); err != nil {
		return fmt.Errorf("解析 result 失败: %w", err)
	}
	return nil
}

// SendMessageRequest sendMessage 参数
type SendMessageRequest struct {
	ChatID                int64  `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	ReplyToMessageID      int64  `json:"reply_to_message_id,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

// SendMessage 发送消息
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*Message, error) {
	var msg Message
	if err := c.call(ctx, "sendMessage", req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Notify 给用户发送纯文本私信
func (c *Client) Notify(ctx context.Context, userID int64, text string) error {
	_, err := c.SendMessage(ctx, SendMessageRequest{ChatID: userID, Text: text})
	return err
}

// GetChatMember 查询成员状态
func (c *Client) GetChatMember(ctx context.Context, chatID, userID int64) (*ChatMember, error) {
	var m ChatMember
	payload := map[string]int64{"chat_id": chatID, "user_id": userID}
	if err := c.call(ctx, "getChatMember", payload, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// IsMember 是否已加入成员群；任何错误都按 false 处理
func (c *Client) IsMember(ctx context.Context, userID int64) bool {
	if c.membershipChatID == 0 {
		slog.Warn("未配置成员检查群，按未入群处理")
		return false
	}
	m, err := c.GetChatMember(ctx, c.membershipChatID, userID)
	if err != nil {
		slog.Warn("成员检查失败，按未入群处理", "user_id", userID, "error", err)
		return false
	}
	return m.Joined()
}

type getUpdatesRequest struct {
	Offset         int64    `json:"offset,omitempty"`
	Timeout        int      `json:"timeout"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
}

// GetUpdates 长轮询拉取更新
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeoutSec int, allowed []string) ([]Update, error) {
	var updates []Update
	req := getUpdatesRequest{Offset: offset, Timeout: timeoutSec, AllowedUpdates: allowed}
	if err := c.call(ctx, "getUpdates", req, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// GetMe 校验 token，返回机器人自身信息
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var u User
	if err := c.call(ctx, "getMe", struct{}{}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}
