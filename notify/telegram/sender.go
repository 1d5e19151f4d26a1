package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Menzorg/rugpt/notify"
)

const defaultBaseURL = "https://api.telegram.org"

// Sender delivers notifications through the Telegram Bot API. The
// channel config must carry the destination chat_id.
type Sender struct {
	http    *http.Client
	baseURL string
	token   string
	log     *slog.Logger
}

func NewSender(token, baseURL string, timeout time.Duration, log *slog.Logger) *Sender {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sender{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		log:     log,
	}
}

func (s *Sender) Kind() notify.ChannelKind { return notify.ChannelTelegram }

// Send posts the content with Markdown formatting first and retries
// as plain text when Telegram rejects the markup.
func (s *Sender) Send(ctx context.Context, config map[string]string, content string) error {
	chatID, err := chatIDFromConfig(config)
	if err != nil {
		return err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return fmt.Errorf("empty notification content")
	}

	err = s.sendMessage(ctx, chatID, content, "Markdown")
	if err == nil {
		return nil
	}
	if isParseError(err) {
		s.log.Warn("telegram_markdown_rejected", "chat_id", chatID, "error", err.Error())
		return s.sendMessage(ctx, chatID, content, "")
	}
	return err
}

func chatIDFromConfig(config map[string]string) (int64, error) {
	raw := strings.TrimSpace(config["chat_id"])
	if raw == "" {
		return 0, fmt.Errorf("channel config has no chat_id")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat_id %q: %w", raw, err)
	}
	return id, nil
}

type sendMessageRequest struct {
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

func (s *Sender) sendMessage(ctx context.Context, chatID int64, text, parseMode string) error {
	body, _ := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text, ParseMode: parseMode})
	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	resp.Body.Close()

	var out apiResponse
	_ = json.Unmarshal(raw, &out)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !out.OK {
		desc := strings.TrimSpace(out.Description)
		if desc == "" {
			desc = strings.TrimSpace(string(raw))
		}
		return &requestError{StatusCode: resp.StatusCode, Description: desc}
	}
	return nil
}

type requestError struct {
	StatusCode  int
	Description string
}

func (e *requestError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("telegram http %d: %s", e.StatusCode, e.Description)
	}
	return fmt.Sprintf("telegram http %d", e.StatusCode)
}

func isParseError(err error) bool {
	reqErr, ok := err.(*requestError)
	if !ok {
		return false
	}
	desc := strings.ToLower(reqErr.Description)
	return strings.Contains(desc, "can't parse") || strings.Contains(desc, "parse entities")
}
