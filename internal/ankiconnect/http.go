package ankiconnect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
)

// request AnkiConnect 请求信封
type request struct {
	Action  string `json:"action"`
	Version int    `json:"version"`
	Params  any    `json:"params,omitempty"`
}

// response AnkiConnect 响应信封
type response struct {
	Result json.RawMessage `json:"result"`
	Error  *string         `json:"error"`
}

// HTTPClient 基于HTTP的 AnkiConnect 客户端实现
type HTTPClient struct {
	endpoint   string       // AnkiConnect 地址
	version    int          // 协议版本
	httpClient *http.Client // HTTP客户端
}

// NewClient 创建新的 AnkiConnect 客户端
func NewClient(opts ...Option) *HTTPClient {
	cfg := NewConfig(opts...)

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	return &HTTPClient{
		endpoint:   endpoint,
		version:    cfg.Version,
		httpClient: httpClient,
	}
}

// Endpoint 返回当前连接的地址
func (c *HTTPClient) Endpoint() string {
	return c.endpoint
}

// Version 返回 AnkiConnect 协议版本
func (c *HTTPClient) Version(ctx context.Context) (int, error) {
	var version int
	if err := c.invoke(ctx, "version", nil, &version); err != nil {
		return 0, err
	}
	return version, nil
}

// Ping 检查 AnkiConnect 是否可达
func (c *HTTPClient) Ping(ctx context.Context) error {
	_, err := c.Version(ctx)
	return err
}

// DeckNames 返回全部牌组名称
func (c *HTTPClient) DeckNames(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.invoke(ctx, "deckNames", nil, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// CreateDeck 创建牌组
func (c *HTTPClient) CreateDeck(ctx context.Context, name string) (int64, error) {
	var id int64
	params := map[string]string{"deck": name}
	if err := c.invoke(ctx, "createDeck", params, &id); err != nil {
		return 0, err
	}
	return id, nil
}

// AddNote 添加一条笔记
func (c *HTTPClient) AddNote(ctx context.Context, note Note) (int64, error) {
	var id *int64
	params := map[string]Note{"note": note}
	if err := c.invoke(ctx, "addNote", params, &id); err != nil {
		return 0, err
	}
	if id == nil {
		return 0, NewAnkiError(ErrCodeInvalidResponse, "addNote", "note was not created")
	}
	return *id, nil
}

// ModelFieldNames 返回笔记类型的字段名
func (c *HTTPClient) ModelFieldNames(ctx context.Context, model string) ([]string, error) {
	var names []string
	params := map[string]string{"modelName": model}
	if err := c.invoke(ctx, "modelFieldNames", params, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// invoke 发送一个动作并把 result 解析到 out
func (c *HTTPClient) invoke(ctx context.Context, action string, params any, out any) error {
	payload, err := json.Marshal(request{
		Action:  action,
		Version: c.version,
		Params:  params,
	})
	if err != nil {
		return NewAnkiError(ErrCodeInvalidRequest, action, fmt.Sprintf("failed to marshal request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return NewAnkiError(ErrCodeInvalidRequest, action, fmt.Sprintf("failed to create request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			return NewAnkiError(ErrCodeTimeout, action, ErrMsgTimeout)
		}
		return NewAnkiError(ErrCodeConnection, action, ErrMsgConnection)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return NewAnkiError(ErrCodeTimeout, action, ErrMsgTimeout)
		}
		return NewAnkiError(ErrCodeInvalidResponse, action, fmt.Sprintf("failed to read response: %v", err))
	}

	if resp.StatusCode != http.StatusOK {
		return NewAnkiError(ErrCodeServer, action,
			fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, string(body)))
	}

	var envelope response
	if err := json.Unmarshal(body, &envelope); err != nil {
		return NewAnkiError(ErrCodeInvalidResponse, action, ErrMsgInvalidResponse)
	}

	if envelope.Error != nil {
		return NewAnkiError(ErrCodeServer, action, *envelope.Error)
	}

	if out == nil || len(envelope.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return NewAnkiError(ErrCodeInvalidResponse, action, ErrMsgInvalidResponse)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

var _ Client = (*HTTPClient)(nil)
