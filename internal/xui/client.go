// Package xui реализует клиент панели 3x-ui: авторизацию по сессионной
// cookie, создание и удаление VLESS-клиентов и чтение статистики трафика.
// Панель считается best-effort коллаборатором: ошибка панели логируется
// вызывающей стороной и не блокирует локальную очистку состояния.
package xui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/vpn-subscription-bot/internal/config"
	"github.com/magabrotheeeer/vpn-subscription-bot/internal/models"
)

// Client инкапсулирует HTTP-доступ к панели XUI.
type Client struct {
	cfg        config.XUIPanel
	httpClient *http.Client

	mu       sync.Mutex
	loggedIn bool
}

type apiResponse struct {
	Success bool            `json:"success"`
	Msg     string          `json:"msg"`
	Obj     json.RawMessage `json:"obj"`
}

// NewClient создаёт клиент панели с ограниченным таймаутом запросов.
func NewClient(cfg config.XUIPanel) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("xui.NewClient: %w", err)
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
			Jar:     jar,
		},
	}, nil
}

// login авторизуется на панели и сохраняет сессионную cookie в jar.
func (c *Client) login(ctx context.Context) error {
	const op = "xui.login"
	form := url.Values{}
	form.Set("username", c.cfg.Username)
	form.Set("password", c.cfg.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.APIURL+"/login", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var result apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !result.Success {
		return fmt.Errorf("%s: panel rejected credentials: %s", op, result.Msg)
	}
	c.loggedIn = true
	return nil
}

// doAPI выполняет запрос к API панели, при необходимости авторизуясь.
func (c *Client) doAPI(ctx context.Context, method, path string, body any) (*apiResponse, error) {
	const op = "xui.doAPI"
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loggedIn {
		if err := c.login(ctx); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method,
		c.cfg.APIURL+c.cfg.BasePath+path, &buf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusFound {
		// Сессия протухла, попробуем ещё раз после повторного логина.
		c.loggedIn = false
		return nil, fmt.Errorf("%s: session expired", op)
	}

	var result apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !result.Success {
		return nil, fmt.Errorf("%s: panel error: %s", op, result.Msg)
	}
	return &result, nil
}

type inboundSettings struct {
	Clients []panelClient `json:"clients"`
}

type panelClient struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Flow  string `json:"flow,omitempty"`
}

// AddClient создаёт нового VLESS-клиента на панели и возвращает профиль
// с готовой ссылкой для подключения.
func (c *Client) AddClient(ctx context.Context, email string) (*models.VlessProfile, error) {
	const op = "xui.AddClient"

	clientID := uuid.NewString()
	settings, err := json.Marshal(inboundSettings{
		Clients: []panelClient{{ID: clientID, Email: email, Flow: "xtls-rprx-vision"}},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	payload := map[string]any{
		"id":       c.cfg.InboundID,
		"settings": string(settings),
	}
	if _, err := c.doAPI(ctx, http.MethodPost, "/api/inbounds/addClient", payload); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.VlessProfile{
		Email: email,
		UUID:  clientID,
		URL:   c.BuildVlessURL(clientID, email),
	}, nil
}

// findClientUUID ищет UUID клиента по email в настройках inbound.
func (c *Client) findClientUUID(ctx context.Context, email string) (string, error) {
	const op = "xui.findClientUUID"
	resp, err := c.doAPI(ctx, http.MethodGet, fmt.Sprintf("/api/inbounds/get/%d", c.cfg.InboundID), nil)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	var inbound struct {
		Settings string `json:"settings"`
	}
	if err := json.Unmarshal(resp.Obj, &inbound); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	var settings inboundSettings
	if err := json.Unmarshal([]byte(inbound.Settings), &settings); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	for _, cl := range settings.Clients {
		if cl.Email == email {
			return cl.ID, nil
		}
	}
	return "", fmt.Errorf("%s: client %s not found on panel", op, email)
}

// Revoke удаляет клиента панели по email. Используется сканером как
// деактиватор VPN-доступа при истечении подписки.
func (c *Client) Revoke(ctx context.Context, email string) error {
	const op = "xui.Revoke"
	clientID, err := c.findClientUUID(ctx, email)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	path := fmt.Sprintf("/api/inbounds/%d/delClient/%s", c.cfg.InboundID, clientID)
	if _, err := c.doAPI(ctx, http.MethodPost, path, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ClientTraffic возвращает счётчики исходящего и входящего трафика клиента.
func (c *Client) ClientTraffic(ctx context.Context, email string) (up, down int64, err error) {
	const op = "xui.ClientTraffic"
	resp, err := c.doAPI(ctx, http.MethodGet, "/api/inbounds/getClientTraffics/"+url.PathEscape(email), nil)
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w", op, err)
	}

	var traffic struct {
		Up   int64 `json:"up"`
		Down int64 `json:"down"`
	}
	if err := json.Unmarshal(resp.Obj, &traffic); err != nil {
		return 0, 0, fmt.Errorf("%s: %w", op, err)
	}
	return traffic.Up, traffic.Down, nil
}

// BuildVlessURL собирает ссылку подключения VLESS Reality для клиента.
func (c *Client) BuildVlessURL(clientID, email string) string {
	query := url.Values{}
	query.Set("type", "tcp")
	query.Set("security", "reality")
	query.Set("pbk", c.cfg.RealityPublicKey)
	query.Set("fp", c.cfg.RealityFingerprint)
	query.Set("sni", c.cfg.RealitySNI)
	query.Set("sid", c.cfg.RealityShortID)
	query.Set("spx", c.cfg.RealitySpiderX)
	query.Set("flow", "xtls-rprx-vision")

	return fmt.Sprintf("vless://%s@%s:443?%s#%s",
		clientID, c.cfg.Host, query.Encode(), url.PathEscape(email))
}
