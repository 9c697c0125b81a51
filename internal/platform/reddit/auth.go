package reddit

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// tokens are refreshed this long before they expire
const tokenSlack = time.Minute

func (c *Client) accessToken(ctx context.Context) (string, error) {
	if !c.creds.refreshable() {
		return c.creds.AccessToken, nil
	}

	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExp) {
		return c.token, nil
	}

	form := formArgs("grant_type", "refresh_token", "refresh_token", c.creds.RefreshToken)
	basic := base64.StdEncoding.EncodeToString([]byte(c.creds.ClientID + ":" + c.creds.ClientSecret))
	body, status, err := c.do(ctx, fasthttp.MethodPost, c.authURL, form, func(h *fasthttp.RequestHeader) {
		h.Set("Authorization", "Basic "+basic)
	})
	if err != nil {
		return "", fmt.Errorf("token refresh: %w", err)
	}
	if status != fasthttp.StatusOK {
		return "", fmt.Errorf("%w: token refresh status=%d", ErrUnauthorized, status)
	}

	res := gjson.ParseBytes(body)
	if e := res.Get("error"); e.Exists() {
		return "", fmt.Errorf("%w: token refresh: %s", ErrUnauthorized, e.String())
	}
	token := res.Get("access_token").String()
	if token == "" {
		return "", fmt.Errorf("%w: token refresh returned no access_token", ErrUnauthorized)
	}
	ttl := time.Duration(res.Get("expires_in").Int()) * time.Second
	if ttl <= tokenSlack {
		ttl = 2 * tokenSlack
	}
	c.token = token
	c.tokenExp = time.Now().Add(ttl - tokenSlack)
	c.logger.Debug("reddit_token_refreshed", zap.Duration("ttl", ttl))
	return token, nil
}

func (c *Client) invalidateToken() {
	c.tokenMu.Lock()
	c.token = ""
	c.tokenMu.Unlock()
}
