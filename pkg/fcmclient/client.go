/**
 * @description
 * This package provides a minimal client for the Firebase Cloud Messaging
 * HTTP v1 API. Authentication follows the service-account flow: a short-lived
 * RS256 JWT is signed with the service account's private key and exchanged at
 * Google's OAuth token endpoint for a bearer token, which is cached until
 * shortly before expiry.
 *
 * @dependencies
 * - github.com/golang-jwt/jwt/v5: Signs the service-account assertion.
 * - bytes, context, encoding/json, net/http, sync, time: Standard Go libraries.
 */
package fcmclient

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultTokenURL   = "https://oauth2.googleapis.com/token"
	defaultAPIBaseURL = "https://fcm.googleapis.com"
	messagingScope    = "https://www.googleapis.com/auth/firebase.messaging"
)

// serviceAccount is the subset of the Firebase service-account JSON we need.
type serviceAccount struct {
	ProjectID   string `json:"project_id"`
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
}

// Client sends push notifications through FCM on behalf of one Firebase project.
type Client struct {
	ProjectID  string
	HTTPClient *http.Client

	// TokenURL and APIBaseURL are overridable for tests.
	TokenURL   string
	APIBaseURL string

	clientEmail string
	privateKey  *rsa.PrivateKey

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClientFromServiceAccount builds a client from the raw service-account
// JSON (the FIREBASE_SERVICE_ACCOUNT secret).
func NewClientFromServiceAccount(raw []byte) (*Client, error) {
	var sa serviceAccount
	if err := json.Unmarshal(raw, &sa); err != nil {
		return nil, fmt.Errorf("failed to parse service account json: %w", err)
	}
	if sa.ProjectID == "" || sa.ClientEmail == "" || sa.PrivateKey == "" {
		return nil, fmt.Errorf("service account json is missing project_id, client_email or private_key")
	}

	// Secrets stored as env vars often carry escaped newlines.
	pemKey := strings.ReplaceAll(sa.PrivateKey, `\n`, "\n")
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(pemKey))
	if err != nil {
		return nil, fmt.Errorf("failed to parse service account private key: %w", err)
	}

	return &Client{
		ProjectID:   sa.ProjectID,
		HTTPClient:  &http.Client{Timeout: 15 * time.Second},
		TokenURL:    defaultTokenURL,
		APIBaseURL:  defaultAPIBaseURL,
		clientEmail: sa.ClientEmail,
		privateKey:  key,
	}, nil
}

// accessTokenLocked returns a cached bearer token, minting a new one when the
// cache is empty or within a minute of expiry.
func (c *Client) accessTokenLocked(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry.Add(-time.Minute)) {
		return c.accessToken, nil
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   c.clientEmail,
		"sub":   c.clientEmail,
		"aud":   c.TokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
		"scope": messagingScope,
	}
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(c.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign service account assertion: %w", err)
	}

	form := url.Values{
		"grant_type": {"urn:ietf:params:oauth:grant-type:jwt-bearer"},
		"assertion":  {assertion},
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token exchange failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token exchange returned status %d", resp.StatusCode)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("token response contained no access token")
	}

	c.accessToken = tokenResp.AccessToken
	c.tokenExpiry = now.Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	return c.accessToken, nil
}

// fcmMessage is the FCM v1 send envelope.
type fcmMessage struct {
	Message struct {
		Token        string            `json:"token"`
		Notification map[string]string `json:"notification"`
		Data         map[string]string `json:"data,omitempty"`
	} `json:"message"`
}

// Send delivers one push notification to a device token.
func (c *Client) Send(ctx context.Context, deviceToken, title, body string, data map[string]string) error {
	token, err := c.accessTokenLocked(ctx)
	if err != nil {
		return err
	}

	msg := fcmMessage{}
	msg.Message.Token = deviceToken
	msg.Message.Notification = map[string]string{
		"title": title,
		"body":  body,
	}
	msg.Message.Data = data

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal fcm message: %w", err)
	}

	sendURL := fmt.Sprintf("%s/v1/projects/%s/messages:send", c.APIBaseURL, c.ProjectID)
	req, err := http.NewRequestWithContext(ctx, "POST", sendURL, bytes.NewBuffer(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("fcm send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("fcm send returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}
