/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package whatsapp talks to the WhatsApp Cloud API: it renders outbound
// payloads, sends them and decodes inbound webhook notifications.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/blnkfinance/comanda/config"
)

// Transport is the raw outbound surface of the provider. Send methods return
// the provider's response body.
type Transport interface {
	SendText(ctx context.Context, to, body string) ([]byte, error)
	SendButtons(ctx context.Context, to string, msg ButtonMessage) ([]byte, error)
	SendList(ctx context.Context, to string, msg ListMessage) ([]byte, error)
	MarkRead(ctx context.Context, providerMessageID string) error
	DownloadMedia(ctx context.Context, mediaID string) (*Media, error)
	Resend(ctx context.Context, payload json.RawMessage) ([]byte, error)
}

// Media is a downloaded attachment.
type Media struct {
	MimeType string
	Data     []byte
}

// APIError is a non-2xx answer from the provider.
type APIError struct {
	StatusCode int
	Code       int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("whatsapp api returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("whatsapp api returned status %d: %s (code %d)", e.StatusCode, e.Message, e.Code)
}

// Transient reports whether the request may succeed if repeated.
func (e *APIError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type Client struct {
	httpClient    *http.Client
	baseURL       string
	phoneNumberID string
	accessToken   string
}

func NewClient(cfg config.WhatsAppConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		httpClient:    httpClient,
		baseURL:       strings.TrimRight(cfg.ApiURL, "/") + "/" + cfg.ApiVersion,
		phoneNumberID: cfg.PhoneNumberID,
		accessToken:   cfg.AccessToken,
	}
}

func (c *Client) messagesURL() string {
	return fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
}

func (c *Client) SendText(ctx context.Context, to, body string) ([]byte, error) {
	payload, err := TextPayload(to, body)
	if err != nil {
		return nil, err
	}
	return c.Resend(ctx, payload)
}

func (c *Client) SendButtons(ctx context.Context, to string, msg ButtonMessage) ([]byte, error) {
	payload, err := ButtonsPayload(to, msg.Normalize())
	if err != nil {
		return nil, err
	}
	return c.Resend(ctx, payload)
}

func (c *Client) SendList(ctx context.Context, to string, msg ListMessage) ([]byte, error) {
	payload, err := ListPayload(to, msg.Normalize())
	if err != nil {
		return nil, err
	}
	return c.Resend(ctx, payload)
}

// Resend posts an already rendered payload as-is.
func (c *Client) Resend(ctx context.Context, payload json.RawMessage) ([]byte, error) {
	return c.do(ctx, http.MethodPost, c.messagesURL(), payload)
}

func (c *Client) MarkRead(ctx context.Context, providerMessageID string) error {
	payload, err := json.Marshal(wireReadReceipt{
		MessagingProduct: messagingProduct,
		Status:           "read",
		MessageID:        providerMessageID,
	})
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPost, c.messagesURL(), payload)
	return err
}

// DownloadMedia resolves the media id to its temporary URL and fetches the content.
func (c *Client) DownloadMedia(ctx context.Context, mediaID string) (*Media, error) {
	body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/%s", c.baseURL, mediaID), nil)
	if err != nil {
		return nil, err
	}

	var meta struct {
		URL      string `json:"url"`
		MimeType string `json:"mime_type"`
	}
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, fmt.Errorf("decode media metadata: %w", err)
	}
	if meta.URL == "" {
		return nil, errors.New("media metadata has no url")
	}

	data, err := c.do(ctx, http.MethodGet, meta.URL, nil)
	if err != nil {
		return nil, err
	}
	return &Media{MimeType: meta.MimeType, Data: data}, nil
}

func (c *Client) do(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeAPIError(resp.StatusCode, respBody)
	}
	return respBody, nil
}

func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    int    `json:"code"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil {
		apiErr.Message = envelope.Error.Message
		apiErr.Type = envelope.Error.Type
		apiErr.Code = envelope.Error.Code
	}
	return apiErr
}

// ParseMessageID extracts the provider id of the first message in a send response.
func ParseMessageID(body []byte) (string, error) {
	var resp struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", err
	}
	if len(resp.Messages) == 0 || resp.Messages[0].ID == "" {
		return "", errors.New("response has no message id")
	}
	return resp.Messages[0].ID, nil
}
