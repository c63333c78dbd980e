package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/litperpro/litper/internal/models"
	"github.com/pkg/errors"
)

const (
	defaultBaseURL  = "https://graph.facebook.com/v19.0"
	defaultTemplate = "novedad_rescate"
	defaultLanguage = "es_CO"
)

// Client отправляет шаблонные сообщения через WhatsApp Cloud API.
type Client struct {
	baseURL       string
	token         string
	phoneNumberID string
	template      string
	language      string
	httpc         *http.Client
}

type Config struct {
	BaseURL       string
	Token         string
	PhoneNumberID string
	Template      string
	Language      string
}

func New(cfg Config) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		token:         cfg.Token,
		phoneNumberID: cfg.PhoneNumberID,
		template:      cfg.Template,
		language:      cfg.Language,
		httpc:         &http.Client{Timeout: 15 * time.Second},
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.template == "" {
		c.template = defaultTemplate
	}
	if c.language == "" {
		c.language = defaultLanguage
	}
	return c
}

type textParam struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type component struct {
	Type       string      `json:"type"`
	Parameters []textParam `json:"parameters"`
}

type language struct {
	Code string `json:"code"`
}

type template struct {
	Name       string      `json:"name"`
	Language   language    `json:"language"`
	Components []component `json:"components"`
}

type sendRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Template         template `json:"template"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// SendRescueContact never returns an error: failures are reported in SendResult.
func (c *Client) SendRescueContact(ctx context.Context, phone, customerName, trackingNumber string) models.SendResult {
	msgID, err := c.send(ctx, phone, customerName, trackingNumber)
	if err != nil {
		slog.Warn("whatsapp send failed", "tracking_number", trackingNumber, "error", err.Error())
		return models.SendResult{Success: false, ErrorMessage: err.Error()}
	}
	return models.SendResult{Success: true, MessageID: msgID}
}

func (c *Client) send(ctx context.Context, phone, customerName, trackingNumber string) (string, error) {
	to, err := NormalizePhone(phone)
	if err != nil {
		return "", err
	}
	if customerName == "" {
		customerName = "cliente"
	}

	body, err := json.Marshal(sendRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "template",
		Template: template{
			Name:     c.template,
			Language: language{Code: c.language},
			Components: []component{{
				Type: "body",
				Parameters: []textParam{
					{Type: "text", Text: customerName},
					{Type: "text", Text: trackingNumber},
				},
			}},
		},
	})
	if err != nil {
		return "", errors.Wrap(err, "marshal request")
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	var sr sendResponse
	decErr := json.NewDecoder(resp.Body).Decode(&sr)

	if resp.StatusCode/100 != 2 {
		if decErr == nil && sr.Error != nil && sr.Error.Message != "" {
			return "", fmt.Errorf("whatsapp http %d: %s", resp.StatusCode, sr.Error.Message)
		}
		return "", fmt.Errorf("whatsapp http %d", resp.StatusCode)
	}
	if decErr != nil {
		return "", errors.Wrap(decErr, "decode")
	}
	if len(sr.Messages) == 0 || sr.Messages[0].ID == "" {
		return "", fmt.Errorf("whatsapp: empty message id")
	}
	return sr.Messages[0].ID, nil
}

// NormalizePhone приводит колумбийский номер к формату E.164 без "+": 3001234567 -> 573001234567.
func NormalizePhone(phone string) (string, error) {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	switch {
	case len(digits) == 10 && digits[0] == '3':
		return "57" + digits, nil
	case len(digits) == 12 && strings.HasPrefix(digits, "57"):
		return digits, nil
	case len(digits) >= 11 && len(digits) <= 15:
		return digits, nil
	}
	return "", fmt.Errorf("invalid phone number %q", phone)
}
