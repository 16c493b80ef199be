package line

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"tennisScrapper/pkg/scraper"
)

const defaultAPIURL = "https://api.line.me/v2/bot/message/push"

// ErrNotConfigured is returned when the channel token or user id is missing
var ErrNotConfigured = errors.New("LINE configuration is incomplete")

// Client handles LINE notifications
type Client struct {
	channelToken string
	userID       string
	noNotify     bool
	log          *zap.Logger

	// APIURL is the push endpoint
	APIURL string
	HTTP   *http.Client
}

// NewClient creates a new LINE client. With noNotify set every
// notification is skipped.
func NewClient(channelToken, userID string, noNotify bool, log *zap.Logger) *Client {
	return &Client{
		channelToken: channelToken,
		userID:       userID,
		noNotify:     noNotify,
		log:          log,
		APIURL:       defaultAPIURL,
		HTTP:         &http.Client{Timeout: 30 * time.Second},
	}
}

// Enabled reports whether notifications are sent
func (c *Client) Enabled() bool {
	return !c.noNotify && c.channelToken != "" && c.userID != ""
}

// Message represents a LINE push request
type Message struct {
	To       string        `json:"to"`
	Messages []LineContent `json:"messages"`
}

// LineContent represents the content of a LINE message
type LineContent struct {
	Type     string      `json:"type"`
	Text     string      `json:"text,omitempty"`
	AltText  string      `json:"altText,omitempty"`
	Contents interface{} `json:"contents,omitempty"`
}

// NotifyReservation reports a completed booking with its slots
func (c *Client) NotifyReservation(ctx context.Context, venue, number string, slots []scraper.Slot) error {
	if len(slots) == 0 && number == "" {
		return nil
	}
	if c.noNotify {
		c.log.Info("📱 Notification skipped (--no-notify)")
		return nil
	}
	return c.send(ctx, Message{
		To:       c.userID,
		Messages: []LineContent{c.reservationMessage(venue, number, slots)},
	})
}

// NotifyText sends a plain text message
func (c *Client) NotifyText(ctx context.Context, text string) error {
	if c.noNotify {
		c.log.Info("📱 Notification skipped (--no-notify)")
		return nil
	}
	return c.send(ctx, Message{
		To:       c.userID,
		Messages: []LineContent{{Type: "text", Text: text}},
	})
}

// TestNotification sends a short message to check the credentials
func (c *Client) TestNotification(ctx context.Context, venues []string) error {
	text := "🎾 テニスコート予約の監視を開始しました"
	for _, v := range venues {
		text += "\n📍 " + v
	}
	return c.NotifyText(ctx, text)
}

func (c *Client) send(ctx context.Context, payload Message) error {
	if c.channelToken == "" || c.userID == "" {
		return ErrNotConfigured
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.channelToken)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("message failed with status: %d", resp.StatusCode)
	}

	c.log.Info("📱 Notification sent")
	return nil
}

func (c *Client) reservationMessage(venue, number string, slots []scraper.Slot) LineContent {
	boxes := make([]interface{}, 0, len(slots)+1)
	for _, slot := range slots {
		boxes = append(boxes, map[string]interface{}{
			"type":   "box",
			"layout": "vertical",
			"contents": []interface{}{
				map[string]interface{}{
					"type":   "text",
					"text":   "📍 " + slot.VenueName + " " + slot.FacilityName,
					"size":   "md",
					"weight": "bold",
					"color":  "#1DB446",
					"wrap":   true,
				},
				map[string]interface{}{
					"type":   "text",
					"text":   fmt.Sprintf("📅 %s %s-%s", slot.DisplayDate(), slot.StartDisplay, slot.EndDisplay),
					"size":   "sm",
					"color":  "#666666",
					"margin": "sm",
				},
				map[string]interface{}{
					"type":   "separator",
					"margin": "md",
				},
			},
		})
	}
	if number != "" {
		boxes = append(boxes, map[string]interface{}{
			"type":   "text",
			"text":   "🧾 予約番号: " + number,
			"size":   "md",
			"weight": "bold",
			"margin": "md",
		})
	}

	return LineContent{
		Type:    "flex",
		AltText: fmt.Sprintf("%sの予約が完了しました！(%d件)", venue, len(slots)),
		Contents: map[string]interface{}{
			"type": "bubble",
			"header": map[string]interface{}{
				"type":   "box",
				"layout": "vertical",
				"contents": []interface{}{
					map[string]interface{}{
						"type":   "text",
						"text":   "🎾 予約完了！",
						"size":   "xl",
						"weight": "bold",
						"color":  "#1DB446",
					},
				},
			},
			"body": map[string]interface{}{
				"type":     "box",
				"layout":   "vertical",
				"contents": boxes,
				"spacing":  "md",
			},
		},
	}
}
