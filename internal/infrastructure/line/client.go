package line

import (
	"context"
	"fmt"
	"net/http"
	appErrors "reminderengine/internal/pkg/errors"
	"reminderengine/internal/pkg/logger"

	"github.com/line/line-bot-sdk-go/v7/linebot"
)

// Client wraps the linebot.Client.
type Client struct {
	*linebot.Client
	log logger.Logger
}

// NewClient creates a LINE Bot client for the given channel credentials.
func NewClient(channelSecret, channelToken string, log logger.Logger, opts ...linebot.ClientOption) (*Client, error) {
	if channelSecret == "" || channelToken == "" {
		return nil, fmt.Errorf("%w: channel secret and access token must be set", appErrors.ErrLineAPI)
	}

	bot, err := linebot.New(channelSecret, channelToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErrors.ErrLineAPI, err)
	}
	log.Info("Successfully created LINE Bot client.")
	return &Client{
		Client: bot,
		log:    log,
	}, nil
}

// SendMessages sends one or more messages using the ReplyMessage API.
func (c *Client) SendMessages(replyToken string, messages ...linebot.SendingMessage) error {
	_, err := c.ReplyMessage(replyToken, messages...).Do()
	if err != nil {
		return err // Return the error for the caller to handle
	}
	c.log.Debug("Successfully sent reply message.")
	return nil
}

// PushMessages sends one or more messages using the PushMessage API.
func (c *Client) PushMessages(ctx context.Context, to string, messages ...linebot.SendingMessage) error {
	_, err := c.PushMessage(to, messages...).WithContext(ctx).Do()
	if err != nil {
		return err
	}
	c.log.Debug("Successfully sent push message.")
	return nil
}

// ParseRequest parses incoming webhook requests.
func (c *Client) ParseRequest(r *http.Request) ([]*linebot.Event, error) {
	return c.Client.ParseRequest(r)
}
