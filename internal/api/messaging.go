package api

import (
	"context"
	"errors"

	"github.com/rickgao/chatpulse/internal/model"
)

// GetMessages returns one page of the conversation with email.
func (c *Client) GetMessages(ctx context.Context, email string, page PageRequest) (*model.Page[model.Message], error) {
	var resp model.Page[model.Message]
	if err := c.post(ctx, PathGetMessages, messagesRequest{Email: email, PageRequest: page}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendMessage sends text to email.
func (c *Client) SendMessage(ctx context.Context, email, text string) error {
	if text == "" {
		return errors.New("message text is empty")
	}
	return c.postAction(ctx, PathSendMessage, sendMessageRequest{Email: email, Text: text})
}
