package api

import (
	"context"
	"fmt"

	"github.com/rickgao/chatpulse/internal/model"
)

// ListFriendRequests returns one page of requests in the given statuses.
func (c *Client) ListFriendRequests(ctx context.Context, statuses []model.FriendStatus, page PageRequest) (*model.Page[model.FriendRequest], error) {
	var resp model.Page[model.FriendRequest]
	req := ListRequestsRequest{Status: statuses, PageRequest: page}
	if err := c.post(ctx, PathFriendRequests, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendFriendRequest asks email to become a friend.
func (c *Client) SendFriendRequest(ctx context.Context, email string) error {
	return c.postAction(ctx, PathSendRequest, emailRequest{Email: email})
}

// AnswerFriendRequest accepts or rejects the pending request from email.
func (c *Client) AnswerFriendRequest(ctx context.Context, email string, status model.FriendStatus) error {
	if !status.IsAnswer() {
		return fmt.Errorf("answer must be accepted or rejected, got %q", status)
	}
	return c.postAction(ctx, PathAnswerRequest, answerRequest{Email: email, Status: status})
}

// RemoveFriendRequest withdraws a request or unfriends email.
func (c *Client) RemoveFriendRequest(ctx context.Context, email string) error {
	return c.postAction(ctx, PathRemoveRequest, emailRequest{Email: email})
}

// FriendsWithLastMessage lists friends with their latest message.
func (c *Client) FriendsWithLastMessage(ctx context.Context, q string, page PageRequest) (*model.Page[model.FriendWithMessage], error) {
	var resp model.Page[model.FriendWithMessage]
	if err := c.post(ctx, PathFriendsWithLast, NewQuery(q, page), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
