package api

import (
	"context"
	"strings"

	"github.com/rickgao/chatpulse/internal/model"
)

// SearchUsers finds users matching q, annotated with the caller's friend status.
func (c *Client) SearchUsers(ctx context.Context, q string, page PageRequest) (*model.Page[model.User], error) {
	var resp model.Page[model.User]
	if err := c.post(ctx, PathSearchUsers, NewQuery(q, page), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// lookupLimit bounds the search behind LookupUser. Search matches
// substrings, so the exact email may not be the first hit.
const lookupLimit = 10

// LookupUser returns the user whose email equals email, or nil.
func (c *Client) LookupUser(ctx context.Context, email string) (*model.User, error) {
	page, err := c.SearchUsers(ctx, email, PageRequest{Limit: lookupLimit})
	if err != nil {
		return nil, err
	}
	for i := range page.Data {
		if strings.EqualFold(page.Data[i].Email, email) {
			return &page.Data[i], nil
		}
	}
	return nil, nil
}

// GetAllUsers lists every account (admin only).
func (c *Client) GetAllUsers(ctx context.Context, q string, page PageRequest) (*model.Page[model.User], error) {
	var resp model.Page[model.User]
	if err := c.post(ctx, PathGetAllUsers, NewQuery(q, page), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetLoginToken issues a custom token to sign in as email (admin only).
func (c *Client) GetLoginToken(ctx context.Context, email string) (string, error) {
	var resp LoginTokenResponse
	if err := c.post(ctx, PathGetLoginToken, emailRequest{Email: email}, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", ErrRejected
	}
	return resp.Token, nil
}
