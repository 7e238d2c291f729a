package api

import (
	"context"
	"errors"
)

// CreateUser registers a new account. It needs no token. A refusal such as
// an email already in use is returned as ErrRejected with the backend's
// message.
func (c *Client) CreateUser(ctx context.Context, user NewUser) error {
	var resp SuccessResponse
	if err := c.postPublic(ctx, PathCreateUser, user, &resp); err != nil {
		return err
	}
	return resp.check(PathCreateUser)
}

// BulkCreateUsers creates several accounts at once (admin only). The
// backend answers per user, so a nil error can still carry failures; they
// are returned in input order.
func (c *Client) BulkCreateUsers(ctx context.Context, users []NewUser) ([]CreateFailure, error) {
	if len(users) == 0 {
		return nil, errors.New("no users to create")
	}

	var resp BulkCreateResponse
	if err := c.post(ctx, PathBulkCreateUsers, bulkCreateRequest{Users: users}, &resp); err != nil {
		return nil, err
	}

	var failures []CreateFailure
	for i, user := range users {
		if i >= len(resp.Result) {
			failures = append(failures, CreateFailure{Email: user.Email, Message: "no result from backend"})
			continue
		}
		if r := resp.Result[i]; !r.Success {
			failures = append(failures, CreateFailure{Email: user.Email, Message: r.Message})
		}
	}
	return failures, nil
}

// DeleteUser removes an account (admin only).
func (c *Client) DeleteUser(ctx context.Context, email string) error {
	return c.postAction(ctx, PathDeleteUser, emailRequest{Email: email})
}
