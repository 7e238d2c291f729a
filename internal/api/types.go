package api

import (
	"github.com/rickgao/chatpulse/internal/model"
)

// Endpoint paths
const (
	PathCreateUser      = "/auth/create_user"
	PathBulkCreateUsers = "/auth/bulk_create_user"
	PathDeleteUser      = "/auth/delete_user"
	PathFriendRequests  = "/friends/list"
	PathSendRequest     = "/friends/send_request"
	PathAnswerRequest   = "/friends/answer"
	PathRemoveRequest   = "/friends/remove"
	PathFriendsWithLast = "/friends/friends_with_last_message"
	PathGetMessages     = "/messaging/message_get"
	PathSendMessage     = "/messaging/send_message"
	PathSearchUsers     = "/social_actions/search_users"
	PathGetAllUsers     = "/admin/get_all_users"
	PathGetLoginToken   = "/admin/get_login_token"
	DefaultPageLimit    = 100
)

// SuccessResponse is returned by action endpoints.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// PageRequest is the pagination part of list requests.
type PageRequest struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// FirstPage returns a page request for offset 0.
func FirstPage(limit int) PageRequest {
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	return PageRequest{Limit: limit}
}

// Next returns the request for the page after p, or false at the end.
func Next[T any](req PageRequest, p model.Page[T]) (PageRequest, bool) {
	if !p.HasMore() {
		return PageRequest{}, false
	}
	return PageRequest{Limit: req.Limit, Offset: *p.NextOffset}, true
}

// NewUser is an account to create.
type NewUser struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	DisplayName   string `json:"display_name"`
	EmailVerified bool   `json:"email_verified,omitempty"`
}

type bulkCreateRequest struct {
	Users []NewUser `json:"users"`
}

// BulkCreateResponse holds one result per requested user, in request order.
type BulkCreateResponse struct {
	Result []SuccessResponse `json:"result"`
}

// CreateFailure is a user the backend did not create.
type CreateFailure struct {
	Email   string
	Message string
}

type emailRequest struct {
	Email string `json:"email"`
}

// ListRequestsRequest filters the friend request list.
type ListRequestsRequest struct {
	Status []model.FriendStatus `json:"status"`
	PageRequest
}

type answerRequest struct {
	Email  string             `json:"email"`
	Status model.FriendStatus `json:"status"`
}

// QueryRequest is a free text query plus pagination. Q is null when empty.
type QueryRequest struct {
	Q *string `json:"q"`
	PageRequest
}

// NewQuery builds a QueryRequest, sending null for an empty query.
func NewQuery(q string, page PageRequest) QueryRequest {
	req := QueryRequest{PageRequest: page}
	if q != "" {
		req.Q = &q
	}
	return req
}

type messagesRequest struct {
	Email string  `json:"email"`
	Q     *string `json:"q"`
	PageRequest
}

type sendMessageRequest struct {
	Email string `json:"email"`
	Text  string `json:"text"`
}

// LoginTokenResponse carries an admin-issued custom token.
type LoginTokenResponse struct {
	Token string `json:"token"`
}
