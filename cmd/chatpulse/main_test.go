package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/rickgao/chatpulse/internal/api"
	"github.com/rickgao/chatpulse/internal/connection"
	"github.com/rickgao/chatpulse/internal/events"
	"github.com/rickgao/chatpulse/internal/model"
)

func init() {
	color.NoColor = true
}

func testPrinter(buf *bytes.Buffer) *printer {
	p := newPrinter(buf, "alice@example.com")
	p.now = func() time.Time { return time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC) }
	return p
}

func decode(t *testing.T, typ events.EventType, payload any) events.Envelope {
	t.Helper()
	frame, err := events.Encode(typ, payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	env, err := events.Decode(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env
}

func TestPrinter_Event(t *testing.T) {
	alice := model.User{Email: "alice@example.com"}
	bob := model.User{Email: "bob@example.com"}

	tests := []struct {
		name    string
		typ     events.EventType
		payload any
		want    string
	}{
		{
			name:    "received message",
			typ:     events.MessageReceived,
			payload: model.Message{Sender: bob, Recipient: alice, Text: "hi"},
			want:    "15:04:05 <- bob@example.com: hi\n",
		},
		{
			name:    "sent message",
			typ:     events.MessageSent,
			payload: model.Message{Sender: alice, Recipient: bob, Text: "hey"},
			want:    "15:04:05 -> bob@example.com: hey\n",
		},
		{
			name:    "incoming request",
			typ:     events.FriendRequestReceived,
			payload: model.FriendRequest{Requester: bob, Recipient: alice, Status: model.StatusPending},
			want:    "15:04:05 friend request from bob@example.com\n",
		},
		{
			name:    "answer",
			typ:     events.FriendRequestAnswer,
			payload: model.FriendRequest{Requester: alice, Recipient: bob, Status: model.StatusAccepted},
			want:    "15:04:05 friend request accepted with bob@example.com\n",
		},
		{
			name:    "removed",
			typ:     events.FriendRequestRemoved,
			payload: model.FriendRequest{Requester: bob, Recipient: alice, Status: model.StatusRemoved},
			want:    "15:04:05 friendship removed with bob@example.com\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			testPrinter(&buf).Event(decode(t, tt.typ, tt.payload))
			if got := buf.String(); got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrinter_State(t *testing.T) {
	var buf bytes.Buffer
	p := testPrinter(&buf)

	p.State(connection.StateEvent{Old: connection.StateConnecting, New: connection.StateOpen})
	p.State(connection.StateEvent{Old: connection.StateOpen, New: connection.StateErrored, Err: errors.New("reset")})

	got := buf.String()
	if !strings.Contains(got, "connection connecting -> open") {
		t.Errorf("missing open transition in %q", got)
	}
	if !strings.Contains(got, "(reset), send SIGHUP to reconnect") {
		t.Errorf("missing reconnect hint in %q", got)
	}
}

func TestPrinter_ChatLine(t *testing.T) {
	var buf bytes.Buffer
	p := testPrinter(&buf)

	p.chatLine(model.Message{Sender: model.User{Email: "Alice@Example.com"}, Text: "mine"})
	p.chatLine(model.Message{Sender: model.User{Email: "bob@example.com"}, Text: "theirs"})

	want := "15:04:05 me: mine\n15:04:05 bob@example.com: theirs\n"
	if got := buf.String(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

// stubManager reports fixed stats.
type stubManager struct {
	stats connection.ManagerStats
}

func (s *stubManager) Connect(context.Context, string, connection.CredentialProvider) error {
	return nil
}
func (s *stubManager) Close() error                         { return nil }
func (s *stubManager) State() connection.State              { return s.stats.State }
func (s *stubManager) Identity() string                     { return s.stats.Identity }
func (s *stubManager) States() <-chan connection.StateEvent { return nil }
func (s *stubManager) Stats() connection.ManagerStats       { return s.stats }

type fixedLen int

func (n fixedLen) Len() int { return int(n) }

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		stats      connection.ManagerStats
		wantStatus string
		wantCode   int
	}{
		{
			name:       "open",
			stats:      connection.ManagerStats{State: connection.StateOpen, Identity: "uid-1", OpenedAt: time.Now()},
			wantStatus: "healthy",
			wantCode:   http.StatusOK,
		},
		{
			name:       "connecting",
			stats:      connection.ManagerStats{State: connection.StateConnecting},
			wantStatus: "degraded",
			wantCode:   http.StatusOK,
		},
		{
			name:       "errored",
			stats:      connection.ManagerStats{State: connection.StateErrored, LastError: "transport: reset"},
			wantStatus: "unhealthy",
			wantCode:   http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := createHealthHandler(&stubManager{stats: tt.stats}, fixedLen(3), "/metrics")

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}

			var body struct {
				Status     string                     `json:"status"`
				Components map[string]json.RawMessage `json:"components"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tt.wantStatus)
			}
			if !strings.Contains(string(body.Components["registry"]), `"subscribers":3`) {
				t.Errorf("registry component = %s", body.Components["registry"])
			}
		})
	}
}

func TestHealthHandler_Metrics(t *testing.T) {
	h := createHealthHandler(&stubManager{}, fixedLen(0), "/metrics")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics code = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/connection", nil))
	if !strings.Contains(rec.Body.String(), `"state":"disconnected"`) {
		t.Errorf("debug body = %s", rec.Body.String())
	}
}

func TestCollect(t *testing.T) {
	rows := []int{1, 2, 3, 4, 5}
	fetch := func(_ context.Context, req api.PageRequest) (*model.Page[int], error) {
		end := min(req.Offset+req.Limit, len(rows))
		page := &model.Page[int]{Data: rows[req.Offset:end]}
		if end < len(rows) {
			page.NextOffset = &end
		}
		return page, nil
	}

	first, err := collect(context.Background(), 2, false, fetch)
	if err != nil || len(first) != 2 {
		t.Fatalf("first page = %v, %v", first, err)
	}

	every, err := collect(context.Background(), 2, true, fetch)
	if err != nil || len(every) != 5 {
		t.Fatalf("all pages = %v, %v", every, err)
	}
}

func TestParseNewUsers(t *testing.T) {
	got, err := parseNewUsers([]string{"ann@x.io", " bob@x.io = Bob B "}, "pw")
	if err != nil {
		t.Fatal(err)
	}
	want := []api.NewUser{
		{Email: "ann@x.io", Password: "pw", DisplayName: "ann", EmailVerified: true},
		{Email: "bob@x.io", Password: "pw", DisplayName: "Bob B", EmailVerified: true},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d users, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("user %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	for _, bad := range []string{"nobody", "@x.io", "=Name"} {
		if _, err := parseNewUsers([]string{bad}, "pw"); err == nil {
			t.Errorf("parseNewUsers(%q) should fail", bad)
		}
	}
	if _, err := parseNewUsers([]string{"ann@x.io"}, ""); err == nil {
		t.Error("empty password should fail")
	}
}

func TestPrinter_Friends(t *testing.T) {
	var buf bytes.Buffer
	p := testPrinter(&buf)
	bob := model.FriendWithMessage{User: model.User{Email: "bob@example.com"}}

	p.Friends([]model.FriendWithMessage{bob})
	p.Friends([]model.FriendWithMessage{bob})
	p.Friends(nil)

	want := "15:04:05 friends: 1\n15:04:05 friends: 0\n"
	if got := buf.String(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

type lookupFunc func(ctx context.Context, email string) (*model.User, error)

func (f lookupFunc) LookupUser(ctx context.Context, email string) (*model.User, error) {
	return f(ctx, email)
}

func TestResolvePeer(t *testing.T) {
	users := lookupFunc(func(_ context.Context, email string) (*model.User, error) {
		switch email {
		case "bob@example.com":
			return &model.User{Email: email, DisplayName: "Bob"}, nil
		case "down@example.com":
			return nil, errors.New("backend down")
		}
		return nil, nil
	})

	u, err := resolvePeer(context.Background(), users, " bob@example.com ")
	if err != nil || u.DisplayName != "Bob" {
		t.Errorf("resolvePeer = %+v, %v", u, err)
	}
	if _, err := resolvePeer(context.Background(), users, "nobody@example.com"); err == nil || !strings.Contains(err.Error(), "no user") {
		t.Errorf("unknown peer err = %v", err)
	}
	if _, err := resolvePeer(context.Background(), users, "down@example.com"); err == nil || !strings.Contains(err.Error(), "backend down") {
		t.Errorf("lookup failure err = %v", err)
	}
}

func TestDrain(t *testing.T) {
	calls := 0
	err := drain(context.Background(), func(context.Context) (bool, error) {
		calls++
		return calls < 3, nil
	})
	if err != nil || calls != 3 {
		t.Errorf("drain = %v after %d calls", err, calls)
	}

	boom := errors.New("boom")
	err = drain(context.Background(), func(context.Context) (bool, error) { return true, boom })
	if !errors.Is(err, boom) {
		t.Errorf("drain err = %v", err)
	}
}

func TestPrintRequests(t *testing.T) {
	alice := model.User{Email: "alice@example.com", DisplayName: "Alice"}
	bob := model.User{Email: "bob@example.com", DisplayName: "Bob"}
	var buf bytes.Buffer
	err := printRequests(&buf, alice.Email, []model.FriendRequest{
		{Requester: bob, Recipient: alice, Status: model.StatusPending},
		{Requester: alice, Recipient: model.User{Email: "carol@example.com"}, Status: model.StatusPending},
	})
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %q", lines)
	}
	if !strings.HasPrefix(lines[1], "incoming") || !strings.Contains(lines[1], "bob@example.com") {
		t.Errorf("row 1 = %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "outgoing") || !strings.Contains(lines[2], "carol@example.com") {
		t.Errorf("row 2 = %q", lines[2])
	}
}
