package notify

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

// recorder is a Displayer and Navigator that logs calls in order.
type recorder struct {
	mu      sync.Mutex
	calls   []string
	shown   []Notification
	showErr error
	openErr error
}

func (r *recorder) Show(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "show")
	if r.showErr != nil {
		return r.showErr
	}
	r.shown = append(r.shown, n)
	return nil
}

func (r *recorder) Close(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "close "+id)
	return nil
}

func (r *recorder) OpenWindow(_ context.Context, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "open "+url)
	return r.openErr
}

func newTestHandler(t *testing.T, r *recorder) *Handler {
	t.Helper()
	h, err := NewHandler(r, r, testLogger())
	require.NoError(t, err)
	return h
}

func TestParsePayload(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Payload
	}{
		{name: "empty", raw: "", want: Payload{}},
		{name: "malformed", raw: "{not json", want: Payload{}},
		{name: "wrong shape", raw: `{"data": "oops"}`, want: Payload{}},
		{name: "plain text", raw: "shift starts soon", want: Payload{}},
		{
			name: "full",
			raw:  `{"title":"Shift","body":"Starts at 9","data":{"url":"/shifts/4"},"actions":[{"action":"ack","title":"OK"}]}`,
			want: Payload{
				Title:   "Shift",
				Body:    "Starts at 9",
				Data:    map[string]any{"url": "/shifts/4"},
				Actions: []Action{{Action: "ack", Title: "OK"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParsePayload([]byte(tt.raw)))
		})
	}
}

func TestBuildNotification_Defaults(t *testing.T) {
	n := BuildNotification(Payload{})

	assert.NotEmpty(t, n.ID)
	assert.Equal(t, "Paradigm Services", n.Title)
	assert.Equal(t, "You have a new notification", n.Body)
	assert.Equal(t, "/icons/icon-192x192.png", n.Icon)
	assert.Equal(t, "/icons/icon-96x96.png", n.Badge)
	assert.Equal(t, []int{200, 100, 200}, n.Vibrate)
	assert.NotNil(t, n.Data)
	assert.Empty(t, n.Data)
	assert.NotNil(t, n.Actions)
	assert.Empty(t, n.Actions)
	assert.Equal(t, "/", n.URL())
}

func TestBuildNotification_DoesNotShareDefaults(t *testing.T) {
	n := BuildNotification(Payload{})
	n.Vibrate[0] = 999
	assert.Equal(t, 200, DefaultVibrate[0])
}

func TestNotificationURL(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
		want string
	}{
		{name: "no data", data: nil, want: "/"},
		{name: "url set", data: map[string]any{"url": "/tasks/12"}, want: "/tasks/12"},
		{name: "empty url", data: map[string]any{"url": ""}, want: "/"},
		{name: "non string url", data: map[string]any{"url": 12.0}, want: "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Notification{Data: tt.data}.URL())
		})
	}
}

func TestHandlePush_EmptyPayload(t *testing.T) {
	r := &recorder{}
	h := newTestHandler(t, r)

	n, err := h.HandlePush(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, r.shown, 1, "notification must be shown before HandlePush returns")
	assert.Equal(t, n.ID, r.shown[0].ID)
	assert.Equal(t, DefaultTitle, r.shown[0].Title)
	assert.Equal(t, DefaultBody, r.shown[0].Body)
	assert.Equal(t, []int{200, 100, 200}, r.shown[0].Vibrate)
}

func TestHandlePush_ExplicitFields(t *testing.T) {
	r := &recorder{}
	h := newTestHandler(t, r)

	n, err := h.HandlePush(context.Background(), []byte(`{"title":"Shift","body":"Starts at 9","data":{"url":"/shifts/4"}}`))
	require.NoError(t, err)

	assert.Equal(t, "Shift", n.Title)
	assert.Equal(t, "Starts at 9", n.Body)
	assert.Equal(t, DefaultIcon, n.Icon)
	assert.Equal(t, "/shifts/4", n.URL())
}

func TestHandlePush_DisplayFailure(t *testing.T) {
	r := &recorder{showErr: errors.New("permission denied")}
	h := newTestHandler(t, r)

	_, err := h.HandlePush(context.Background(), nil)
	assert.ErrorIs(t, err, r.showErr)
}

func TestHandleClick(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantURL string
	}{
		{name: "with url", payload: `{"data":{"url":"/tasks/12"}}`, wantURL: "/tasks/12"},
		{name: "without url", payload: `{"title":"Hi"}`, wantURL: "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &recorder{}
			h := newTestHandler(t, r)

			n, err := h.HandlePush(context.Background(), []byte(tt.payload))
			require.NoError(t, err)
			require.NoError(t, h.HandleClick(context.Background(), n))

			assert.Equal(t, []string{"show", "close " + n.ID, "open " + tt.wantURL}, r.calls)
		})
	}
}

func TestHandleClick_OpenFailure(t *testing.T) {
	r := &recorder{openErr: errors.New("no client")}
	h := newTestHandler(t, r)

	err := h.HandleClick(context.Background(), BuildNotification(Payload{}))
	assert.ErrorIs(t, err, r.openErr)
}

func TestNewHandler_Validation(t *testing.T) {
	_, err := NewHandler(nil, &recorder{}, testLogger())
	assert.Error(t, err)
	_, err = NewHandler(&recorder{}, nil, testLogger())
	assert.Error(t, err)
}

func TestInbox(t *testing.T) {
	ctx := context.Background()
	inbox := NewInbox(2)

	first := BuildNotification(Payload{Title: "first"})
	first.CreatedAt = time.Now().Add(-2 * time.Minute)
	second := BuildNotification(Payload{Title: "second"})
	second.CreatedAt = time.Now().Add(-time.Minute)
	third := BuildNotification(Payload{Title: "third"})

	require.NoError(t, inbox.Show(ctx, first))
	require.NoError(t, inbox.Show(ctx, second))
	require.NoError(t, inbox.Show(ctx, third))

	list := inbox.List()
	require.Len(t, list, 2, "oldest evicted when full")
	assert.Equal(t, "third", list[0].Title)
	assert.Equal(t, "second", list[1].Title)

	_, err := inbox.Get(first.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	h, err := NewHandler(inbox, inbox, testLogger())
	require.NoError(t, err)
	require.NoError(t, h.HandleClick(ctx, second))

	_, err = inbox.Get(second.ID)
	assert.ErrorIs(t, err, ErrNotFound, "click closes the notification")
	assert.Equal(t, []string{"/"}, inbox.Navigations())
}

// vapidKey generates an application server key pair.
func vapidKey(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	pub := elliptic.Marshal(elliptic.P256(), priv.X, priv.Y)
	return priv, base64.RawURLEncoding.EncodeToString(pub)
}

func vapidHeader(t *testing.T, priv *ecdsa.PrivateKey, pub, aud string, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.RegisteredClaims{
		Audience:  jwt.ClaimStrings{aud},
		Subject:   "mailto:ops@paradigm.example",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	signed, err := token.SignedString(priv)
	require.NoError(t, err)
	return "vapid t=" + signed + ", k=" + pub
}

func TestReceiver(t *testing.T) {
	priv, pub := vapidKey(t)
	otherPriv, otherPub := vapidKey(t)
	const aud = "https://push.paradigm.example"

	tests := []struct {
		name       string
		method     string
		auth       string
		body       string
		wantStatus int
	}{
		{
			name:       "valid token",
			method:     http.MethodPost,
			auth:       vapidHeader(t, priv, pub, aud, time.Now().Add(time.Hour)),
			body:       `{"title":"Shift"}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "missing header",
			method:     http.MethodPost,
			body:       `{}`,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "expired token",
			method:     http.MethodPost,
			auth:       vapidHeader(t, priv, pub, aud, time.Now().Add(-time.Hour)),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong audience",
			method:     http.MethodPost,
			auth:       vapidHeader(t, priv, pub, "https://evil.example", time.Now().Add(time.Hour)),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "foreign key",
			method:     http.MethodPost,
			auth:       vapidHeader(t, otherPriv, otherPub, aud, time.Now().Add(time.Hour)),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "signed by foreign key claiming ours",
			method:     http.MethodPost,
			auth:       vapidHeader(t, otherPriv, pub, aud, time.Now().Add(time.Hour)),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong method",
			method:     http.MethodGet,
			wantStatus: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inbox := NewInbox(10)
			h, err := NewHandler(inbox, inbox, testLogger())
			require.NoError(t, err)
			receiver, err := NewReceiver(h, ReceiverConfig{VAPIDPublicKey: pub, Audience: aud}, testLogger())
			require.NoError(t, err)

			req := httptest.NewRequest(tt.method, "/push", strings.NewReader(tt.body))
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rec := httptest.NewRecorder()
			receiver.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusCreated {
				var resp map[string]string
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				n, err := inbox.Get(resp["id"])
				require.NoError(t, err)
				assert.Equal(t, "Shift", n.Title)
			} else {
				assert.Empty(t, inbox.List())
			}
		})
	}
}

func TestReceiver_Unauthenticated(t *testing.T) {
	inbox := NewInbox(10)
	h, _ := NewHandler(inbox, inbox, testLogger())
	receiver, err := NewReceiver(h, DefaultReceiverConfig(), testLogger())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/push", strings.NewReader(""))
	rec := httptest.NewRecorder()
	receiver.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, inbox.List(), 1)
	assert.Equal(t, DefaultTitle, inbox.List()[0].Title)
}

func TestReceiver_PayloadTooLarge(t *testing.T) {
	inbox := NewInbox(10)
	h, _ := NewHandler(inbox, inbox, testLogger())
	receiver, err := NewReceiver(h, ReceiverConfig{MaxBodyBytes: 16}, testLogger())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/push", strings.NewReader(strings.Repeat("x", 64)))
	rec := httptest.NewRecorder()
	receiver.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestDecodePublicKey(t *testing.T) {
	_, pub := vapidKey(t)

	key, err := DecodePublicKey(pub)
	require.NoError(t, err)
	assert.Equal(t, elliptic.P256(), key.Curve)

	_, err = DecodePublicKey("not base64 !!")
	assert.Error(t, err)

	_, err = DecodePublicKey(base64.RawURLEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)

	_, err = NewReceiver(&Handler{}, ReceiverConfig{VAPIDPublicKey: "bogus"}, testLogger())
	assert.Error(t, err)
}
