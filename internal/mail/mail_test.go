package mail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/inbox-ledger/internal/entity"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeGoogle serves the token endpoint and the few Gmail routes the adapter uses.
type fakeGoogle struct {
	t              *testing.T
	rejectRefresh  bool
	rotateTo       string
	attachmentData []byte

	mu          sync.Mutex
	gotRefresh  string
	gotQuery    string
	gotMax      string
	gotAuth     string
	modifiedIDs []string
	modifyBody  map[string]any
}

func (f *fakeGoogle) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(f.t, r.ParseForm())
		f.mu.Lock()
		f.gotRefresh = r.Form.Get("refresh_token")
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if f.rejectRefresh {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`)
			return
		}
		resp := map[string]any{"access_token": "access-1", "token_type": "Bearer", "expires_in": 3600}
		if f.rotateTo != "" {
			resp["refresh_token"] = f.rotateTo
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/gmail/v1/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.gotQuery = r.URL.Query().Get("q")
		f.gotMax = r.URL.Query().Get("maxResults")
		f.gotAuth = r.Header.Get("Authorization")
		f.mu.Unlock()
		_, _ = io.WriteString(w, `{"messages":[{"id":"m1","threadId":"t1"},{"id":"m2","threadId":"t2"}]}`)
	})
	mux.HandleFunc("/gmail/v1/users/me/messages/m1", func(w http.ResponseWriter, r *http.Request) {
		inline := base64.RawURLEncoding.EncodeToString([]byte("%PDF-inline"))
		_, _ = io.WriteString(w, `{
			"id":"m1",
			"payload":{
				"mimeType":"multipart/mixed",
				"headers":[{"name":"Subject","value":"Your receipt"}],
				"parts":[
					{"partId":"0","mimeType":"text/plain","filename":"","body":{"size":5,"data":"aGVsbG8"}},
					{"partId":"1","mimeType":"multipart/alternative","parts":[
						{"partId":"1.0","mimeType":"application/pdf","filename":"Receipt.PDF","body":{"attachmentId":"att-1","size":1234}}
					]},
					{"partId":"2","mimeType":"application/pdf","filename":"small.pdf","body":{"size":11,"data":"`+inline+`"}}
				]
			}
		}`)
	})
	mux.HandleFunc("/gmail/v1/users/me/messages/m1/attachments/att-1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"size": len(f.attachmentData), "data": base64.URLEncoding.EncodeToString(f.attachmentData)})
	})
	mux.HandleFunc("/gmail/v1/users/me/messages/m1/modify", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.modifiedIDs = append(f.modifiedIDs, "m1")
		_ = json.NewDecoder(r.Body).Decode(&f.modifyBody)
		f.mu.Unlock()
		_, _ = io.WriteString(w, `{"id":"m1"}`)
	})
	return mux
}

func newManager(t *testing.T, f *fakeGoogle) *SessionManager {
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return NewSessionManager(SessionConfig{
		ClientID:     "cid",
		ClientSecret: "secret",
		TokenURL:     srv.URL + "/token",
		GmailBaseURL: srv.URL,
		HTTPClient:   srv.Client(),
	}, quiet)
}

func TestBuildQuery(t *testing.T) {
	require.Equal(t, "has:attachment filename:pdf newer_than:1d is:unread", BuildQuery(""))
	require.Equal(t, "has:attachment filename:pdf newer_than:6h is:unread", BuildQuery(" 6h "))
}

func TestOpenRefreshesWithoutRotation(t *testing.T) {
	f := &fakeGoogle{t: t}
	m := newManager(t, f)

	s, err := m.Open(context.Background(), entity.LinkedMailAccount{UserID: "u1", RefreshToken: "refresh-1"})
	require.NoError(t, err)
	require.Equal(t, "refresh-1", f.gotRefresh)
	require.Equal(t, "access-1", s.AccessToken())
	require.False(t, s.Rotated)
	require.Equal(t, "refresh-1", s.RefreshToken())
}

func TestOpenDetectsRotation(t *testing.T) {
	f := &fakeGoogle{t: t, rotateTo: "refresh-2"}
	m := newManager(t, f)

	s, err := m.Open(context.Background(), entity.LinkedMailAccount{UserID: "u1", RefreshToken: "refresh-1"})
	require.NoError(t, err)
	require.True(t, s.Rotated)
	require.Equal(t, "refresh-2", s.RefreshToken())
}

func TestOpenRejectedRefresh(t *testing.T) {
	f := &fakeGoogle{t: t, rejectRefresh: true}
	m := newManager(t, f)

	_, err := m.Open(context.Background(), entity.LinkedMailAccount{UserID: "u1", RefreshToken: "revoked"})
	require.ErrorIs(t, err, ErrRefreshFailed)
	require.Contains(t, err.Error(), "invalid_grant")
}

func TestOpenWithoutRefreshToken(t *testing.T) {
	m := newManager(t, &fakeGoogle{t: t})
	_, err := m.Open(context.Background(), entity.LinkedMailAccount{UserID: "u1"})
	require.ErrorIs(t, err, ErrRefreshFailed)
}

func TestOpenNetworkFailure(t *testing.T) {
	m := NewSessionManager(SessionConfig{ClientID: "cid", TokenURL: "http://127.0.0.1:1/token"}, quiet)
	_, err := m.Open(context.Background(), entity.LinkedMailAccount{UserID: "u1", RefreshToken: "r"})
	require.True(t, errors.Is(err, ErrRefreshFailed))
}

func TestGmailMailboxRoundTrip(t *testing.T) {
	f := &fakeGoogle{t: t, attachmentData: []byte("%PDF-1.4 attachment bytes\xff\xfe")}
	m := newManager(t, f)
	ctx := context.Background()

	s, err := m.Open(ctx, entity.LinkedMailAccount{UserID: "u1", RefreshToken: "refresh-1"})
	require.NoError(t, err)

	ids, err := s.Mailbox.Search(ctx, BuildQuery("1d"), 10)
	require.NoError(t, err)
	require.Equal(t, []string{"m1", "m2"}, ids)
	require.Equal(t, BuildQuery("1d"), f.gotQuery)
	require.Equal(t, "10", f.gotMax)
	require.Equal(t, "Bearer access-1", f.gotAuth)

	msg, err := s.Mailbox.GetMessage(ctx, "m1")
	require.NoError(t, err)
	require.Equal(t, "Your receipt", msg.Subject)
	require.Len(t, msg.Parts, 3)
	require.Equal(t, "Receipt.PDF", msg.Parts[1].Filename)
	require.Equal(t, "att-1", msg.Parts[1].AttachmentID)
	require.True(t, msg.Parts[1].HasBody())
	require.Equal(t, []byte("%PDF-inline"), msg.Parts[2].Data)

	data, err := s.Mailbox.GetAttachment(ctx, "m1", "att-1")
	require.NoError(t, err)
	require.Equal(t, f.attachmentData, data)

	require.NoError(t, s.Mailbox.MarkRead(ctx, "m1"))
	require.Equal(t, []string{"m1"}, f.modifiedIDs)
	require.Equal(t, []any{"UNREAD"}, f.modifyBody["removeLabelIds"])
}

func TestDecodeBase64URLPadding(t *testing.T) {
	raw := []byte{0xfb, 0xff, 0x01}
	for _, enc := range []string{
		base64.URLEncoding.EncodeToString(raw),
		base64.RawURLEncoding.EncodeToString(raw),
	} {
		got, err := decodeBase64URL(enc)
		require.NoError(t, err)
		require.Equal(t, raw, got)
	}
	_, err := decodeBase64URL("!!!")
	require.Error(t, err)
}
