package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gren-lang/package-registry/internal/logger"
)

func TestPackageLink(t *testing.T) {
	assert.Equal(t,
		"https://packages.gren-lang.org/package/acme%2Fwidgets/version/1.1.0/overview",
		PackageLink("https://packages.gren-lang.org/", "acme/widgets", "1.1.0"))
}

func TestZulipPostsStreamMessage(t *testing.T) {
	var gotPath, gotMethod string
	var form map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		require.NoError(t, r.ParseForm())
		form = map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "bot@example.com" || pass != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"result":"success","msg":"","id":42}`))
	}))
	defer srv.Close()

	z := NewZulip(srv.URL, "bot@example.com", "key", "")
	n := New("https://packages.gren-lang.org", "acme/widgets", "1.0.0", "Widgets for everyone")
	require.NoError(t, z.Notify(context.Background(), n))

	assert.Equal(t, "/api/v1/messages", gotPath)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "stream", form["type"])
	assert.Equal(t, "packages", form["to"])
	assert.Equal(t, "acme/widgets", form["topic"])
	assert.Equal(t,
		"Version 1.0.0 is now available!\n\nSummary: Widgets for everyone\nLink: https://packages.gren-lang.org/package/acme%2Fwidgets/version/1.0.0/overview\n",
		form["content"])
}

func TestZulipErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"result":"error","msg":"Stream 'packages' does not exist"}`))
	}))
	defer srv.Close()

	err := NewZulip(srv.URL, "u", "k", "packages").Notify(context.Background(), Notification{Name: "acme/widgets"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

type fakeConn struct {
	subject  string
	data     []byte
	flushErr error
	closed   bool
}

func (f *fakeConn) Publish(subj string, data []byte) error {
	f.subject, f.data = subj, data
	return nil
}

func (f *fakeConn) FlushWithContext(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("no deadline")
	}
	return f.flushErr
}

func (f *fakeConn) Close() { f.closed = true }

func TestNATSPublishesJSON(t *testing.T) {
	conn := &fakeConn{}
	n := &NATS{conn: conn, subject: "registry.packages.imported"}

	msg := New("https://example.org", "acme/widgets", "1.1.0", "Widgets")
	require.NoError(t, n.Notify(context.Background(), msg))

	assert.Equal(t, "registry.packages.imported", conn.subject)
	var decoded Notification
	require.NoError(t, json.Unmarshal(conn.data, &decoded))
	assert.Equal(t, msg, decoded)

	n.Close()
	assert.True(t, conn.closed)
}

func TestNATSFlushFailure(t *testing.T) {
	n := &NATS{conn: &fakeConn{flushErr: errors.New("connection closed")}, subject: "s"}
	assert.Error(t, n.Notify(context.Background(), Notification{}))
}

type recordingNotifier struct {
	name  string
	err   error
	calls int
}

func (r *recordingNotifier) Name() string { return r.name }
func (r *recordingNotifier) Notify(context.Context, Notification) error {
	r.calls++
	return r.err
}

func TestMultiDeliversToEveryChannel(t *testing.T) {
	failing := &recordingNotifier{name: "zulip", err: errors.New("down")}
	ok := &recordingNotifier{name: "nats"}
	m := NewMulti(logger.Discard(), failing, ok)

	err := m.Notify(context.Background(), Notification{Name: "acme/widgets"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zulip: down")
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, ok.calls)
}

func TestMultiWithoutChannelsIsNoop(t *testing.T) {
	m := NewMulti(logger.Discard())
	assert.Equal(t, 0, m.Len())
	assert.NoError(t, m.Notify(context.Background(), Notification{}))
}
