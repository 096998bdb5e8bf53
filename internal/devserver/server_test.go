package devserver

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"index.html":         "<html><body><h1>Home</h1></body></html>",
		"catalog/index.html": "<html><BODY>Catalog</BODY></html>",
		"css/style.min.css":  "a{color:red}",
	}
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	s := New(root, "127.0.0.1:0")
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func get(t *testing.T, url string, header map[string]string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestServer_InjectsClientIntoHTML(t *testing.T) {
	_, ts := newTestServer(t)

	resp, body := get(t, ts.URL+"/", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `<html><body><h1>Home</h1><script src="/__assetweaver/client.js"></script></body></html>`, body)

	_, body = get(t, ts.URL+"/catalog/", nil)
	assert.Contains(t, body, `Catalog<script src="/__assetweaver/client.js"></script></BODY>`)
}

func TestServer_ServesAssetsVerbatim(t *testing.T) {
	_, ts := newTestServer(t)

	resp, body := get(t, ts.URL+"/css/style.min.css", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "a{color:red}", body)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/css")
}

func TestServer_NotFoundAndTraversal(t *testing.T) {
	_, ts := newTestServer(t)

	resp, _ := get(t, ts.URL+"/missing.png", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = get(t, ts.URL+"/../../etc/passwd", nil)
	assert.NotEqual(t, http.StatusOK, resp.StatusCode)
}

func TestServer_DirectoryWithoutSlashRedirects(t *testing.T) {
	_, ts := newTestServer(t)

	resp, _ := get(t, ts.URL+"/catalog", nil)
	assert.Equal(t, http.StatusMovedPermanently, resp.StatusCode)
	assert.Equal(t, "/catalog/", resp.Header.Get("Location"))
}

func TestServer_PermissiveCORS(t *testing.T) {
	_, ts := newTestServer(t)

	resp, _ := get(t, ts.URL+"/css/style.min.css", map[string]string{"Origin": "http://example.test"})
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestServer_ClientScript(t *testing.T) {
	_, ts := newTestServer(t)

	resp, body := get(t, ts.URL+clientPath, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, eventsPath)
}

// readEvent reads one SSE frame.
func readEvent(t *testing.T, r *bufio.Reader) (name, data string) {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		case line == "" && name != "":
			return name, data
		}
	}
}

func TestServer_EventsStreamReloadAndInject(t *testing.T) {
	s, ts := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+eventsPath, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	r := bufio.NewReader(resp.Body)
	name, id := readEvent(t, r)
	require.Equal(t, "hello", name)
	assert.Equal(t, []string{id}, s.Hub.Clients())

	s.Hub.Inject([]string{"css/style.min.css"})
	name, data := readEvent(t, r)
	require.Equal(t, EventInject, name)
	var ev Event
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	assert.Equal(t, []string{"css/style.min.css"}, ev.Paths)

	s.Hub.Reload()
	name, _ = readEvent(t, r)
	assert.Equal(t, EventReload, name)

	cancel()
	require.Eventually(t, func() bool { return len(s.Hub.Clients()) == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestServer_StartBindsAndStopsOnCancel(t *testing.T) {
	s := New(t.TempDir(), "127.0.0.1:0")
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, s.Start(ctx))
	require.NotEmpty(t, s.ListenAddr())

	resp, err := http.Get("http://" + s.ListenAddr() + clientPath)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServer_StartFailsOnBusyAddress(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first := New(t.TempDir(), "127.0.0.1:0")
	require.NoError(t, first.Start(ctx))

	second := New(t.TempDir(), first.ListenAddr())
	assert.Error(t, second.Start(ctx))
}
