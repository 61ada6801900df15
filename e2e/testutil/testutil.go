// Package testutil runs devserve in-process against a scratch working
// directory and checks responses.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/net/html"
	"gopkg.in/yaml.v3"

	"example.com/devserve/internal/app"
	"example.com/devserve/internal/config"
	"example.com/devserve/internal/logger"
	"example.com/devserve/internal/server"
)

// TestRequest models an HTTP request for E2E testing.
type TestRequest struct {
	Method  string
	Path    string
	Headers http.Header
}

// HeaderMatcher maps header names to expected values. An empty expected
// value means the header must be absent.
type HeaderMatcher map[string]string

// BodyMatcher checks a response body.
type BodyMatcher interface {
	Match(body []byte) (bool, string)
}

// ExactBodyMatcher matches the body exactly.
type ExactBodyMatcher struct {
	ExpectedBody []byte
}

func (m *ExactBodyMatcher) Match(body []byte) (bool, string) {
	if bytes.Equal(m.ExpectedBody, body) {
		return true, ""
	}
	return false, fmt.Sprintf("bodies do not match exactly. Expected: %q, Got: %q", m.ExpectedBody, body)
}

// StringContainsBodyMatcher checks that the body contains a substring.
type StringContainsBodyMatcher struct {
	Substring string
}

func (m *StringContainsBodyMatcher) Match(body []byte) (bool, string) {
	if bytes.Contains(body, []byte(m.Substring)) {
		return true, ""
	}
	return false, fmt.Sprintf("body does not contain substring: %q. Body: %q", m.Substring, body)
}

// ExpectedResponse is the outcome a TestRequest should produce.
type ExpectedResponse struct {
	StatusCode  int
	Headers     HeaderMatcher
	BodyMatcher BodyMatcher
}

// ActualResponse is what the server sent back.
type ActualResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// syncBuffer collects server logs written from request goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// ServerInstance is a devserve running inside the test process.
type ServerInstance struct {
	Server  *server.Server
	Config  *config.Config
	Address string
	Root    string
	logs    *syncBuffer
	done    chan error
}

// Logs returns everything the server has logged so far.
func (s *ServerInstance) Logs() string { return s.logs.String() }

// WriteTree creates files under root. Keys ending in "/" create empty
// directories.
func WriteTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		if strings.HasSuffix(name, "/") {
			if err := os.MkdirAll(full, 0o755); err != nil {
				t.Fatalf("mkdir %s: %v", full, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", filepath.Dir(full), err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", full, err)
		}
	}
}

// StartServer changes into a fresh directory populated with files, then
// starts devserve on a loopback port using cfg (defaults when nil). The
// server is closed at test cleanup.
func StartServer(t *testing.T, cfg *config.Config, files map[string]string) *ServerInstance {
	t.Helper()
	root := t.TempDir()
	WriteTree(t, root, files)
	t.Chdir(root)

	if cfg == nil {
		cfg = config.Default()
	}
	addr := "127.0.0.1:0"
	cfg.Server.Address = &addr
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("invalid test config: %v", err)
	}

	logs := &syncBuffer{}
	srv, err := app.NewServer(cfg, logger.NewTestLogger(logs))
	if err != nil {
		t.Fatalf("building server: %v", err)
	}
	l, err := srv.Listen()
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	inst := &ServerInstance{
		Server:  srv,
		Config:  cfg,
		Address: l.Addr().String(),
		Root:    root,
		logs:    logs,
		done:    make(chan error, 1),
	}
	go func() { inst.done <- srv.Serve(l) }()
	t.Cleanup(func() {
		srv.Close()
		select {
		case err := <-inst.done:
			if err != nil {
				t.Errorf("server exited with error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("server did not stop within 5s")
		}
	})
	return inst
}

// Do sends request to the instance.
func (s *ServerInstance) Do(request TestRequest) (ActualResponse, error) {
	method := request.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequest(method, "http://"+s.Address+request.Path, nil)
	if err != nil {
		return ActualResponse{}, err
	}
	for k, vv := range request.Headers {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return ActualResponse{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ActualResponse{}, err
	}
	return ActualResponse{StatusCode: resp.StatusCode, Headers: resp.Header, Body: body}, nil
}

// AssertResponse reports every mismatch between actual and expected.
func AssertResponse(t *testing.T, actual ActualResponse, expected ExpectedResponse) {
	t.Helper()
	if expected.StatusCode != 0 && actual.StatusCode != expected.StatusCode {
		t.Errorf("status = %d, want %d", actual.StatusCode, expected.StatusCode)
	}
	for name, want := range expected.Headers {
		got := actual.Headers.Get(name)
		if want == "" && got != "" {
			t.Errorf("header %s = %q, want it absent", name, got)
		} else if want != "" && got != want {
			t.Errorf("header %s = %q, want %q", name, got, want)
		}
	}
	if expected.BodyMatcher != nil {
		if ok, msg := expected.BodyMatcher.Match(actual.Body); !ok {
			t.Error(msg)
		}
	}
}

// Link is an anchor in an HTML page.
type Link struct {
	Href string
	Text string
}

// ParseLinks tokenizes page and returns every anchor in document order.
func ParseLinks(page []byte) ([]Link, error) {
	var links []Link
	z := html.NewTokenizer(bytes.NewReader(page))
	var current *Link
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return nil, err
			}
			return links, nil
		case html.StartTagToken:
			tok := z.Token()
			if tok.Data != "a" {
				continue
			}
			current = &Link{}
			for _, attr := range tok.Attr {
				if attr.Key == "href" {
					current.Href = attr.Val
				}
			}
		case html.TextToken:
			if current != nil {
				current.Text += string(z.Text())
			}
		case html.EndTagToken:
			if current != nil && z.Token().Data == "a" {
				links = append(links, *current)
				current = nil
			}
		}
	}
}

// WriteTempConfig marshals configData as json, toml or yaml into a file
// under dir and returns its path.
func WriteTempConfig(dir string, configData any, format string) (string, error) {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(format) {
	case "json":
		data, err = json.MarshalIndent(configData, "", "  ")
	case "toml":
		buf := new(bytes.Buffer)
		if err = toml.NewEncoder(buf).Encode(configData); err == nil {
			data = buf.Bytes()
		}
	case "yaml", "yml":
		data, err = yaml.Marshal(configData)
	default:
		return "", fmt.Errorf("unsupported config format: %s", format)
	}
	if err != nil {
		return "", fmt.Errorf("failed to marshal config data to %s: %w", format, err)
	}

	path := filepath.Join(dir, "devserve."+strings.ToLower(format))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}
	return path, nil
}

// GetFreePort asks the kernel for a free loopback port.
func GetFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
