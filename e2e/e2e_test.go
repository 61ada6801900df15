package e2e

import (
	"net/http"
	"strings"
	"testing"

	"example.com/devserve/e2e/testutil"
	"example.com/devserve/internal/config"
)

var siteFiles = map[string]string{
	"index.html":         "<h1>home</h1>",
	"app.wasm":           "\x00asm",
	"notes.MD":           "# notes",
	"LICENSE":            "MIT",
	"data.bin":           "\x01\x02",
	"docs/guide.txt":     "read me",
	"docs/with space.js": "1",
	"empty/":             "",
}

func crossOrigin() testutil.HeaderMatcher {
	return testutil.HeaderMatcher{
		"Cross-Origin-Opener-Policy":   "same-origin",
		"Cross-Origin-Embedder-Policy": "require-corp",
	}
}

func withHeaders(base testutil.HeaderMatcher, extra map[string]string) testutil.HeaderMatcher {
	for k, v := range extra {
		base[k] = v
	}
	return base
}

func TestStaticSite(t *testing.T) {
	srv := testutil.StartServer(t, nil, siteFiles)

	tests := []struct {
		name     string
		request  testutil.TestRequest
		expected testutil.ExpectedResponse
	}{
		{
			name:    "root serves index.html",
			request: testutil.TestRequest{Path: "/"},
			expected: testutil.ExpectedResponse{
				StatusCode:  http.StatusOK,
				Headers:     withHeaders(crossOrigin(), map[string]string{"Content-Type": "text/html"}),
				BodyMatcher: &testutil.ExactBodyMatcher{ExpectedBody: []byte("<h1>home</h1>")},
			},
		},
		{
			name:    "wasm content type",
			request: testutil.TestRequest{Path: "/app.wasm"},
			expected: testutil.ExpectedResponse{
				StatusCode: http.StatusOK,
				Headers:    withHeaders(crossOrigin(), map[string]string{"Content-Type": "application/wasm"}),
			},
		},
		{
			name:    "upper-case extension",
			request: testutil.TestRequest{Path: "/notes.MD"},
			expected: testutil.ExpectedResponse{
				StatusCode: http.StatusOK,
				Headers:    testutil.HeaderMatcher{"Content-Type": "text/plain"},
			},
		},
		{
			name:    "no extension is plain text",
			request: testutil.TestRequest{Path: "/LICENSE"},
			expected: testutil.ExpectedResponse{
				StatusCode:  http.StatusOK,
				Headers:     testutil.HeaderMatcher{"Content-Type": "text/plain"},
				BodyMatcher: &testutil.ExactBodyMatcher{ExpectedBody: []byte("MIT")},
			},
		},
		{
			name:    "unknown extension is octet-stream",
			request: testutil.TestRequest{Path: "/data.bin"},
			expected: testutil.ExpectedResponse{
				StatusCode: http.StatusOK,
				Headers:    testutil.HeaderMatcher{"Content-Type": "application/octet-stream"},
			},
		},
		{
			name:    "percent-encoded name",
			request: testutil.TestRequest{Path: "/docs/with%20space.js"},
			expected: testutil.ExpectedResponse{
				StatusCode:  http.StatusOK,
				Headers:     testutil.HeaderMatcher{"Content-Type": "text/javascript"},
				BodyMatcher: &testutil.ExactBodyMatcher{ExpectedBody: []byte("1")},
			},
		},
		{
			name:    "query string is ignored",
			request: testutil.TestRequest{Path: "/docs/guide.txt?v=3"},
			expected: testutil.ExpectedResponse{
				StatusCode:  http.StatusOK,
				BodyMatcher: &testutil.ExactBodyMatcher{ExpectedBody: []byte("read me")},
			},
		},
		{
			name:    "directory listing",
			request: testutil.TestRequest{Path: "/docs/"},
			expected: testutil.ExpectedResponse{
				StatusCode:  http.StatusOK,
				Headers:     withHeaders(crossOrigin(), map[string]string{"Content-Type": "text/html"}),
				BodyMatcher: &testutil.StringContainsBodyMatcher{Substring: "<title>Index of ./docs/</title>"},
			},
		},
		{
			name:    "missing without 404 page",
			request: testutil.TestRequest{Path: "/nope.png"},
			expected: testutil.ExpectedResponse{
				StatusCode:  http.StatusNotFound,
				Headers:     testutil.HeaderMatcher{"Content-Type": "", "Cross-Origin-Opener-Policy": ""},
				BodyMatcher: &testutil.ExactBodyMatcher{ExpectedBody: []byte("NOT FOUND")},
			},
		},
		{
			name:    "POST is served like GET",
			request: testutil.TestRequest{Method: http.MethodPost, Path: "/LICENSE"},
			expected: testutil.ExpectedResponse{
				StatusCode:  http.StatusOK,
				BodyMatcher: &testutil.ExactBodyMatcher{ExpectedBody: []byte("MIT")},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			actual, err := srv.Do(tc.request)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			testutil.AssertResponse(t, actual, tc.expected)
		})
	}

	if logs := srv.Logs(); !strings.Contains(logs, `"url":"/docs/guide.txt"`) {
		t.Errorf("request URL not logged: %s", logs)
	}
}

func TestDirectoryListingLinks(t *testing.T) {
	srv := testutil.StartServer(t, nil, siteFiles)

	actual, err := srv.Do(testutil.TestRequest{Path: "/docs"})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	links, err := testutil.ParseLinks(actual.Body)
	if err != nil {
		t.Fatalf("parse listing: %v", err)
	}

	got := map[string]string{}
	for _, l := range links {
		got[l.Text] = l.Href
	}
	want := map[string]string{
		"guide.txt":     "http://localhost:8000/docs/guide.txt",
		"with space.js": "http://localhost:8000/docs/with%20space.js",
		"..":            "http://localhost:8000/",
	}
	if len(got) != len(want) {
		t.Fatalf("links = %v, want %v", got, want)
	}
	for text, href := range want {
		if got[text] != href {
			t.Errorf("link %q = %q, want %q", text, got[text], href)
		}
	}
	if links[len(links)-1].Text != ".." {
		t.Errorf("parent link must come last, got %v", links)
	}
}

func TestEmptyDirectoryAndRootListing(t *testing.T) {
	files := map[string]string{"a.txt": "a", "empty/": ""}
	srv := testutil.StartServer(t, nil, files)

	actual, err := srv.Do(testutil.TestRequest{Path: "/empty/"})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	links, err := testutil.ParseLinks(actual.Body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(links) != 1 || links[0].Href != "http://localhost:8000/empty" {
		t.Errorf("empty directory links = %v, want only the parent link", links)
	}

	actual, err = srv.Do(testutil.TestRequest{Path: "/"})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	links, err = testutil.ParseLinks(actual.Body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	for _, l := range links {
		if l.Text == ".." {
			t.Errorf("root listing must not link to a parent: %v", links)
		}
		if !strings.HasPrefix(l.Href, "http://localhost:8000//") {
			t.Errorf("root entry href %q should keep the double slash", l.Href)
		}
	}
}

func TestCustomNotFoundPage(t *testing.T) {
	files := map[string]string{"404.html": "<p>lost</p>", "docs/": ""}
	srv := testutil.StartServer(t, nil, files)

	actual, err := srv.Do(testutil.TestRequest{Path: "/docs/missing.txt"})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	testutil.AssertResponse(t, actual, testutil.ExpectedResponse{
		StatusCode:  http.StatusNotFound,
		Headers:     testutil.HeaderMatcher{"Content-Type": "text/html"},
		BodyMatcher: &testutil.ExactBodyMatcher{ExpectedBody: []byte("<p>lost</p>")},
	})
}

func TestConfigFileFormats(t *testing.T) {
	for _, format := range []string{"json", "toml", "yaml"} {
		t.Run(format, func(t *testing.T) {
			base := "http://127.0.0.1:1234"
			written := &config.Config{
				Static: &config.StaticFileServerConfig{
					ListingBaseURL: &base,
					MimeTypesMap:   map[string]string{".bin": "application/x-custom"},
				},
			}
			path, err := testutil.WriteTempConfig(t.TempDir(), written, format)
			if err != nil {
				t.Fatalf("write config: %v", err)
			}
			cfg, err := config.LoadConfig(path)
			if err != nil {
				t.Fatalf("load config: %v", err)
			}

			srv := testutil.StartServer(t, cfg, map[string]string{"x.bin": "x", "d/f": "f"})

			actual, err := srv.Do(testutil.TestRequest{Path: "/x.bin"})
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			testutil.AssertResponse(t, actual, testutil.ExpectedResponse{
				StatusCode: http.StatusOK,
				Headers:    testutil.HeaderMatcher{"Content-Type": "application/x-custom"},
			})

			actual, err = srv.Do(testutil.TestRequest{Path: "/d/"})
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			links, err := testutil.ParseLinks(actual.Body)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if len(links) == 0 || links[0].Href != base+"/d//f" {
				t.Errorf("listing links = %v, want base %s", links, base)
			}
		})
	}
}
