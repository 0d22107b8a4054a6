package rewrite

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestIsURLInput(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"https://mp.weixin.qq.com/s/abc123", true},
		{"http://example.com/post", true},
		{"  https://example.com  ", true},
		{"这是一篇文章，里面提到了 https://example.com 这个链接", false},
		{"ftp://example.com/file", false},
		{"普通文章内容", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsURLInput(tc.text); got != tc.want {
			t.Errorf("IsURLInput(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestFetchArticle_PlainPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>标题</title><style>p{color:red}</style></head>
<body><script>var x=1;</script><nav>导航</nav><p>第一段内容</p><p>第二段内容</p><footer>页脚</footer></body></html>`)
	}))
	defer srv.Close()

	text, err := FetchArticle(t.Context(), srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("FetchArticle: %v", err)
	}
	if !strings.Contains(text, "第一段内容") || !strings.Contains(text, "第二段内容") {
		t.Errorf("text = %q", text)
	}
	for _, dropped := range []string{"var x=1", "导航", "页脚", "color:red"} {
		if strings.Contains(text, dropped) {
			t.Errorf("text contains skipped element content %q", dropped)
		}
	}
}

func TestFetchArticle_WeChatPage(t *testing.T) {
	body := `<html><body>
<h1 id="activity-name">公众号文章标题</h1>
<div id="js_content"><p>公众号正文第一段</p><p>公众号正文第二段</p></div>
<div>页面其他噪音</div>
</body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	// The host check keys off the URL, not DNS, so rewrite the request host
	// while keeping the test server transport.
	client := &http.Client{Transport: rewriteHost{inner: srv.Client().Transport, target: srv.Listener.Addr().String()}}
	text, err := FetchArticle(t.Context(), client, "http://mp.weixin.qq.com/s/abc")
	if err != nil {
		t.Fatalf("FetchArticle: %v", err)
	}
	if !strings.HasPrefix(text, "公众号文章标题") {
		t.Errorf("text = %q, want title first", text)
	}
	if !strings.Contains(text, "公众号正文第一段") {
		t.Errorf("text = %q", text)
	}
	if strings.Contains(text, "页面其他噪音") {
		t.Errorf("text includes content outside js_content: %q", text)
	}
}

type rewriteHost struct {
	inner  http.RoundTripper
	target string
}

func (rt rewriteHost) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.URL.Host = rt.target
	return rt.inner.RoundTrip(clone)
}

func TestFetchArticle_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := FetchArticle(t.Context(), srv.Client(), srv.URL); err == nil {
		t.Fatal("expected error for 404 page")
	}
}
