package fal

import (
	"context"
	"io"
	"net/http"
	"strings"
)

// --- Mocks ---

// scriptedResponse は1回分の応答台本です。
type scriptedResponse struct {
	status int
	body   string
	err    error
}

// mockDoer は呼び出しごとに台本どおりの応答を返します。
// 台本を使い切った後は最後の応答を繰り返します。
type mockDoer struct {
	script   []scriptedResponse
	calls    int
	requests []*http.Request
	bodies   []string
}

func (m *mockDoer) Do(req *http.Request) (*http.Response, error) {
	m.requests = append(m.requests, req)
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		m.bodies = append(m.bodies, string(b))
	}

	idx := m.calls
	if idx >= len(m.script) {
		idx = len(m.script) - 1
	}
	m.calls++

	s := m.script[idx]
	if s.err != nil {
		return nil, s.err
	}
	return &http.Response{
		StatusCode: s.status,
		Body:       io.NopCloser(strings.NewReader(s.body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}, nil
}

type mockFetcher struct {
	data  []byte
	err   error
	calls int
	urls  []string
}

func (m *mockFetcher) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	m.calls++
	m.urls = append(m.urls, url)
	return m.data, m.err
}

// immediatePolicy は待機なしのリトライポリシーです（テスト時間短縮用）。
func immediatePolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, InitialInterval: 0, Multiplier: 1, MaxInterval: 0}
}
