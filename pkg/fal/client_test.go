package fal

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/go-persona-kit/pkg/domain"
)

const testAPIKey = "test-key-0123456789"

const okResponseBody = `{"images":[{"url":"https://fal.media/files/out.png","content_type":"image/png"}],"seed":69420}`

func TestNewClient(t *testing.T) {
	doer := &mockDoer{}
	fetcher := &mockFetcher{}

	t.Run("有効な鍵でクライアントが構築できる", func(t *testing.T) {
		c, err := NewClient(testAPIKey, doer, fetcher)
		require.NoError(t, err)
		assert.NotNil(t, c)
	})

	t.Run("空の鍵は設定エラーになる", func(t *testing.T) {
		_, err := NewClient("", doer, fetcher)
		require.Error(t, err)
		assert.Equal(t, KindConfiguration, KindOf(err))
	})

	t.Run("短すぎる鍵は設定エラーになる", func(t *testing.T) {
		_, err := NewClient("abc", doer, fetcher)
		require.Error(t, err)
		assert.Equal(t, KindConfiguration, KindOf(err))
	})

	t.Run("プレースホルダの鍵は設定エラーになる", func(t *testing.T) {
		_, err := NewClient("YOUR_FAL_KEY_HERE", doer, fetcher)
		require.Error(t, err)
		assert.Equal(t, KindConfiguration, KindOf(err))
	})
}

func TestClient_GenerateBase(t *testing.T) {
	ctx := context.Background()

	t.Run("成功時は画像をダウンロードして返す", func(t *testing.T) {
		doer := &mockDoer{script: []scriptedResponse{{status: http.StatusOK, body: okResponseBody}}}
		fetcher := &mockFetcher{data: []byte("fake-image-binary")}
		c, err := NewClient(testAPIKey, doer, fetcher, WithRetryPolicy(immediatePolicy(3)))
		require.NoError(t, err)

		result, err := c.GenerateBase(ctx, "portrait prompt", DefaultBaseParams())

		require.NoError(t, err)
		assert.Equal(t, [][]byte{[]byte("fake-image-binary")}, result.Images)
		assert.Equal(t, int64(69420), result.Seed)
		assert.Equal(t, 1, fetcher.calls)
		assert.Equal(t, "https://fal.media/files/out.png", fetcher.urls[0])

		// 認証ヘッダーとエンドポイントの検証
		req := doer.requests[0]
		assert.Equal(t, "Key "+testAPIKey, req.Header.Get("Authorization"))
		assert.Contains(t, req.URL.String(), ModelBase)
	})

	t.Run("基底URLとモデルIDは差し替えられる", func(t *testing.T) {
		doer := &mockDoer{script: []scriptedResponse{{status: http.StatusOK, body: okResponseBody}}}
		fetcher := &mockFetcher{data: []byte("fake-image-binary")}
		c, err := NewClient(testAPIKey, doer, fetcher,
			WithBaseURL("https://staging.example.com/"),
			WithModels("vendor/custom-base", "", ""))
		require.NoError(t, err)

		_, err = c.GenerateBase(ctx, "portrait prompt", DefaultBaseParams())

		require.NoError(t, err)
		assert.Equal(t, "https://staging.example.com/vendor/custom-base", doer.requests[0].URL.String())
	})

	t.Run("空プロンプトはHTTP呼び出しなしで検証エラーになる", func(t *testing.T) {
		doer := &mockDoer{script: []scriptedResponse{{status: http.StatusOK, body: okResponseBody}}}
		c, err := NewClient(testAPIKey, doer, &mockFetcher{})
		require.NoError(t, err)

		_, err = c.GenerateBase(ctx, "   ", DefaultBaseParams())

		require.Error(t, err)
		assert.Equal(t, KindValidation, KindOf(err))
		assert.Zero(t, doer.calls, "検証エラー時はリモート呼び出しが発生しないこと")
	})

	t.Run("429の後に成功すれば結果を返す", func(t *testing.T) {
		doer := &mockDoer{script: []scriptedResponse{
			{status: http.StatusTooManyRequests, body: `{"detail":"rate limited"}`},
			{status: http.StatusOK, body: okResponseBody},
		}}
		fetcher := &mockFetcher{data: []byte("fake-image-binary")}
		c, err := NewClient(testAPIKey, doer, fetcher, WithRetryPolicy(immediatePolicy(3)))
		require.NoError(t, err)

		result, err := c.GenerateBase(ctx, "portrait prompt", DefaultBaseParams())

		require.NoError(t, err)
		assert.Len(t, result.Images, 1)
		assert.Equal(t, 2, doer.calls, "一時的な失敗の後に1回だけ再試行されること")
	})

	t.Run("リトライ予算を使い切ったら一時的エラーで確定する", func(t *testing.T) {
		doer := &mockDoer{script: []scriptedResponse{
			{status: http.StatusServiceUnavailable, body: `{"detail":"overloaded"}`},
		}}
		c, err := NewClient(testAPIKey, doer, &mockFetcher{}, WithRetryPolicy(immediatePolicy(3)))
		require.NoError(t, err)

		_, err = c.GenerateBase(ctx, "portrait prompt", DefaultBaseParams())

		require.Error(t, err)
		assert.Equal(t, KindTransient, KindOf(err))
		assert.Equal(t, 3, doer.calls, "最大試行回数まで再試行されること")
	})

	t.Run("400は再試行せず拒否として確定する", func(t *testing.T) {
		doer := &mockDoer{script: []scriptedResponse{
			{status: http.StatusBadRequest, body: `{"detail":"invalid prompt content"}`},
		}}
		c, err := NewClient(testAPIKey, doer, &mockFetcher{}, WithRetryPolicy(immediatePolicy(3)))
		require.NoError(t, err)

		_, err = c.GenerateBase(ctx, "portrait prompt", DefaultBaseParams())

		require.Error(t, err)
		assert.Equal(t, KindRejected, KindOf(err))
		assert.Equal(t, 1, doer.calls, "4xxは再試行されないこと")

		// プロバイダのエラーメッセージが保持されていること
		assert.Contains(t, err.Error(), "invalid prompt content")
	})
}

func TestClient_GenerateVariation(t *testing.T) {
	ctx := context.Background()

	t.Run("参照画像がdata URLとして埋め込まれる", func(t *testing.T) {
		doer := &mockDoer{script: []scriptedResponse{{status: http.StatusOK, body: okResponseBody}}}
		fetcher := &mockFetcher{data: []byte("variation-image")}
		c, err := NewClient(testAPIKey, doer, fetcher)
		require.NoError(t, err)

		result, err := c.GenerateVariation(ctx, "smiling pose", []byte("base-image-bytes"), DefaultVariationParams())

		require.NoError(t, err)
		assert.Len(t, result.Images, 1)
		require.Len(t, doer.bodies, 1)
		assert.Contains(t, doer.bodies[0], `"image_url":"data:`)
		assert.Contains(t, doer.bodies[0], "base64,")
	})

	t.Run("参照画像なしは検証エラーになる", func(t *testing.T) {
		doer := &mockDoer{script: []scriptedResponse{{status: http.StatusOK, body: okResponseBody}}}
		c, err := NewClient(testAPIKey, doer, &mockFetcher{})
		require.NoError(t, err)

		_, err = c.GenerateVariation(ctx, "smiling pose", nil, DefaultVariationParams())

		require.Error(t, err)
		assert.Equal(t, KindValidation, KindOf(err))
		assert.Zero(t, doer.calls)
	})
}

func TestClient_ApplyStyle(t *testing.T) {
	ctx := context.Background()
	ghibli, ok := domain.FindStyle("ghibli")
	require.True(t, ok)

	t.Run("LoRA参照がリクエストに含まれる", func(t *testing.T) {
		doer := &mockDoer{script: []scriptedResponse{{status: http.StatusOK, body: okResponseBody}}}
		fetcher := &mockFetcher{data: []byte("styled-image")}
		c, err := NewClient(testAPIKey, doer, fetcher)
		require.NoError(t, err)

		result, err := c.ApplyStyle(ctx, ghibli, []byte("variation-image-bytes"), DefaultStyleParams())

		require.NoError(t, err)
		assert.Len(t, result.Images, 1)
		require.Len(t, doer.bodies, 1)
		assert.Contains(t, doer.bodies[0], ghibli.LoraPath)
		assert.Contains(t, doer.bodies[0], ghibli.PromptTemplate)
		assert.Contains(t, doer.requests[0].URL.String(), ModelStyle)
	})

	t.Run("LoRAパスのないスタイルは検証エラーになる", func(t *testing.T) {
		doer := &mockDoer{}
		c, err := NewClient(testAPIKey, doer, &mockFetcher{})
		require.NoError(t, err)

		_, err = c.ApplyStyle(ctx, domain.Style{Name: "broken"}, []byte("img"), DefaultStyleParams())

		require.Error(t, err)
		assert.Equal(t, KindValidation, KindOf(err))
		assert.Zero(t, doer.calls)
	})
}

func TestClient_DownloadFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("画像ダウンロードの失敗は分類付きで返る", func(t *testing.T) {
		doer := &mockDoer{script: []scriptedResponse{{status: http.StatusOK, body: okResponseBody}}}
		fetcher := &mockFetcher{err: errors.New("connection reset")}
		c, err := NewClient(testAPIKey, doer, fetcher, WithRetryPolicy(immediatePolicy(2)))
		require.NoError(t, err)

		_, err = c.GenerateBase(ctx, "portrait prompt", DefaultBaseParams())

		require.Error(t, err)
		assert.Equal(t, KindTransient, KindOf(err))
		assert.Equal(t, 2, fetcher.calls, "ダウンロードも再試行の対象であること")
	})

	t.Run("応答に画像がない場合は拒否として扱う", func(t *testing.T) {
		doer := &mockDoer{script: []scriptedResponse{{status: http.StatusOK, body: `{"images":[],"seed":1}`}}}
		c, err := NewClient(testAPIKey, doer, &mockFetcher{})
		require.NoError(t, err)

		_, err = c.GenerateBase(ctx, "portrait prompt", DefaultBaseParams())

		require.Error(t, err)
		assert.Equal(t, KindRejected, KindOf(err))
	})
}
