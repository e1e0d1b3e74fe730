package fal

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shouni/gemini-image-kit/imgutil"

	"github.com/shouni/go-persona-kit/pkg/domain"
)

// fal.run のモデルエンドポイント。
const (
	ModelBase      = "fal-ai/imagen4/preview/fast"
	ModelVariation = "fal-ai/flux-pro/kontext/max"
	ModelStyle     = "fal-ai/flux-kontext-lora"
)

// 操作ごとのタイムアウト。スタイル転写は LoRA のロードが走るため長めです。
const (
	baseTimeout      = 120 * time.Second
	variationTimeout = 300 * time.Second
	styleTimeout     = 240 * time.Second
	downloadTimeout  = 60 * time.Second
)

const defaultBaseURL = "https://fal.run"

// 画像をリクエストに埋め込む際の JPEG 圧縮品質。
// ペイロードサイズを抑えつつ、スタイル転写の入力品質を保てる値です。
const inlineJPEGQuality = 75

// Doer は HTTP リクエストの実行面です。ステータスコードによる
// 失敗分類が必要なため、応答全体を受け取ります。
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher は生成済み画像のダウンロード面です。
// httpkit.ClientInterface がこれを満たします。
type Fetcher interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

// Client はリモート画像生成サービスへの呼び出しを束ねるクライアントです。
// すべての操作は入力検証 → 呼び出し（有界リトライ付き） → 画像ダウンロード
// の順で進み、失敗は必ず分類済みの *Error として返ります。
type Client struct {
	doer           Doer
	fetcher        Fetcher
	baseURL        string
	apiKey         string
	policy         RetryPolicy
	modelBase      string
	modelVariation string
	modelStyle     string
}

// Option は Client の構築オプションです。
type Option func(*Client)

// WithBaseURL はエンドポイントの基底URLを差し替えます。
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(url, "/") }
}

// WithModels は各段階のモデルIDを差し替えます。空文字は既定のまま据え置きます。
func WithModels(base, variation, style string) Option {
	return func(c *Client) {
		if base != "" {
			c.modelBase = base
		}
		if variation != "" {
			c.modelVariation = variation
		}
		if style != "" {
			c.modelStyle = style
		}
	}
}

// WithRetryPolicy はリトライポリシーを差し替えます。
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.policy = p }
}

// NewClient は資格情報を検証してクライアントを構築します。
// 鍵の欠落・プレースホルダは KindConfiguration として即座に失敗します。
func NewClient(apiKey string, doer Doer, fetcher Fetcher, opts ...Option) (*Client, error) {
	key := strings.TrimSpace(apiKey)
	switch {
	case key == "":
		return nil, newConfigurationError("FAL_KEY が設定されていません")
	case len(key) < 10:
		return nil, newConfigurationError("FAL_KEY が短すぎます（資格情報として不正です）")
	case strings.Contains(strings.ToLower(key), "your_fal"):
		return nil, newConfigurationError("FAL_KEY がプレースホルダのままです")
	}
	if doer == nil {
		doer = &http.Client{}
	}

	c := &Client{
		doer:           doer,
		fetcher:        fetcher,
		baseURL:        defaultBaseURL,
		apiKey:         key,
		policy:         DefaultRetryPolicy(),
		modelBase:      ModelBase,
		modelVariation: ModelVariation,
		modelStyle:     ModelStyle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GenerateBase はプロンプトからベース画像を生成します（text-to-image）。
func (c *Client) GenerateBase(ctx context.Context, prompt string, params BaseParams) (*GenerationResult, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, newValidationError(c.modelBase, "プロンプトが空です")
	}

	payload := map[string]any{
		"prompt":          prompt,
		"aspect_ratio":    params.AspectRatio,
		"num_images":      params.NumImages,
		"negative_prompt": params.NegativePrompt,
		"seed":            params.Seed,
	}
	return c.invoke(ctx, c.modelBase, payload, baseTimeout)
}

// GenerateVariation はベース画像を参照入力として、プロンプトに沿った
// ポーズ・表情のバリエーションを生成します（image-to-image）。
func (c *Client) GenerateVariation(ctx context.Context, prompt string, baseImage []byte, params VariationParams) (*GenerationResult, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, newValidationError(c.modelVariation, "プロンプトが空です")
	}
	if len(baseImage) == 0 {
		return nil, newValidationError(c.modelVariation, "参照画像がありません")
	}

	payload := map[string]any{
		"prompt":           prompt,
		"image_url":        inlineImage(baseImage),
		"guidance_scale":   params.GuidanceScale,
		"num_images":       params.NumImages,
		"output_format":    params.OutputFormat,
		"safety_tolerance": params.SafetyTolerance,
		"aspect_ratio":     params.AspectRatio,
		"seed":             params.Seed,
	}
	return c.invoke(ctx, c.modelVariation, payload, variationTimeout)
}

// ApplyStyle は LoRA アダプターを適用し、入力画像を指定スタイルへ転写します。
func (c *Client) ApplyStyle(ctx context.Context, style domain.Style, image []byte, params StyleParams) (*GenerationResult, error) {
	if style.LoraPath == "" {
		return nil, newValidationError(c.modelStyle, fmt.Sprintf("スタイル %q に LoRA パスがありません", style.Name))
	}
	if len(image) == 0 {
		return nil, newValidationError(c.modelStyle, "入力画像がありません")
	}

	payload := map[string]any{
		"prompt":              style.PromptTemplate,
		"image_url":           inlineImage(image),
		"loras":               []loraRef{{Path: style.LoraPath, Scale: style.Weight}},
		"num_inference_steps": params.NumInferenceSteps,
		"guidance_scale":      params.GuidanceScale,
		"num_images":          params.NumImages,
		"output_format":       params.OutputFormat,
		"resolution_mode":     params.ResolutionMode,
		"acceleration":        params.Acceleration,
	}
	return c.invoke(ctx, c.modelStyle, payload, styleTimeout)
}

// invoke はモデル呼び出しの共通経路です。リクエスト送信と応答デコードを
// リトライポリシーの下で行い、成功後に画像本体をダウンロードします。
func (c *Client) invoke(ctx context.Context, model string, payload map[string]any, timeout time.Duration) (*GenerationResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, newValidationError(model, fmt.Sprintf("リクエストのエンコードに失敗しました: %v", err))
	}

	start := time.Now()
	var resp generateResponse
	callErr := c.policy.Do(ctx, model, func() error {
		return c.post(ctx, model, body, timeout, &resp)
	})
	if callErr != nil {
		return nil, asError(model, callErr)
	}

	result := &GenerationResult{Seed: resp.Seed}
	for _, img := range resp.Images {
		if img.URL == "" {
			continue
		}
		data, err := c.download(ctx, img.URL)
		if err != nil {
			return nil, asError(model, err)
		}
		result.Images = append(result.Images, data)
		result.URLs = append(result.URLs, img.URL)
	}
	if len(result.Images) == 0 {
		return nil, &Error{Kind: KindRejected, Op: model, Message: "応答に画像が含まれていません"}
	}

	result.Elapsed = time.Since(start)
	slog.Debug("リモート生成が完了しました", "model", model, "images", len(result.Images), "elapsed", result.Elapsed)
	return result, nil
}

// post は1回分のリクエスト送信です。失敗はすべて分類して返します。
func (c *Client) post(ctx context.Context, model string, body []byte, timeout time.Duration, out *generateResponse) error {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/"+model, bytes.NewReader(body))
	if err != nil {
		return newValidationError(model, fmt.Sprintf("リクエストの構築に失敗しました: %v", err))
	}
	req.Header.Set("Authorization", "Key "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.doer.Do(req)
	if err != nil {
		return classifyTransport(model, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return classifyTransport(model, err)
	}

	if resp.StatusCode != http.StatusOK {
		return classifyStatus(model, resp.StatusCode, providerMessage(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &Error{Kind: KindRejected, Op: model, Message: fmt.Sprintf("応答のデコードに失敗しました: %v", err), Err: err}
	}
	return nil
}

// download は生成済み画像をリトライ付きで取得します。
func (c *Client) download(ctx context.Context, url string) ([]byte, error) {
	var data []byte
	err := c.policy.Do(ctx, "download", func() error {
		dlCtx, cancel := context.WithTimeout(ctx, downloadTimeout)
		defer cancel()

		b, err := c.fetcher.FetchBytes(dlCtx, url)
		if err != nil {
			return classifyTransport("download", err)
		}
		if len(b) == 0 {
			return &Error{Kind: KindTransient, Op: "download", Message: "空の画像が返されました"}
		}
		data = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// inlineImage は画像バイト列を data URL に変換してリクエストへ埋め込みます。
// ペイロード削減のため JPEG に再圧縮し、失敗した場合は元のバイト列を使います。
func inlineImage(data []byte) string {
	mime := "image/jpeg"
	compressed, err := imgutil.CompressToJPEG(bytes.NewReader(data), inlineJPEGQuality)
	if err != nil {
		compressed = data
		mime = http.DetectContentType(data)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(compressed)
}

// providerMessage はエラーボディから人間可読なメッセージを取り出します。
func providerMessage(body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err != nil || er.Detail == nil {
		return strings.TrimSpace(string(body))
	}
	switch d := er.Detail.(type) {
	case string:
		return d
	default:
		b, err := json.Marshal(d)
		if err != nil {
			return strings.TrimSpace(string(body))
		}
		return string(b)
	}
}

// asError は err を分類済みの *Error として返します。
// 分類の付いていない失敗（コンテキスト期限切れなど）には一時的の分類を与えます。
func asError(op string, err error) *Error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return classifyTransport(op, err)
}
