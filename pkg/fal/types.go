package fal

import "time"

// DefaultSeed は再現性確保のための既定シード値です。
const DefaultSeed int64 = 69420

// BaseParams はベース画像生成（text-to-image）の操作パラメータです。
type BaseParams struct {
	AspectRatio    string `json:"aspect_ratio"`
	NumImages      int    `json:"num_images"`
	NegativePrompt string `json:"negative_prompt"`
	Seed           int64  `json:"seed"`
}

// DefaultBaseParams はベース生成の既定パラメータを返します。
func DefaultBaseParams() BaseParams {
	return BaseParams{
		AspectRatio:    "1:1",
		NumImages:      1,
		NegativePrompt: "",
		Seed:           DefaultSeed,
	}
}

// VariationParams はバリエーション生成（image-to-image）の操作パラメータです。
type VariationParams struct {
	GuidanceScale   float64 `json:"guidance_scale"`
	NumImages       int     `json:"num_images"`
	OutputFormat    string  `json:"output_format"`
	SafetyTolerance string  `json:"safety_tolerance"`
	AspectRatio     string  `json:"aspect_ratio"`
	Seed            int64   `json:"seed"`
}

// DefaultVariationParams はバリエーション生成の既定パラメータを返します。
func DefaultVariationParams() VariationParams {
	return VariationParams{
		GuidanceScale:   3.5,
		NumImages:       1,
		OutputFormat:    "png",
		SafetyTolerance: "2",
		AspectRatio:     "1:1",
		Seed:            DefaultSeed,
	}
}

// StyleParams はスタイル転写（LoRAアダプター適用）の操作パラメータです。
type StyleParams struct {
	NumInferenceSteps int     `json:"num_inference_steps"`
	GuidanceScale     float64 `json:"guidance_scale"`
	NumImages         int     `json:"num_images"`
	OutputFormat      string  `json:"output_format"`
	ResolutionMode    string  `json:"resolution_mode"`
	Acceleration      string  `json:"acceleration"`
}

// DefaultStyleParams はスタイル転写の既定パラメータを返します。
func DefaultStyleParams() StyleParams {
	return StyleParams{
		NumInferenceSteps: 30,
		GuidanceScale:     2.5,
		NumImages:         1,
		OutputFormat:      "png",
		ResolutionMode:    "match_input",
		Acceleration:      "none",
	}
}

// GenerationResult は1回のリモート呼び出しの成果です。生成後は変更しません。
// Images は応答に現れた順序を保持します。
type GenerationResult struct {
	Images  [][]byte      // デコード済み画像バイト列（応答順）
	URLs    []string      // プロバイダ側の画像URL（参照用）
	Seed    int64         // 実際に使用されたシード値
	Elapsed time.Duration // 呼び出し開始から完了までの所要時間
}

// First は先頭の画像バイト列を返します。画像がない場合は nil です。
func (r *GenerationResult) First() []byte {
	if r == nil || len(r.Images) == 0 {
		return nil
	}
	return r.Images[0]
}

// --- ワイヤー型（fal.run の JSON 形状） ---

type loraRef struct {
	Path  string  `json:"path"`
	Scale float64 `json:"scale"`
}

type imageRef struct {
	URL         string `json:"url"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

type generateResponse struct {
	Images []imageRef `json:"images"`
	Seed   int64      `json:"seed"`
}

// errorResponse はプロバイダのエラーボディです。detail は文字列の場合と
// 構造化されたリストの場合があるため、緩くデコードします。
type errorResponse struct {
	Detail any `json:"detail"`
}
