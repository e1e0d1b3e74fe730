package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shouni/go-utils/envutil"
)

// デフォルト値の定義なのだ
const (
	DefaultHTTPTimeout  = 30 * time.Second
	DefaultOutputDir    = "output/characters"
	DefaultMaxParallel  = 2
	DefaultRateInterval = 0 * time.Second
	DefaultMaxPrompts   = 10
)

// Config はアプリケーション全体の環境設定（APIキーや保存先）を保持する構造体なのだ。
type Config struct {
	FalAPIKey string
	BaseURL   string // 空なら fal.run の既定エンドポイント
	OutputDir string

	Options GenerateOptions
}

// LoadConfig は環境変数から設定を読み込み、構造体を返すのだ！
func LoadConfig() *Config {
	cfg := &Config{
		FalAPIKey: envutil.GetEnv("FAL_KEY", ""),
		BaseURL:   envutil.GetEnv("FAL_BASE_URL", ""),
		OutputDir: envutil.GetEnv("PERSONA_OUTPUT_DIR", DefaultOutputDir),
	}
	return cfg
}

// ValidateCredential は生成を試みる前にAPIキーの体裁を検査するのだ。
// 欠落やプレースホルダはここで弾いて、リモート呼び出しを1回も発生させない。
func (c *Config) ValidateCredential() error {
	key := strings.TrimSpace(c.FalAPIKey)
	if key == "" {
		return fmt.Errorf("環境変数 FAL_KEY が設定されていません")
	}
	if len(key) < 10 || strings.Contains(strings.ToLower(key), "your_fal") {
		return fmt.Errorf("FAL_KEY の値が資格情報として不正です")
	}
	return nil
}

// GenerateOptions は CLI フラグから渡される実行時のパラメータなのだ。
type GenerateOptions struct {
	// キャラクター設定関連
	Label          string // --label
	Ethnicity      string // --ethnicity
	Gender         string // --gender
	AgeRange       string // --age-range
	HairColor      string // --hair-color
	EyeColor       string // --eye-color
	Build          string // --build
	Height         string // --height
	Clothing       string // --clothing
	FacialFeatures string // --facial-features
	ConfigFile     string // --config-file: JSONで一括指定する場合

	// バリエーション／スタイル関連
	PromptsFile string   // --prompts-file: 1行1プロンプト
	MaxPrompts  int      // --max-prompts
	Styles      []string // --style (複数指定可)

	// モデル差し替え（空なら既定のモデルID）
	BaseModel      string // --base-model
	VariationModel string // --variation-model
	StyleModel     string // --style-model

	// 出力関連
	OutputDir   string // --output-dir
	SessionName string // --session: 既存セッションへ追加する場合

	// 実行制御
	MaxParallel  int           // --max-parallel
	RateInterval time.Duration // --rate-interval
	HTTPTimeout  time.Duration // --http-timeout
	ValidateOnly bool          // --validate-only: 入力検証だけで終了する
}
