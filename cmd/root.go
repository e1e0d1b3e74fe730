package cmd

import (
	"github.com/shouni/go-persona-kit/internal/config"

	clibase "github.com/shouni/go-cli-base"
	"github.com/spf13/cobra"
)

// opts は各コマンドが参照する実行時パラメータの置き場なのだ。
var opts config.GenerateOptions

// addAppFlags は、アプリケーション全般に適用されるグローバルフラグを定義するのだ。
func addAppFlags(rootCmd *cobra.Command) {
	// --- 出力関連 ---
	rootCmd.PersistentFlags().StringVarP(&opts.OutputDir, "output-dir", "o", "", "セッションの保存先ディレクトリなのだ（未指定なら PERSONA_OUTPUT_DIR か既定値）。")
	rootCmd.PersistentFlags().StringVar(&opts.SessionName, "session", "", "既存セッション名なのだ（未指定なら新規作成）。")

	// --- 実行制御 ---
	rootCmd.PersistentFlags().IntVar(&opts.MaxParallel, "max-parallel", config.DefaultMaxParallel, "バリエーション／スタイル生成の同時リクエスト数なのだ。")
	rootCmd.PersistentFlags().DurationVar(&opts.RateInterval, "rate-interval", config.DefaultRateInterval, "リクエスト送出の最小間隔なのだ（0で制限なし）。")
	rootCmd.PersistentFlags().DurationVar(&opts.HTTPTimeout, "http-timeout", config.DefaultHTTPTimeout, "画像ダウンロードのタイムアウトなのだ。")

	// --- モデル差し替え ---
	rootCmd.PersistentFlags().StringVar(&opts.BaseModel, "base-model", "", "ベース生成のモデルIDなのだ（未指定なら既定）。")
	rootCmd.PersistentFlags().StringVar(&opts.VariationModel, "variation-model", "", "バリエーション生成のモデルIDなのだ（未指定なら既定）。")
	rootCmd.PersistentFlags().StringVar(&opts.StyleModel, "style-model", "", "スタイル転写のモデルIDなのだ（未指定なら既定）。")

	// --- キャラクター設定（create用） ---
	createCmd.Flags().StringVarP(&opts.Label, "label", "l", "", "キャラクター名なのだ。")
	createCmd.Flags().StringVar(&opts.Ethnicity, "ethnicity", "", "民族性なのだ。")
	createCmd.Flags().StringVar(&opts.Gender, "gender", "", "性別なのだ。")
	createCmd.Flags().StringVar(&opts.AgeRange, "age-range", "", "年齢帯なのだ（例: 25-35）。")
	createCmd.Flags().StringVar(&opts.HairColor, "hair-color", "", "髪の色なのだ。")
	createCmd.Flags().StringVar(&opts.EyeColor, "eye-color", "", "瞳の色なのだ。")
	createCmd.Flags().StringVar(&opts.Build, "build", "", "体格なのだ。")
	createCmd.Flags().StringVar(&opts.Height, "height", "", "身長の区分なのだ。")
	createCmd.Flags().StringVar(&opts.Clothing, "clothing", "", "服装スタイルなのだ。")
	createCmd.Flags().StringVar(&opts.FacialFeatures, "facial-features", "", "顔の特徴（自由記述・任意）なのだ。")
	createCmd.Flags().StringVarP(&opts.ConfigFile, "config-file", "c", "", "キャラクター設定を一括指定するJSONパスなのだ。")
	createCmd.Flags().StringSliceVarP(&opts.Styles, "style", "s", nil, "適用するスタイルID（複数指定可）なのだ。")
	createCmd.Flags().BoolVar(&opts.ValidateOnly, "validate-only", false, "設定・プロンプト・スタイル指定の検証だけを行い、生成はしないのだ。")

	// --- バリエーション関連（create / variations 共通） ---
	for _, c := range []*cobra.Command{createCmd, variationsCmd} {
		c.Flags().StringVarP(&opts.PromptsFile, "prompts-file", "f", "", "1行1プロンプトのファイルなのだ（未指定なら既定セット）。")
		c.Flags().IntVarP(&opts.MaxPrompts, "max-prompts", "n", config.DefaultMaxPrompts, "生成するバリエーションの最大数なのだ。")
	}
}

// preRunAppE は、コマンド実行前の共通チェックなのだ。
// APIキーの検査は生成系コマンド側で行う（library / export には不要なのだ）。
func preRunAppE(cmd *cobra.Command, args []string) error {
	return nil
}

// Execute は、アプリケーションのメインエントリポイントなのだ。
// main.go から呼び出されて、cobra のコマンドライン解析を開始するのだよ。
func Execute() {
	clibase.Execute(
		"persona-kit",
		addAppFlags,
		preRunAppE,
		createCmd,
		variationsCmd,
		libraryCmd,
		exportCmd,
	)
}
