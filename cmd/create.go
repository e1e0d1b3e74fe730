package cmd

import (
	"fmt"
	"log/slog"

	"github.com/shouni/go-persona-kit/internal/config"
	"github.com/shouni/go-persona-kit/internal/pipeline"

	"github.com/spf13/cobra"
)

// createCmd は、1キャラクター分のフルパイプラインを実行するのだ。
var createCmd = &cobra.Command{
	Use:   "create",
	Short: "ベース画像からスタイル転写までの全工程を実行しますなのだ。",
	Long: `属性フラグまたはJSONファイルで指定したキャラクター設定から、
ベースポートレート → ポーズ・表情バリエーション → LoRAスタイル転写
の三段パイプラインを実行し、セッションディレクトリに保存するのだ。`,
	RunE: createCommand,
}

func createCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg := config.LoadConfig()
	cfg.Options = opts

	// リモート呼び出しを1回も走らせる前に資格情報を検査するのだ。
	// --validate-only は入力検証だけなのでAPIキー不要なのだ。
	if !opts.ValidateOnly {
		if err := cfg.ValidateCredential(); err != nil {
			return err
		}
	}

	slog.Info("キャラクター作成を開始するのだ！", "label", opts.Label, "styles", opts.Styles)

	if err := pipeline.ExecuteCreate(ctx, cfg); err != nil {
		return fmt.Errorf("パイプライン実行中にエラーが発生したのだ: %w", err)
	}
	return nil
}
