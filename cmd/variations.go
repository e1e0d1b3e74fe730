package cmd

import (
	"fmt"

	"github.com/shouni/go-persona-kit/internal/config"
	"github.com/shouni/go-persona-kit/internal/pipeline"

	"github.com/spf13/cobra"
)

// variationsCmd は、既存キャラクターへの追加バリエーション生成を実行するのだ。
var variationsCmd = &cobra.Command{
	Use:   "variations <session> <character>",
	Short: "既存キャラクターに追加のバリエーションを生成しますなのだ。",
	Long: `create で作成済みのキャラクターディレクトリからベース画像を読み込み、
追加のポーズ・表情バリエーションを生成するのだ。
連番は既存の続きから振られるのだよ。`,
	Args: cobra.ExactArgs(2),
	RunE: variationsCommand,
}

func variationsCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg := config.LoadConfig()
	cfg.Options = opts

	if err := cfg.ValidateCredential(); err != nil {
		return err
	}

	if err := pipeline.ExecuteVariations(ctx, cfg, args[0], args[1]); err != nil {
		return fmt.Errorf("バリエーション生成中にエラーが発生したのだ: %w", err)
	}
	return nil
}
