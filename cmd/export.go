package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/shouni/go-persona-kit/internal/builder"
	"github.com/shouni/go-persona-kit/internal/config"
	"github.com/shouni/go-persona-kit/pkg/library"

	"github.com/spf13/cobra"
)

var exportOutput string

// exportCmd は、キャラクターまたはセッション全体のZIPエクスポートを行うのだ。
var exportCmd = &cobra.Command{
	Use:   "export <session> [character]",
	Short: "キャラクターやセッションをZIPにエクスポートしますなのだ。",
	Long: `セッション名だけを指定すると全キャラクターを、キャラクター名まで
指定するとその1体だけをZIPにまとめるのだ。
エントリはキャラクター名をプレフィックスにディレクトリ構造を保つのだよ。`,
	Args: cobra.RangeArgs(1, 2),
	RunE: exportCommand,
}

func init() {
	exportCmd.Flags().StringVar(&exportOutput, "out", "export.zip", "出力するZIPファイルのパスなのだ。")
}

func exportCommand(cmd *cobra.Command, args []string) error {
	cfg := config.LoadConfig()
	cfg.Options = opts

	appCtx := builder.NewAppContext(cfg, nil, nil)
	indexer := builder.BuildIndexer(&appCtx)
	exporter := library.NewExporter(indexer)

	sessionName := args[0]

	var data []byte
	var err error
	if len(args) == 2 {
		summary, findErr := findCharacter(indexer, sessionName, args[1])
		if findErr != nil {
			return findErr
		}
		data, err = exporter.ExportCharacter(summary)
	} else {
		data, err = exporter.ExportSession(sessionName)
	}
	if err != nil {
		return fmt.Errorf("エクスポートに失敗したのだ: %w", err)
	}

	if err := os.WriteFile(exportOutput, data, 0o644); err != nil {
		return fmt.Errorf("ZIPファイルの書き込みに失敗したのだ: %w", err)
	}

	slog.Info("エクスポートが完了したのだ！", "path", exportOutput, "bytes", len(data))
	return nil
}

func findCharacter(indexer *library.Indexer, sessionName, characterName string) (library.CharacterSummary, error) {
	chars, err := indexer.ListCharacters(sessionName)
	if err != nil {
		return library.CharacterSummary{}, err
	}
	for _, c := range chars {
		if c.Name == characterName {
			return c, nil
		}
	}
	return library.CharacterSummary{}, fmt.Errorf("キャラクター %q がセッション %q に見つからないのだ", characterName, sessionName)
}
