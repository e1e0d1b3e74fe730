package builder

import (
	"github.com/shouni/go-persona-kit/internal/config"

	"github.com/shouni/go-http-kit/httpkit"
	"github.com/shouni/go-remote-io/pkg/remoteio"
)

// AppContext は、アプリケーション実行に必要な共通コンテキストを保持する
// これを各Build関数に渡すことで、依存関係の注入を簡素化します。
type AppContext struct {
	Config     *config.Config          // Configは、環境変数から読み込まれたグローバルな設定です（APIキー、出力先など）。
	Options    config.GenerateOptions  // Optionsは、コマンドラインから渡された実行時の設定です。
	Writer     remoteio.OutputWriter   // Writerは、生成された画像やメタデータを保存するための出力先です。
	httpClient httpkit.ClientInterface // httpClient は画像ダウンロードに使う共通クライアント
}

// NewAppContext は AppContext の新しいインスタンスを生成する
func NewAppContext(
	cfg *config.Config,
	httpClient httpkit.ClientInterface,
	writer remoteio.OutputWriter,
) AppContext {
	return AppContext{
		Config:     cfg,
		Options:    cfg.Options,
		httpClient: httpClient,
		Writer:     writer,
	}
}
