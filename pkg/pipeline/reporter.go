package pipeline

import (
	"log/slog"

	"github.com/shouni/go-persona-kit/pkg/domain"
)

// Progress は1枚の画像が確定するたびに発行される進捗イベントです。
// ホストUIはこれを購読して表示を更新します。データモデルには影響しません。
type Progress struct {
	CharacterLabel string
	Stage          domain.Stage
	Completed      int
	Total          int
}

// Reporter は進捗イベントの購読面です。パイプライン本体がUIへ直接
// 依存しないよう、通知はこのインターフェース越しにのみ行います。
type Reporter interface {
	Publish(p Progress)
}

// ReporterFunc は関数を Reporter として使うためのアダプターです。
type ReporterFunc func(p Progress)

func (f ReporterFunc) Publish(p Progress) {
	f(p)
}

// NewLogReporter は構造化ログへ進捗を流す既定の Reporter を返します。
func NewLogReporter() Reporter {
	return ReporterFunc(func(p Progress) {
		slog.Info("進捗",
			"character", p.CharacterLabel,
			"stage", p.Stage.String(),
			"completed", p.Completed,
			"total", p.Total,
		)
	})
}
