package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shouni/go-persona-kit/internal/builder"
	"github.com/shouni/go-persona-kit/internal/config"
	"github.com/shouni/go-persona-kit/pkg/store"
)

// ExecuteCreate は1キャラクター分のフルパイプライン
// （ベース生成 → バリエーション → スタイル転写）を実行するのだ。
func ExecuteCreate(ctx context.Context, cfg *config.Config) error {
	// 入力の解決と検証はリモート接続の準備より先に済ませる。
	// --validate-only はここまでで終了する。
	charCfg, err := builder.ResolveCharacterConfig(cfg.Options)
	if err != nil {
		return err
	}
	if err := charCfg.Validate(); err != nil {
		return err
	}

	prompts, err := builder.ResolveVariationPrompts(cfg.Options)
	if err != nil {
		return err
	}
	styles, err := builder.ResolveStyles(cfg.Options.Styles)
	if err != nil {
		return err
	}

	if cfg.Options.ValidateOnly {
		slog.Info("入力の検証が完了したのだ（生成はスキップ）",
			"label", charCfg.Label,
			"variations", len(prompts),
			"styles", len(styles))
		return nil
	}

	appCtx, err := builder.SetupAppContext(ctx, cfg)
	if err != nil {
		return err
	}

	st := builder.BuildStore(appCtx)
	orch, err := builder.BuildOrchestrator(appCtx, st)
	if err != nil {
		return err
	}

	session, err := resolveSession(st, cfg.Options.SessionName)
	if err != nil {
		return err
	}

	slog.Info("キャラクター生成パイプラインを起動するのだ！",
		"label", charCfg.Label,
		"session", session.Name,
		"variations", len(prompts),
		"styles", len(styles))

	result, err := orch.Run(ctx, session, charCfg, prompts, styles)
	if err != nil {
		return fmt.Errorf("パイプライン実行中にエラーが発生したのだ: %w", err)
	}

	reportResult(result.Handle.Label, result.Status.String(), len(result.Failures))
	for _, f := range result.Failures {
		slog.Warn("生成失敗の内訳", "detail", f.Error())
	}
	slog.Info("成果物の保存先", "path", result.Handle.Path)
	return nil
}

// ExecuteVariations は既存キャラクターに追加のバリエーションを生成するのだ。
// ベース画像と既存の連番はディスクから復元する。
func ExecuteVariations(ctx context.Context, cfg *config.Config, sessionName, characterName string) error {
	appCtx, err := builder.SetupAppContext(ctx, cfg)
	if err != nil {
		return err
	}

	st := builder.BuildStore(appCtx)
	charPath := filepath.Join(st.Root(), sessionName, characterName)

	baseImage, err := os.ReadFile(filepath.Join(charPath, store.BaseImageName))
	if err != nil {
		return fmt.Errorf("ベース画像の読み込みに失敗しました（先に create を実行してほしいのだ）: %w", err)
	}

	record, err := store.ReadMetadata(charPath)
	if err != nil {
		slog.Warn("メタデータを読み込めないため履歴なしで続行するのだ", "error", err)
		record = nil
	}

	prompts, err := builder.ResolveVariationPrompts(cfg.Options)
	if err != nil {
		return err
	}

	orch, err := builder.BuildOrchestrator(appCtx, st)
	if err != nil {
		return err
	}

	char := store.CharacterHandle{Path: charPath, Label: characterName}
	startOrdinal := nextVariationOrdinal(char)

	slog.Info("追加バリエーションの生成を開始するのだ！",
		"character", characterName,
		"prompts", len(prompts),
		"start_ordinal", startOrdinal)

	result, err := orch.ExtendVariations(ctx, char, baseImage, prompts, startOrdinal, record)
	if err != nil {
		return err
	}

	reportResult(characterName, result.Status.String(), len(result.Failures))
	return nil
}

// resolveSession は --session 指定があれば既存セッションを使い、
// なければ新規セッションを作成するのだ。
func resolveSession(st *store.Store, sessionName string) (store.SessionHandle, error) {
	if sessionName == "" {
		return st.CreateSession()
	}

	path := filepath.Join(st.Root(), sessionName)
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return store.SessionHandle{}, fmt.Errorf("セッション %q が見つかりません", sessionName)
	}
	return store.SessionHandle{Path: path, Name: sessionName}, nil
}

// nextVariationOrdinal は既存ファイル名の最大連番の次を返すのだ。
// 部分失敗で連番に欠番が残るため、件数ではなく最大値から続けないと
// 既存の画像を上書きしてしまう。
func nextVariationOrdinal(char store.CharacterHandle) int {
	entries, err := os.ReadDir(char.VariationsDir())
	if err != nil {
		return 1
	}
	maxOrdinal := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".png" {
			continue
		}
		stem := strings.TrimSuffix(entry.Name(), ".png")
		sep := strings.LastIndex(stem, "_")
		if sep < 0 {
			continue
		}
		n, err := strconv.Atoi(stem[sep+1:])
		if err == nil && n > maxOrdinal {
			maxOrdinal = n
		}
	}
	return maxOrdinal + 1
}

func reportResult(label, status string, failures int) {
	if failures > 0 {
		slog.Warn("一部の生成に失敗したのだ", "character", label, "status", status, "failures", failures)
		return
	}
	slog.Info("すべての生成工程が完了したのだ！", "character", label, "status", status)
}
