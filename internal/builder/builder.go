package builder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/shouni/go-persona-kit/internal/config"
	"github.com/shouni/go-persona-kit/pkg/domain"
	"github.com/shouni/go-persona-kit/pkg/fal"
	"github.com/shouni/go-persona-kit/pkg/library"
	"github.com/shouni/go-persona-kit/pkg/pipeline"
	"github.com/shouni/go-persona-kit/pkg/prompt"
	"github.com/shouni/go-persona-kit/pkg/store"

	"github.com/shouni/go-http-kit/httpkit"
	"github.com/shouni/go-remote-io/pkg/gcsfactory"
)

// SetupAppContext は、提供された設定と共有コンポーネントを使用して、
// アプリケーションコンテキストを初期化して返すのだ。
func SetupAppContext(ctx context.Context, cfg *config.Config) (*AppContext, error) {
	timeout := cfg.Options.HTTPTimeout
	if timeout <= 0 {
		timeout = config.DefaultHTTPTimeout
	}
	httpClient := httpkit.New(timeout)

	gcsFactory, err := gcsfactory.NewGCSClientFactory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client factory: %w", err)
	}
	writer, err := gcsFactory.NewOutputWriter()
	if err != nil {
		return nil, err
	}

	appCtx := NewAppContext(cfg, httpClient, writer)
	return &appCtx, nil
}

// BuildGenerationClient はリモート生成クライアントを構築するのだ。
// APIキーの体裁検査はクライアント側でも行われ、不正ならここで失敗する。
func BuildGenerationClient(appCtx *AppContext) (*fal.Client, error) {
	var clientOpts []fal.Option
	if appCtx.Config.BaseURL != "" {
		clientOpts = append(clientOpts, fal.WithBaseURL(appCtx.Config.BaseURL))
	}
	o := appCtx.Options
	if o.BaseModel != "" || o.VariationModel != "" || o.StyleModel != "" {
		clientOpts = append(clientOpts, fal.WithModels(o.BaseModel, o.VariationModel, o.StyleModel))
	}

	client, err := fal.NewClient(appCtx.Config.FalAPIKey, &http.Client{}, appCtx.httpClient, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("生成クライアントの初期化に失敗しました: %w", err)
	}
	return client, nil
}

// BuildStore はセッションストアを構築するのだ。
func BuildStore(appCtx *AppContext) *store.Store {
	outputDir := appCtx.Options.OutputDir
	if outputDir == "" {
		outputDir = appCtx.Config.OutputDir
	}
	return store.New(outputDir, appCtx.Writer)
}

// BuildOrchestrator はパイプライン一式（クライアント・ストア・レポーター）を構築するのだ。
func BuildOrchestrator(appCtx *AppContext, st *store.Store) (*pipeline.Orchestrator, error) {
	client, err := BuildGenerationClient(appCtx)
	if err != nil {
		return nil, err
	}

	opts := pipeline.DefaultOptions()
	if appCtx.Options.MaxParallel > 0 {
		opts.MaxParallel = appCtx.Options.MaxParallel
	}
	if appCtx.Options.RateInterval > 0 {
		opts.RateInterval = appCtx.Options.RateInterval
	}

	return pipeline.New(client, st, pipeline.NewLogReporter(), opts), nil
}

// BuildIndexer はライブラリの走査系を構築するのだ。
func BuildIndexer(appCtx *AppContext) *library.Indexer {
	outputDir := appCtx.Options.OutputDir
	if outputDir == "" {
		outputDir = appCtx.Config.OutputDir
	}
	return library.NewIndexer(outputDir)
}

// ResolveCharacterConfig はフラグまたはJSONファイルから CharacterConfig を組み立てるのだ。
// --config-file が指定されていればそれを優先し、個別フラグで上書きできる。
func ResolveCharacterConfig(opts config.GenerateOptions) (domain.CharacterConfig, error) {
	var cfg domain.CharacterConfig

	if opts.ConfigFile != "" {
		data, err := os.ReadFile(opts.ConfigFile)
		if err != nil {
			return cfg, fmt.Errorf("設定ファイルの読み込みに失敗しました: %w", err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("設定ファイルのデコードに失敗しました: %w", err)
		}
	}

	overlay := map[*string]string{
		&cfg.Label:          opts.Label,
		&cfg.Ethnicity:      opts.Ethnicity,
		&cfg.Gender:         opts.Gender,
		&cfg.AgeRange:       opts.AgeRange,
		&cfg.HairColor:      opts.HairColor,
		&cfg.EyeColor:       opts.EyeColor,
		&cfg.Build:          opts.Build,
		&cfg.Height:         opts.Height,
		&cfg.Clothing:       opts.Clothing,
		&cfg.FacialFeatures: opts.FacialFeatures,
	}
	for dst, v := range overlay {
		if v != "" {
			*dst = v
		}
	}

	return cfg, nil
}

// ResolveStyles はスタイル識別子の列を組込みスタイル定義へ解決するのだ。
func ResolveStyles(ids []string) ([]domain.Style, error) {
	styles := make([]domain.Style, 0, len(ids))
	for _, id := range ids {
		style, ok := domain.FindStyle(id)
		if !ok {
			return nil, fmt.Errorf("不明なスタイル %q です（指定可能: %s）", id, strings.Join(domain.StyleIDs(), ", "))
		}
		styles = append(styles, style)
	}
	return styles, nil
}

// ResolveVariationPrompts はプロンプト一覧を決定するのだ。
// ファイル指定がなければ既定の30種から maxPrompts 件を使う。
func ResolveVariationPrompts(opts config.GenerateOptions) ([]string, error) {
	prompts := domain.DefaultVariationPrompts

	if opts.PromptsFile != "" {
		data, err := os.ReadFile(opts.PromptsFile)
		if err != nil {
			return nil, fmt.Errorf("プロンプトファイルの読み込みに失敗しました: %w", err)
		}
		prompts = prompt.ParsePromptList(string(data))
		if len(prompts) == 0 {
			return nil, fmt.Errorf("プロンプトファイル %s に有効な行がありません", opts.PromptsFile)
		}
	}

	limit := opts.MaxPrompts
	if limit <= 0 {
		limit = config.DefaultMaxPrompts
	}
	if len(prompts) > limit {
		prompts = prompts[:limit]
	}
	return prompts, nil
}
