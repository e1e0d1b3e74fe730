package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/shouni/go-persona-kit/pkg/domain"
	"github.com/shouni/go-persona-kit/pkg/fal"
	"github.com/shouni/go-persona-kit/pkg/prompt"
	"github.com/shouni/go-persona-kit/pkg/store"
)

// GenerationClient はパイプラインが必要とするリモート生成の操作面です。
// fal.Client がこれを満たします。
type GenerationClient interface {
	GenerateBase(ctx context.Context, prompt string, params fal.BaseParams) (*fal.GenerationResult, error)
	GenerateVariation(ctx context.Context, prompt string, baseImage []byte, params fal.VariationParams) (*fal.GenerationResult, error)
	ApplyStyle(ctx context.Context, style domain.Style, image []byte, params fal.StyleParams) (*fal.GenerationResult, error)
}

// AssetStore は成果物の永続化の操作面です。store.Store がこれを満たします。
type AssetStore interface {
	CreateCharacterDir(session store.SessionHandle, label string) (store.CharacterHandle, error)
	WriteBaseImage(ctx context.Context, char store.CharacterHandle, data []byte) (string, error)
	WriteVariation(ctx context.Context, char store.CharacterHandle, category string, ordinal int, data []byte) (string, error)
	WriteStyled(ctx context.Context, char store.CharacterHandle, styleName string, ordinal int, data []byte) (string, error)
	WriteMetadata(ctx context.Context, char store.CharacterHandle, record *store.MetadataRecord) error
}

// Options はパイプラインの動作パラメータです。
type Options struct {
	BaseParams      fal.BaseParams
	VariationParams fal.VariationParams
	StyleParams     fal.StyleParams

	// MaxParallel はバリエーション／スタイル段階の同時リクエスト数の上限です。
	MaxParallel int
	// RateInterval はリクエスト送出の最小間隔です。0 なら制限なしです。
	RateInterval time.Duration
	// PromptCategory はバリエーションのファイル名カテゴリです。
	PromptCategory string
}

// DefaultOptions は既定の動作パラメータを返します。
func DefaultOptions() Options {
	return Options{
		BaseParams:      fal.DefaultBaseParams(),
		VariationParams: fal.DefaultVariationParams(),
		StyleParams:     fal.DefaultStyleParams(),
		MaxParallel:     2,
		RateInterval:    0,
		PromptCategory:  domain.DefaultPromptCategory,
	}
}

// StageFailure は1件の生成失敗の記録です。恒久的な失敗のみ記録されます。
type StageFailure struct {
	Stage   domain.Stage
	Ordinal int // 提出順の連番（1始まり）。ベース段階は常に 1 です。
	Style   string
	Err     error
}

func (f StageFailure) Error() string {
	if f.Style != "" {
		return fmt.Sprintf("%s [%s #%d]: %v", f.Stage, f.Style, f.Ordinal, f.Err)
	}
	return fmt.Sprintf("%s [#%d]: %v", f.Stage, f.Ordinal, f.Err)
}

// RunResult は1キャラクター分のパイプライン実行の要約です。
type RunResult struct {
	Handle         store.CharacterHandle
	Status         domain.Status
	BaseImagePath  string
	VariationPaths []string
	StyledPaths    map[string][]string
	Failures       []StageFailure
}

// Orchestrator はベース生成 → バリエーション → スタイル転写の三段
// パイプラインを直列に進めます。段内の個別呼び出しは有界の並列度で
// 送出しますが、保存は必ず提出順で行い、連番を決定的に保ちます。
type Orchestrator struct {
	client   GenerationClient
	assets   AssetStore
	reporter Reporter
	builder  *prompt.Builder
	opts     Options
	now      func() time.Time
}

// New は Orchestrator を構築します。reporter に nil を渡すと
// 構造化ログへの既定レポーターを使います。
func New(client GenerationClient, assets AssetStore, reporter Reporter, opts Options) *Orchestrator {
	if reporter == nil {
		reporter = NewLogReporter()
	}
	if opts.MaxParallel < 1 {
		opts.MaxParallel = 1
	}
	if opts.PromptCategory == "" {
		opts.PromptCategory = domain.DefaultPromptCategory
	}
	return &Orchestrator{
		client:   client,
		assets:   assets,
		reporter: reporter,
		builder:  prompt.NewBuilder(),
		opts:     opts,
		now:      time.Now,
	}
}

// Run は1キャラクター分のパイプラインを最後まで実行します。
// 設定の不備は一切のリモート呼び出しより前に検証エラーとして返します。
// ベース生成の失敗はそのキャラクターを Failed で確定させますが、
// バリエーション／スタイルの個別失敗は記録した上で処理を続行します。
func (o *Orchestrator) Run(ctx context.Context, session store.SessionHandle, cfg domain.CharacterConfig, variationPrompts []string, styles []domain.Style) (*RunResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	char, err := o.assets.CreateCharacterDir(session, cfg.Label)
	if err != nil {
		return nil, err
	}

	portraitPrompt := o.builder.BuildPortraitPrompt(cfg)
	record := store.NewMetadataRecord(cfg.Label, cfg, portraitPrompt, o.now())
	result := &RunResult{
		Handle:      char,
		StyledPaths: make(map[string][]string),
	}

	// --- ステージ1: ベース生成 ---
	record.Status = domain.StatusBaseGenerating
	baseImage, err := o.runBaseStage(ctx, char, portraitPrompt, record, result)
	if err != nil {
		// ベースがなければ後続ステージは成立しない
		record.MarkFailed(domain.StageBase, err.Error(), o.now())
		o.persistMetadata(ctx, char, record)
		result.Status = domain.StatusFailed
		result.Failures = append(result.Failures, StageFailure{Stage: domain.StageBase, Ordinal: 1, Err: err})
		return result, nil
	}
	record.Status = domain.StatusBaseDone
	o.persistMetadata(ctx, char, record)

	// --- ステージ2: バリエーション生成 ---
	record.Status = domain.StatusVariationsGenerating
	variations := o.runVariationStage(ctx, char, baseImage, variationPrompts, record, result)
	record.Status = domain.StatusVariationsDone
	o.persistMetadata(ctx, char, record)

	// --- ステージ3: スタイル転写 ---
	if len(styles) > 0 {
		record.Status = domain.StatusStylesApplying
		o.runStyleStage(ctx, char, variations, styles, record, result)
	}

	if len(result.Failures) > 0 {
		result.Status = domain.StatusFailed
		record.Status = domain.StatusFailed
		if record.FailedStage == "" {
			record.FailedStage = string(result.Failures[0].Stage)
		}
	} else {
		result.Status = domain.StatusComplete
		record.Status = domain.StatusComplete
	}
	o.persistMetadata(ctx, char, record)
	return result, nil
}

// RunAll は複数キャラクターを順に処理します。あるキャラクターの失敗は
// 兄弟キャラクターの処理に影響しません（設定不備など実行前の失敗を除く）。
func (o *Orchestrator) RunAll(ctx context.Context, session store.SessionHandle, configs []domain.CharacterConfig, variationPrompts []string, styles []domain.Style) ([]*RunResult, error) {
	results := make([]*RunResult, 0, len(configs))
	for _, cfg := range configs {
		if ctx.Err() != nil {
			break
		}
		res, err := o.Run(ctx, session, cfg, variationPrompts, styles)
		if err != nil {
			return results, fmt.Errorf("キャラクター %q の実行に失敗しました: %w", cfg.Label, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// ExtendVariations は既存キャラクターに追加のバリエーションを生成します。
// 連番は startOrdinal から提出順に振られ、既存資産の番号とは重なりません。
// record が nil でなければ資産棚卸しとステージ履歴を追記して保存します。
func (o *Orchestrator) ExtendVariations(ctx context.Context, char store.CharacterHandle, baseImage []byte, prompts []string, startOrdinal int, record *store.MetadataRecord) (*RunResult, error) {
	if len(baseImage) == 0 {
		return nil, fmt.Errorf("ベース画像がありません: %s", char.Path)
	}
	if startOrdinal < 1 {
		startOrdinal = 1
	}

	result := &RunResult{Handle: char, StyledPaths: make(map[string][]string)}
	start := o.now()
	slots := o.fanOut(ctx, len(prompts), func(callCtx context.Context, i int) (*fal.GenerationResult, error) {
		return o.client.GenerateVariation(callCtx, prompts[i], baseImage, o.opts.VariationParams)
	})

	// 中断後でも完了済みの結果は保存する
	persistCtx := context.WithoutCancel(ctx)
	var usedSeed int64
	completed := 0
	for i, slot := range slots {
		ordinal := startOrdinal + i
		if slot.err != nil {
			result.Failures = append(result.Failures, StageFailure{Stage: domain.StageVariations, Ordinal: ordinal, Err: slot.err})
			slog.Warn("バリエーション生成に失敗しました", "character", char.Label, "ordinal", ordinal, "error", slot.err)
			continue
		}

		written, err := o.assets.WriteVariation(persistCtx, char, o.opts.PromptCategory, ordinal, slot.result.First())
		if err != nil {
			result.Failures = append(result.Failures, StageFailure{Stage: domain.StageVariations, Ordinal: ordinal, Err: err})
			continue
		}

		if usedSeed == 0 {
			usedSeed = slot.result.Seed
		}
		result.VariationPaths = append(result.VariationPaths, written)
		if record != nil {
			record.Assets.Variations = append(record.Assets.Variations, path.Join(store.VariationsDirName, relativeAssetName(o.opts.PromptCategory, ordinal)))
		}
		completed++
		o.reporter.Publish(Progress{CharacterLabel: char.Label, Stage: domain.StageVariations, Completed: completed, Total: len(prompts)})
	}

	if len(result.Failures) > 0 {
		result.Status = domain.StatusFailed
	} else {
		result.Status = domain.StatusComplete
	}

	if record != nil {
		status := "success"
		if len(result.Failures) > 0 {
			status = "failed"
			// ステージ履歴とトップレベルの状態を食い違わせない
			record.Status = domain.StatusFailed
			if record.FailedStage == "" {
				record.FailedStage = string(domain.StageVariations)
			}
		}
		record.RecordStage(domain.StageVariations, StageRecordWithStatus(status, o.opts.VariationParams, usedSeed, start, o.now()), o.now())
		o.persistMetadata(ctx, char, record)
	}
	return result, nil
}

func (o *Orchestrator) runBaseStage(ctx context.Context, char store.CharacterHandle, portraitPrompt string, record *store.MetadataRecord, result *RunResult) ([]byte, error) {
	start := o.now()
	gen, err := o.client.GenerateBase(ctx, portraitPrompt, o.opts.BaseParams)
	if err != nil {
		return nil, err
	}

	path, err := o.assets.WriteBaseImage(context.WithoutCancel(ctx), char, gen.First())
	if err != nil {
		return nil, err
	}

	result.BaseImagePath = path
	record.Assets.BaseImage = store.BaseImageName
	record.RecordStage(domain.StageBase, stageSuccess(o.opts.BaseParams, gen.Seed, start, o.now()), o.now())
	o.reporter.Publish(Progress{CharacterLabel: char.Label, Stage: domain.StageBase, Completed: 1, Total: 1})
	return gen.First(), nil
}

// runVariationStage はバリエーションを有界並列で生成し、提出順に保存します。
// 戻り値は提出順のスロット配列で、失敗したスロットは nil のままです。
func (o *Orchestrator) runVariationStage(ctx context.Context, char store.CharacterHandle, baseImage []byte, prompts []string, record *store.MetadataRecord, result *RunResult) [][]byte {
	start := o.now()
	slots := o.fanOut(ctx, len(prompts), func(callCtx context.Context, i int) (*fal.GenerationResult, error) {
		return o.client.GenerateVariation(callCtx, prompts[i], baseImage, o.opts.VariationParams)
	})

	// 中断後でも完了済みの結果は保存する
	persistCtx := context.WithoutCancel(ctx)
	var usedSeed int64
	images := make([][]byte, len(prompts))
	completed := 0
	for i, slot := range slots {
		ordinal := i + 1
		if slot.err != nil {
			result.Failures = append(result.Failures, StageFailure{Stage: domain.StageVariations, Ordinal: ordinal, Err: slot.err})
			slog.Warn("バリエーション生成に失敗しました", "character", char.Label, "ordinal", ordinal, "error", slot.err)
			continue
		}

		written, err := o.assets.WriteVariation(persistCtx, char, o.opts.PromptCategory, ordinal, slot.result.First())
		if err != nil {
			result.Failures = append(result.Failures, StageFailure{Stage: domain.StageVariations, Ordinal: ordinal, Err: err})
			continue
		}

		if usedSeed == 0 {
			usedSeed = slot.result.Seed
		}
		images[i] = slot.result.First()
		result.VariationPaths = append(result.VariationPaths, written)
		record.Assets.Variations = append(record.Assets.Variations, path.Join(store.VariationsDirName, relativeAssetName(o.opts.PromptCategory, ordinal)))
		completed++
		o.reporter.Publish(Progress{CharacterLabel: char.Label, Stage: domain.StageVariations, Completed: completed, Total: len(prompts)})
	}

	status := "success"
	if completed < len(prompts) {
		status = "failed"
	}
	record.RecordStage(domain.StageVariations, StageRecordWithStatus(status, o.opts.VariationParams, usedSeed, start, o.now()), o.now())
	return images
}

// runStyleStage は各スタイルを、生き残ったバリエーションすべてに適用します。
// スタイルごとの連番は転写対象リストの提出順で振り直します。
func (o *Orchestrator) runStyleStage(ctx context.Context, char store.CharacterHandle, variations [][]byte, styles []domain.Style, record *store.MetadataRecord, result *RunResult) {
	sources := make([][]byte, 0, len(variations))
	for _, img := range variations {
		if img != nil {
			sources = append(sources, img)
		}
	}
	if len(sources) == 0 {
		slog.Warn("スタイル転写の対象となるバリエーションがありません", "character", char.Label)
		return
	}

	start := o.now()
	// 中断後でも完了済みの結果は保存する
	persistCtx := context.WithoutCancel(ctx)
	var usedSeed int64
	total := len(sources) * len(styles)
	completed := 0
	failedAny := false

	for _, style := range styles {
		slots := o.fanOut(ctx, len(sources), func(callCtx context.Context, i int) (*fal.GenerationResult, error) {
			return o.client.ApplyStyle(callCtx, style, sources[i], o.opts.StyleParams)
		})

		for i, slot := range slots {
			ordinal := i + 1
			if slot.err != nil {
				failedAny = true
				result.Failures = append(result.Failures, StageFailure{Stage: domain.StageStyles, Ordinal: ordinal, Style: style.Name, Err: slot.err})
				slog.Warn("スタイル転写に失敗しました", "character", char.Label, "style", style.Name, "ordinal", ordinal, "error", slot.err)
				continue
			}

			written, err := o.assets.WriteStyled(persistCtx, char, style.Name, ordinal, slot.result.First())
			if err != nil {
				failedAny = true
				result.Failures = append(result.Failures, StageFailure{Stage: domain.StageStyles, Ordinal: ordinal, Style: style.Name, Err: err})
				continue
			}

			if usedSeed == 0 {
				usedSeed = slot.result.Seed
			}
			result.StyledPaths[style.Name] = append(result.StyledPaths[style.Name], written)
			if record.Assets.Styled == nil {
				record.Assets.Styled = make(map[string][]string)
			}
			record.Assets.Styled[style.Name] = append(record.Assets.Styled[style.Name], path.Join(store.StylesDirName, store.SanitizeLabel(style.Name), relativeAssetName(style.Name, ordinal)))
			completed++
			o.reporter.Publish(Progress{CharacterLabel: char.Label, Stage: domain.StageStyles, Completed: completed, Total: total})
		}
	}

	status := "success"
	if failedAny {
		status = "failed"
	}
	record.RecordStage(domain.StageStyles, StageRecordWithStatus(status, o.opts.StyleParams, usedSeed, start, o.now()), o.now())
}

// slot は提出順スロット1個分の結果です。
type slot struct {
	result *fal.GenerationResult
	err    error
}

// fanOut は n 件の呼び出しを有界並列で送出し、提出順のスロット配列に
// 集めます。ワーカーはエラーを返さずスロットへ記録するため、1件の失敗が
// 兄弟呼び出しを巻き込むことはありません。中断要求後は新規送出を止め、
// 送出済みの呼び出しは完了まで待ちます。
func (o *Orchestrator) fanOut(ctx context.Context, n int, call func(ctx context.Context, i int) (*fal.GenerationResult, error)) []slot {
	slots := make([]slot, n)
	eg := new(errgroup.Group)
	eg.SetLimit(o.opts.MaxParallel)

	var limiter *rate.Limiter
	if o.opts.RateInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(o.opts.RateInterval), 2)
	}

	// 中断後も送出済みの呼び出しは完了・保存まで進める
	inflightCtx := context.WithoutCancel(ctx)

	for i := range n {
		if ctx.Err() != nil {
			slots[i].err = &fal.Error{Kind: fal.KindRejected, Op: "dispatch", Message: "中断されたため送出をスキップしました", Err: ctx.Err()}
			continue
		}

		eg.Go(func() error {
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					slots[i].err = &fal.Error{Kind: fal.KindRejected, Op: "dispatch", Message: "中断されたため送出をスキップしました", Err: err}
					return nil
				}
			}

			res, err := call(inflightCtx, i)
			slots[i].result, slots[i].err = res, err
			return nil
		})
	}

	_ = eg.Wait()
	return slots
}

func stageSuccess(params any, seed int64, start, end time.Time) store.StageRecord {
	return StageRecordWithStatus("success", params, seed, start, end)
}

// StageRecordWithStatus はステージ履歴1件分を組み立てます。
// seed はプロバイダー応答の実使用シードです（0なら記録しません）。
func StageRecordWithStatus(status string, params any, seed int64, start, end time.Time) store.StageRecord {
	return store.StageRecord{
		Status:  status,
		Params:  params,
		Seed:    seed,
		Elapsed: end.Sub(start).Round(time.Millisecond).String(),
	}
}

// persistMetadata は切り離したコンテキストで保存します。
// 中断でメタデータまで失うと失敗ステージの記録が残らないためです。
func (o *Orchestrator) persistMetadata(ctx context.Context, char store.CharacterHandle, record *store.MetadataRecord) {
	if err := o.assets.WriteMetadata(context.WithoutCancel(ctx), char, record); err != nil {
		// メタデータの書き込み失敗で画像の成果を失わせない
		slog.Error("メタデータの保存に失敗しました", "character", char.Label, "error", err)
	}
}

func relativeAssetName(category string, ordinal int) string {
	return fmt.Sprintf("%s_%03d.png", store.SanitizeLabel(category), ordinal)
}
