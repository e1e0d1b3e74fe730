package domain

// Status はキャラクター1体分のパイプライン状態を表します。
// Idle → BaseGenerating → BaseDone → VariationsGenerating → VariationsDone
// → StylesApplying → Complete と直列に遷移し、進行中のどの状態からも
// Failed に落ちる可能性があります。
type Status string

const (
	StatusIdle                 Status = "Idle"
	StatusBaseGenerating       Status = "BaseGenerating"
	StatusBaseDone             Status = "BaseDone"
	StatusVariationsGenerating Status = "VariationsGenerating"
	StatusVariationsDone       Status = "VariationsDone"
	StatusStylesApplying       Status = "StylesApplying"
	StatusComplete             Status = "Complete"
	StatusFailed               Status = "Failed"
)

// Terminal は、これ以上遷移しない最終状態かどうかを返します。
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// InProgress はリモート呼び出しを伴う進行中の状態かどうかを返します。
func (s Status) InProgress() bool {
	switch s {
	case StatusBaseGenerating, StatusVariationsGenerating, StatusStylesApplying:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// Stage はパイプラインの3工程（ベース生成・バリエーション生成・スタイル転写）を表します。
// メタデータの stages キーとしてそのまま永続化されます。
type Stage string

const (
	StageBase       Stage = "base_generation"
	StageVariations Stage = "variation_generation"
	StageStyles     Stage = "style_transfer"
)

func (s Stage) String() string {
	return string(s)
}
