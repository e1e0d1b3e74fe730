package prompt

import (
	"fmt"
	"strings"

	"github.com/shouni/go-persona-kit/pkg/domain"
)

// photographySuffix は、撮影条件を固定してベース画像の品質を揃えるための
// 共通サフィックスです。全キャラクターに同一の条件を適用します。
var photographySuffix = []string{
	"full body image",
	"plain white background",
	"professional studio lighting",
	"high quality",
	"detailed",
	"realistic",
}

// Builder は、キャラクター設定から構造化プロンプトを構築します。
type Builder struct {
	suffix []string
}

// NewBuilder は新しい Builder を生成します。
func NewBuilder() *Builder {
	return &Builder{suffix: photographySuffix}
}

// BuildPortraitPrompt は、ベース画像生成用のプロンプトを組み立てます。
// 属性をカンマ区切りの記述句として連結し、末尾に撮影条件を付与します。
func (b *Builder) BuildPortraitPrompt(cfg domain.CharacterConfig) string {
	parts := []string{
		fmt.Sprintf("Professional photograph of a %s-year-old %s %s",
			cfg.AgeRange, cfg.Ethnicity, strings.ToLower(cfg.Gender)),
		fmt.Sprintf("with %s hair and %s eyes",
			strings.ToLower(cfg.HairColor), strings.ToLower(cfg.EyeColor)),
		fmt.Sprintf("%s build, %s height",
			strings.ToLower(cfg.Build), strings.ToLower(cfg.Height)),
		fmt.Sprintf("wearing %s", cfg.Clothing),
	}

	if f := strings.TrimSpace(cfg.FacialFeatures); f != "" {
		parts = append(parts, fmt.Sprintf("with %s", f))
	}

	parts = append(parts, b.suffix...)
	return strings.Join(parts, ", ")
}

// ParsePromptList は、1行1プロンプト形式のテキストをプロンプトのスライスに変換します。
// 空行と前後の空白は無視します。
func ParsePromptList(text string) []string {
	var prompts []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		prompts = append(prompts, line)
	}
	return prompts
}
