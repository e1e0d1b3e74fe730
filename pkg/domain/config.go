package domain

import (
	"fmt"
	"strings"
)

// キャラクター属性の選択肢定数です。
// UI側のドロップダウンにそのまま渡せるパススルー定数であり、導出ロジックは持ちません。
var (
	Ethnicities = []string{"Asian", "Caucasian", "African", "Hispanic", "Middle Eastern", "Native American", "Mixed"}
	Genders     = []string{"Male", "Female", "Non-binary"}
	HairColors  = []string{"Black", "Brown", "Blonde", "Red", "Gray", "White", "Auburn", "Strawberry Blonde"}
	EyeColors   = []string{"Brown", "Blue", "Green", "Hazel", "Gray", "Amber"}
	BuildTypes  = []string{"Slim", "Athletic", "Average", "Muscular", "Curvy", "Heavy"}
	HeightTypes = []string{"Short", "Average", "Tall"}
	AgeRanges   = []string{"18-25", "26-35", "36-45", "46-55", "56-65", "65+"}

	ClothingStyles = []string{
		"Casual jeans and t-shirt",
		"Business casual",
		"Formal suit",
		"Sporty workout attire",
		"Elegant dress",
		"Bohemian style",
		"Vintage clothing",
		"Modern streetwear",
	}
)

// CharacterConfig は、ユーザーが選択したキャラクターの外見属性を保持します。
// 生成実行に投入された後は不変として扱い、構造化プロンプトの材料になります。
type CharacterConfig struct {
	Label          string `json:"label"`
	Ethnicity      string `json:"ethnicity"`
	Gender         string `json:"gender"`
	AgeRange       string `json:"age_range"`
	HairColor      string `json:"hair_color"`
	EyeColor       string `json:"eye_color"`
	Build          string `json:"build"`
	Height         string `json:"height"`
	Clothing       string `json:"clothing"`
	FacialFeatures string `json:"facial_features,omitempty"` // 自由記述（任意）
}

// Validate は必須属性が揃っているかを確認します。
// 不完全な設定はリモートに送る前にここで弾くのだ。
func (c CharacterConfig) Validate() error {
	var missing []string

	required := []struct {
		name  string
		value string
	}{
		{"label", c.Label},
		{"ethnicity", c.Ethnicity},
		{"gender", c.Gender},
		{"age_range", c.AgeRange},
		{"hair_color", c.HairColor},
		{"eye_color", c.EyeColor},
		{"build", c.Build},
		{"height", c.Height},
		{"clothing", c.Clothing},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("キャラクター設定に未入力の必須項目があります: %s", strings.Join(missing, ", "))
	}
	return nil
}
