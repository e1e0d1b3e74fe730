package domain

import (
	"sort"
	"strings"
)

// Style は既存画像に適用する名前付きスタイルアダプター（LoRA）の定義です。
// Name はそのまま出力フォルダ名・ファイル名の接頭辞になります。
type Style struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	LoraPath       string  `json:"lora_path"`
	PromptTemplate string  `json:"prompt_template"`
	Weight         float64 `json:"weight"`
	Description    string  `json:"description,omitempty"`
}

// BuiltinStyles は同梱のスタイルアダプター定義です。
var BuiltinStyles = map[string]Style{
	"ghibli": {
		ID:             "ghibli",
		Name:           "Studio Ghibli",
		LoraPath:       "https://huggingface.co/Owen777/Kontext-Style-Loras/resolve/main/Ghibli_lora_weights.safetensors",
		PromptTemplate: "Turn this image into the Ghibli style.",
		Weight:         1,
		Description:    "Magical, whimsical animation style from Studio Ghibli films",
	},
	"rick_morty": {
		ID:             "rick_morty",
		Name:           "Rick & Morty",
		LoraPath:       "https://huggingface.co/Owen777/Kontext-Style-Loras/resolve/main/Rick_Morty_lora_weights.safetensors",
		PromptTemplate: "Turn this image into the Rick Morty style.",
		Weight:         1,
		Description:    "Distinctive cartoon style from the Rick and Morty TV series",
	},
}

// FindStyle は ID または表示名からスタイル定義を検索します。大文字小文字は区別しません。
func FindStyle(idOrName string) (Style, bool) {
	key := strings.ToLower(strings.TrimSpace(idOrName))
	if s, ok := BuiltinStyles[key]; ok {
		return s, true
	}
	for _, s := range BuiltinStyles {
		if strings.EqualFold(s.Name, idOrName) {
			return s, true
		}
	}
	return Style{}, false
}

// StyleIDs は利用可能なスタイルIDを辞書順で返します。
func StyleIDs() []string {
	ids := make([]string, 0, len(BuiltinStyles))
	for id := range BuiltinStyles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
