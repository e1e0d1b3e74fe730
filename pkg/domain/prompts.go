package domain

// DefaultPromptCategory はバリエーション画像のファイル名接頭辞です。
const DefaultPromptCategory = "Realistic"

// DefaultVariationPrompts は、ベース画像の一貫性を確認するための
// 標準ポーズ・表情・シーンのプロンプト集です。ユーザー指定がない場合に使われます。
var DefaultVariationPrompts = []string{
	"Character sitting on a chair, same appearance",
	"Character walking forward, confident pose",
	"Character waving hello, friendly expression",
	"Character in a thinking pose, hand on chin",
	"Character with arms crossed, serious expression",
	"Character smiling warmly, happy expression",
	"Character with surprised expression, eyes wide",
	"Character looking thoughtful and contemplative",
	"Character laughing heartily, joyful mood",
	"Character with determined expression, focused",
	"Character wearing casual jeans and t-shirt",
	"Character in formal business attire",
	"Character wearing workout clothes at gym",
	"Character in winter coat and scarf",
	"Character in elegant evening wear",
	"Character in a modern office environment",
	"Character outdoors in a park setting",
	"Character in a cozy home kitchen",
	"Character at a beach during sunset",
	"Character in a library or bookstore",
	"Character cooking in the kitchen",
	"Character reading a book intently",
	"Character using a smartphone",
	"Character exercising or stretching",
	"Character painting or drawing",
	"Character portrait, close-up face shot",
	"Character from side profile view",
	"Character from behind, looking over shoulder",
	"Character full body from slight distance",
	"Character in three-quarter view angle",
}
