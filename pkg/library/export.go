package library

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shouni/go-persona-kit/pkg/store"
)

// Exporter はキャラクター／セッションの成果物をZIPアーカイブへ
// パッケージします。エントリはキャラクター名をプレフィックスとして
// ディレクトリ構造を保ちます。
type Exporter struct {
	index *Indexer
	now   func() time.Time
}

// NewExporter は index の走査結果を元にZIPを組み立てる Exporter を返します。
func NewExporter(index *Indexer) *Exporter {
	return &Exporter{index: index, now: time.Now}
}

// characterSummaryDoc は character_summary.json の内容です。
type characterSummaryDoc struct {
	CharacterInfo struct {
		SessionName string `json:"session_name"`
		Name        string `json:"name"`
	} `json:"character_info"`
	ImageStatistics struct {
		BaseImage    int            `json:"base_image"`
		Variations   int            `json:"variations"`
		StyledImages map[string]int `json:"styled_images"`
		TotalImages  int            `json:"total_images"`
	} `json:"image_statistics"`
	ExportInfo struct {
		ExportDate time.Time `json:"export_date"`
		ExportTool string    `json:"export_tool"`
	} `json:"export_info"`
}

const exportToolName = "Persona Kit"

// ExportCharacter は1キャラクター分の画像とメタデータをZIPにまとめて
// 返します。スタイル画像が1枚もなくても成功します。
func (e *Exporter) ExportCharacter(summary CharacterSummary) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	if err := e.addCharacter(zw, summary, summary.Name); err != nil {
		zw.Close()
		return nil, err
	}
	if err := e.writeReadme(zw, "README.txt", []CharacterSummary{summary}); err != nil {
		zw.Close()
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("アーカイブの完成に失敗しました: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportSession はセッション内の全キャラクターを1つのZIPにまとめます。
func (e *Exporter) ExportSession(sessionName string) ([]byte, error) {
	chars, err := e.index.ListCharacters(sessionName)
	if err != nil {
		return nil, err
	}
	if len(chars) == 0 {
		return nil, fmt.Errorf("セッション %q にキャラクターがありません", sessionName)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, char := range chars {
		if err := e.addCharacter(zw, char, char.Name); err != nil {
			zw.Close()
			return nil, err
		}
	}
	if err := e.writeReadme(zw, "README.txt", chars); err != nil {
		zw.Close()
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("アーカイブの完成に失敗しました: %w", err)
	}
	return buf.Bytes(), nil
}

// addCharacter は1キャラクター分のエントリを prefix 配下に追加します。
func (e *Exporter) addCharacter(zw *zip.Writer, summary CharacterSummary, prefix string) error {
	if summary.HasBaseImage {
		if err := e.copyFile(zw, filepath.Join(summary.Path, store.BaseImageName), prefix+"/"+store.BaseImageName); err != nil {
			return err
		}
	}

	metaPath := filepath.Join(summary.Path, store.MetadataFileName)
	if _, err := os.Stat(metaPath); err == nil {
		if err := e.copyFile(zw, metaPath, prefix+"/"+store.MetadataFileName); err != nil {
			return err
		}
	}

	if err := e.copyDir(zw, filepath.Join(summary.Path, store.VariationsDirName), prefix+"/"+store.VariationsDirName); err != nil {
		return err
	}

	stylesDir := filepath.Join(summary.Path, store.StylesDirName)
	if entries, err := os.ReadDir(stylesDir); err == nil {
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			src := filepath.Join(stylesDir, entry.Name())
			dst := prefix + "/" + store.StylesDirName + "/" + entry.Name()
			if err := e.copyDir(zw, src, dst); err != nil {
				return err
			}
		}
	}

	return e.writeSummaryDoc(zw, summary, prefix+"/character_summary.json")
}

// copyDir は dir 内のファイル（PNGと添付JSON）をアーカイブへ追加します。
// ディレクトリがなければ何もしません。
func (e *Exporter) copyDir(zw *zip.Writer, dir, prefix string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		lower := strings.ToLower(entry.Name())
		if strings.HasSuffix(lower, ".png") || strings.HasSuffix(lower, ".json") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if err := e.copyFile(zw, filepath.Join(dir, name), prefix+"/"+name); err != nil {
			return err
		}
	}
	return nil
}

func (e *Exporter) copyFile(zw *zip.Writer, src, entryName string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("%s の読み込みに失敗しました: %w", src, err)
	}
	w, err := zw.Create(entryName)
	if err != nil {
		return fmt.Errorf("アーカイブエントリの作成に失敗しました: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("アーカイブへの書き込みに失敗しました: %w", err)
	}
	return nil
}

func (e *Exporter) writeSummaryDoc(zw *zip.Writer, summary CharacterSummary, entryName string) error {
	var doc characterSummaryDoc
	doc.CharacterInfo.SessionName = summary.SessionName
	doc.CharacterInfo.Name = summary.Name
	if summary.HasBaseImage {
		doc.ImageStatistics.BaseImage = 1
	}
	doc.ImageStatistics.Variations = summary.VariationCount
	doc.ImageStatistics.StyledImages = summary.StyledCounts
	doc.ImageStatistics.TotalImages = summary.TotalAssets()
	doc.ExportInfo.ExportDate = e.now()
	doc.ExportInfo.ExportTool = exportToolName

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("サマリーのエンコードに失敗しました: %w", err)
	}
	w, err := zw.Create(entryName)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func (e *Exporter) writeReadme(zw *zip.Writer, entryName string, chars []CharacterSummary) error {
	var b strings.Builder
	fmt.Fprintln(&b, "Persona Kit - Character Export")
	fmt.Fprintln(&b, "==============================")
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "Export Date: %s\n", e.now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Characters: %d\n", len(chars))
	fmt.Fprintln(&b)
	for _, char := range chars {
		fmt.Fprintf(&b, "- %s (%d images)\n", char.Name, char.TotalAssets())
	}
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, "Each character folder contains:")
	fmt.Fprintln(&b, "- "+store.BaseImageName+": the base portrait")
	fmt.Fprintln(&b, "- "+store.VariationsDirName+"/: pose and expression variations")
	fmt.Fprintln(&b, "- "+store.StylesDirName+"/: stylized versions per style")
	fmt.Fprintln(&b, "- character_summary.json: statistics and export info")

	w, err := zw.Create(entryName)
	if err != nil {
		return err
	}
	_, err = w.Write([]byte(b.String()))
	return err
}
