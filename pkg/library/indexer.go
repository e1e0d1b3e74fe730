package library

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/shouni/go-persona-kit/pkg/domain"
	"github.com/shouni/go-persona-kit/pkg/store"
)

// 走査結果のキャッシュ保持時間。UIのポーリングでディスク走査を
// 繰り返さないための短いTTLです。
const (
	defaultCacheExpiration = 30 * time.Second
	cacheCleanupInterval   = 5 * time.Minute
)

// SessionSummary はセッション1件分の概要です。
type SessionSummary struct {
	Name       string `json:"name"`
	Path       string `json:"path"`
	Characters int    `json:"characters"`
}

// CharacterSummary はキャラクター1体分の資産棚卸しです。
// メタデータが欠損・破損していても走査は中断せず、
// MetadataUnavailable を立てたまま返します。
type CharacterSummary struct {
	Name                string                `json:"name"`
	Path                string                `json:"path"`
	SessionName         string                `json:"session_name"`
	Status              domain.Status         `json:"status"`
	HasBaseImage        bool                  `json:"has_base_image"`
	VariationCount      int                   `json:"variation_count"`
	StyledCounts        map[string]int        `json:"styled_counts"`
	MetadataUnavailable bool                  `json:"metadata_unavailable"`
	Metadata            *store.MetadataRecord `json:"metadata,omitempty"`
}

// TotalAssets はこのキャラクターの画像資産の総数を返します。
func (s CharacterSummary) TotalAssets() int {
	n := s.VariationCount
	if s.HasBaseImage {
		n++
	}
	for _, c := range s.StyledCounts {
		n += c
	}
	return n
}

// Indexer はセッションディレクトリツリーを走査してキャラクターの
// 一覧と資産情報を再構成します。走査は読み取り専用で、結果は短時間
// キャッシュされます。
type Indexer struct {
	root  string
	cache *cache.Cache
}

// NewIndexer は root（セッションの親ディレクトリ）を走査する Indexer を返します。
func NewIndexer(root string) *Indexer {
	return &Indexer{
		root:  root,
		cache: cache.New(defaultCacheExpiration, cacheCleanupInterval),
	}
}

// Invalidate はキャッシュを破棄し、次回の走査を強制します。
func (ix *Indexer) Invalidate() {
	ix.cache.Flush()
}

// ListSessions は root 直下のセッションを新しい順で列挙します。
func (ix *Indexer) ListSessions() ([]SessionSummary, error) {
	const key = "sessions"
	if cached, ok := ix.cache.Get(key); ok {
		return cached.([]SessionSummary), nil
	}

	entries, err := os.ReadDir(ix.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ライブラリの走査に失敗しました: %w", err)
	}

	var sessions []SessionSummary
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), store.SessionPrefix) {
			continue
		}
		path := filepath.Join(ix.root, entry.Name())
		chars, err := ix.scanSession(path, entry.Name())
		if err != nil {
			continue
		}
		sessions = append(sessions, SessionSummary{
			Name:       entry.Name(),
			Path:       path,
			Characters: len(chars),
		})
	}

	// セッション名はタイムスタンプ由来なので、名前の降順 = 新しい順
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Name > sessions[j].Name })
	ix.cache.Set(key, sessions, cache.DefaultExpiration)
	return sessions, nil
}

// ListCharacters は1セッション内のキャラクターを新しい順で列挙します。
func (ix *Indexer) ListCharacters(sessionName string) ([]CharacterSummary, error) {
	key := "chars:" + sessionName
	if cached, ok := ix.cache.Get(key); ok {
		return cached.([]CharacterSummary), nil
	}

	path := filepath.Join(ix.root, sessionName)
	chars, err := ix.scanSession(path, sessionName)
	if err != nil {
		return nil, err
	}

	ix.cache.Set(key, chars, cache.DefaultExpiration)
	return chars, nil
}

// LibraryStats はライブラリ全体の集計です。
type LibraryStats struct {
	Sessions    int                   `json:"sessions"`
	Characters  int                   `json:"characters"`
	TotalImages int                   `json:"total_images"`
	ByStatus    map[domain.Status]int `json:"by_status"`
	ByStyle     map[string]int        `json:"by_style"`
	OldestEntry time.Time             `json:"oldest_entry,omitempty"`
	NewestEntry time.Time             `json:"newest_entry,omitempty"`
}

// Stats はライブラリ全体を集計します。日付範囲はメタデータの作成時刻に
// 基づくため、メタデータ欠損のキャラクターは範囲に寄与しません。
func (ix *Indexer) Stats() (LibraryStats, error) {
	sessions, err := ix.ListSessions()
	if err != nil {
		return LibraryStats{}, err
	}
	chars, err := ix.ListAll()
	if err != nil {
		return LibraryStats{}, err
	}

	stats := LibraryStats{
		Sessions:   len(sessions),
		Characters: len(chars),
		ByStatus:   make(map[domain.Status]int),
		ByStyle:    make(map[string]int),
	}
	for _, char := range chars {
		stats.TotalImages += char.TotalAssets()
		for style, n := range char.StyledCounts {
			stats.ByStyle[style] += n
		}
		if char.MetadataUnavailable {
			continue
		}
		stats.ByStatus[char.Status]++
		created := char.Metadata.CreatedAt
		if stats.OldestEntry.IsZero() || created.Before(stats.OldestEntry) {
			stats.OldestEntry = created
		}
		if created.After(stats.NewestEntry) {
			stats.NewestEntry = created
		}
	}
	return stats, nil
}

// ListAll は全セッションの全キャラクターを新しい順で列挙します。
func (ix *Indexer) ListAll() ([]CharacterSummary, error) {
	sessions, err := ix.ListSessions()
	if err != nil {
		return nil, err
	}

	var all []CharacterSummary
	for _, session := range sessions {
		chars, err := ix.ListCharacters(session.Name)
		if err != nil {
			continue
		}
		all = append(all, chars...)
	}
	return all, nil
}

func (ix *Indexer) scanSession(sessionPath, sessionName string) ([]CharacterSummary, error) {
	entries, err := os.ReadDir(sessionPath)
	if err != nil {
		return nil, fmt.Errorf("セッション %q の走査に失敗しました: %w", sessionName, err)
	}

	var chars []CharacterSummary
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		chars = append(chars, ix.scanCharacter(filepath.Join(sessionPath, entry.Name()), entry.Name(), sessionName))
	}

	sort.Slice(chars, func(i, j int) bool { return chars[i].Name > chars[j].Name })
	return chars, nil
}

// scanCharacter は1キャラクター分のディレクトリから資産棚卸しを再構成します。
// サブフォルダの欠落は該当ステージ0件として扱います。
func (ix *Indexer) scanCharacter(charPath, name, sessionName string) CharacterSummary {
	summary := CharacterSummary{
		Name:         name,
		Path:         charPath,
		SessionName:  sessionName,
		StyledCounts: make(map[string]int),
	}

	if _, err := os.Stat(filepath.Join(charPath, store.BaseImageName)); err == nil {
		summary.HasBaseImage = true
	}

	summary.VariationCount = countPNGs(filepath.Join(charPath, store.VariationsDirName))

	stylesDir := filepath.Join(charPath, store.StylesDirName)
	if styleEntries, err := os.ReadDir(stylesDir); err == nil {
		for _, se := range styleEntries {
			if !se.IsDir() {
				continue
			}
			if n := countPNGs(filepath.Join(stylesDir, se.Name())); n > 0 {
				summary.StyledCounts[se.Name()] = n
			}
		}
	}

	record, err := store.ReadMetadata(charPath)
	if err != nil {
		summary.MetadataUnavailable = true
		return summary
	}
	summary.Metadata = record
	summary.Status = record.Status
	return summary
}

func countPNGs(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(strings.ToLower(entry.Name()), ".png") {
			n++
		}
	}
	return n
}
