package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// OutputWriter はデータを外部ストレージに保存するためのインターフェースです。
// remoteio.OutputWriter がこれを満たします。
type OutputWriter interface {
	Write(ctx context.Context, path string, reader io.Reader, contentType string) error
}

// ディレクトリとファイルの命名規約。ここを変えると既存ライブラリの走査が壊れます。
const (
	SessionPrefix     = "Session_"
	sessionTimeLayout = "20060102_150405"
	charTimeLayout    = "150405"

	BaseImageName     = "Base-Character.png"
	MetadataFileName  = "base_character_metadata.json"
	VariationsDirName = "ConsistencyTests"
	StylesDirName     = "Styles"
)

// assetNameFormat は 1 始まり・3桁ゼロ詰めの連番を使います。
const assetNameFormat = "%s_%03d.png"

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// SanitizeLabel はキャラクター名をファイルシステムで安全な形に正規化します。
// 英数字・ハイフン・アンダースコア以外は _ に置き換えます。
func SanitizeLabel(label string) string {
	s := unsafeChars.ReplaceAllString(strings.TrimSpace(label), "_")
	s = strings.Trim(s, "_")
	if s == "" {
		s = "Character"
	}
	return s
}

// SessionHandle は作成済みセッションディレクトリへの参照です。
type SessionHandle struct {
	Path string
	Name string
}

// CharacterHandle は作成済みキャラクターディレクトリへの参照です。
type CharacterHandle struct {
	Path  string
	Label string
}

// VariationsDir はバリエーション画像の保存先ディレクトリを返します。
func (h CharacterHandle) VariationsDir() string {
	return filepath.Join(h.Path, VariationsDirName)
}

// StyleDir は指定スタイルの保存先ディレクトリを返します。
func (h CharacterHandle) StyleDir(styleName string) string {
	return filepath.Join(h.Path, StylesDirName, SanitizeLabel(styleName))
}

// Store はセッション／キャラクターの決定的なディレクトリ配置と
// 成果物の書き込みを担います。書き込みの失敗はすべてファイルシステム
// エラーとして呼び出し元へ返し、該当キャラクターのみ致命的とします。
type Store struct {
	root   string
	writer OutputWriter
	now    func() time.Time
}

// Option は Store の構築オプションです。
type Option func(*Store)

// WithClock は現在時刻の取得関数を差し替えます（テスト用）。
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New は root 配下にセッションを作る Store を構築します。
func New(root string, writer OutputWriter, opts ...Option) *Store {
	s := &Store{
		root:   root,
		writer: writer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root はセッションの親ディレクトリを返します。
func (s *Store) Root() string {
	return s.root
}

// CreateSession はタイムスタンプ（秒精度）で一意な名前のセッション
// ディレクトリを作成します。
func (s *Store) CreateSession() (SessionHandle, error) {
	name := SessionPrefix + s.now().Format(sessionTimeLayout)
	path := filepath.Join(s.root, name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return SessionHandle{}, fmt.Errorf("セッションディレクトリの作成に失敗しました: %w", err)
	}
	return SessionHandle{Path: path, Name: name}, nil
}

// CreateCharacterDir はセッション配下にキャラクターディレクトリと
// 固定の子フォルダ（バリエーション用・スタイル用）を作成します。
func (s *Store) CreateCharacterDir(session SessionHandle, label string) (CharacterHandle, error) {
	dirName := SanitizeLabel(label) + "_" + s.now().Format(charTimeLayout)
	path := filepath.Join(session.Path, dirName)

	for _, dir := range []string{path, filepath.Join(path, VariationsDirName), filepath.Join(path, StylesDirName)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return CharacterHandle{}, fmt.Errorf("キャラクターディレクトリの作成に失敗しました: %w", err)
		}
	}
	return CharacterHandle{Path: path, Label: label}, nil
}

// WriteBaseImage はベース画像を固定名で書き込みます。
func (s *Store) WriteBaseImage(ctx context.Context, char CharacterHandle, data []byte) (string, error) {
	path := filepath.Join(char.Path, BaseImageName)
	if err := s.writer.Write(ctx, path, bytes.NewReader(data), "image/png"); err != nil {
		return "", fmt.Errorf("ベース画像の保存に失敗しました: %w", err)
	}
	return path, nil
}

// WriteVariation はバリエーション画像を提出順の連番で書き込みます。
// ordinal は 1 始まりです。
func (s *Store) WriteVariation(ctx context.Context, char CharacterHandle, category string, ordinal int, data []byte) (string, error) {
	name := fmt.Sprintf(assetNameFormat, SanitizeLabel(category), ordinal)
	path := filepath.Join(char.VariationsDir(), name)
	if err := s.writer.Write(ctx, path, bytes.NewReader(data), "image/png"); err != nil {
		return "", fmt.Errorf("バリエーション画像の保存に失敗しました: %w", err)
	}
	return path, nil
}

// WriteStyled はスタイル転写済み画像をスタイル名のサブフォルダへ書き込みます。
// フォルダは初回書き込み時に作成します。
func (s *Store) WriteStyled(ctx context.Context, char CharacterHandle, styleName string, ordinal int, data []byte) (string, error) {
	dir := char.StyleDir(styleName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("スタイルディレクトリの作成に失敗しました: %w", err)
	}
	name := fmt.Sprintf(assetNameFormat, SanitizeLabel(styleName), ordinal)
	path := filepath.Join(dir, name)
	if err := s.writer.Write(ctx, path, bytes.NewReader(data), "image/png"); err != nil {
		return "", fmt.Errorf("スタイル画像の保存に失敗しました: %w", err)
	}
	return path, nil
}

// WriteMetadata はメタデータレコードを固定名のJSONとして上書き保存します。
// ステージ完了のたびに累積レコード全体を書き直します。
func (s *Store) WriteMetadata(ctx context.Context, char CharacterHandle, record *MetadataRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("メタデータのエンコードに失敗しました: %w", err)
	}
	path := filepath.Join(char.Path, MetadataFileName)
	if err := s.writer.Write(ctx, path, bytes.NewReader(data), "application/json"); err != nil {
		return fmt.Errorf("メタデータの保存に失敗しました: %w", err)
	}
	return nil
}
