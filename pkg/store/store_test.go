package store

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/go-persona-kit/pkg/domain"
)

// fileWriter はローカルディスクに直接書き込むテスト用ライターです。
type fileWriter struct {
	writes []string
}

func (w *fileWriter) Write(ctx context.Context, path string, reader io.Reader, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	w.writes = append(w.writes, path)
	return os.WriteFile(path, data, 0o644)
}

// fixedClock は 2026-08-30 14:05:09 を返す決定的なクロックです。
func fixedClock() func() time.Time {
	t := time.Date(2026, 8, 30, 14, 5, 9, 0, time.UTC)
	return func() time.Time { return t }
}

func newTestStore(t *testing.T) (*Store, *fileWriter) {
	t.Helper()
	writer := &fileWriter{}
	return New(t.TempDir(), writer, WithClock(fixedClock())), writer
}

func TestSanitizeLabel(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"英数字はそのまま", "Alice", "Alice"},
		{"空白はアンダースコアに置換", "Dark Knight", "Dark_Knight"},
		{"記号も置換される", "K/v:a*s?", "K_v_a_s"},
		{"前後の空白は除去", "  Hero  ", "Hero"},
		{"空文字は既定名になる", "", "Character"},
		{"記号のみも既定名になる", "!!!", "Character"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SanitizeLabel(tc.input))
		})
	}
}

func TestStore_CreateSession(t *testing.T) {
	s, _ := newTestStore(t)

	t.Run("タイムスタンプ付きのセッション名になる", func(t *testing.T) {
		session, err := s.CreateSession()
		require.NoError(t, err)

		assert.Equal(t, "Session_20260830_140509", session.Name)
		assert.DirExists(t, session.Path)
	})
}

func TestStore_CreateCharacterDir(t *testing.T) {
	s, _ := newTestStore(t)
	session, err := s.CreateSession()
	require.NoError(t, err)

	t.Run("固定の子フォルダも同時に作成される", func(t *testing.T) {
		char, err := s.CreateCharacterDir(session, "Space Ranger")
		require.NoError(t, err)

		assert.Equal(t, "Space_Ranger_140509", filepath.Base(char.Path))
		assert.DirExists(t, char.VariationsDir())
		assert.DirExists(t, filepath.Join(char.Path, StylesDirName))
	})
}

func TestStore_WriteAssets(t *testing.T) {
	ctx := context.Background()
	s, writer := newTestStore(t)
	session, err := s.CreateSession()
	require.NoError(t, err)
	char, err := s.CreateCharacterDir(session, "Alice")
	require.NoError(t, err)

	t.Run("ベース画像は固定名で保存される", func(t *testing.T) {
		path, err := s.WriteBaseImage(ctx, char, []byte("base-image"))
		require.NoError(t, err)

		assert.Equal(t, BaseImageName, filepath.Base(path))
		assert.FileExists(t, path)
	})

	t.Run("バリエーションはゼロ詰め連番で保存される", func(t *testing.T) {
		path, err := s.WriteVariation(ctx, char, "Realistic", 3, []byte("variation"))
		require.NoError(t, err)

		assert.Equal(t, "Realistic_003.png", filepath.Base(path))
		assert.Equal(t, VariationsDirName, filepath.Base(filepath.Dir(path)))
	})

	t.Run("スタイル画像はスタイル名のサブフォルダに入る", func(t *testing.T) {
		path, err := s.WriteStyled(ctx, char, "Studio Ghibli", 12, []byte("styled"))
		require.NoError(t, err)

		assert.Equal(t, "Studio_Ghibli_012.png", filepath.Base(path))
		assert.Equal(t, "Studio_Ghibli", filepath.Base(filepath.Dir(path)))
		assert.Equal(t, StylesDirName, filepath.Base(filepath.Dir(filepath.Dir(path))))
	})

	t.Run("書き込みはすべてライター経由で行われる", func(t *testing.T) {
		assert.Len(t, writer.writes, 3)
	})
}

func TestStore_WriteMetadata(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	session, err := s.CreateSession()
	require.NoError(t, err)
	char, err := s.CreateCharacterDir(session, "Alice")
	require.NoError(t, err)

	cfg := domain.CharacterConfig{
		Label: "Alice", Ethnicity: "Japanese", Gender: "Female", AgeRange: "25-35",
		HairColor: "Black", EyeColor: "Brown", Build: "Slim", Height: "Average",
		Clothing: "Casual",
	}

	t.Run("累積レコードが上書き保存される", func(t *testing.T) {
		now := fixedClock()()
		record := NewMetadataRecord("Alice", cfg, "portrait prompt", now)
		record.Status = domain.StatusBaseDone
		record.RecordStage(domain.StageBase, StageRecord{Status: "success"}, now)
		require.NoError(t, s.WriteMetadata(ctx, char, record))

		// 2回目の保存で累積されること
		record.Status = domain.StatusComplete
		record.RecordStage(domain.StageVariations, StageRecord{Status: "success"}, now.Add(time.Minute))
		require.NoError(t, s.WriteMetadata(ctx, char, record))

		data, err := os.ReadFile(filepath.Join(char.Path, MetadataFileName))
		require.NoError(t, err)

		var loaded MetadataRecord
		require.NoError(t, json.Unmarshal(data, &loaded))
		assert.Equal(t, domain.StatusComplete, loaded.Status)
		assert.Len(t, loaded.Stages, 2)
		assert.Equal(t, "Alice", loaded.Config.Label)
	})

	t.Run("失敗ステージが記録される", func(t *testing.T) {
		now := fixedClock()()
		record := NewMetadataRecord("Alice", cfg, "portrait prompt", now)
		record.MarkFailed(domain.StageVariations, "remote error", now)

		assert.Equal(t, domain.StatusFailed, record.Status)
		assert.Equal(t, string(domain.StageVariations), record.FailedStage)
		assert.Equal(t, "failed", record.Stages[string(domain.StageVariations)].Status)
	})
}
