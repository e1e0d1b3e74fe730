package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shouni/go-persona-kit/pkg/domain"
)

// StageRecord はステージ単位の実行履歴です。
type StageRecord struct {
	Status      string    `json:"status"` // "success" または "failed"
	Error       string    `json:"error,omitempty"`
	Params      any       `json:"params,omitempty"`
	Seed        int64     `json:"seed,omitempty"` // プロバイダーが実際に使用したシード
	CompletedAt time.Time `json:"completed_at"`
	Elapsed     string    `json:"elapsed,omitempty"`
}

// MetadataRecord はキャラクターディレクトリに永続化するメタデータ全体です。
// ステージが完了するたびに累積して上書き保存されます。
type MetadataRecord struct {
	Label       string                 `json:"label"`
	Config      domain.CharacterConfig `json:"config"`
	Prompt      string                 `json:"prompt"`
	Status      domain.Status          `json:"status"`
	FailedStage string                 `json:"failed_stage,omitempty"`
	Stages      map[string]StageRecord `json:"stages"`
	Assets      AssetInventory         `json:"assets"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// AssetInventory は生成済み画像ファイルの棚卸しです。パスはキャラクター
// ディレクトリからの相対パスで記録します。
type AssetInventory struct {
	BaseImage  string              `json:"base_image,omitempty"`
	Variations []string            `json:"variations,omitempty"`
	Styled     map[string][]string `json:"styled,omitempty"` // スタイル名 → ファイルパス群
}

// NewMetadataRecord は基礎情報だけを埋めた初期レコードを返します。
func NewMetadataRecord(label string, cfg domain.CharacterConfig, prompt string, createdAt time.Time) *MetadataRecord {
	return &MetadataRecord{
		Label:     label,
		Config:    cfg,
		Prompt:    prompt,
		Status:    domain.StatusIdle,
		Stages:    make(map[string]StageRecord),
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

// RecordStage はステージの結果を履歴へ追記します。
func (m *MetadataRecord) RecordStage(stage domain.Stage, rec StageRecord, at time.Time) {
	if m.Stages == nil {
		m.Stages = make(map[string]StageRecord)
	}
	rec.CompletedAt = at
	m.Stages[string(stage)] = rec
	m.UpdatedAt = at
}

// ReadMetadata はキャラクターディレクトリから永続化済みのメタデータを
// 読み込みます。ファイルの欠損や破損はそのままエラーとして返します。
func ReadMetadata(charPath string) (*MetadataRecord, error) {
	data, err := os.ReadFile(filepath.Join(charPath, MetadataFileName))
	if err != nil {
		return nil, fmt.Errorf("メタデータの読み込みに失敗しました: %w", err)
	}
	var record MetadataRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("メタデータのデコードに失敗しました: %w", err)
	}
	return &record, nil
}

// MarkFailed は失敗ステージとエラー内容を記録し、状態を確定させます。
func (m *MetadataRecord) MarkFailed(stage domain.Stage, errText string, at time.Time) {
	m.Status = domain.StatusFailed
	m.FailedStage = string(stage)
	m.RecordStage(stage, StageRecord{Status: "failed", Error: errText}, at)
}
