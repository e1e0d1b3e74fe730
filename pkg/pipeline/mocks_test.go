package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shouni/go-persona-kit/pkg/domain"
	"github.com/shouni/go-persona-kit/pkg/fal"
	"github.com/shouni/go-persona-kit/pkg/store"
)

// --- Mocks ---

// mockClient は呼び出し回数を記録し、指定されたインデックスの
// バリエーション呼び出しを失敗させられるリモートクライアントです。
type mockClient struct {
	mu sync.Mutex

	baseCalls      int
	variationCalls int
	styleCalls     int

	baseErr error
	// failPrompts は失敗させるバリエーションプロンプトの集合です。
	failPrompts map[string]error
	// variationDelay はプロンプトごとの人工的な遅延です。
	// 完了順を意図的に乱すテストで使います。
	variationDelay func(prompt string) time.Duration
}

func newMockClient() *mockClient {
	return &mockClient{failPrompts: make(map[string]error)}
}

func (m *mockClient) GenerateBase(ctx context.Context, prompt string, params fal.BaseParams) (*fal.GenerationResult, error) {
	m.mu.Lock()
	m.baseCalls++
	m.mu.Unlock()
	if m.baseErr != nil {
		return nil, m.baseErr
	}
	return &fal.GenerationResult{Images: [][]byte{[]byte("base-image")}, Seed: fal.DefaultSeed}, nil
}

func (m *mockClient) GenerateVariation(ctx context.Context, prompt string, baseImage []byte, params fal.VariationParams) (*fal.GenerationResult, error) {
	m.mu.Lock()
	m.variationCalls++
	delay := time.Duration(0)
	if m.variationDelay != nil {
		delay = m.variationDelay(prompt)
	}
	err := m.failPrompts[prompt]
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	return &fal.GenerationResult{Images: [][]byte{[]byte("variation:" + prompt)}, Seed: fal.DefaultSeed}, nil
}

func (m *mockClient) ApplyStyle(ctx context.Context, style domain.Style, image []byte, params fal.StyleParams) (*fal.GenerationResult, error) {
	m.mu.Lock()
	m.styleCalls++
	m.mu.Unlock()
	return &fal.GenerationResult{Images: [][]byte{[]byte(style.ID + ":" + string(image))}, Seed: fal.DefaultSeed}, nil
}

// writeEvent は mockStore に届いた書き込み1件の記録です。
type writeEvent struct {
	kind    string // "base" / "variation" / "styled"
	style   string
	ordinal int
	data    string
}

// mockStore は書き込みを到着順に記録するインメモリストアです。
type mockStore struct {
	writes     []writeEvent
	metadata   []store.MetadataRecord
	charErr    error
	writeErr   error
	failWrites map[int]error // 失敗させるバリエーション連番
	// honorCtx を立てると、リモートストアと同様に中断済み
	// コンテキストでの書き込みを拒否します。
	honorCtx bool
}

func newMockStore() *mockStore {
	return &mockStore{failWrites: make(map[int]error)}
}

func (m *mockStore) ctxErr(ctx context.Context) error {
	if m.honorCtx && ctx.Err() != nil {
		return fmt.Errorf("書き込みが中断されました: %w", ctx.Err())
	}
	return nil
}

func (m *mockStore) CreateCharacterDir(session store.SessionHandle, label string) (store.CharacterHandle, error) {
	if m.charErr != nil {
		return store.CharacterHandle{}, m.charErr
	}
	return store.CharacterHandle{Path: session.Path + "/" + store.SanitizeLabel(label) + "_120000", Label: label}, nil
}

func (m *mockStore) WriteBaseImage(ctx context.Context, char store.CharacterHandle, data []byte) (string, error) {
	if err := m.ctxErr(ctx); err != nil {
		return "", err
	}
	if m.writeErr != nil {
		return "", m.writeErr
	}
	m.writes = append(m.writes, writeEvent{kind: "base", data: string(data)})
	return char.Path + "/" + store.BaseImageName, nil
}

func (m *mockStore) WriteVariation(ctx context.Context, char store.CharacterHandle, category string, ordinal int, data []byte) (string, error) {
	if err := m.ctxErr(ctx); err != nil {
		return "", err
	}
	if err := m.failWrites[ordinal]; err != nil {
		return "", err
	}
	m.writes = append(m.writes, writeEvent{kind: "variation", ordinal: ordinal, data: string(data)})
	return fmt.Sprintf("%s/%s/%s_%03d.png", char.Path, store.VariationsDirName, category, ordinal), nil
}

func (m *mockStore) WriteStyled(ctx context.Context, char store.CharacterHandle, styleName string, ordinal int, data []byte) (string, error) {
	if err := m.ctxErr(ctx); err != nil {
		return "", err
	}
	m.writes = append(m.writes, writeEvent{kind: "styled", style: styleName, ordinal: ordinal, data: string(data)})
	return fmt.Sprintf("%s/%s/%s/%s_%03d.png", char.Path, store.StylesDirName, styleName, styleName, ordinal), nil
}

func (m *mockStore) WriteMetadata(ctx context.Context, char store.CharacterHandle, record *store.MetadataRecord) error {
	if err := m.ctxErr(ctx); err != nil {
		return err
	}
	m.metadata = append(m.metadata, *record)
	return nil
}

// variationOrdinals は記録されたバリエーション書き込みの連番を到着順で返します。
func (m *mockStore) variationOrdinals() []int {
	var ordinals []int
	for _, w := range m.writes {
		if w.kind == "variation" {
			ordinals = append(ordinals, w.ordinal)
		}
	}
	return ordinals
}

func (m *mockStore) countKind(kind string) int {
	n := 0
	for _, w := range m.writes {
		if w.kind == kind {
			n++
		}
	}
	return n
}

// collectReporter は進捗イベントを貯めるレポーターです。
type collectReporter struct {
	mu     sync.Mutex
	events []Progress
}

func (r *collectReporter) Publish(p Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, p)
}
