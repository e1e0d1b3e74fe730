package fal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind は生成クライアントが返す失敗の分類です。
// リトライ対象かどうか、どこで致命的になるかの判断はすべてこの分類に基づきます。
type Kind string

const (
	// KindConfiguration は資格情報の欠落・不正です。生成を試みる前に致命的として扱います。
	KindConfiguration Kind = "configuration"
	// KindValidation はリクエスト構築前の入力不備です。そのリクエストのみ致命的です。
	KindValidation Kind = "validation"
	// KindTransient はタイムアウト・レート制限・5xx です。リトライ予算の範囲で再試行します。
	KindTransient Kind = "remote_transient"
	// KindRejected はレート制限以外の 4xx です。再試行せず即座に確定させます。
	KindRejected Kind = "remote_rejected"
	// KindFilesystem は成果物の書き込み失敗です。該当キャラクターのみ致命的です。
	KindFilesystem Kind = "filesystem"
)

// Error は分類付きの失敗情報です。プロバイダのエラーメッセージを保持し、
// クライアント境界の外へはこの型でのみ失敗を伝えます。
type Error struct {
	Kind    Kind
	Op      string // 失敗した操作（モデルIDや "download" など）
	Status  int    // HTTPステータス（トランスポート層の失敗では 0）
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s (%s, status %d)", e.Op, e.Message, e.Kind, e.Status)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Op, e.Message, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable はリトライポリシーの対象となる失敗かどうかを返します。
func (e *Error) Retryable() bool {
	return e.Kind == KindTransient
}

// KindOf は err から失敗分類を取り出します。分類のない err は KindTransient 扱いにしません。
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

func newConfigurationError(msg string) *Error {
	return &Error{Kind: KindConfiguration, Op: "setup", Message: msg}
}

func newValidationError(op, msg string) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: msg}
}

// classifyStatus は HTTP ステータスコードを失敗分類に写します。
// 408/429/5xx は一時的、それ以外の 4xx は拒否として確定です。
func classifyStatus(op string, status int, providerMsg string) *Error {
	kind := KindRejected
	if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500 {
		kind = KindTransient
	}
	if providerMsg == "" {
		providerMsg = http.StatusText(status)
	}
	return &Error{Kind: kind, Op: op, Status: status, Message: providerMsg}
}

// classifyTransport はトランスポート層の失敗を分類します。
// タイムアウトとコンテキスト期限切れは一時的として扱います。
func classifyTransport(op string, err error) *Error {
	kind := KindTransient
	if errors.Is(err, context.Canceled) {
		// ユーザー起因の中断はリトライしても意味がない
		kind = KindRejected
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		kind = KindTransient
	}
	return &Error{Kind: kind, Op: op, Message: err.Error(), Err: err}
}
