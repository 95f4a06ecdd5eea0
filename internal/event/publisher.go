// Package event はドメインイベントのファイアアンドフォーゲット配信を提供する。
// 配信の確認・順序保証・再送は行わず、失敗はログに記録するのみ。
package event

import (
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// 発行トピック
const (
	// TopicGroupBookmarked はグループがブックマークされたときに発行される。
	TopicGroupBookmarked = "group_bookmarked"
	// TopicGroupUnbookmarked はブックマークが解除されたときに発行される。
	TopicGroupUnbookmarked = "group_unbookmarked"
)

// GroupEvent はブックマーク系トピックのペイロード。
type GroupEvent struct {
	GroupID  string `json:"group_id"`
	SpaceID  string `json:"space_id"`
	MemberID string `json:"member_id"`
}

// Publisher はイベント発行のインターフェース。
// Publishは呼び出し元をブロックせず、エラーも返さない。
type Publisher interface {
	Publish(topic string, payload any)
}

// NATSPublisher はNATSコアのPublishによるPublisher実装。
// at-most-onceのベストエフォート配信であり、JetStream等の永続化は使わない。
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher はNATSへ接続してNATSPublisherを生成する。
func NewNATSPublisher(url, name string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url, nats.Name(name))
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{conn: conn}, nil
}

// Publish はペイロードをJSONへシリアライズしてトピックへ発行する。
// シリアライズ失敗・発行失敗のいずれもログに記録するのみで呼び出し元へは伝播しない。
func (p *NATSPublisher) Publish(topic string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("イベントペイロードのシリアライズに失敗しました",
			slog.String("topic", topic),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := p.conn.Publish(topic, data); err != nil {
		slog.Error("イベントの発行に失敗しました",
			slog.String("topic", topic),
			slog.String("error", err.Error()),
		)
	}
}

// Close は未送信のバッファをフラッシュして接続を閉じる。
func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		slog.Error("NATS接続のドレインに失敗しました", slog.String("error", err.Error()))
	}
}

// NopPublisher は何もしないPublisher実装。
// NATS_URLが未設定の環境（ローカル開発など）で使用する。
type NopPublisher struct{}

// Publish は何もしない。
func (NopPublisher) Publish(topic string, payload any) {}

// compile-time interface checks
var (
	_ Publisher = (*NATSPublisher)(nil)
	_ Publisher = NopPublisher{}
)
