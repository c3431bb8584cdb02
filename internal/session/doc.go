// Package session カメラセッションの状態機械を担う
//
// # 責務
// - 実行環境（User-Agent / ベンダー）によるカメラ利用可否の判定
// - デバイスハンドルの取得・保持・解放（常に高々1つ）
// - レンダラーとの結合とメタデータ準備完了の追跡
// - 静止画1枚のキャプチャとエンコード
// - 最新エラーと状態の観測（同期取得と変更購読）
//
// # 状態遷移
//
//	Closed --Open(成功)--> BoundWaitingMetadata --メタデータOK--> Ready
//	Closed --Open(失敗)--> Closed（エラー設定）
//	BoundWaitingMetadata --描画エラー--> BoundWaitingMetadata（エラー設定）
//	Ready --Capture(成功)--> Closed（画像設定）
//	任意 --Close--> Closed
//	任意 --Open--> 再開始（古いデバイスを先に停止）
//
// # 仕様
//   - Open だけが待機を伴う。待機中はロックを保持しないため、Close や
//     BindRenderer を並行して呼び出せる
//   - 後から開始された Open / Close が常に優先される。取り残された取得結果の
//     ハンドルは即座に停止される
//   - トラックを停止できるのはセッションだけ。レンダラーは読み取りのみ
//   - Open は必ず Capture か Close と対になる。暗黙のファイナライザは無い
package session
