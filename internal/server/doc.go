// Package server は、HTTPサーバーとWebSocket通信を管理します。
//
// このパッケージは、カメラセッションを操作するAPIの提供、
// 観測値のWebSocket配信、プレビュー映像の配信、静的ファイルの配信を担当します。
//
// 責務:
//   - HTTPサーバーの起動と管理
//   - API定義（OpenAPI）に基づくリクエストの検証
//   - カメラセッションの操作（開く・撮影・閉じる・エラーのクリア）
//   - 観測値の変化をWebSocketで配信
//   - プレビュー映像のMJPEGストリーミング
//   - 静的ファイル（HTML/CSS/JS）の配信
//
// 仕様:
//   - ルーティングはgin、ハンドラーは生成されたServerInterfaceを実装
//   - リクエストの検証はkin-openapiを使用
//   - WebSocketはgorilla/websocketを使用
//   - カメラを要求したブラウザの環境はUser-AgentとX-Navigator-Vendorヘッダーから判定
//   - グレースフルシャットダウン時に開いたままのデバイスを解放
package server
