/*
Package device はカメラデバイスの取得を実装する

session.Acquirer の実装を提供する。

  - FFmpegAcquirer: V4L2 デバイスを検出し、ffmpeg の image2pipe 出力をJPEGフレームに分割して配信する
  - MediaDevicesAcquirer: pion/mediadevices の GetUserMedia でデバイスを取得する
  - PatternAcquirer: 物理デバイスを使わずにテストパターンを配信する

取得したハンドルは StreamHandle で、renderer.FrameSource としてフレームを供給する。
ハンドルの寿命は取得要求のコンテキストとは独立しており、トラックの停止でのみ終了する。

どの実装を使うかは Factory に登録されたドライバー名で選択する。
*/
package device
