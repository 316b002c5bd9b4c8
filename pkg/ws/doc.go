// Package ws 提供基于 gorilla/websocket 的客户端长连接传输层。
//
// # 功能
//
//   - Dial 建立连接（握手超时、自定义请求头、压缩）
//   - 读写协程分离，写协程串行化所有写操作
//   - 双发送队列：控制帧走高优先级队列
//   - WebSocket 级 ping/pong 心跳与读超时
//   - 关闭原因通过 Run 返回，便于上层合成断开事件
//
// # 基本用法
//
//	conn, err := ws.Dial(ctx, "wss://example.com/app/key",
//	    ws.WithPingInterval(30*time.Second),
//	)
//	if err != nil {
//	    return err
//	}
//
//	go func() {
//	    err := conn.Run(func(frame []byte) {
//	        // 处理收到的文本帧
//	    })
//	    log.Printf("connection closed: %v", err)
//	}()
//
//	_ = conn.SendJSON(map[string]any{"event": "protocol:ping", "data": map[string]any{}})
//
// 帧内容不做解析，编解码由上层负责。
package ws
