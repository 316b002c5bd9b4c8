package pusher

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Message 入站消息（构造后不可变）
type Message struct {
	Channel    string    // 频道名，连接级控制消息为空
	Event      string    // 事件名
	Data       string    // 负载：字符串原样保留，结构化数据为紧凑 JSON
	ReceivedAt time.Time // 接收时间
}

// Get 按 gjson 路径读取负载字段
func (m Message) Get(path string) gjson.Result {
	return gjson.Get(m.Data, path)
}

// Unmarshal 将负载按 JSON 反序列化
func (m Message) Unmarshal(v any) error {
	return json.Unmarshal([]byte(m.Data), v)
}

// IsControl 是否为保留的控制事件
func (m Message) IsControl() bool {
	return strings.HasPrefix(m.Event, controlPrefix) || strings.HasPrefix(m.Event, internalPrefix)
}

// decodeFrame 解析入站帧
// 帧必须是包含非空字符串 event 的 JSON 对象；channel 缺失表示连接级消息
func decodeFrame(frame []byte, now time.Time) (Message, error) {
	if !gjson.ValidBytes(frame) {
		return Message{}, &ProtocolError{Reason: "invalid json", Frame: frame}
	}

	root := gjson.ParseBytes(frame)
	if !root.IsObject() {
		return Message{}, &ProtocolError{Reason: "frame is not an object", Frame: frame}
	}

	event := root.Get("event")
	if event.Type != gjson.String || event.Str == "" {
		return Message{}, &ProtocolError{Reason: "missing event", Frame: frame}
	}

	channel := root.Get("channel")
	if channel.Exists() && channel.Type != gjson.String && channel.Type != gjson.Null {
		return Message{}, &ProtocolError{Reason: "channel is not a string", Frame: frame}
	}

	return Message{
		Channel:    channel.Str,
		Event:      event.Str,
		Data:       normalizeData(root.Get("data")),
		ReceivedAt: now,
	}, nil
}

// normalizeData 字符串负载原样返回，其余值重新序列化为紧凑形式
func normalizeData(data gjson.Result) string {
	switch data.Type {
	case gjson.Null:
		return ""
	case gjson.String:
		return data.Str
	default:
		return gjson.Get(data.Raw, "@ugly").Raw
	}
}
