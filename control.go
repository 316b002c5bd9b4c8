package pusher

import (
	"errors"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	controlPrefix  = "protocol:"
	internalPrefix = "protocol_internal:"
)

// 控制事件
// 连接级事件的 Channel 为空，频道级事件的 Channel 为所属频道
const (
	// EventConnectionEstablished 服务端确认连接，data 携带 socket_id
	EventConnectionEstablished = "protocol:connection_established"
	// EventDisconnected 连接结束（客户端合成）
	EventDisconnected = "protocol:disconnected"
	// EventError 服务端错误或传输层读失败（后者由客户端合成）
	EventError = "protocol:error"
	// EventSubscriptionSucceeded 订阅成功（频道级）
	EventSubscriptionSucceeded = "protocol_internal:subscription_succeeded"
	// EventSubscriptionCount 频道订阅人数变化（频道级）
	EventSubscriptionCount = "protocol_internal:subscription_count"
	// EventSubscriptionError 订阅失败（频道级，客户端合成）
	EventSubscriptionError = "protocol:subscription_error"
	// EventPing 服务端心跳，客户端回复 EventPong
	EventPing = "protocol:ping"
	// EventPong 心跳回复
	EventPong = "protocol:pong"
)

// 出站命令
const (
	CommandSubscribe   = "protocol:subscribe"
	CommandUnsubscribe = "protocol:unsubscribe"
)

// connectionInfo connection_established 负载
type connectionInfo struct {
	SocketID        string
	ActivityTimeout time.Duration
}

// parseConnectionInfo 解析 connection_established 负载
func parseConnectionInfo(data string) (connectionInfo, bool) {
	res := gjson.GetMany(data, "socket_id", "activity_timeout")
	if res[0].Type != gjson.String || res[0].Str == "" {
		return connectionInfo{}, false
	}
	return connectionInfo{
		SocketID:        res[0].Str,
		ActivityTimeout: time.Duration(res[1].Int()) * time.Second,
	}, true
}

// subscriptionErrorData 构建订阅失败事件负载
func subscriptionErrorData(err error) string {
	data := `{}`
	var ae *AuthError
	if errors.As(err, &ae) {
		data, _ = sjson.Set(data, "type", "AuthError")
		data, _ = sjson.Set(data, "kind", ae.Kind.String())
		if ae.Status != 0 {
			data, _ = sjson.Set(data, "status", ae.Status)
		}
	} else {
		data, _ = sjson.Set(data, "type", "SendError")
	}
	data, _ = sjson.Set(data, "error", err.Error())
	return data
}

// transportErrorData 构建传输层错误事件负载
func transportErrorData(err error, code int) string {
	data, _ := sjson.Set(`{}`, "message", err.Error())
	if code != 0 {
		data, _ = sjson.Set(data, "code", code)
	}
	return data
}

// controlMessage 构造客户端合成的控制消息
func controlMessage(channel, event, data string) Message {
	return Message{
		Channel:    channel,
		Event:      event,
		Data:       data,
		ReceivedAt: time.Now(),
	}
}
