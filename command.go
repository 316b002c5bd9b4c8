package pusher

// Command 出站命令信封 {"event": ..., "data": {...}}
type Command struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type subscribeData struct {
	Channel     string `json:"channel"`
	Auth        string `json:"auth,omitempty"`
	ChannelData string `json:"channel_data,omitempty"`
}

type unsubscribeData struct {
	Channel string `json:"channel"`
}

// NewSubscribeCommand 构建订阅命令，token 为空时省略 auth
func NewSubscribeCommand(channel string, token AuthToken) Command {
	return Command{
		Event: CommandSubscribe,
		Data: subscribeData{
			Channel:     channel,
			Auth:        token.Auth,
			ChannelData: token.ChannelData,
		},
	}
}

// NewUnsubscribeCommand 构建退订命令
func NewUnsubscribeCommand(channel string) Command {
	return Command{
		Event: CommandUnsubscribe,
		Data:  unsubscribeData{Channel: channel},
	}
}

func pongCommand() Command {
	return Command{Event: EventPong, Data: struct{}{}}
}
