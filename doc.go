// Package pusher 实时频道客户端
//
// 客户端维护一条到服务端的 WebSocket 连接，按频道订阅事件并将入站消息分发给注册的处理函数。
//
//	c, err := pusher.New("app-key", pusher.WithCluster("eu"))
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	ch, _ := c.Channel("private-orders", pusher.NewHTTPAuthorizer("https://example.com/auth"))
//	ch.Bind("order-created", func(msg pusher.Message) error {
//		fmt.Println(msg.Data)
//		return nil
//	})
//	ch.Subscribe()
//
//	if err := c.Connect(ctx); err != nil {
//		return err
//	}
//
// 分发顺序：全局处理函数 → 按事件名 → 频道全部事件 → 频道+事件名。
// 处理函数的错误和 panic 只记录，不影响其他处理函数和后续消息。
package pusher
