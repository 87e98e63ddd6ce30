package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket压测工具
// 为每个虚拟用户建立连接、发送auth帧，然后按固定速率向--peer指定的用户发送单聊消息，
// 统计回执延迟与错误数

type stats struct {
	sent    atomic.Int64
	acked   atomic.Int64
	errors  atomic.Int64
	totalMs atomic.Int64
}

func main() {
	var (
		addr     = flag.String("addr", "ws://localhost:8080/ws", "WebSocket地址")
		tokens   = flag.String("tokens", "", "逗号分隔的token列表，每个token一个连接")
		peer     = flag.Uint64("peer", 0, "消息接收者用户ID")
		count    = flag.Int("count", 100, "每个连接发送的消息数")
		interval = flag.Duration("interval", 100*time.Millisecond, "发送间隔")
	)
	flag.Parse()

	tokenList := splitTokens(*tokens)
	if len(tokenList) == 0 || *peer == 0 {
		fmt.Fprintln(os.Stderr, "用法: wsload --tokens <t1,t2,...> --peer <user_id>")
		os.Exit(1)
	}

	var st stats
	var wg sync.WaitGroup
	start := time.Now()

	for i, token := range tokenList {
		wg.Add(1)
		go func(idx int, tok string) {
			defer wg.Done()
			runClient(*addr, tok, *peer, *count, *interval, &st)
		}(i, token)
	}
	wg.Wait()

	elapsed := time.Since(start)
	sent := st.sent.Load()
	acked := st.acked.Load()
	fmt.Printf("连接数: %d\n", len(tokenList))
	fmt.Printf("已发送: %d  已确认: %d  错误: %d\n", sent, acked, st.errors.Load())
	fmt.Printf("耗时: %v  吞吐: %.1f msg/s\n", elapsed, float64(sent)/elapsed.Seconds())
	if acked > 0 {
		fmt.Printf("平均确认延迟: %.1fms\n", float64(st.totalMs.Load())/float64(acked))
	}
}

// runClient 单个虚拟用户：认证后持续发消息并读回执
func runClient(addr, token string, peer uint64, count int, interval time.Duration, st *stats) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		st.errors.Add(1)
		return
	}
	defer conn.Close()

	// auth帧
	if err := conn.WriteJSON(map[string]interface{}{
		"type":  "auth",
		"token": token,
	}); err != nil {
		st.errors.Add(1)
		return
	}

	// 同一会话的message_ack按发送顺序返回，用FIFO队列对齐发送时间
	var mu sync.Mutex
	var sendTimes []time.Time

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame struct {
				Type string `json:"type"`
			}
			if json.Unmarshal(payload, &frame) != nil {
				continue
			}
			if frame.Type == "message_ack" {
				mu.Lock()
				if len(sendTimes) > 0 {
					st.totalMs.Add(time.Since(sendTimes[0]).Milliseconds())
					sendTimes = sendTimes[1:]
				}
				mu.Unlock()
				st.acked.Add(1)
			}
		}
	}()

	for i := 0; i < count; i++ {
		msg := map[string]interface{}{
			"type":       "chat_message",
			"to_user_id": peer,
			"content":    fmt.Sprintf("load test message %d", i),
		}
		mu.Lock()
		sendTimes = append(sendTimes, time.Now())
		mu.Unlock()
		if err := conn.WriteJSON(msg); err != nil {
			st.errors.Add(1)
			return
		}
		st.sent.Add(1)
		time.Sleep(interval)
	}

	// 等待最后的回执
	select {
	case <-done:
	case <-time.After(3 * time.Second):
	}
}

// splitTokens 解析逗号分隔的token列表
func splitTokens(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
