package eventbus

import (
	"context"
	"fmt"
	"time"

	"im-server/config"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Producer 事件发布器
// Publish在消息进入本地发送队列后即返回，不等待broker确认；
// 发送结果通过Completion回调记录日志
type Producer struct {
	writer *kafka.Writer
	log    *zap.Logger
}

// NewProducer 创建事件发布器
func NewProducer(cfg config.KafkaConfig, log *zap.Logger) *Producer {
	p := &Producer{log: log}
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{}, // 按key哈希分区，保证同一接收者的事件有序
		BatchTimeout: cfg.BatchTimeout,
		MaxAttempts:  cfg.MaxAttempts,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		// 回调在IO协程执行，只做日志，不可阻塞
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				p.log.Error("事件发布失败",
					zap.Int("count", len(messages)),
					zap.Error(err),
				)
			}
		},
	}
	return p
}

// Publish 发布事件到指定主题
// key为接收者ID字符串，决定分区归属
func (p *Producer) Publish(ctx context.Context, topic, key string, payload []byte) error {
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: payload,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("发布事件到%s失败: %w", topic, err)
	}
	return nil
}

// Close 关闭发布器，冲刷未发送的消息
func (p *Producer) Close() error {
	return p.writer.Close()
}
