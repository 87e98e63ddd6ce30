package eventbus

import (
	"context"
	"errors"
	"io"

	"im-server/config"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler 事件处理函数
// 返回true表示提交offset，false表示不提交（下次重新投递）
// 事件至少投递一次，处理函数须对(接收者,消息ID)幂等
type Handler func(topic string, partition int, offset int64, key, value []byte) bool

// Consumer 消费者组订阅循环
type Consumer struct {
	reader *kafka.Reader
	log    *zap.Logger
}

// NewConsumer 创建消费者，订阅一组主题
// 首次加入消费者组时从最早的offset开始消费
func NewConsumer(cfg config.KafkaConfig, groupID string, topics []string, log *zap.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			GroupID:     groupID,
			GroupTopics: topics,
			StartOffset: kafka.FirstOffset,
			MinBytes:    1,
			MaxBytes:    10e6,
		}),
		log: log,
	}
}

// Run 运行消费循环，直到ctx取消
// 每条消息交给handler处理，按返回值决定是否提交offset
func (c *Consumer) Run(ctx context.Context, handler Handler) {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return
			}
			c.log.Error("拉取事件失败", zap.Error(err))
			continue
		}

		commit := handler(msg.Topic, msg.Partition, msg.Offset, msg.Key, msg.Value)
		if !commit {
			continue
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.log.Error("提交offset失败",
				zap.String("topic", msg.Topic),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		}
	}
}

// Close 关闭消费者
func (c *Consumer) Close() error {
	return c.reader.Close()
}
