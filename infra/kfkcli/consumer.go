package kfkcli

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// NewConsumer 创建任务消费者。同一 group 下的多个消费者
// 由 broker 自动均衡分区，worker 可以任意水平扩展。
func NewConsumer(brokers []string, topic, group string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  group,
		MinBytes: 1,
		MaxBytes: 1 << 20,
		MaxWait:  10 * time.Second,
	})

	return &Consumer{reader: reader}
}

type Consumer struct {
	reader *kafka.Reader
}

// Dequeue 阻塞等待下一条消息。取到但解析失败的消息直接提交丢弃，
// 坏消息没有重试价值。
func (c *Consumer) Dequeue(ctx context.Context) (*Delivery, error) {
	for {
		raw, err := c.reader.FetchMessage(ctx)
		if err != nil {
			return nil, err
		}

		var msg TaskMessage
		if err = json.Unmarshal(raw.Value, &msg); err != nil {
			_ = c.reader.CommitMessages(ctx, raw)
			continue
		}

		return &Delivery{TaskMessage: msg, raw: raw}, nil
	}
}

// Ack 确认消息已处理完毕。
func (c *Consumer) Ack(ctx context.Context, d *Delivery) error {
	return c.reader.CommitMessages(ctx, d.raw)
}

func (c *Consumer) Close() error { return c.reader.Close() }
