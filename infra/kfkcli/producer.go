package kfkcli

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/segmentio/kafka-go"
)

// NewProducer 创建任务生产者。
// 以 bot ID 作为分区 key，保证同一 bot 的消息有序。
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}

	return &Producer{writer: writer}
}

type Producer struct {
	writer *kafka.Writer
}

func (p *Producer) Enqueue(ctx context.Context, msg TaskMessage) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	km := kafka.Message{
		Key:   []byte(strconv.FormatInt(msg.BotID, 10)),
		Value: value,
	}

	return p.writer.WriteMessages(ctx, km)
}

func (p *Producer) Close() error { return p.writer.Close() }
