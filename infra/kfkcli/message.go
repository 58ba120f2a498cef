// Package kfkcli 封装任务队列。队列只承载最小的任务引用，
// 其余信息在执行时回库查询，消息天然幂等可丢弃。
package kfkcli

import "github.com/segmentio/kafka-go"

// TaskMessage 队列消息：一次执行尝试的引用。
type TaskMessage struct {
	TaskID int64 `json:"task_id"`
	BotID  int64 `json:"bot_id"`
}

// Delivery 一条待确认的投递，Ack 之前 broker 会重投（至少一次语义）。
type Delivery struct {
	TaskMessage

	raw kafka.Message
}
