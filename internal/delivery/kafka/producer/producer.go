package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"

	kafka "github.com/crowdjuke/crowdjuke/internal/delivery/kafka"
	"github.com/crowdjuke/crowdjuke/pkg/logger"
)

type Producer interface {
	PublishEntryAdded(ctx context.Context, event kafka.EntryAddedEvent) error
	PublishEntryCancelled(ctx context.Context, event kafka.EntryCancelledEvent) error
	PublishVoteCast(ctx context.Context, event kafka.VoteCastEvent) error
	PublishBidPlaced(ctx context.Context, event kafka.BidPlacedEvent) error
	PublishRefundIssued(ctx context.Context, event kafka.RefundIssuedEvent) error
	PublishPlayback(ctx context.Context, topic string, event kafka.PlaybackEvent) error
	Close() error
}

type implProducer struct {
	l    logger.Logger
	prod sarama.SyncProducer
}

func NewProducer(prod sarama.SyncProducer, l logger.Logger) Producer {
	return &implProducer{
		l:    l,
		prod: prod,
	}
}

func (p *implProducer) PublishEntryAdded(ctx context.Context, event kafka.EntryAddedEvent) error {
	event.Timestamp = time.Now()
	return p.send(ctx, kafka.TopicEntryAdded, event.SessionID, event)
}

func (p *implProducer) PublishEntryCancelled(ctx context.Context, event kafka.EntryCancelledEvent) error {
	event.Timestamp = time.Now()
	return p.send(ctx, kafka.TopicEntryCancelled, event.SessionID, event)
}

func (p *implProducer) PublishVoteCast(ctx context.Context, event kafka.VoteCastEvent) error {
	event.Timestamp = time.Now()
	return p.send(ctx, kafka.TopicVoteCast, event.SessionID, event)
}

func (p *implProducer) PublishBidPlaced(ctx context.Context, event kafka.BidPlacedEvent) error {
	event.Timestamp = time.Now()
	return p.send(ctx, kafka.TopicBidPlaced, event.SessionID, event)
}

func (p *implProducer) PublishRefundIssued(ctx context.Context, event kafka.RefundIssuedEvent) error {
	event.Timestamp = time.Now()
	return p.send(ctx, kafka.TopicRefundIssued, event.SessionID, event)
}

func (p *implProducer) PublishPlayback(ctx context.Context, topic string, event kafka.PlaybackEvent) error {
	event.Timestamp = time.Now()
	return p.send(ctx, topic, event.SessionID, event)
}

func (p *implProducer) send(ctx context.Context, topic, key string, event any) error {
	val, err := json.Marshal(event)
	if err != nil {
		p.l.Errorf(ctx, "delivery.kafka.producer.send: %v", err)
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key), // Partition by session_id for ordering
		Value: sarama.ByteEncoder(val),
		Headers: []sarama.RecordHeader{
			{
				Key:   []byte("timestamp"),
				Value: []byte(time.Now().Format(time.RFC3339)),
			},
		},
	}

	_, _, err = p.prod.SendMessage(msg)
	return err
}

func (p *implProducer) Close() error {
	if err := p.prod.Close(); err != nil {
		return err
	}

	return nil
}
