package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher асинхронный продюсер: Publish кладёт сообщение в буфер,
// отдельная горутина пишет его в топик
type KafkaPublisher struct {
	w        messageWriter
	producer string
	log      *zap.Logger
	inbox    chan kafka.Message
	done     chan struct{}
	once     sync.Once
}

func NewKafkaPublisher(brokers []string, topic, producer string, buf int, log *zap.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return newKafkaPublisher(w, producer, buf, log)
}

func newKafkaPublisher(w messageWriter, producer string, buf int, log *zap.Logger) *KafkaPublisher {
	if buf <= 0 {
		buf = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &KafkaPublisher{
		w:        w,
		producer: producer,
		log:      log,
		inbox:    make(chan kafka.Message, buf),
		done:     make(chan struct{}),
	}
}

// Start запускает цикл записи; после Close остаток буфера дописывается
func (p *KafkaPublisher) Start() {
	go func() {
		defer close(p.done)
		for m := range p.inbox {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := p.w.WriteMessages(ctx, m); err != nil {
				p.log.Error("kafka publish failed", zap.ByteString("key", m.Key), zap.Error(err))
			}
			cancel()
		}
		if err := p.w.Close(); err != nil {
			p.log.Warn("kafka writer close", zap.Error(err))
		}
	}()
}

func (p *KafkaPublisher) Publish(ctx context.Context, eventType, key string, payload any) {
	env, err := NewEnvelope(ctx, p.producer, eventType, payload)
	if err != nil {
		p.log.Error("event encode failed", zap.String("event_type", eventType), zap.Error(err))
		return
	}
	value, err := json.Marshal(env)
	if err != nil {
		p.log.Error("event encode failed", zap.String("event_type", eventType), zap.Error(err))
		return
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  env.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
			{Key: "event_id", Value: []byte(env.EventID)},
		},
	}
	select {
	case p.inbox <- msg:
	default:
		// buffer full
		p.log.Warn("event dropped", zap.String("event_type", eventType), zap.String("key", key))
	}
}

// Close закрывает буфер и ждёт, пока горутина допишет сообщения
func (p *KafkaPublisher) Close() {
	p.once.Do(func() { close(p.inbox) })
	<-p.done
}
