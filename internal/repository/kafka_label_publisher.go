package repository

import (
	"context"
	"time"

	"github.com/carolinacraus/market-state-api/internal/domain/models"
	domrepo "github.com/carolinacraus/market-state-api/internal/domain/repository"
	pkgkafka "github.com/carolinacraus/market-state-api/pkg/kafka"
	"github.com/carolinacraus/market-state-api/pkg/util"
)

// LabelEvent is the payload published for each new label.
type LabelEvent struct {
	Classifier string    `json:"classifier"`
	Date       string    `json:"date"`
	Regime     string    `json:"regime"`
	Confidence float64   `json:"confidence"`
	Diagnostic string    `json:"diagnostic"`
	EmittedAt  time.Time `json:"emitted_at"`
}

// BatchProducer is satisfied by *pkgkafka.Producer.
type BatchProducer interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaLabelPublisher publishes labels keyed by classifier, so one variant's
// events stay ordered on a single partition.
type KafkaLabelPublisher struct {
	producer BatchProducer
	topic    string
	now      func() time.Time
}

var _ domrepo.Publisher = (*KafkaLabelPublisher)(nil)

func NewKafkaLabelPublisher(producer BatchProducer, topic string) *KafkaLabelPublisher {
	return &KafkaLabelPublisher{producer: producer, topic: topic, now: time.Now}
}

func (p *KafkaLabelPublisher) PublishLabels(ctx context.Context, classifier string, labels []models.Label) error {
	if len(labels) == 0 {
		return nil
	}
	at := p.now().UTC()
	msgs := make([]pkgkafka.Message, 0, len(labels))
	for _, l := range labels {
		msgs = append(msgs, pkgkafka.Message{
			Key: []byte(classifier),
			Value: LabelEvent{
				Classifier: classifier,
				Date:       util.FormatDay(l.Date),
				Regime:     string(l.Regime),
				Confidence: l.Confidence,
				Diagnostic: l.Diagnostic,
				EmittedAt:  at,
			},
		})
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaLabelPublisher) Close() error {
	return p.producer.Close()
}
