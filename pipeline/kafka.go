package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-discogs/models"
	"github.com/segmentio/kafka-go"
)

// kafkaMessageWriter abstracts kafka.Writer for testability.
type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Message is the broadcast payload for one recommendation.
type Message struct {
	RunID       string                  `json:"run_id"`
	PublishedAt time.Time               `json:"published_at"`
	Listing     *models.EnrichedListing `json:"listing"`
}

// KafkaWriter publishes recommendations to a topic, keyed by listing id.
type KafkaWriter struct {
	writer  kafkaMessageWriter
	runID   string
	timeout time.Duration
	now     func() time.Time
}

// NewKafkaWriter creates a synchronous writer over brokers.
func NewKafkaWriter(brokers []string, topic, runID string, timeout time.Duration) *KafkaWriter {
	var addrs []string
	for _, b := range brokers {
		for _, a := range strings.Split(b, ",") {
			if a = strings.TrimSpace(a); a != "" {
				addrs = append(addrs, a)
			}
		}
	}
	return newKafkaWriterWith(&kafka.Writer{
		Addr:         kafka.TCP(addrs...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}, runID, timeout)
}

func newKafkaWriterWith(w kafkaMessageWriter, runID string, timeout time.Duration) *KafkaWriter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &KafkaWriter{writer: w, runID: runID, timeout: timeout, now: time.Now}
}

func (k *KafkaWriter) Write(listings []*models.EnrichedListing) error {
	if len(listings) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(listings))
	for _, l := range listings {
		b, err := json.Marshal(Message{RunID: k.runID, PublishedAt: k.now().UTC(), Listing: l})
		if err != nil {
			return fmt.Errorf("marshal listing %d: %w", l.ListingID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(strconv.FormatInt(l.ListingID, 10)),
			Value: b,
			Headers: []kafka.Header{
				{Key: "run_id", Value: []byte(k.runID)},
			},
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), k.timeout)
	defer cancel()
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d messages: %w", len(msgs), err)
	}
	return nil
}

func (k *KafkaWriter) Close() error {
	return k.writer.Close()
}

// Validate has nothing to check; delivery errors surface from Write.
func (k *KafkaWriter) Validate() error {
	return nil
}
