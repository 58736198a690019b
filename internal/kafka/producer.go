package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"van-dispatch/internal/config"
	"van-dispatch/internal/logger"
	"van-dispatch/internal/models"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

// Producer представляет Kafka producer событий маршрутизации
type Producer struct {
	producer sarama.SyncProducer
	log      *logger.Logger
	topics   config.Topics
}

// NewProducer создает новый Kafka producer
func NewProducer(cfg *config.KafkaConfig, log *logger.Logger) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll // Ждем подтверждения от всех реплик
	config.Producer.Retry.Max = 3
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy

	producer, err := sarama.NewSyncProducer(cfg.Brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	log.Info("Kafka producer created successfully")

	return NewProducerFrom(producer, cfg.Topics, log), nil
}

// NewProducerFrom оборачивает готовый sarama.SyncProducer
func NewProducerFrom(producer sarama.SyncProducer, topics config.Topics, log *logger.Logger) *Producer {
	return &Producer{
		producer: producer,
		log:      log,
		topics:   topics,
	}
}

// Close закрывает producer
func (p *Producer) Close() error {
	return p.producer.Close()
}

// PublishScheduleCreated публикует событие создания расписания фургона
func (p *Producer) PublishScheduleCreated(route *models.Route) error {
	ids := make([]uuid.UUID, 0, len(route.Assignments))
	for _, a := range route.Assignments {
		ids = append(ids, a.ServiceRequestID)
	}

	event := models.Event{
		ID:        uuid.New(),
		Type:      models.EventTypeScheduleCreated,
		Timestamp: time.Now(),
		Data: models.ScheduleCreatedEvent{
			ScheduleID:        route.Schedule.ID,
			VanID:             route.Schedule.VanID,
			ScheduleDate:      route.Schedule.ScheduleDate,
			ServiceRequestIDs: ids,
			TotalDistanceKm:   route.TotalDistanceKm,
			EfficiencyScore:   route.EfficiencyScore,
		},
	}

	return p.publishEvent(p.topics.Schedules, route.Schedule.VanID.String(), event)
}

// PublishScheduleStatusChanged публикует событие изменения статуса расписания
func (p *Producer) PublishScheduleStatusChanged(scheduleID uuid.UUID, oldStatus, newStatus models.ScheduleStatus) error {
	event := models.Event{
		ID:        uuid.New(),
		Type:      models.EventTypeScheduleStatusChanged,
		Timestamp: time.Now(),
		Data: models.ScheduleStatusChangedEvent{
			ScheduleID: scheduleID,
			OldStatus:  oldStatus,
			NewStatus:  newStatus,
			Timestamp:  time.Now(),
		},
	}

	return p.publishEvent(p.topics.Schedules, scheduleID.String(), event)
}

// PublishRoutesGenerated публикует итог запуска генерации
func (p *Producer) PublishRoutesGenerated(summary models.RoutesGeneratedEvent) error {
	event := models.Event{
		ID:        uuid.New(),
		Type:      models.EventTypeRoutesGenerated,
		Timestamp: time.Now(),
		Data:      summary,
	}

	return p.publishEvent(p.topics.Routes, summary.StartDate, event)
}

// publishEvent публикует событие в указанный топик. key задает партицию.
func (p *Producer) publishEvent(topic, key string, event models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{
				Key:   []byte("event_type"),
				Value: []byte(event.Type),
			},
			{
				Key:   []byte("timestamp"),
				Value: []byte(event.Timestamp.Format(time.RFC3339)),
			},
		},
	}

	partition, offset, err := p.producer.SendMessage(message)
	if err != nil {
		return fmt.Errorf("failed to send message to topic %s: %w", topic, err)
	}

	p.log.WithField("topic", topic).
		WithField("partition", partition).
		WithField("offset", offset).
		WithField("event_type", event.Type).
		WithField("event_id", event.ID).
		Debug("Event published successfully")

	return nil
}
