package position

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/albapepper/nearlist/internal/geo"
	"github.com/albapepper/nearlist/internal/zone"
)

const topicPrefix = "nearlist/position/"

type positionMessage struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
	Timestamp int64   `json:"timestamp"` // unix milliseconds
}

// MQTTSource reads live device positions from an MQTT topic.
type MQTTSource struct {
	client  mqtt.Client
	topic   string
	maxAge  time.Duration
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// NewMQTTSource subscribes to nearlist/position/<deviceID>. Samples older
// than maxAge are dropped; a zero maxAge uses the default.
func NewMQTTSource(client mqtt.Client, deviceID string, maxAge time.Duration, logger *slog.Logger) *MQTTSource {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &MQTTSource{
		client:  client,
		topic:   topicPrefix + deviceID,
		maxAge:  maxAge,
		timeout: AcquisitionTimeout,
		now:     time.Now,
		logger:  logger,
	}
}

// Topic returns the subscription topic.
func (s *MQTTSource) Topic() string { return s.topic }

// Stream implements Source. When no valid sample arrives within the
// acquisition timeout an ErrPositionUnavailable update is emitted and the
// timer re-arms.
func (s *MQTTSource) Stream(ctx context.Context) (<-chan Update, error) {
	samples := make(chan zone.PositionSample, 8)
	token := s.client.Subscribe(s.topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		sample, err := s.decode(msg.Payload())
		if err != nil {
			s.logger.Warn("Invalid position message", "topic", msg.Topic(), "error", err)
			return
		}
		select {
		case samples <- sample:
		default:
			s.logger.Warn("Position backlog full, dropping sample", "topic", msg.Topic())
		}
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt subscribe %s: %w", s.topic, err)
	}
	s.logger.Info("Position source subscribed", "topic", s.topic)

	out := make(chan Update, 1)
	go func() {
		defer close(out)
		defer s.client.Unsubscribe(s.topic)

		timer := time.NewTimer(s.timeout)
		defer timer.Stop()
		for {
			var u Update
			select {
			case sample := <-samples:
				u = Update{Sample: sample}
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
			case <-timer.C:
				u = Update{Err: fmt.Errorf("%w: no sample within %s", ErrPositionUnavailable, s.timeout)}
			case <-ctx.Done():
				return
			}
			timer.Reset(s.timeout)

			select {
			case out <- u:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// decode parses and validates one payload.
func (s *MQTTSource) decode(payload []byte) (zone.PositionSample, error) {
	var raw positionMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return zone.PositionSample{}, fmt.Errorf("unmarshal: %w", err)
	}

	c := geo.Coordinate{Latitude: raw.Latitude, Longitude: raw.Longitude}
	if !c.Valid() {
		return zone.PositionSample{}, fmt.Errorf("coordinate out of range: %s", c)
	}
	if raw.Accuracy < 0 {
		return zone.PositionSample{}, fmt.Errorf("accuracy: must not be negative")
	}

	now := s.now()
	ts := now
	if raw.Timestamp > 0 {
		ts = time.UnixMilli(raw.Timestamp)
		if err := checkFresh(ts, now, s.maxAge); err != nil {
			return zone.PositionSample{}, err
		}
	}

	return zone.PositionSample{Coordinate: c, AccuracyMeters: raw.Accuracy, Timestamp: ts}, nil
}

// Connect creates an MQTT client and connects it to broker.
func Connect(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return client, nil
}
