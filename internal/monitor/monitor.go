package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/volterm/axpert2mqtt/internal/config"
	"github.com/volterm/axpert2mqtt/internal/mqtt"
	"github.com/volterm/axpert2mqtt/pkg/axpert"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

const (
	payloadOn  = "on"
	payloadOff = "off"

	publishTimeout = 5 * time.Second
)

// SensorPublisher is the publish side the monitor needs. *mqtt.MQTTClient
// implements it; tests plug in a recorder.
type SensorPublisher interface {
	BridgeStateTopic() string
	SensorStateTopic(fieldKey string) string
	BinarySensorStateTopic(fieldKey string) string
	CommandResultTopic(mnemonic string) string
	Publish(topic string, payload any, qos byte, retain bool, continuation func(error), timeout time.Duration)
}

// Monitor polls the configured status queries on a schedule and publishes
// every decoded field. The codec core stays unaware of MQTT: the monitor
// is the observer that consumes already-decoded results.
type Monitor struct {
	cfg    config.Config
	client *axpert.Client
	pub    SensorPublisher
	logger *zap.Logger

	sched quartz.Scheduler

	mu         sync.Mutex
	lastPollOK bool
	lastPoll   time.Time
}

func NewMonitor(cfg config.Config, client *axpert.Client, pub SensorPublisher, logger *zap.Logger) *Monitor {
	return &Monitor{
		cfg:    cfg,
		client: client,
		pub:    pub,
		logger: logger.Named("monitor"),
	}
}

// Start schedules the poll job and runs one poll immediately so sensors
// have state as soon as the bridge comes up.
func (m *Monitor) Start(ctx context.Context) error {
	m.publishBridgeState(mqtt.MQTT_PAYLOAD_ONLINE)
	m.pollOnce(ctx)

	m.sched = quartz.NewStdScheduler()
	m.sched.Start(ctx)

	pollJob := job.NewFunctionJob(func(ctx context.Context) (bool, error) {
		m.pollOnce(ctx)
		return m.Healthy(), nil
	})
	interval := time.Duration(m.cfg.Monitor.PollIntervalMillis) * time.Millisecond
	detail := quartz.NewJobDetail(pollJob, quartz.NewJobKey("axpert_poll"))
	return m.sched.ScheduleJob(detail, quartz.NewSimpleTrigger(interval))
}

// Stop halts the scheduler and marks the bridge offline.
func (m *Monitor) Stop() {
	if m.sched != nil {
		m.sched.Stop()
	}
	m.publishBridgeState(mqtt.MQTT_PAYLOAD_OFFLINE)
}

// Healthy reports whether the most recent poll completed without error.
func (m *Monitor) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPollOK
}

// LastPoll returns when the last poll attempt finished.
func (m *Monitor) LastPoll() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPoll
}

func (m *Monitor) pollOnce(ctx context.Context) {
	ok := true
	for _, mnemonic := range m.cfg.Monitor.Queries {
		if err := m.pollQuery(ctx, mnemonic); err != nil {
			m.logger.Warn("poll failed", zap.String("mnemonic", mnemonic), zap.Error(err))
			ok = false
		}
	}
	m.mu.Lock()
	m.lastPollOK = ok
	m.lastPoll = time.Now()
	m.mu.Unlock()
}

func (m *Monitor) pollQuery(ctx context.Context, mnemonic string) error {
	var opts []axpert.ExecOption
	if m.cfg.Monitor.AddUnits {
		opts = append(opts, axpert.WithUnits())
	}
	res, err := m.client.Query(ctx, mnemonic, opts...)
	if err != nil {
		return err
	}
	for _, f := range res.Fields {
		m.publishField(f)
	}
	return nil
}

func (m *Monitor) publishField(f axpert.DecodedField) {
	var topic string
	var payload string
	if f.Value.Type == axpert.TypeBool {
		topic = m.pub.BinarySensorStateTopic(f.Key)
		if f.Value.Bool {
			payload = payloadOn
		} else {
			payload = payloadOff
		}
	} else {
		topic = m.pub.SensorStateTopic(f.Key)
		payload = f.Value.String()
	}
	m.pub.Publish(topic, payload, 0, false, m.logPublishError(topic), publishTimeout)
}

// HandleCommand executes a setting command received over MQTT and
// publishes the outcome. NAK publishes as a rejection, not a failure.
func (m *Monitor) HandleCommand(ctx context.Context, cmd *mqtt.ParsedMQTTCommand) {
	res, err := m.client.Execute(ctx, cmd.Mnemonic)
	topic := m.pub.CommandResultTopic(cmd.Mnemonic)
	var payload string
	switch {
	case err != nil:
		m.logger.Warn("command failed", zap.String("mnemonic", cmd.Mnemonic), zap.Error(err))
		payload = "error"
	case res.Kind != axpert.KindCommand:
		m.logger.Warn("mnemonic is not a command", zap.String("mnemonic", cmd.Mnemonic))
		payload = "error"
	case res.Command.Acknowledged:
		payload = "ACK"
	default:
		payload = "NAK"
	}
	m.pub.Publish(topic, payload, 0, false, m.logPublishError(topic), publishTimeout)
}

// CommandHandler adapts HandleCommand into a paho message handler for the
// command topic subscription.
func (m *Monitor) CommandHandler(ctx context.Context, client *mqtt.MQTTClient) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		cmd, err := client.ParseMQTTCommand(msg)
		if err != nil {
			m.logger.Warn("invalid command topic", zap.String("topic", msg.Topic()))
			return
		}
		m.HandleCommand(ctx, cmd)
	}
}

func (m *Monitor) publishBridgeState(state string) {
	topic := m.pub.BridgeStateTopic()
	m.pub.Publish(topic, state, 0, true, m.logPublishError(topic), publishTimeout)
}

func (m *Monitor) logPublishError(topic string) func(error) {
	return func(err error) {
		if err != nil {
			m.logger.Warn("publish failed", zap.String("topic", topic), zap.Error(err))
		}
	}
}
