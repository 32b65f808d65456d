package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() Config {
	return Config{
		Device:         "/dev/hidAxpert",
		Transport:      TransportHID,
		TimeoutSeconds: 10,
		Monitor: MonitorConfig{
			PollIntervalMillis: 30000,
			Queries:            []string{"QPIGS", "QMOD", "QPIWS"},
		},
		MQTT: MQTTConfig{
			Host:      "localhost",
			Port:      1883,
			BaseTopic: "axpert",
		},
		Port: 8080,
	}
}

func TestValidateOK(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateUnknownMonitorQuery(t *testing.T) {
	cfg := validConfig()
	cfg.Monitor.Queries = []string{"ZZZ"}
	assert.Error(t, cfg.Validate())
}

func TestValidateCommandAsMonitorQuery(t *testing.T) {
	cfg := validConfig()
	cfg.Monitor.Queries = []string{"POP02"}
	assert.Error(t, cfg.Validate())
}

func TestValidateBadTransport(t *testing.T) {
	cfg := validConfig()
	cfg.Transport = "tcp"
	assert.Error(t, cfg.Validate())
}

func TestValidatePollIntervalBound(t *testing.T) {
	cfg := validConfig()
	cfg.Monitor.PollIntervalMillis = 100
	assert.Error(t, cfg.Validate())
}

func TestValidateFixesBaseTopicCase(t *testing.T) {
	assert := assert.New(t)

	cfg := validConfig()
	cfg.MQTT.BaseTopic = "Axpert_1"
	assert.NoError(cfg.Validate())
	assert.Equal("axpert_1", cfg.MQTT.BaseTopic)
}

func TestCheckMQTTTopic(t *testing.T) {
	assert := assert.New(t)

	topic, err := CheckMQTTTopic("axpert")
	assert.NoError(err)
	assert.Equal("axpert", topic)

	_, err = CheckMQTTTopic("bad/topic")
	assert.Error(err)

	_, err = CheckMQTTTopic("")
	assert.Error(err)
}
