package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/volterm/axpert2mqtt/pkg/axpert"

	"go.uber.org/zap/zapcore"
)

// Transport selection for reaching the inverter.
const (
	TransportHID    = "hid"
	TransportSerial = "serial"
)

type Config struct {
	LogLevel zapcore.Level

	Device    string       `mapstructure:"device"`
	Transport string       `mapstructure:"transport"`
	Serial    SerialConfig `mapstructure:"serial"`

	TimeoutSeconds uint `mapstructure:"timeout_seconds"`

	Monitor MonitorConfig `mapstructure:"monitor"`
	MQTT    MQTTConfig    `mapstructure:"mqtt"`

	Port    uint `mapstructure:"port"`
	HttpLog bool `mapstructure:"http_log"`
}

type SerialConfig struct {
	BaudRate int `mapstructure:"baud_rate"`
}

type MonitorConfig struct {
	PollIntervalMillis uint32   `mapstructure:"poll_interval_millis"`
	Queries            []string `mapstructure:"queries"`
	AddUnits           bool     `mapstructure:"add_units"`
}

type MQTTConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	BaseTopic string `mapstructure:"base_topic"`
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

// Validate checks bounds and that every configured monitor query resolves
// to a query mnemonic in the protocol registry.
func (c *Config) Validate() error {
	if c.Device == "" {
		return errors.New("config param device must be set")
	}
	if c.Transport != TransportHID && c.Transport != TransportSerial {
		return fmt.Errorf("config param transport must be %q or %q", TransportHID, TransportSerial)
	}
	if c.TimeoutSeconds < 1 {
		return errors.New("config param timeout_seconds should be >= 1")
	}
	if c.Monitor.PollIntervalMillis < 1000 {
		return errors.New("config param monitor.poll_interval_millis should be >= 1000")
	}
	for _, q := range c.Monitor.Queries {
		entry, ok := axpert.Resolve(q)
		if !ok {
			return fmt.Errorf("config param monitor.queries: unknown mnemonic %q", q)
		}
		if entry.Kind != axpert.KindQuery {
			return fmt.Errorf("config param monitor.queries: %q is a command, not a query", q)
		}
	}
	baseTopic, err := CheckMQTTTopic(c.MQTT.BaseTopic)
	if err != nil {
		return errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	c.MQTT.BaseTopic = baseTopic
	return nil
}
