package util

import (
	"github.com/volterm/axpert2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel:       zap.DebugLevel,
		Device:         "/dev/hidraw0",
		Transport:      config.TransportHID,
		TimeoutSeconds: 10,
		Monitor: config.MonitorConfig{
			PollIntervalMillis: 30000,
			Queries:            []string{"QPIGS", "QMOD", "QPIWS"},
			AddUnits:           false,
		},
		MQTT: config.MQTTConfig{
			Host:      "localhost",
			Port:      1883,
			BaseTopic: "axpert",
		},
		Port: 8080,
	}
}
