package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/charlie0129/battstat/pkg/config"
)

type statusJSON struct {
	Battery       statusBatteryJSON `json:"battery"`
	Backend       statusBackendJSON `json:"backend"`
	Configuration *statusConfigJSON `json:"configuration,omitempty"`
}

type statusBatteryJSON struct {
	Present   bool   `json:"present"`
	OnACPower bool   `json:"onACPower"`
	Charging  bool   `json:"charging"`
	Percent   int    `json:"percent"`
	State     string `json:"state"`
	// Minutes is null when unknown.
	Minutes *int `json:"minutes"`
}

type statusBackendJSON struct {
	Name        string `json:"name"`
	Composite   bool   `json:"composite"`
	EventDriven bool   `json:"eventDriven"`
	Warning     string `json:"warning,omitempty"`
}

type statusConfigJSON struct {
	SkipHAL                  bool `json:"skipHAL"`
	PollIntervalSeconds      int  `json:"pollIntervalSeconds"`
	ACPollIntervalSeconds    int  `json:"acPollIntervalSeconds"`
	AllowNonRootAccess       bool `json:"allowNonRootAccess"`
	Metrics                  bool `json:"metrics"`
	RedisPublisherConfigured bool `json:"redisPublisherConfigured"`
	MQTTPublisherConfigured  bool `json:"mqttPublisherConfigured"`
}

func buildStatusJSON(data *statusData) statusJSON {
	s := data.status

	out := statusJSON{
		Battery: statusBatteryJSON{
			Present:   s.Present,
			OnACPower: s.OnACPower,
			Charging:  s.Charging,
			Percent:   s.Percent,
			State:     s.State().String(),
		},
		Backend: statusBackendJSON{
			Name:        data.backend.Backend,
			Composite:   data.backend.Composite,
			EventDriven: data.backend.EventDriven,
			Warning:     data.backend.Warning,
		},
	}
	if s.Minutes >= 0 {
		m := s.Minutes
		out.Battery.Minutes = &m
	}

	if data.config != nil {
		// Missing fields fall back to the defaults the daemon uses.
		cfg := config.NewFileFromConfig(data.config, "")
		out.Configuration = &statusConfigJSON{
			SkipHAL:                  cfg.SkipHAL(),
			PollIntervalSeconds:      int(cfg.PollInterval().Seconds()),
			ACPollIntervalSeconds:    int(cfg.ACPollInterval().Seconds()),
			AllowNonRootAccess:       cfg.AllowNonRootAccess(),
			Metrics:                  cfg.Metrics(),
			RedisPublisherConfigured: cfg.RedisAddr() != "",
			MQTTPublisherConfigured:  cfg.MQTTBroker() != "",
		}
	}

	return out
}

func printStatusJSON(cmd *cobra.Command, data *statusData) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(buildStatusJSON(data))
}
