package config

import (
	"time"
)

// Version defines the stationd version.
var Version string

// Config defines the configuration structure.
type Config struct {
	General struct {
		LogLevel    int  `mapstructure:"log_level"`
		LogToSyslog bool `mapstructure:"log_to_syslog"`
	} `mapstructure:"general"`

	Station struct {
		// ID is the station identifier (EUI-64), used in backend topics
		// and in the version announcement.
		ID string `mapstructure:"id"`

		// ProtocolFormat selects the uplink / downlink message encoding.
		// "protobuf" selects the compact binary protocol, anything else
		// selects the default JSON text protocol.
		ProtocolFormat string `mapstructure:"protocol_format"`

		// PDUOnly strips parsed fields from binary uplink data frames and
		// sends the raw PDU instead.
		PDUOnly bool `mapstructure:"pdu_only"`

		// AllowRunCmd enables execution of runcmd messages received from
		// the LNS. When disabled such messages are logged and dropped.
		AllowRunCmd bool `mapstructure:"allow_runcmd"`

		// DeduplicationTTL holds the time during which a duplicate of an
		// already seen radio frame is suppressed.
		DeduplicationTTL time.Duration `mapstructure:"deduplication_ttl"`

		Band struct {
			Name string `mapstructure:"name"`
		} `mapstructure:"band"`

		Filters struct {
			// JoinEUIs holds inclusive [begin, end] EUI-64 ranges. Join
			// requests with a JoinEUI outside all ranges are dropped.
			// Empty means no filtering.
			JoinEUIs [][2]string `mapstructure:"join_euis"`

			// NetIDs holds the NetIDs whose devices are admitted. Empty
			// means no filtering.
			NetIDs []string `mapstructure:"net_ids"`
		} `mapstructure:"filters"`
	} `mapstructure:"station"`

	Redis struct {
		Servers    []string `mapstructure:"servers"`
		Cluster    bool     `mapstructure:"cluster"`
		MasterName string   `mapstructure:"master_name"`
		PoolSize   int      `mapstructure:"pool_size"`
		Password   string   `mapstructure:"password"`
		Database   int      `mapstructure:"database"`
		TLSEnabled bool     `mapstructure:"tls_enabled"`
		KeyPrefix  string   `mapstructure:"key_prefix"`
	} `mapstructure:"redis"`

	Backend struct {
		Type string `mapstructure:"type"`

		MQTT struct {
			Server               string        `mapstructure:"server"`
			Username             string        `mapstructure:"username"`
			Password             string        `mapstructure:"password"`
			QOS                  uint8         `mapstructure:"qos"`
			CleanSession         bool          `mapstructure:"clean_session"`
			ClientID             string        `mapstructure:"client_id"`
			CACert               string        `mapstructure:"ca_cert"`
			TLSCert              string        `mapstructure:"tls_cert"`
			TLSKey               string        `mapstructure:"tls_key"`
			MaxReconnectInterval time.Duration `mapstructure:"max_reconnect_interval"`

			RadioUplinkTopicTemplate   string `mapstructure:"radio_uplink_topic_template"`
			RadioDownlinkTopicTemplate string `mapstructure:"radio_downlink_topic_template"`
			UplinkTopicTemplate        string `mapstructure:"uplink_topic_template"`
			DownlinkTopicTemplate      string `mapstructure:"downlink_topic_template"`
		} `mapstructure:"mqtt"`
	} `mapstructure:"backend"`

	Monitoring struct {
		Bind                string `mapstructure:"bind"`
		PrometheusEndpoint  bool   `mapstructure:"prometheus_endpoint"`
		HealthcheckEndpoint bool   `mapstructure:"healthcheck_endpoint"`
	} `mapstructure:"monitoring"`
}

// C holds the global configuration.
var C Config

// Get returns the configuration.
func Get() *Config {
	return &C
}

// Set sets the configuration.
func Set(c Config) {
	C = c
}
