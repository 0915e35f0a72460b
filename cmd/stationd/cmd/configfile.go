package cmd

import (
	"os"
	"text/template"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/lorawan-station/stationd/internal/config"
)

const configTemplate = `[general]
# Log level
#
# debug=5, info=4, warning=3, error=2, fatal=1, panic=0
log_level={{ .General.LogLevel }}

# Log to syslog.
#
# When set to true, log messages are being written to syslog.
log_to_syslog={{ .General.LogToSyslog }}


# Station settings.
[station]
# Station identifier (EUI-64).
#
# Used in the backend topics and in the version announcement sent to the
# network server.
id="{{ .Station.ID }}"

# Protocol format.
#
# Selects the encoding of the messages exchanged with the network server:
#   json     - the JSON text protocol
#   protobuf - the compact binary protocol
protocol_format="{{ .Station.ProtocolFormat }}"

# PDU only.
#
# When set to true, binary uplink data frames carry the raw PDU instead
# of the parsed frame fields. Only applies to the protobuf format.
pdu_only={{ .Station.PDUOnly }}

# Allow runcmd.
#
# When set to true, runcmd messages received from the network server are
# executed on the station host. Leave disabled unless the network server
# is fully trusted.
allow_runcmd={{ .Station.AllowRunCmd }}

# Deduplication TTL.
#
# The time a received frame is remembered for deduplication. Multi-radio
# front-ends can deliver the same frame more than once. Set to 0s to
# disable deduplication.
deduplication_ttl="{{ .Station.DeduplicationTTL }}"

  # Band settings.
  [station.band]
  # Name of the band plan.
  #
  # Valid values are EU868, US902_LEGACY and US902_RP2.
  name="{{ .Station.Band.Name }}"

  # Admission filters.
  [station.filters]
  # JoinEUI ranges.
  #
  # Inclusive [begin, end] EUI-64 ranges. Join-requests with a JoinEUI
  # outside all ranges are dropped. Empty means no filtering.
  #
  # Example:
  # join_euis=[
  #   ["0000000000000000", "00000000ffffffff"],
  # ]
  join_euis=[{{ range $index, $element := .Station.Filters.JoinEUIs }}
    ["{{ index $element 0 }}", "{{ index $element 1 }}"],{{ end }}
  ]

  # NetID filters.
  #
  # Data frames whose DevAddr prefix does not belong to one of the given
  # NetIDs are dropped. Empty means no filtering.
  net_ids=[{{ range $index, $element := .Station.Filters.NetIDs }}
    "{{ $element }}",{{ end }}
  ]


# Redis settings
#
# Redis is used for the frame log and for frame deduplication.
[redis]
# Server address or addresses.
#
# Set multiple addresses when connecting to a cluster.
servers=[{{ range $index, $element := .Redis.Servers }}
  "{{ $element }}",{{ end }}
]

# Password.
#
# Set the password when the server is password-protected.
password="{{ .Redis.Password }}"

# Database index.
#
# By default, this can be a number between 0-15.
database={{ .Redis.Database }}

# Redis Cluster.
#
# Set this to true when the provided servers are pointing to a Redis Cluster
# instance.
cluster={{ .Redis.Cluster }}

# Master name.
#
# Set the master name when the provided servers are pointing to Redis
# Sentinel instances.
master_name="{{ .Redis.MasterName }}"

# Connection pool size.
#
# Default (when set to 0) is 10 connections per every CPU.
pool_size={{ .Redis.PoolSize }}

# TLS enabled.
#
# Note: this will enable TLS, but it will not validate the certificate
# used by the server.
tls_enabled={{ .Redis.TLSEnabled }}

# Key prefix.
#
# A key prefix can be used to avoid key collisions when multiple daemons
# are sharing one Redis database.
key_prefix="{{ .Redis.KeyPrefix }}"


# Backend settings.
#
# The backend connects the daemon to the radio front-end and to the
# network server.
[backend]
# Backend type.
type="{{ .Backend.Type }}"

  # MQTT backend settings.
  [backend.mqtt]
  # MQTT server (e.g. scheme://host:port where scheme is tcp, ssl or ws)
  server="{{ .Backend.MQTT.Server }}"

  # Connect with the given username (optional)
  username="{{ .Backend.MQTT.Username }}"

  # Connect with the given password (optional)
  password="{{ .Backend.MQTT.Password }}"

  # Quality of service level
  #
  # 0: at most once
  # 1: at least once
  # 2: exactly once
  #
  # Note: an increase of this value will decrease the performance.
  # For more information: https://www.hivemq.com/blog/mqtt-essentials-part-6-mqtt-quality-of-service-levels
  qos={{ .Backend.MQTT.QOS }}

  # Clean session
  #
  # Set the "clean session" flag in the connect message when this client
  # connects to an MQTT broker. By setting this flag you are indicating
  # that no messages saved by the broker for this client should be
  # delivered.
  clean_session={{ .Backend.MQTT.CleanSession }}

  # Client ID
  #
  # Set the client id to be used by this client when connecting to the MQTT
  # broker. A client id must be no longer than 23 characters. When left blank,
  # a random id will be generated. This requires clean_session=true.
  client_id="{{ .Backend.MQTT.ClientID }}"

  # CA certificate file (optional)
  #
  # Use this when setting up a secure connection (when server uses ssl://...)
  # but the certificate used by the server is not trusted by any CA certificate
  # on the server (e.g. when self generated).
  ca_cert="{{ .Backend.MQTT.CACert }}"

  # TLS certificate file (optional)
  tls_cert="{{ .Backend.MQTT.TLSCert }}"

  # TLS key file (optional)
  tls_key="{{ .Backend.MQTT.TLSKey }}"

  # Maximum interval that will be waited between reconnection attempts when connection is lost.
  # Valid units are 'ms', 's', 'm', 'h'. Note that these values can be combined, e.g. '24h30m15s'.
  max_reconnect_interval="{{ .Backend.MQTT.MaxReconnectInterval }}"

  # Radio uplink topic template.
  #
  # The topic on which the radio front-end publishes received frames.
  radio_uplink_topic_template="{{ .Backend.MQTT.RadioUplinkTopicTemplate }}"

  # Radio downlink topic template.
  #
  # The topic on which transmissions are handed to the radio front-end.
  radio_downlink_topic_template="{{ .Backend.MQTT.RadioDownlinkTopicTemplate }}"

  # Uplink topic template.
  #
  # The topic on which messages for the network server are published.
  uplink_topic_template="{{ .Backend.MQTT.UplinkTopicTemplate }}"

  # Downlink topic template.
  #
  # The topic on which messages from the network server are received.
  downlink_topic_template="{{ .Backend.MQTT.DownlinkTopicTemplate }}"


# Monitoring settings.
#
# The monitoring endpoints are disabled when no bind address is set.
[monitoring]
# IP:port to bind the monitoring endpoint to (optional)
bind="{{ .Monitoring.Bind }}"

# Prometheus metrics endpoint.
#
# When set to true, a Prometheus /metrics endpoint is exposed.
prometheus_endpoint={{ .Monitoring.PrometheusEndpoint }}

# Healthcheck endpoint.
#
# When set to true, a /health endpoint is exposed reporting the Redis
# connectivity.
healthcheck_endpoint={{ .Monitoring.HealthcheckEndpoint }}
`

var configCmd = &cobra.Command{
	Use:   "configfile",
	Short: "Print the stationd configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		t := template.Must(template.New("config").Parse(configTemplate))
		err := t.Execute(os.Stdout, &config.C)
		if err != nil {
			return errors.Wrap(err, "execute config template error")
		}
		return nil
	},
}
