// Package notify holds the notification sink implementations. The engine
// only sees the core notify.Sink interface; everything broker-specific
// lives here.
package notify

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/homefixr/dispatch/core/notify"
	"github.com/homefixr/dispatch/infra/logger"
)

// MQTTConfig defines the connection parameters for the Paho MQTT sink.
type MQTTConfig struct {
	Broker      string      `json:"broker" koanf:"broker"`
	ClientID    string      `json:"client_id" koanf:"client_id"`
	Username    string      `json:"username" koanf:"username"`
	Password    string      `json:"password" koanf:"password"`
	TopicPrefix string      `json:"topic_prefix" koanf:"topic_prefix"`
	UseTLS      bool        `json:"use_tls" koanf:"use_tls"`
	ClientCert  string      `json:"client_cert" koanf:"client_cert"`
	ClientKey   string      `json:"client_key" koanf:"client_key"`
	CABundle    string      `json:"ca_bundle" koanf:"ca_bundle"`
	QoS         byte        `json:"qos" koanf:"qos"`
	MaxRetries  int         `json:"max_retries" koanf:"max_retries"`
	BackoffMS   int         `json:"backoff_ms" koanf:"backoff_ms"`
	TLSConfig   *tls.Config `json:"-" koanf:"-"`
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c MQTTConfig) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// MQTTSink publishes notifications to per-recipient topics:
//
//	<prefix>/<recipient-type>/<recipient-id>
//
// Role-level broadcasts (empty recipient id) go to <prefix>/<recipient-type>.
type MQTTSink struct {
	cli        pahoClient
	prefix     string
	qos        byte
	maxRetries int
	backoff    time.Duration
	log        logger.Logger
}

var _ notify.Sink = (*MQTTSink)(nil)

// NewMQTTSink connects to the broker and returns a ready sink.
func NewMQTTSink(cfg MQTTConfig) (*MQTTSink, error) {
	log := logger.New("mqtt_notify")

	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	opts.OnConnect = func(paho.Client) {
		log.Infof("MQTT connected")
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}

	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}

	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = "homefix/notify"
	}
	s := &MQTTSink{
		cli:        c,
		prefix:     prefix,
		qos:        cfg.QoS,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
		log:        log,
	}
	if s.maxRetries <= 0 {
		s.maxRetries = 3
	}
	if s.backoff <= 0 {
		s.backoff = 100 * time.Millisecond
	}
	return s, nil
}

func (s *MQTTSink) Emit(_ context.Context, n notify.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	topic := fmt.Sprintf("%s/%s", s.prefix, n.Recipient)
	if n.RecipientID != "" {
		topic = fmt.Sprintf("%s/%s", topic, n.RecipientID)
	}
	var publishErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		token := s.cli.Publish(topic, s.qos, false, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			s.log.Debugf("published %s to %s", n.Event, topic)
			return nil
		}
		s.log.Errorf("publish attempt %d failed: %v", attempt+1, publishErr)
		time.Sleep(s.backoff * time.Duration(1<<attempt))
	}
	return publishErr
}

// Disconnect gracefully closes the MQTT connection.
func (s *MQTTSink) Disconnect() {
	s.cli.Disconnect(250)
}
