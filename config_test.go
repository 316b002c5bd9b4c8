package pusher

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_URL(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		want string
	}{
		{
			name: "default cluster",
			want: "wss://ws-mt1.pusher.com/app/key?client=pusher-go&protocol=7&version=0.1.0",
		},
		{
			name: "custom cluster",
			opts: []Option{WithCluster("eu")},
			want: "wss://ws-eu.pusher.com/app/key?client=pusher-go&protocol=7&version=0.1.0",
		},
		{
			name: "custom host",
			opts: []Option{WithHost("127.0.0.1:6001"), WithInsecure(), WithClientInfo("bot", "2.0.0")},
			want: "ws://127.0.0.1:6001/app/key?client=bot&protocol=7&version=2.0.0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Key = "key"
			for _, opt := range tt.opts {
				opt(cfg)
			}
			require.NoError(t, cfg.Validate())
			assert.Equal(t, tt.want, cfg.URL())

			_, err := url.Parse(cfg.URL())
			assert.NoError(t, err)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"missing key", func(c *Config) { c.Key = "" }},
		{"missing host", func(c *Config) { c.Host = "" }},
		{"bad scheme", func(c *Config) { c.Scheme = "http" }},
		{"zero protocol", func(c *Config) { c.Protocol = 0 }},
		{"zero activity timeout", func(c *Config) { c.ActivityTimeout = 0 }},
		{"zero pong timeout", func(c *Config) { c.PongTimeout = 0 }},
		{"zero auth timeout", func(c *Config) { c.AuthTimeout = 0 }},
		{"unknown resume policy", func(c *Config) { c.ResumePolicy = "sometimes" }},
		{"bad transport", func(c *Config) { c.Transport.SendQueueSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Key = "key"
			tt.modify(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestConfig_TransportHeartbeat(t *testing.T) {
	cfg := DefaultConfig()
	WithActivityTimeout(20 * time.Second)(cfg)
	WithPongTimeout(5 * time.Second)(cfg)

	tc := cfg.transportConfig()
	assert.Equal(t, 20*time.Second, tc.PingInterval)
	assert.Equal(t, 25*time.Second, tc.PongWait)
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New("")
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New("key", WithResumePolicy("never"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNew_KeyOverridesConfig(t *testing.T) {
	cfg := *DefaultConfig()
	cfg.Key = "from-config"

	c, err := New("from-arg", WithConfig(cfg))
	require.NoError(t, err)
	defer c.Close()

	assert.Contains(t, c.cfg.URL(), "/app/from-arg?")
}

func TestNew_DynamicAuthTimeout(t *testing.T) {
	c, err := New("key", WithDynamicAuthTimeout(250*time.Millisecond))
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, 250*time.Millisecond, c.cfg.AuthTimeout)

	_, err = New("key", WithDynamicAuthTimeout(0))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
