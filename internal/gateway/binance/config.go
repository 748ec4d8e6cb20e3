package binance

import (
	"strings"
	"time"
)

type Config struct {
	RESTBaseURL string
	HTTPTimeout time.Duration

	ProxyEnabled bool
	RESTProxyURL string

	// REST budget shared by all watch ticks on this source.
	RequestsPerSecond float64
	Burst             int

	BreakerThreshold int
	BreakerCooldown  time.Duration

	KlineLimit int
	DepthLimit int
}

func (c *Config) withDefaults() Config {
	out := *c
	out.RESTBaseURL = strings.TrimSpace(out.RESTBaseURL)
	if out.RESTBaseURL == "" {
		out.RESTBaseURL = "https://fapi.binance.com"
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 15 * time.Second
	}
	out.RESTProxyURL = strings.TrimSpace(out.RESTProxyURL)
	if out.RequestsPerSecond <= 0 {
		out.RequestsPerSecond = 8
	}
	if out.Burst <= 0 {
		out.Burst = 16
	}
	if out.BreakerThreshold <= 0 {
		out.BreakerThreshold = 5
	}
	if out.BreakerCooldown <= 0 {
		out.BreakerCooldown = 30 * time.Second
	}
	if out.KlineLimit <= 0 {
		out.KlineLimit = 120
	}
	if out.DepthLimit <= 0 {
		out.DepthLimit = 20
	}
	return out
}
