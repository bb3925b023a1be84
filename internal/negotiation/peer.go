package negotiation

import (
	"log/slog"

	"github.com/BioHazard786/Warpcall/internal/config"
	"github.com/BioHazard786/Warpcall/internal/logging"
	"github.com/pion/webrtc/v4"
)

// ConfigFromSettings builds the engine configuration from the call settings.
// TURN is added when configured, and relay-only transport is chosen when it is
// forced or the network looks tunnelled.
func ConfigFromSettings(cfg *config.Config, logger *slog.Logger) Config {
	var iceServers []webrtc.ICEServer
	if stun := cfg.GetSTUNServers(); stun != nil {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: stun})
	}

	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	policy := webrtc.ICETransportPolicyAll
	if turnServers != nil && (cfg.ForceRelay || ShouldForceRelay()) {
		policy = webrtc.ICETransportPolicyRelay
	}

	if logger == nil {
		logger = slog.Default()
	}

	return Config{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
		LoggerFactory:      logging.NewPionFactory(logger),
		Logger:             logger,
	}
}

// Factory creates a fresh engine per call.
type Factory func() (*Engine, error)

// NewFactory returns a Factory bound to cfg.
func NewFactory(cfg Config) Factory {
	return func() (*Engine, error) {
		return New(cfg)
	}
}
