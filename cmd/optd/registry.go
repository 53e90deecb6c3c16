package main

import (
	"time"

	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/surrogate"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/config"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/logger"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/utils"
)

// buildRegistry registers the reference vessel models, when enabled, and
// every configured remote surrogate. The returned func closes the remote
// connections.
func buildRegistry(cfg config.SurrogatesConfig) (*surrogate.Registry, func(), error) {
	var reg *surrogate.Registry
	var err error
	if cfg.ReferenceSurrogates() {
		reg, err = surrogate.NewVesselRegistry()
	} else {
		reg, err = surrogate.NewRegistry()
	}
	if err != nil {
		return nil, nil, err
	}

	var remotes []*surrogate.RemoteModel
	closeAll := func() {
		for _, m := range remotes {
			if err := m.Close(); err != nil {
				logger.Warn("failed to close remote surrogate", "model", m.Name(), "error", err)
			}
		}
	}

	for _, r := range cfg.Remote {
		m, err := surrogate.DialRemote(r.Name, r.Target, remoteOptions(r))
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		remotes = append(remotes, m)
		if err := reg.Register(m); err != nil {
			closeAll()
			return nil, nil, err
		}
		logger.Info("remote surrogate registered", "model", r.Name, "target", r.Target)
	}
	return reg, closeAll, nil
}

func remoteOptions(r config.RemoteSurrogate) surrogate.RemoteOptions {
	opts := surrogate.RemoteOptions{
		RemoteName: r.RemoteName,
		Timeout:    time.Duration(r.TimeoutMs) * time.Millisecond,
	}
	if r.Retries != nil {
		opts.MaxRetries = r.Retries.MaxRetries
		opts.Backoff = utils.BackoffFromConfig(r.Retries.Backoff, r.Retries.BaseMs, r.Retries.MaxMs)
	}
	if r.Breaker != nil {
		opts.Breaker = surrogate.NewBreaker(
			r.Breaker.FailureThreshold,
			r.Breaker.SuccessThreshold,
			time.Duration(r.Breaker.TimeoutMs)*time.Millisecond,
		)
	}
	return opts
}
