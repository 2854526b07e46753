package main

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lokutor-ai/translation-relay/pkg/relay"
)

// fileConfig is the subset of relay.Config an operator can override via a
// YAML file (RELAY_CONFIG_FILE) instead of recompiling. A field left out of
// the file keeps relay.DefaultConfig()'s value. Durations are expressed in
// seconds rather than yaml.v3's native duration-less decoding of
// time.Duration.
type fileConfig struct {
	VendorWorkerPoolSize       *int    `yaml:"vendor_worker_pool_size"`
	MinParticipants            *int    `yaml:"min_participants"`
	MaxParticipants            *int    `yaml:"max_participants"`
	OfflineGracePeriodSeconds  *int    `yaml:"offline_grace_period_seconds"`
	ContextResolutionEnabled   *bool   `yaml:"context_resolution_enabled"`
	DefaultParticipantLanguage *string `yaml:"default_participant_language"`
}

// applyConfigFile overlays RELAY_CONFIG_FILE (if set) onto cfg. Unset here
// means no file was configured, not an error.
func applyConfigFile(cfg relay.Config) relay.Config {
	path := os.Getenv("RELAY_CONFIG_FILE")
	if path == "" {
		return cfg
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("failed to read RELAY_CONFIG_FILE %s: %v", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		log.Fatalf("failed to parse RELAY_CONFIG_FILE %s: %v", path, err)
	}

	if fc.VendorWorkerPoolSize != nil {
		cfg.VendorWorkerPoolSize = *fc.VendorWorkerPoolSize
	}
	if fc.MinParticipants != nil {
		cfg.MinParticipants = *fc.MinParticipants
	}
	if fc.MaxParticipants != nil {
		cfg.MaxParticipants = *fc.MaxParticipants
	}
	if fc.OfflineGracePeriodSeconds != nil {
		cfg.OfflineGracePeriod = time.Duration(*fc.OfflineGracePeriodSeconds) * time.Second
	}
	if fc.ContextResolutionEnabled != nil {
		cfg.ContextResolutionEnabled = *fc.ContextResolutionEnabled
	}
	if fc.DefaultParticipantLanguage != nil {
		cfg.DefaultParticipantLanguage = *fc.DefaultParticipantLanguage
	}

	return cfg
}
