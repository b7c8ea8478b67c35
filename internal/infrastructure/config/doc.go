// Package config handles loading and validating relay configuration.
//
// This package manages:
//   - Defaults: serial relaying, 4 KiB reads, QoS 0, no idle timeout
//   - An optional YAML file (path from RELAY_CONFIG)
//   - RELAY_* environment variable overrides
//   - Validation of required fields
//
// Configuration is loaded once at startup and passed by value into the
// components that need it. Nothing re-reads it at runtime.
//
// Environment variables:
//
//	RELAY_BIND_HOST       listener.host
//	RELAY_BIND_PORT       listener.port
//	RELAY_BROKER_URL      mqtt.broker.url
//	RELAY_TOPIC_PREFIX    mqtt.topic_prefix
//	RELAY_QOS             mqtt.qos (0 when not a number)
//	RELAY_LOG_LEVEL       logging.level
//	RELAY_LOG_PATH        logging.file.path
//
// Usage:
//
//	cfg, err := config.Load(os.Getenv("RELAY_CONFIG"))
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.ListenAddress())
package config
