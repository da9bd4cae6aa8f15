// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, runtime metrics and debug introspection for hioload-wth
// processes such as the relay daemon.
//
// Provides:
//   - TOML configuration with defaults and validation
//   - A reloadable configuration store with change listeners
//   - Prometheus collectors implementing api.Metrics
//   - Named debug probes exported as a JSON state dump
package control
