// Package storage provides the optional audit persistence layer.
//
// It records one row per campaign lifecycle event (started/stopped/
// completed/failed/swept). Disabled unless a driver is configured.
package storage
