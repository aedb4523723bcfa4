// Package logger is a handler that emits logs
package logger

import (
	"crypto/tls"

	"github.com/apex/log"
	"github.com/ooni/httpsx/model"
)

var (
	tlsVersion = map[uint16]string{
		tls.VersionTLS10: "TLSv1",
		tls.VersionTLS11: "TLSv1.1",
		tls.VersionTLS12: "TLSv1.2",
		tls.VersionTLS13: "TLSv1.3",
	}
)

// Handler is a handler that logs events.
type Handler struct {
	logger log.Interface
}

// NewHandler returns a new logging handler.
func NewHandler(logger log.Interface) *Handler {
	return &Handler{logger: logger}
}

// OnMeasurement logs the specific measurement
func (h *Handler) OnMeasurement(m model.Measurement) {
	if m.Connect != nil {
		h.logger.WithFields(log.Fields{
			"blockedFor":    m.Connect.Duration,
			"elapsed":       m.Connect.Time,
			"error":         m.Connect.Error,
			"localAddress":  m.Connect.LocalAddress,
			"network":       m.Connect.Network,
			"remoteAddress": m.Connect.RemoteAddress,
		}).Debug("net: connect done")
	}
	if m.TLSHandshakeStart != nil {
		h.logger.WithFields(log.Fields{
			"elapsed":    m.TLSHandshakeStart.Time,
			"nextProtos": m.TLSHandshakeStart.NextProtos,
			"serverName": m.TLSHandshakeStart.ServerName,
		}).Debug("tls: start handshake")
	}
	if m.TLSHandshakeDone != nil {
		h.logger.WithFields(log.Fields{
			"alpn":       m.TLSHandshakeDone.ConnectionState.NegotiatedProtocol,
			"blockedFor": m.TLSHandshakeDone.Duration,
			"elapsed":    m.TLSHandshakeDone.Time,
			"error":      m.TLSHandshakeDone.Error,
			"version":    tlsVersion[m.TLSHandshakeDone.ConnectionState.Version],
		}).Debug("tls: handshake done")
	}
	if m.Shutdown != nil {
		h.logger.WithFields(log.Fields{
			"elapsed": m.Shutdown.Time,
			"error":   m.Shutdown.Error,
			"tls":     m.Shutdown.TLS,
		}).Debug("net: shutdown done")
	}
}
