// Package webhook provides the WhatsApp Cloud API webhook module.
// This file defines the module that encapsulates webhook setup and route registration.
package webhook

import (
	apphttp "conectapro/internal/http"
)

// Module is the webhook bounded context module implementing http.Module.
type Module struct {
	handler *Handler
}

// NewModule creates the webhook module.
func NewModule(cfg HandlerConfig) *Module {
	return &Module{handler: NewHandler(cfg)}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// RegisterRoutes mounts the WhatsApp endpoints on the rate-limited webhook group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Webhooks.GET("/whatsapp", m.handler.HandleVerify)
	ctx.Webhooks.POST("/whatsapp", m.handler.HandleReceive)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
