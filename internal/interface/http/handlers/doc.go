// Package handlers contains HTTP handler interfaces, implementations, and middleware.
//
// This package provides:
//   - Health checks run in parallel with required and optional checks
//   - Bearer token authentication and the admin guard
//   - Verification of signed callbacks from the voice/chat agent
//   - Reusable middleware components
//
// # Health Checks
//
//	checker := handlers.NewCompositeHealthChecker("v1.0.0")
//	checker.AddCheck("postgres", handlers.NewPingCheck(conn))
//	checker.AddOptionalCheck("redis", handlers.NewPingCheck(cache))
//
//	status := checker.Check(ctx)
//
// # Authentication
//
//	auth := handlers.NewBearerAuth(tokenManager)
//	mux.Handle("GET /api/v1/me", auth.Middleware(meHandler))
//	mux.Handle("POST /api/v1/projects", auth.Middleware(handlers.RequireAdmin(createProject)))
//
// # Agent Webhook
//
//	hook := handlers.NewAgentWebhook(secret)
//	event, err := hook.Decode(body, r.Header.Get(handlers.SignatureHeader))
package handlers
