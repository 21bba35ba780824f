// Package httpserver provides the HTTP server shared by maskagg binaries.
//
// BaseServer wraps a chi router with request ids, panic recovery, optional
// CORS and structured request logging. Components add their endpoints by
// implementing RouteRegistrar:
//
//	func (h *MyHandler) RegisterRoutes(r chi.Router) {
//	    r.Get("/things/{id}", h.getThing)
//	}
//
//	srv := httpserver.New(&httpserver.HTTPServerConfig{ListenAddr: ":8080"}, handler)
//	srv.RunInBackground()
//	defer srv.Shutdown()
//
// Every server also answers:
//
//   - /livez: the process is up
//   - /readyz: 503 while draining
//   - /drain and /undrain: toggle readiness ahead of a rollout
//
// pprof is mounted under /debug when EnablePprof is set.
package httpserver
