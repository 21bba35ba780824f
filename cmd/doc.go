// Package cmd holds the maskagg commands.
//
// # Commands
//
// simulate: runs one session from a YAML or JSON config and prints the
// round reports as JSON.
//
//	go run ./cmd/simulate --config=session.yaml
//	go run ./cmd/simulate --config=session.yaml --rounds=24 --drop-reports=2
//
// server: serves the session API. Sessions are POSTed to /sessions and
// their reports are kept in memory or in Postgres.
//
//	go run ./cmd/server --addr=:8080
//	go run ./cmd/server --config=server.yaml
package cmd
