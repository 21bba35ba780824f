/*
Package services exposes aggregation sessions over HTTP.

SessionAPI accepts a session configuration, runs the session in virtual time
and stores one report per round. It is served by an httpserver.BaseServer.

# Endpoints

  - POST /sessions: run a session. The body is a YAML or JSON
    protocol.SessionConfig; omitted fields take their defaults. Responds 201
    with a per-round summary, 400 on configuration errors and 409 if the
    session id already has reports.
  - GET /sessions: list stored session ids.
  - GET /sessions/{session_id}/rounds: all round reports of a session.
  - GET /sessions/{session_id}/rounds/{round}: one round report.

# Example

	curl -X POST http://localhost:8080/sessions --data-binary @- <<EOF
	session_id: block-7
	members: 4
	assignments:
	  agg-A: [0, 1]
	  agg-B: [2, 3]
	readings: {0: 7, 1: 11, 2: 2, 3: 5}
	EOF

Reports are kept in a report.Store: in memory by default, or in Postgres when
the server is configured with a connection string.
*/
package services
