// Package nbeconnect polls an NBE pellet boiler and serves its state.
//
// # Architecture
//
// The service is structured into several key packages:
//   - device: UDP client for the boiler controller, with discovery
//   - poller: poll cycle over the endpoint plan and the read facade
//   - store: the last committed snapshot of datapoints
//   - classifier: ordered rules mapping keys to units and classes
//   - series: reordering of the consumption history buffers
//   - sensors: typed sensors built from the discovered keys
//   - commands: validated writes and named commands
//   - grpc, api: gRPC and HTTP surfaces
//   - metrics, database, mqtt: Prometheus, TimescaleDB and MQTT outputs
//   - scheduler: periodic, non-overlapping poll cycles
//
// Key Features
//
//   - Resilient polling:
//     A cycle tolerates failing endpoints and commits everything it did
//     gather in one atomic swap. A cycle that gathers nothing keeps the
//     previous snapshot.
//
//   - Consumption history:
//     Hourly, daily and monthly buffers are restored to most-recent-first
//     order using the boiler's local time.
//
//   - Writes:
//     Only settings/ keys can be written. Writes show up in reads after
//     the next poll.
//
// Example Usage
//
//	client := server.NewBoilerClient(conn)
//	v, err := client.GetValue(ctx, wrapperspb.String("operating_data/boiler_temp"))
//
// For more information about specific packages, see their respective
// documentation.
package nbeconnect
