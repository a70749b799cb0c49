// Package assisi is a real-time communication client for one robotic node:
// a typed frame protocol over NATS pub/sub, a background receiver that
// demultiplexes sensor frames into a thread-safe reading cache, a command
// publisher with setpoint clamping, peer-to-peer messaging between adjacent
// nodes, and an optional append-only activity log.
//
// # Layout
//
//   - wire: frame format and payload codecs
//   - busclient: NATS transport (publish, prefix-filtered subscribe)
//   - readings: latest-value sensor cache with range correction
//   - node: facade, background receiver, command publisher
//   - mesh: neighbor messaging (logical directions, physical names)
//   - actlog: semicolon-delimited activity log
//   - config, errors, metric: ambient infrastructure
//   - pkg/buffer, pkg/timestamp, pkg/vision: supporting utilities
//
// # Usage
//
//	cfg := config.Default("lure-01")
//	n, err := node.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer n.Stop(ctx)
//
//	front := n.Range(readings.IRFront)
//	_ = n.SetVelocity(ctx, 0.2, 0.2)
//
// Connect blocks until the data source sends its first frame (bounded by
// the configured handshake timeout), then waits a short settle period so
// the first getter call observes a full set of readings.
package assisi
