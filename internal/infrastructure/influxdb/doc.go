// Package influxdb records HVAC telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, health checks and two measurements:
//
//   - hvac_unit: power, set-point, room temperature and filter sign per
//     unit, tagged by unit, block, hvac mode and fan mode
//   - hvac_poll: duration and block/unit counts of each poll cycle
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteUnitSample(influxdb.UnitSample{Unit: "1-03", Power: true, Target: 22}, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered to the
// SetOnError callback. Connection and health check errors are returned
// directly.
package influxdb
