// Package forward turns monitored telegrams into records and fans them out
// to external sinks (MQTT, the SQLite address recorder, InfluxDB).
//
// The Dispatcher is an accessport.Handler. It parses each telegram on the
// callback goroutine, then hands the record to a bounded queue drained by a
// single worker, so sinks see records in bus order and a slow sink never
// blocks the access-port layer. When the queue is full the record is
// dropped and counted.
//
//	d := forward.NewDispatcher(forward.Options{QueueSize: 256}, logger,
//	    forward.NewMQTTSink(client, client.Topics(), 1),
//	    recorder,
//	)
//	defer d.Close()
//
//	handler := accessport.Multi{accessport.NewConsoleHandler(os.Stdout), d}
package forward
