// Package influxdb writes monitored telegrams to InfluxDB v2.
//
// Each group telegram becomes one point in the knx_telegrams measurement,
// tagged by group address, source and service. Writes go through the
// non-blocking batched write API; failures arrive on the SetOnError callback.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteTelegram(influxdb.Telegram{GroupAddress: "1/2/3", Service: "write", Payload: []byte{1}})
package influxdb
