// Package mqtt publishes monitored KNX traffic to an MQTT broker.
//
// It wraps paho.mqtt.golang with:
//   - Auto-reconnect with backoff
//   - Last Will and Testament on {prefix}/system/status
//   - Retained online/offline status messages
//   - Publish validation (topic, QoS, payload size)
//
// Topic layout:
//
//	knx/telegram/{url-encoded group address}   one message per group telegram
//	knx/telegram/raw                           frames without a group destination
//	knx/event                                  access port events
//	knx/system/status                          retained online/offline status
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Publish(client.Topics().Telegram(ga), payload, 1, false)
package mqtt
