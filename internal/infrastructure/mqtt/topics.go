package mqtt

import (
	"fmt"

	"github.com/nerrad567/knx-monitor/internal/telegram"
)

// DefaultTopicPrefix is used when Topics.Prefix is empty.
const DefaultTopicPrefix = "knx"

// Topics builds the monitor's MQTT topic names under a common prefix.
//
//	topics := mqtt.Topics{Prefix: "knx"}
//	topics.Telegram(telegram.NewGroupAddress(1, 2, 3))
//	// Returns: "knx/telegram/1%2F2%2F3"
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// Telegram returns the topic a group telegram is published on.
// The group address is URL-encoded so it stays a single topic level.
func (t Topics) Telegram(ga telegram.GroupAddress) string {
	return fmt.Sprintf("%s/telegram/%s", t.prefix(), ga.URLEncode())
}

// Raw returns the topic for frames that are not group addressed.
func (t Topics) Raw() string {
	return t.prefix() + "/telegram/raw"
}

// Event returns the topic for access port events.
func (t Topics) Event() string {
	return t.prefix() + "/event"
}

// SystemStatus returns the retained online/offline status topic.
func (t Topics) SystemStatus() string {
	return t.prefix() + "/system/status"
}
