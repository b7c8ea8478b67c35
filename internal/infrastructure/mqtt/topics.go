package mqtt

import (
	"strings"
)

// statusSuffix is appended to the topic prefix for the relay's own
// presence messages. The leading underscore keeps it apart from client
// topics, which always start with an IP address.
const statusSuffix = "_relay/status"

// Topics builds the housekeeping topics owned by the MQTT client.
//
//	mqtt.Topics{Prefix: "relay"}.Status() // "relay/_relay/status"
type Topics struct {
	Prefix string
}

// Status returns the retained online/offline status topic.
func (t Topics) Status() string {
	return strings.TrimRight(t.Prefix, "/") + "/" + statusSuffix
}

// validPublishTopic reports whether topic may be used for PUBLISH.
// Wildcards are only valid in subscriptions.
func validPublishTopic(topic string) bool {
	return topic != "" && !strings.ContainsAny(topic, "+#")
}
