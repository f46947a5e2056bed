package mirror

import (
	"strings"

	"github.com/Nibbler1250/Domotique-Jetson/internal/envelope"
)

// topic extracts the routing topic from an envelope. Trading data frames
// carry an explicit topic; on the device feed the kind is the topic.
func (f *Feed) topic(env envelope.Envelope) string {
	if f.TopicOf != nil {
		return f.TopicOf(env)
	}
	if env.Topic != "" {
		return env.Topic
	}
	return env.Kind
}

// lookup finds the first route whose pattern matches the topic.
func (f *Feed) lookup(topic string) (Route, bool) {
	for _, r := range f.Routes {
		if matchTopic(r.Pattern, topic) {
			return r, true
		}
	}
	return Route{}, false
}

// matchTopic reports whether the pattern covers the topic. A trailing "#"
// segment matches the prefix and any deeper levels, MQTT-style.
func matchTopic(pattern, topic string) bool {
	if pattern == topic {
		return true
	}
	if strings.HasSuffix(pattern, "/#") {
		prefix := strings.TrimSuffix(pattern, "#")
		if strings.HasPrefix(topic, prefix) {
			return true
		}
		// "a/b/#" also matches "a/b" itself.
		return topic == strings.TrimSuffix(prefix, "/")
	}
	return false
}
