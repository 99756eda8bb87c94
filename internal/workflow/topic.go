package workflow

import "regexp"

// topicPattern is the normative topic regex from spec §6:
// ^[\w\-/:]+\.(success|failure|execute)\.[\w\-/:]+$
var topicPattern = regexp.MustCompile(`^[\w\-/:]+\.(success|failure|execute)\.[\w\-/:]+$`)

// classifyTopic returns the middle segment of a disciplined topic name
// ("execute", "success", or "failure") and whether the topic matched the
// discipline at all.
func classifyTopic(topic string) (string, bool) {
	m := topicPattern.FindStringSubmatch(topic)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// isExecuteTopic reports whether topic is a well-formed `<ns>.execute.<action>` topic.
func isExecuteTopic(topic string) bool {
	class, ok := classifyTopic(topic)
	return ok && class == "execute"
}

// isSuccessTopic reports whether topic is a well-formed `<ns>.success.<action>` topic.
func isSuccessTopic(topic string) bool {
	class, ok := classifyTopic(topic)
	return ok && class == "success"
}

// isFailureTopic reports whether topic is a well-formed `<ns>.failure.<action>` topic.
func isFailureTopic(topic string) bool {
	class, ok := classifyTopic(topic)
	return ok && class == "failure"
}

// ClassifyResponseTopic classifies an inbound topic for the Bus Dispatcher
// (spec §4.5 continue, step 1): execute topics are outbound-only and are
// reported as not-a-response; success/failure topics report their Outcome.
func ClassifyResponseTopic(topic string) (Outcome, bool) {
	class, ok := classifyTopic(topic)
	if !ok || class == "execute" {
		return "", false
	}
	return Outcome(class), true
}
