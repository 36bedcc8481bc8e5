package mqtt311

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// Topic errors.
var (
	ErrInvalidTopicName   = errors.New("mqtt311: invalid topic name")
	ErrInvalidTopicFilter = errors.New("mqtt311: invalid topic filter")
	ErrEmptyTopic         = errors.New("mqtt311: topic cannot be empty")
)

const (
	topicSeparator      = '/'
	singleLevelWildcard = '+'
	multiLevelWildcard  = '#'
)

// ValidateTopicName validates a topic name.
// Topic names cannot contain wildcards and must be valid UTF-8.
// MQTT v3.1.1 spec: Section 4.7.3
func ValidateTopicName(topic string) error {
	if topic == "" {
		return ErrEmptyTopic
	}

	if !utf8.ValidString(topic) {
		return ErrInvalidTopicName
	}

	for _, r := range topic {
		if r == 0 {
			return ErrInvalidTopicName
		}
		if r == singleLevelWildcard || r == multiLevelWildcard {
			return ErrInvalidTopicName
		}
	}

	return nil
}

// ValidateTopicFilter validates a topic filter.
// Topic filters can contain wildcards but must follow wildcard rules.
// MQTT v3.1.1 spec: Section 4.7.1
func ValidateTopicFilter(filter string) error {
	if filter == "" {
		return ErrEmptyTopic
	}

	if !utf8.ValidString(filter) {
		return ErrInvalidTopicFilter
	}

	for _, r := range filter {
		if r == 0 {
			return ErrInvalidTopicFilter
		}
	}

	levels := strings.Split(filter, string(topicSeparator))

	for i, level := range levels {
		// Single-level wildcard must occupy the entire level
		if strings.Contains(level, string(singleLevelWildcard)) {
			if level != string(singleLevelWildcard) {
				return ErrInvalidTopicFilter
			}
		}

		// Multi-level wildcard must be the last level and occupy it entirely
		if strings.Contains(level, string(multiLevelWildcard)) {
			if level != string(multiLevelWildcard) {
				return ErrInvalidTopicFilter
			}
			if i != len(levels)-1 {
				return ErrInvalidTopicFilter
			}
		}
	}

	return nil
}

// TopicMatch checks if a topic name matches a topic filter.
// This implementation avoids allocations by not using strings.Split.
// MQTT v3.1.1 spec: Section 4.7
func TopicMatch(filter, topic string) bool {
	if filter == "" || topic == "" {
		return false
	}

	// Topics starting with $ don't match wildcards at the root level.
	// MQTT v3.1.1 spec: Section 4.7.2
	if topic[0] == '$' {
		if filter[0] == singleLevelWildcard || filter[0] == multiLevelWildcard {
			return false
		}
	}

	return matchTopicNoAlloc(filter, topic)
}

// matchTopicNoAlloc matches topic against filter without allocations.
// A trailing separator produces an empty final level on either side, which
// only another empty level or a wildcard can match.
func matchTopicNoAlloc(filter, topic string) bool {
	fi, ti := 0, 0
	fMore, tMore := true, true

	for fMore {
		// Get current filter level
		fstart := fi
		for fi < len(filter) && filter[fi] != topicSeparator {
			fi++
		}
		flevel := filter[fstart:fi]
		if fi < len(filter) {
			fi++ // skip '/'
		} else {
			fMore = false
		}

		// Multi-level wildcard matches everything remaining
		if flevel == "#" {
			return true
		}

		// Check if we have a topic level to match
		if !tMore {
			return false
		}

		// Get current topic level
		tstart := ti
		for ti < len(topic) && topic[ti] != topicSeparator {
			ti++
		}
		tlevel := topic[tstart:ti]
		if ti < len(topic) {
			ti++ // skip '/'
		} else {
			tMore = false
		}

		// Single-level wildcard matches any single level
		if flevel != "+" && flevel != tlevel {
			return false
		}
	}

	// Filter exhausted - topic must also be exhausted
	return !tMore
}
