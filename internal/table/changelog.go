package table

import (
	"strom/internal/channel"
)

// ChangelogTopic describes the replicated log mirroring a table's writes.
type ChangelogTopic struct {
	topic      string
	partitions int32
}

func NewChangelogTopic(topic string, partitions int32) *ChangelogTopic {
	return &ChangelogTopic{
		topic:      topic,
		partitions: partitions,
	}
}

func (t *ChangelogTopic) TopicName() string {
	return t.topic
}

func (t *ChangelogTopic) Partitions() int32 {
	return t.partitions
}

// CloneUsingQueue binds the changelog topic to the shared flow-controlled
// queue, producing the channel its records are consumed through.
func (t *ChangelogTopic) CloneUsingQueue(q *channel.FlowControlQueue) *channel.Channel {
	return channel.New(t.topic, q)
}
