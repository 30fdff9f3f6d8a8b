package config

const (
	// TopicEmbedRequested is the NSQ topic carrying file/embed.requested trigger events.
	TopicEmbedRequested = "file.embed.requested"

	// ChannelIngest is the consumer channel the ingest worker subscribes with.
	ChannelIngest = "ingest"

	// StatusTopic is the realtime topic progress events are published under.
	StatusTopic = "embed-file-status"
)

// UserChannel is the per-user broadcast channel for progress events.
func UserChannel(userID string) string {
	return "user:" + userID
}
