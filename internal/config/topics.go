package config

const (
	// TopicKnowledgeIngest carries full document payloads queued for
	// asynchronous (re)indexing.
	TopicKnowledgeIngest = "knowledge.ingest"
)
