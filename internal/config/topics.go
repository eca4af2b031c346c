package config

const (
	// TopicIngestDocument is the NSQ topic for document ingestion tasks.
	// One message per uploaded document.
	TopicIngestDocument = "ingest.document"
)
