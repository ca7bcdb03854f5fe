package models

// DownloadMessage is the structure stored in the queue.
// Keep it simple - just enough to route the job to a worker.
type DownloadMessage struct {
	TaskID string `json:"task_id"` // References the persisted DownloadTask
	URL    string `json:"url"`     // Validated source URL
}
