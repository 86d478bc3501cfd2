package transfer

// BulkGeneration is the on-demand generation request.
type BulkGeneration struct {
	Count               int      `json:"count"`
	ConfidenceThreshold float64  `json:"confidence_threshold"`
	Topics              []string `json:"topics"`
	ImageCount          int      `json:"image_count"`
	AutoSchedule        bool     `json:"auto_schedule"`
}

// MediaDiscovery registers one externally-synced file with the pipeline.
type MediaDiscovery struct {
	SourceURI  string `json:"source_uri"`
	FileSize   int64  `json:"file_size"`
	UploadedAt string `json:"uploaded_at"`
}

type PolicyUpdate struct {
	Enabled             bool     `json:"enabled"`
	PostsPerWeek        int      `json:"posts_per_week"`
	ConfidenceThreshold float64  `json:"confidence_threshold"`
	PreferredSlots      []string `json:"preferred_slots"`
	AutoSchedule        bool     `json:"auto_schedule"`
	ImagesPerPost       int      `json:"images_per_post"`
	Timezone            string   `json:"timezone"`
	BrandVoice          string   `json:"brand_voice"`
}
