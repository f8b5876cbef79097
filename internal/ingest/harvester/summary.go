package harvester

import "github.com/rs/zerolog"

// Summary counts what one run did.
type Summary struct {
	RunID         string
	Chats         int
	Skipped       int
	Processed     int
	Stored        int
	Filtered      int
	Downloaded    int
	MediaRejected int
	DownloadFails int
}

func (s *Summary) add(o Summary) {
	s.Processed += o.Processed
	s.Stored += o.Stored
	s.Filtered += o.Filtered
	s.Downloaded += o.Downloaded
	s.MediaRejected += o.MediaRejected
	s.DownloadFails += o.DownloadFails
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (s Summary) MarshalZerologObject(e *zerolog.Event) {
	e.Str("run_id", s.RunID).
		Int("chats", s.Chats).
		Int("skipped", s.Skipped).
		Int("processed", s.Processed).
		Int("stored", s.Stored).
		Int("filtered", s.Filtered).
		Int("downloaded", s.Downloaded).
		Int("media_rejected", s.MediaRejected).
		Int("download_failures", s.DownloadFails)
}
