package reader

import (
	"time"

	"github.com/gotd/td/tg"

	"github.com/lueurxax/telegram-harvester/internal/core/domain"
)

const photoMIME = "image/jpeg"

// convertMessage maps a history message to the domain model. Service and
// empty messages are reported as not ok. loc is nil when the message has no
// downloadable attachment.
func convertMessage(chatID int64, m tg.MessageClass) (msg domain.Message, loc tg.InputFileLocationClass, ok bool) {
	tm, isMsg := m.(*tg.Message)
	if !isMsg {
		return domain.Message{}, nil, false
	}

	msg = domain.Message{
		ID:       int64(tm.ID),
		ChatID:   chatID,
		Date:     time.Unix(int64(tm.Date), 0).UTC(),
		Text:     tm.Message,
		SenderID: chatID,
	}

	if from, has := tm.GetFromID(); has {
		if id := peerID(from); id != 0 {
			msg.SenderID = id
		}
	}

	if grouped, has := tm.GetGroupedID(); has {
		msg.AlbumID = grouped
	}

	if media, has := tm.GetMedia(); has {
		msg.Media, loc = convertMedia(media)
	}

	return msg, loc, true
}

func convertMedia(media tg.MessageMediaClass) (*domain.Media, tg.InputFileLocationClass) {
	switch m := media.(type) {
	case *tg.MessageMediaPhoto:
		photo, ok := m.Photo.(*tg.Photo)
		if !ok {
			return nil, nil
		}

		thumb, size := largestPhotoSize(photo.Sizes)
		if thumb == "" {
			return nil, nil
		}

		return &domain.Media{Kind: domain.MediaPhoto, MIMEType: photoMIME, Size: size},
			&tg.InputPhotoFileLocation{
				ID:            photo.ID,
				AccessHash:    photo.AccessHash,
				FileReference: photo.FileReference,
				ThumbSize:     thumb,
			}

	case *tg.MessageMediaDocument:
		doc, ok := m.Document.(*tg.Document)
		if !ok {
			return nil, nil
		}

		out := &domain.Media{
			Kind:     domain.KindForMIME(doc.MimeType),
			MIMEType: doc.MimeType,
			Size:     int64(doc.Size),
		}

		for _, attr := range doc.Attributes {
			switch a := attr.(type) {
			case *tg.DocumentAttributeFilename:
				out.FileName = a.FileName
			case *tg.DocumentAttributeVideo:
				out.Kind = domain.MediaVideo
			}
		}

		return out, &tg.InputDocumentFileLocation{
			ID:            doc.ID,
			AccessHash:    doc.AccessHash,
			FileReference: doc.FileReference,
		}

	default:
		return nil, nil
	}
}

// largestPhotoSize returns the thumb type and byte size of the biggest rendition.
func largestPhotoSize(sizes []tg.PhotoSizeClass) (string, int64) {
	var (
		thumb string
		bytes int64
		area  int
	)

	for _, s := range sizes {
		switch s := s.(type) {
		case *tg.PhotoSize:
			if s.W*s.H > area {
				area = s.W * s.H
				thumb = s.Type
				bytes = int64(s.Size)
			}
		case *tg.PhotoSizeProgressive:
			if s.W*s.H > area {
				area = s.W * s.H
				thumb = s.Type
				bytes = 0

				if n := len(s.Sizes); n > 0 {
					bytes = int64(s.Sizes[n-1])
				}
			}
		}
	}

	return thumb, bytes
}
