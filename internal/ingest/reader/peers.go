package reader

import (
	"github.com/gotd/td/tg"

	"github.com/lueurxax/telegram-harvester/internal/core/domain"
)

// channelIDOffset maps channel ids into the negative "-100..." space used by
// the Bot API, so one int64 identifies users, basic groups and channels.
const channelIDOffset int64 = 1_000_000_000_000

type peerRef struct {
	input  tg.InputPeerClass
	entity domain.Entity
}

func userPeerID(id int64) int64 { return id }

func chatPeerID(id int64) int64 { return -id }

func channelPeerID(id int64) int64 { return -(channelIDOffset + id) }

func peerID(p tg.PeerClass) int64 {
	switch p := p.(type) {
	case *tg.PeerUser:
		return userPeerID(p.UserID)
	case *tg.PeerChat:
		return chatPeerID(p.ChatID)
	case *tg.PeerChannel:
		return channelPeerID(p.ChannelID)
	default:
		return 0
	}
}

func userRef(u *tg.User) peerRef {
	return peerRef{
		input: &tg.InputPeerUser{UserID: u.ID, AccessHash: u.AccessHash},
		entity: domain.Entity{
			ID:        userPeerID(u.ID),
			Kind:      domain.ChatKindUser,
			Username:  u.Username,
			FirstName: u.FirstName,
			LastName:  u.LastName,
		},
	}
}

func chatRefs(chats []tg.ChatClass) []peerRef {
	refs := make([]peerRef, 0, len(chats))

	for _, c := range chats {
		switch c := c.(type) {
		case *tg.Chat:
			refs = append(refs, peerRef{
				input:  &tg.InputPeerChat{ChatID: c.ID},
				entity: domain.Entity{ID: chatPeerID(c.ID), Kind: domain.ChatKindGroup, Title: c.Title},
			})
		case *tg.Channel:
			kind := domain.ChatKindGroup
			if c.Broadcast {
				kind = domain.ChatKindChannel
			}

			refs = append(refs, peerRef{
				input:  &tg.InputPeerChannel{ChannelID: c.ID, AccessHash: c.AccessHash},
				entity: domain.Entity{ID: channelPeerID(c.ID), Kind: kind, Title: c.Title, Username: c.Username},
			})
		}
	}

	return refs
}

func userRefs(users []tg.UserClass) []peerRef {
	refs := make([]peerRef, 0, len(users))

	for _, u := range users {
		if u, ok := u.(*tg.User); ok {
			refs = append(refs, userRef(u))
		}
	}

	return refs
}
