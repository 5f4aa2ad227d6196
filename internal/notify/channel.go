package notify

// Channel is a destination on the notification connection. The set is
// closed: only the constants below can be subscribed.
type Channel string

const (
	ChannelMessages             Channel = "/user/queue/messages"
	ChannelClaims               Channel = "/user/queue/claims"
	ChannelClaimsCancelled      Channel = "/user/queue/claims/cancelled"
	ChannelNotifications        Channel = "/user/queue/notifications"
	ChannelAchievements         Channel = "/user/queue/achievements"
	ChannelReviews              Channel = "/user/queue/reviews"
	ChannelDonationCompleted    Channel = "/user/queue/donations/completed"
	ChannelDonationReady        Channel = "/user/queue/donations/ready-for-pickup"
	ChannelDonationExpired      Channel = "/user/queue/donations/expired"
	ChannelDonorStatus          Channel = "/user/queue/donations/status-updated"
	ChannelReceiverStatus       Channel = "/user/queue/donations/status-changed"
	ChannelVerificationApproved Channel = "/user/queue/verification/approved"
)

// channels is the subscription order. Subscription ids are derived from the
// index, so the order must stay stable.
var channels = []Channel{
	ChannelMessages,
	ChannelClaims,
	ChannelClaimsCancelled,
	ChannelNotifications,
	ChannelAchievements,
	ChannelReviews,
	ChannelDonationCompleted,
	ChannelDonationReady,
	ChannelDonationExpired,
	ChannelDonorStatus,
	ChannelReceiverStatus,
	ChannelVerificationApproved,
}

var channelNames = map[Channel]string{
	ChannelMessages:             "direct-messages",
	ChannelClaims:               "claim-events",
	ChannelClaimsCancelled:      "claim-cancellations",
	ChannelNotifications:        "new-listing-alerts",
	ChannelAchievements:         "achievement-unlocks",
	ChannelReviews:              "peer-reviews",
	ChannelDonationCompleted:    "donation-completed",
	ChannelDonationReady:        "donation-ready",
	ChannelDonationExpired:      "donation-expired",
	ChannelDonorStatus:          "donor-status-updates",
	ChannelReceiverStatus:       "receiver-status-updates",
	ChannelVerificationApproved: "verification-approved",
}

// Channels returns every known channel in subscription order.
func Channels() []Channel {
	return append([]Channel(nil), channels...)
}

// Known reports whether c is one of the fixed channels.
func (c Channel) Known() bool {
	_, ok := channelNames[c]
	return ok
}

// Name returns the short topic name, or the destination itself for unknown
// channels.
func (c Channel) Name() string {
	if n, ok := channelNames[c]; ok {
		return n
	}
	return string(c)
}

func (c Channel) String() string { return string(c) }
