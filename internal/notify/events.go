package notify

import "time"

// Typed payloads for the known channels, for use with Typed. Fields the
// server adds later are ignored by encoding/json.

type ChatMessage struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversationId"`
	SenderID       int64     `json:"senderId"`
	SenderName     string    `json:"senderName,omitempty"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ClaimEvent is sent on ChannelClaims and ChannelClaimsCancelled.
type ClaimEvent struct {
	ClaimID      int64  `json:"id"`
	PostID       int64  `json:"surplusPostId"`
	PostTitle    string `json:"surplusPostTitle,omitempty"`
	ReceiverID   int64  `json:"receiverId,omitempty"`
	ReceiverName string `json:"receiverName,omitempty"`
	Status       string `json:"status"`
}

// ListingAlert announces a new listing matching the receiver's preferences.
type ListingAlert struct {
	PostID         int64    `json:"postId"`
	Title          string   `json:"title"`
	DonorName      string   `json:"donorName,omitempty"`
	FoodCategories []string `json:"foodCategories,omitempty"`
	Message        string   `json:"message,omitempty"`
}

type Achievement struct {
	AchievementID int64  `json:"achievementId"`
	Name          string `json:"achievementName"`
	Description   string `json:"description,omitempty"`
	PointsValue   int    `json:"pointsValue"`
	BadgeIcon     string `json:"badgeIcon,omitempty"`
}

type Review struct {
	ReviewID     int64  `json:"id"`
	ReviewerID   int64  `json:"reviewerId"`
	ReviewerName string `json:"reviewerName,omitempty"`
	Rating       int    `json:"rating"`
	Comment      string `json:"reviewText,omitempty"`
}

// DonationEvent covers the completed, ready-for-pickup and expired channels.
type DonationEvent struct {
	DonationID int64  `json:"donationId"`
	Title      string `json:"title"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
}

// DonationStatus covers the donor and receiver status channels.
type DonationStatus struct {
	DonationID     int64  `json:"donationId"`
	Title          string `json:"title,omitempty"`
	PreviousStatus string `json:"previousStatus,omitempty"`
	NewStatus      string `json:"newStatus"`
	Reason         string `json:"reason,omitempty"`
}

type Verification struct {
	UserID  int64  `json:"userId"`
	Role    string `json:"role,omitempty"`
	Message string `json:"message,omitempty"`
}
