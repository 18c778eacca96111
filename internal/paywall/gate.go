// Package paywall holds the pure decision logic for the seller messaging
// paywall. It has no store access so the rules can be tested in isolation.
package paywall

// LockedPlaceholder replaces redacted message text. Clients key off this
// exact string, so treat it as a stable contract.
const LockedPlaceholder = "[Message locked — pay $500 to unlock]"

// Redacted reports whether a message must be hidden from the viewer: only
// buyer-sent messages viewed by an unpaid seller are redacted. Sellers always
// see their own messages, paid sellers see everything, and buyers are never
// restricted.
func Redacted(isSellerViewer, sellerPaid, senderIsBuyer bool) bool {
	return isSellerViewer && !sellerPaid && senderIsBuyer
}

// CanSend reports whether a participant may append a message. Buyers may
// always send; a seller may send only once the unlock fee has cleared.
func CanSend(isSeller, sellerPaid bool) bool {
	return !isSeller || sellerPaid
}

// ConversationLocked reports whether the viewer sees the thread as locked,
// the top-level flag returned alongside the message list.
func ConversationLocked(isSellerViewer, sellerPaid bool) bool {
	return isSellerViewer && !sellerPaid
}
