// Package market caches the marketplace-side state the backend pushes:
// open orders, riven auctions, completed transactions, chats and the
// signed-in user profile.
package market
