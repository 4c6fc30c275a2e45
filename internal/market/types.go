package market

import (
	"time"

	"github.com/rickgao/stocksync/internal/match"
)

// Order is one of the user's open marketplace orders.
type Order struct {
	ID        string    `json:"id"`
	OrderType string    `json:"order_type"` // "buy" or "sell"
	Platinum  int64     `json:"platinum"`
	Quantity  int64     `json:"quantity"`
	Rank      *int64    `json:"rank,omitempty"`
	Visible   bool      `json:"visible"`
	ItemURL   string    `json:"item_url"`
	ItemName  string    `json:"item_name"`
	CreatedAt time.Time `json:"creation_date"`
	UpdatedAt time.Time `json:"last_update"`
}

// Auction is one of the user's riven auctions.
type Auction struct {
	ID            string          `json:"id"`
	WeaponURL     string          `json:"weapon_url_name"`
	ModName       string          `json:"name"`
	BuyoutPrice   *int64          `json:"buyout_price,omitempty"`
	StartingPrice int64           `json:"starting_price"`
	TopBid        *int64          `json:"top_bid,omitempty"`
	Visible       bool            `json:"visible"`
	Closed        bool            `json:"closed"`
	Item          match.Candidate `json:"item"`
	CreatedAt     time.Time       `json:"created"`
	UpdatedAt     time.Time       `json:"updated"`
}

// Transaction records a completed buy or sell.
type Transaction struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	ItemType        string    `json:"item_type"`
	TransactionType string    `json:"transaction_type"` // "buy" or "sell"
	Price           int64     `json:"price"`
	Quantity        int64     `json:"quantity"`
	CreatedAt       time.Time `json:"created_at"`
}

// Chat is a conversation header.
type Chat struct {
	ID           string    `json:"id"`
	ChatWith     []string  `json:"chat_with"`
	UnreadCount  int       `json:"unread_count"`
	Closed       bool      `json:"closed"`
	LastUpdateAt time.Time `json:"last_update"`
}

// ChatMessage is one message inside a chat.
type ChatMessage struct {
	ID          string    `json:"id"`
	ChatID      string    `json:"chat_id"`
	MessageFrom string    `json:"message_from"`
	Message     string    `json:"message"`
	SentAt      time.Time `json:"send_date"`
}

// User is the authenticated marketplace profile.
type User struct {
	ID          string `json:"id"`
	IngameName  string `json:"ingame_name"`
	Avatar      string `json:"avatar,omitempty"`
	Locale      string `json:"locale"`
	Platform    string `json:"platform"`
	Region      string `json:"region"`
	Role        string `json:"role"`
	Status      string `json:"status"`
	Banned      bool   `json:"banned"`
	Verified    bool   `json:"verification"`
	OrderLimit  int    `json:"order_limit"`
	AuctionsMax int    `json:"auctions_limit"`
}

// Table names a registry table.
type Table string

const (
	TableOrders       Table = "orders"
	TableAuctions     Table = "auctions"
	TableTransactions Table = "transactions"
	TableChats        Table = "chats"
	TableChatMessages Table = "chat_messages"
	TableUser         Table = "user"
)

// Change describes one applied mutation.
type Change struct {
	Table Table
	Op    string
	Count int // rows in the table afterwards
}

// Summary aggregates the registry for status displays.
type Summary struct {
	BuyOrders    int    `json:"buy_orders"`
	SellOrders   int    `json:"sell_orders"`
	OpenAuctions int    `json:"open_auctions"`
	Transactions int    `json:"transactions"`
	Revenue      int64  `json:"revenue"`
	Expenses     int64  `json:"expenses"`
	UnreadChats  int    `json:"unread_chats"`
	ChatMessages int    `json:"chat_messages"`
	SignedInAs   string `json:"signed_in_as,omitempty"`
}
