// Package directory holds the shipper and vendor accounts shown in the portal
// and the message thread kept with each of them.
package directory

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("account not found")
	ErrEmptyMessage = errors.New("message text is empty")
)

type Role string

const (
	RoleShipper Role = "shipper"
	RoleVendor  Role = "vendor"
)

// Sender identifies who wrote a message: the account's representative or the
// signed-in portal user.
type Sender string

const (
	SenderRep  Sender = "rep"
	SenderUser Sender = "user"
)

type Account struct {
	ID          string `yaml:"id"`
	FullName    string `yaml:"fullName"`
	Company     string `yaml:"company"`
	Role        Role   `yaml:"role"`
	LastMessage string `yaml:"lastMessage"`
}

type Message struct {
	ID        string    `yaml:"id"`
	AccountID string    `yaml:"-"`
	From      Sender    `yaml:"from"`
	Text      string    `yaml:"text"`
	At        time.Time `yaml:"at"`
}

type Store interface {
	ListAccounts(ctx context.Context) ([]Account, error)
	GetAccount(ctx context.Context, id string) (Account, error)
	ListMessages(ctx context.Context, accountID string) ([]Message, error)
	AppendMessage(ctx context.Context, accountID string, from Sender, text string) (Message, error)
}

// ByRole splits accounts into shippers and vendors, keeping their order.
func ByRole(accounts []Account) (shippers, vendors []Account) {
	for _, a := range accounts {
		switch a.Role {
		case RoleShipper:
			shippers = append(shippers, a)
		case RoleVendor:
			vendors = append(vendors, a)
		}
	}
	return shippers, vendors
}
