package services

import (
	"context"

	"github.com/mrlokans/cardsync/internal/crypto"
	"github.com/mrlokans/cardsync/internal/entities"
	"github.com/mrlokans/cardsync/internal/remote"
	"github.com/mrlokans/cardsync/internal/syncengine"
)

// RemoteClient is a remote table client that can also introspect its
// instance. *remote.Client implements it.
type RemoteClient interface {
	syncengine.RemoteTable
	TestConnection(ctx context.Context) (bool, string)
	ListTables(ctx context.Context, search string) ([]remote.Table, error)
	ListTableFields(ctx context.Context, table string) ([]remote.TableField, error)
}

// ClientOpener opens a client for a connection with decrypted credentials.
type ClientOpener func(conn *entities.Connection, creds crypto.Credentials) (RemoteClient, error)

// ConnectionTestResult is the outcome of a connection test.
type ConnectionTestResult struct {
	ConnectionID uint   `json:"connection_id"`
	OK           bool   `json:"ok"`
	Message      string `json:"message"`
}
