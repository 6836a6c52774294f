package mappingfile

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/mrlokans/cardsync/internal/crypto"
	"github.com/mrlokans/cardsync/internal/database/connections"
	"github.com/mrlokans/cardsync/internal/database/mappings"
	"github.com/mrlokans/cardsync/internal/entities"
)

// Result summarizes what Apply changed.
type Result struct {
	ConnectionID      uint     `json:"connection_id"`
	ConnectionCreated bool     `json:"connection_created"`
	CredentialsSet    bool     `json:"credentials_set"`
	MappingsCreated   []string `json:"mappings_created"`
	MappingsUpdated   []string `json:"mappings_updated"`
}

// Apply upserts the document's connection (matched by name) and mappings
// (matched by connection and name) in one transaction. Mappings present in
// the database but absent from the document are left alone. Credentials are
// only replaced when the document carries them.
func Apply(ctx context.Context, db *gorm.DB, codec *crypto.CredentialCodec, doc *Document) (*Result, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	result := &Result{}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		connRepo := connections.NewRepository(tx, codec)
		mappingRepo := mappings.NewRepository(tx)

		conn, err := upsertConnection(ctx, connRepo, &doc.Connection, result)
		if err != nil {
			return err
		}
		result.ConnectionID = conn.ID

		for i := range doc.Mappings {
			decl := &doc.Mappings[i]
			mapping := decl.entity(conn.ID)

			existing, err := mappingRepo.GetMappingByName(ctx, conn.ID, decl.Name)
			switch {
			case errors.Is(err, mappings.ErrNotFound):
				result.MappingsCreated = append(result.MappingsCreated, decl.Name)
			case err != nil:
				return err
			default:
				mapping.ID = existing.ID
				mapping.CreatedAt = existing.CreatedAt
				result.MappingsUpdated = append(result.MappingsUpdated, decl.Name)
			}

			if err := mappingRepo.SaveMapping(ctx, mapping); err != nil {
				return fmt.Errorf("mapping %s: %w", decl.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func upsertConnection(ctx context.Context, repo *connections.Repository, decl *Connection, result *Result) (*entities.Connection, error) {
	creds := decl.credentials()
	desired := decl.entity()

	existing, err := repo.GetConnectionByName(ctx, decl.Name)
	if errors.Is(err, connections.ErrConnectionNotFound) {
		if len(creds) == 0 {
			return nil, fmt.Errorf("connection %s does not exist yet and the file carries no credentials", decl.Name)
		}
		if err := repo.CreateConnection(ctx, desired, creds); err != nil {
			return nil, fmt.Errorf("failed to create connection: %w", err)
		}
		result.ConnectionCreated = true
		result.CredentialsSet = true
		return desired, nil
	}
	if err != nil {
		return nil, err
	}

	existing.URL = desired.URL
	existing.AuthKind = desired.AuthKind
	existing.IsActive = desired.IsActive
	if err := repo.SaveConnection(ctx, existing); err != nil {
		return nil, fmt.Errorf("failed to update connection: %w", err)
	}
	if len(creds) > 0 {
		if err := repo.RotateCredentials(ctx, existing.ID, creds); err != nil {
			return nil, err
		}
		result.CredentialsSet = true
	}
	return existing, nil
}
