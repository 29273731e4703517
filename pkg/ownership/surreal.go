package ownership

import (
	"context"
	"fmt"
	"log"
)

const surrealTable = "waifu_ownership"

// RecordClient is the part of surreal.Client the surreal backend needs.
type RecordClient interface {
	Query(sql string, vars interface{}) (interface{}, error)
	UpsertRecord(table string, id []interface{}, content map[string]interface{}) error
	SelectRecord(table string, id []interface{}) (map[string]interface{}, bool, error)
}

// SurrealBackend stores records in SurrealDB keyed by [channel, user].
type SurrealBackend struct {
	client RecordClient
}

func NewSurrealBackend(client RecordClient) *SurrealBackend {
	backend := &SurrealBackend{client: client}
	if err := backend.Init(); err != nil {
		// The schema may already exist or the DB may come back later
		log.Printf("[Waifu] Warning: Failed to initialize SurrealDB schema: %v", err)
	}
	return backend
}

func (s *SurrealBackend) Init() error {
	query := fmt.Sprintf(`
		DEFINE TABLE IF NOT EXISTS %[1]s SCHEMAFULL;
		DEFINE FIELD IF NOT EXISTS user_id ON %[1]s TYPE string;
		DEFINE FIELD IF NOT EXISTS channel ON %[1]s TYPE string;
		DEFINE FIELD IF NOT EXISTS current ON %[1]s TYPE string;
		DEFINE FIELD IF NOT EXISTS previous_loser ON %[1]s TYPE string;
		DEFINE FIELD IF NOT EXISTS stolen_by ON %[1]s TYPE string;
		DEFINE FIELD IF NOT EXISTS updated_at ON %[1]s TYPE int;
	`, surrealTable)
	_, err := s.client.Query(query, map[string]interface{}{})
	return err
}

func surrealID(key Key) []interface{} {
	return []interface{}{key.Channel, key.User}
}

func (s *SurrealBackend) Get(ctx context.Context, key Key) (Record, bool, error) {
	row, ok, err := s.client.SelectRecord(surrealTable, surrealID(key))
	if err != nil || !ok {
		return Record{}, false, err
	}

	rec := Record{User: key.User, Channel: key.Channel}
	rec.Current, _ = row["current"].(string)
	rec.PreviousLoser, _ = row["previous_loser"].(string)
	rec.StolenBy, _ = row["stolen_by"].(string)
	switch v := row["updated_at"].(type) {
	case int64:
		rec.UpdatedAt = v
	case uint64:
		rec.UpdatedAt = int64(v)
	case float64:
		rec.UpdatedAt = int64(v)
	}
	return rec, true, nil
}

func (s *SurrealBackend) Put(ctx context.Context, rec Record) error {
	return s.client.UpsertRecord(surrealTable, surrealID(rec.Key()), map[string]interface{}{
		"user_id":        rec.User,
		"channel":        rec.Channel,
		"current":        rec.Current,
		"previous_loser": rec.PreviousLoser,
		"stolen_by":      rec.StolenBy,
		"updated_at":     rec.UpdatedAt,
	})
}
