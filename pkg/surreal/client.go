package surreal

import (
	"context"
	"fmt"
	"reflect"
	"regexp"

	"github.com/surrealdb/surrealdb.go"
)

type Client struct {
	db *surrealdb.DB
}

// identifierRegex ensures that table names and fields only contain alphanumeric characters and underscores
var identifierRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

func validateIdentifier(s string) error {
	if !identifierRegex.MatchString(s) {
		return fmt.Errorf("invalid identifier: %s", s)
	}
	return nil
}

func NewClient(host, user, pass, namespace, database string) (*Client, error) {
	db, err := surrealdb.New(host)
	if err != nil {
		return nil, fmt.Errorf("failed to create surrealdb client: %w", err)
	}

	if _, err = db.SignIn(context.Background(), map[string]interface{}{
		"user": user,
		"pass": pass,
	}); err != nil {
		return nil, fmt.Errorf("failed to signin to surrealdb: %w", err)
	}

	if err = db.Use(context.Background(), namespace, database); err != nil {
		return nil, fmt.Errorf("failed to use surrealdb namespace/database: %w", err)
	}

	return &Client{db: db}, nil
}

// NormalizeHost turns a bare host into a websocket RPC URL.
func NormalizeHost(host string) string {
	if len(host) >= 5 && host[:5] == "ws://" {
		return host
	}
	if len(host) >= 6 && host[:6] == "wss://" {
		return host
	}
	return "wss://" + host + "/rpc"
}

func (c *Client) Close() {
	c.db.Close(context.Background())
}

func (c *Client) Query(sql string, vars interface{}) (interface{}, error) {
	result, err := surrealdb.Query[interface{}](context.Background(), c.db, sql, vars.(map[string]interface{}))
	if err != nil {
		return nil, err
	}

	// Unwrap the result: *RawQueryResponse -> Result field
	rv := reflect.ValueOf(result)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}

	if rv.Kind() == reflect.Struct {
		resField := rv.FieldByName("Result")
		if resField.IsValid() {
			return resField.Interface(), nil
		}
	} else if rv.Kind() == reflect.Slice {
		// Handle slice of results (e.g. []QueryResult)
		if rv.Len() > 0 {
			// Return the result of the last query (or the only one)
			lastElem := rv.Index(rv.Len() - 1)
			if lastElem.Kind() == reflect.Struct {
				resField := lastElem.FieldByName("Result")
				if resField.IsValid() {
					return resField.Interface(), nil
				}
			}
		}
	}

	return result, nil
}

// Rows flattens a query result into row maps. It accepts both bare row
// lists and the older [{"result": [...]}] envelope.
func Rows(result interface{}) []map[string]interface{} {
	items, ok := result.([]interface{})
	if !ok {
		if row, ok := result.(map[string]interface{}); ok {
			return []map[string]interface{}{row}
		}
		return nil
	}

	var rows []map[string]interface{}
	for _, item := range items {
		row, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if inner, ok := row["result"]; ok {
			rows = append(rows, Rows(inner)...)
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

// UpsertRecord writes content to table:[id...], replacing any previous content.
func (c *Client) UpsertRecord(table string, id []interface{}, content map[string]interface{}) error {
	if err := validateIdentifier(table); err != nil {
		return err
	}
	query := fmt.Sprintf(`UPSERT type::thing("%s", $id) CONTENT $content;`, table)
	_, err := c.Query(query, map[string]interface{}{
		"id":      id,
		"content": content,
	})
	return err
}

// SelectRecord reads table:[id...]. A missing record is not an error.
func (c *Client) SelectRecord(table string, id []interface{}) (map[string]interface{}, bool, error) {
	if err := validateIdentifier(table); err != nil {
		return nil, false, err
	}
	query := fmt.Sprintf(`SELECT * FROM type::thing("%s", $id);`, table)
	result, err := c.Query(query, map[string]interface{}{"id": id})
	if err != nil {
		return nil, false, err
	}
	rows := Rows(result)
	if len(rows) == 0 {
		return nil, false, nil
	}
	return rows[0], true, nil
}
