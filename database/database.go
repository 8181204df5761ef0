// Package database - Handles all interaction with ArangoDB
package database

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/arangodb/go-driver/v2/connection"
	"github.com/cenkalti/backoff"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Collection names
const (
	IssuesCollection  = "issues"
	HistoryCollection = "issue_status_history"
)

// DBConnection is the structure that defined the database engine and collections
type DBConnection struct {
	Collections map[string]arangodb.Collection
	Database    arangodb.Database
}

// Config holds the ArangoDB connection settings.
type Config struct {
	URL      string
	User     string
	Pass     string
	Database string
}

// indexConfig holds one persistent index definition
type indexConfig struct {
	Collection string
	IdxName    string
	IdxFields  []string
	Unique     bool
	Sparse     bool
}

var idxList = []indexConfig{
	// At most one active issue per (document, framework, fingerprint).
	// active_fingerprint is null for inactive issues, which a sparse index skips.
	{Collection: IssuesCollection, IdxName: "issues_active_fingerprint_unique", IdxFields: []string{"document_id", "framework", "active_fingerprint"}, Unique: true, Sparse: true},
	{Collection: IssuesCollection, IdxName: "issues_scope", IdxFields: []string{"document_id", "framework"}},
	{Collection: IssuesCollection, IdxName: "issues_workspace", IdxFields: []string{"workspace_id"}},
	{Collection: IssuesCollection, IdxName: "issues_status", IdxFields: []string{"status"}},
	{Collection: IssuesCollection, IdxName: "issues_fingerprint", IdxFields: []string{"fingerprint"}},
	{Collection: IssuesCollection, IdxName: "issues_created_at", IdxFields: []string{"created_at"}},

	{Collection: HistoryCollection, IdxName: "history_issue_sequence", IdxFields: []string{"issue_id", "sequence"}},
	{Collection: HistoryCollection, IdxName: "history_changed_at", IdxFields: []string{"changed_at"}},
}

// GetEnvDefault is a convenience function for handling env vars
func GetEnvDefault(key, defVal string) string {
	val, ex := os.LookupEnv(key) // get the env var
	if !ex {                     // not found return default
		return defVal
	}
	return val // return value for env var
}

// InitLogger sets up the Zap Logger to log to the console in a human readable format
func InitLogger(level string) *zap.Logger {
	prodConfig := zap.NewProductionConfig()
	prodConfig.Encoding = "console"
	prodConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	prodConfig.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err == nil {
		prodConfig.Level = zap.NewAtomicLevelAt(lvl)
	}

	logger, err := prodConfig.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func dbConnectionConfig(endpoint connection.Endpoint, dbuser string, dbpass string) connection.HttpConfiguration {
	return connection.HttpConfiguration{
		Authentication: connection.NewBasicAuth(dbuser, dbpass),
		Endpoint:       endpoint,
		ContentType:    connection.ApplicationJSON,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true, // #nosec G402
			},
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 90 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// InitializeDatabase connects to the db engine, creating the database, collections and indexes
func InitializeDatabase(ctx context.Context, cfg Config, logger *zap.Logger) (DBConnection, error) {
	const initialInterval = 10 * time.Second
	const maxInterval = 2 * time.Minute
	const maxElapsed = 15 * time.Minute

	var client arangodb.Client

	//
	// Database connection with backoff retry
	//

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialInterval
	bo.MaxInterval = maxInterval
	bo.MaxElapsedTime = maxElapsed

	err := backoff.RetryNotify(func() error {
		logger.Info("Attempting to connect to ArangoDB", zap.String("url", cfg.URL))
		endpoint := connection.NewRoundRobinEndpoints([]string{cfg.URL})
		conn := connection.NewHttpConnection(dbConnectionConfig(endpoint, cfg.User, cfg.Pass))

		client = arangodb.NewClient(conn)

		versionInfo, err := client.Version(ctx)
		if err != nil {
			return err
		}

		logger.Sugar().Infof("Database has version '%s' and license '%s'", versionInfo.Version, versionInfo.License)
		return nil

	}, backoff.WithContext(bo, ctx), func(err error, wait time.Duration) {
		logger.Warn("Retrying connection to ArangoDB", zap.Error(err), zap.Duration("wait", wait))
	})
	if err != nil {
		return DBConnection{}, fmt.Errorf("failed to connect to ArangoDB: %w", err)
	}

	//
	// Database creation
	//

	var db arangodb.Database
	exists := false
	dblist, err := client.Databases(ctx)
	if err != nil {
		return DBConnection{}, fmt.Errorf("failed to list databases: %w", err)
	}

	for _, dbinfo := range dblist {
		if dbinfo.Name() == cfg.Database {
			exists = true
			break
		}
	}

	if exists {
		var options arangodb.GetDatabaseOptions
		if db, err = client.GetDatabase(ctx, cfg.Database, &options); err != nil {
			return DBConnection{}, fmt.Errorf("failed to get database: %w", err)
		}
	} else {
		if db, err = client.CreateDatabase(ctx, cfg.Database, nil); err != nil {
			return DBConnection{}, fmt.Errorf("failed to create database: %w", err)
		}
	}

	//
	// Collection creation for document storage
	//

	collections := make(map[string]arangodb.Collection)
	for _, collectionName := range []string{IssuesCollection, HistoryCollection} {
		var col arangodb.Collection

		exists, _ = db.CollectionExists(ctx, collectionName)
		if exists {
			var options arangodb.GetCollectionOptions
			if col, err = db.GetCollection(ctx, collectionName, &options); err != nil {
				return DBConnection{}, fmt.Errorf("failed to use collection %s: %w", collectionName, err)
			}
		} else {
			if col, err = db.CreateCollectionV2(ctx, collectionName, nil); err != nil {
				return DBConnection{}, fmt.Errorf("failed to create collection %s: %w", collectionName, err)
			}
		}

		collections[collectionName] = col
	}

	//
	// Index creation
	//

	for _, idx := range idxList {
		found := false

		if indexes, err := collections[idx.Collection].Indexes(ctx); err == nil {
			for _, index := range indexes {
				if idx.IdxName == index.Name {
					found = true
					break
				}
			}
		}

		if found {
			continue
		}

		unique := idx.Unique
		sparse := idx.Sparse
		indexOptions := arangodb.CreatePersistentIndexOptions{
			Unique: &unique,
			Sparse: &sparse,
			Name:   idx.IdxName,
		}

		if _, _, err = collections[idx.Collection].EnsurePersistentIndex(ctx, idx.IdxFields, &indexOptions); err != nil {
			return DBConnection{}, fmt.Errorf("error creating index %s: %w", idx.IdxName, err)
		}
		logger.Sugar().Infof("Created index: %s on %s%v", idx.IdxName, idx.Collection, idx.IdxFields)
	}

	logger.Info("Database initialization complete", zap.String("database", cfg.Database))

	return DBConnection{
		Database:    db,
		Collections: collections,
	}, nil
}
