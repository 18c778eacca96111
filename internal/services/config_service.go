package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"coachyard/backend/internal/config"
	"coachyard/backend/internal/models"
)

// IConfigService exposes runtime-tunable configuration backed by Mongo with
// an in-memory cache refreshed over Redis pub/sub.
type IConfigService interface {
	Load(ctx context.Context) error
	SubscribeToChanges(ctx context.Context) error
	SetConfigValue(ctx context.Context, key string, value interface{}, isPublic bool) error
	GetAllPublic(ctx context.Context) (map[string]interface{}, error)
	GetString(ctx context.Context, key string, defaultValue string) string
	GetInt(ctx context.Context, key string, defaultValue int) int
	GetFloat64(ctx context.Context, key string, defaultValue float64) float64
	GetBool(ctx context.Context, key string, defaultValue bool) bool
	GetDuration(ctx context.Context, key string, defaultValue time.Duration) time.Duration
	// GetAPIEndpointConfig returns the rate-limit override for an endpoint,
	// or nil when the endpoint uses the defaults.
	GetAPIEndpointConfig(ctx context.Context, endpoint string) (*models.APIEndpointConfig, error)
}

const (
	configCollection    = "configuration"
	apiConfigCollection = "api_endpoints_config"
	configUpdateChannel = "config_updates"
)

// configService implements IConfigService.
type configService struct {
	db       *mongo.Database
	cfg      *config.Config
	rdb      *redis.Client
	cache    map[string]interface{}
	apiCache map[string]*models.APIEndpointConfig
	mutex    sync.RWMutex
}

// NewConfigService creates a ConfigService, loads the initial state from the
// DB and starts the pub/sub refresh listener.
func NewConfigService(db *mongo.Database, initialCfg *config.Config, rdb *redis.Client) IConfigService {
	s := &configService{
		db:       db,
		cfg:      initialCfg,
		rdb:      rdb,
		cache:    make(map[string]interface{}),
		apiCache: make(map[string]*models.APIEndpointConfig),
	}
	if err := s.Load(context.Background()); err != nil {
		log.Printf("WARNING: Failed to load initial config from DB: %v. Using .env defaults", err)
	}
	go func() {
		if err := s.SubscribeToChanges(context.Background()); err != nil {
			log.Printf("CRITICAL: Config Pub/Sub listener stopped: %v", err)
		}
	}()
	return s
}

// ConfigEntry represents a document in the configuration collection.
type ConfigEntry struct {
	Key    string      `bson:"key"`
	Value  interface{} `bson:"value"`
	Public bool        `bson:"public"`
}

// Load replaces both caches from the DB.
func (s *configService) Load(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	collection := s.db.Collection(configCollection)
	cursor, err := collection.Find(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("failed to query config collection: %w", err)
	}
	defer cursor.Close(ctx)

	newCache := make(map[string]interface{})
	for cursor.Next(ctx) {
		var entry ConfigEntry
		if err := cursor.Decode(&entry); err == nil {
			newCache[entry.Key] = entry.Value
		} else {
			log.Printf("Warning: Failed to decode config entry during load: %v", err)
		}
	}
	if err := cursor.Err(); err != nil {
		return fmt.Errorf("error iterating config cursor: %w", err)
	}
	s.cache = newCache

	apiCollection := s.db.Collection(apiConfigCollection)
	apiCursor, err := apiCollection.Find(ctx, bson.M{})
	if err != nil {
		log.Printf("Error querying API endpoint configs: %v", err)
	} else {
		defer apiCursor.Close(ctx)
		newAPICache := make(map[string]*models.APIEndpointConfig)
		for apiCursor.Next(ctx) {
			var entry models.APIEndpointConfig
			if err := apiCursor.Decode(&entry); err == nil {
				newAPICache[entry.Endpoint] = &entry
			} else {
				log.Printf("Warning: Failed to decode API config entry during load: %v", err)
			}
		}
		if err := apiCursor.Err(); err != nil {
			log.Printf("Error iterating API config cursor: %v", err)
		}
		s.apiCache = newAPICache
	}

	log.Printf("Loaded %d config entries and %d API endpoint configs from DB.", len(s.cache), len(s.apiCache))
	return nil
}

// GetAllPublic retrieves all configuration parameters marked as public.
func (s *configService) GetAllPublic(ctx context.Context) (map[string]interface{}, error) {
	publicConfig := map[string]interface{}{}
	collection := s.db.Collection(configCollection)
	cursor, err := collection.Find(ctx, bson.M{"public": true})
	if err != nil {
		return nil, fmt.Errorf("failed to query public config from DB: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var entry ConfigEntry
		if err := cursor.Decode(&entry); err == nil {
			publicConfig[entry.Key] = entry.Value
		} else {
			log.Printf("Warning: Failed to decode public config entry: %v", err)
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("error iterating public config cursor: %w", err)
	}

	if _, exists := publicConfig["APP_NAME"]; !exists {
		publicConfig["APP_NAME"] = s.cfg.AppName
	}
	if _, exists := publicConfig["UNLOCK_FEE"]; !exists {
		publicConfig["UNLOCK_FEE"] = s.cfg.UnlockFee
	}

	return publicConfig, nil
}

func (s *configService) get(key string) (interface{}, bool) {
	s.mutex.RLock()
	val, exists := s.cache[key]
	s.mutex.RUnlock()
	return val, exists
}

func (s *configService) GetString(ctx context.Context, key string, defaultValue string) string {
	val, exists := s.get(key)
	if !exists {
		return defaultValue
	}
	if strVal, ok := val.(string); ok {
		return strVal
	}
	log.Printf("Warning: Config key '%s' is not a string, using default.", key)
	return defaultValue
}

func (s *configService) GetInt(ctx context.Context, key string, defaultValue int) int {
	val, exists := s.get(key)
	if !exists {
		return defaultValue
	}
	// Mongo hands numbers back as int32/int64/float64 depending on origin.
	switch v := val.(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		log.Printf("Warning: Config key '%s' is not an integer type (%T), using default.", key, val)
		return defaultValue
	}
}

func (s *configService) GetFloat64(ctx context.Context, key string, defaultValue float64) float64 {
	val, exists := s.get(key)
	if !exists {
		return defaultValue
	}
	switch v := val.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	default:
		log.Printf("Warning: Config key '%s' is not a float64 type (%T), using default.", key, val)
		return defaultValue
	}
}

func (s *configService) GetBool(ctx context.Context, key string, defaultValue bool) bool {
	val, exists := s.get(key)
	if !exists {
		return defaultValue
	}
	if boolVal, ok := val.(bool); ok {
		return boolVal
	}
	log.Printf("Warning: Config key '%s' is not a boolean, using default.", key)
	return defaultValue
}

// GetDuration reads a value stored as integer seconds.
func (s *configService) GetDuration(ctx context.Context, key string, defaultValue time.Duration) time.Duration {
	val, exists := s.get(key)
	if !exists {
		return defaultValue
	}
	switch v := val.(type) {
	case int:
		return time.Duration(v) * time.Second
	case int32:
		return time.Duration(v) * time.Second
	case int64:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v) * time.Second
	default:
		log.Printf("Warning: Config key '%s' is not a numeric type for duration (%T), using default.", key, val)
		return defaultValue
	}
}

// SubscribeToChanges listens on Redis pub/sub and reloads the cache on every
// notification.
func (s *configService) SubscribeToChanges(ctx context.Context) error {
	if s.rdb == nil {
		log.Println("Redis client not configured, cannot subscribe to config changes.")
		return nil
	}

	pubsub := s.rdb.Subscribe(ctx, configUpdateChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to receive confirmation from Redis Pub/Sub subscription: %w", err)
	}

	ch := pubsub.Channel()
	log.Println("Subscribed to Redis channel for config updates:", configUpdateChannel)

	for msg := range ch {
		log.Printf("Received config update notification on channel %s: %s", msg.Channel, msg.Payload)
		if err := s.Load(context.Background()); err != nil {
			log.Printf("ERROR reloading config from DB after notification: %v", err)
		}
	}

	log.Println("Config Pub/Sub listener stopped.")
	return nil
}

// SetConfigValue upserts a config value in the DB and publishes an update.
func (s *configService) SetConfigValue(ctx context.Context, key string, value interface{}, isPublic bool) error {
	collection := s.db.Collection(configCollection)
	update := bson.M{
		"$set": bson.M{
			"key":    key,
			"value":  value,
			"public": isPublic,
		},
	}
	_, err := collection.UpdateOne(ctx, bson.M{"key": key}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert config key '%s' in DB: %w", key, err)
	}

	if s.rdb != nil {
		if err := s.rdb.Publish(ctx, configUpdateChannel, key).Err(); err != nil {
			log.Printf("Warning: Failed to publish config update notification for key '%s': %v", key, err)
		}
	}

	return nil
}

// GetAPIEndpointConfig looks up a per-endpoint override in the cache. A nil
// result means the endpoint runs on the process-wide defaults.
func (s *configService) GetAPIEndpointConfig(ctx context.Context, endpoint string) (*models.APIEndpointConfig, error) {
	s.mutex.RLock()
	cfg, exists := s.apiCache[endpoint]
	s.mutex.RUnlock()
	if exists {
		return cfg, nil
	}
	return nil, nil
}
