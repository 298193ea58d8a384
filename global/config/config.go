package config

import (
	"PShare/logger"
	"PShare/tools"
	"PShare/tools/ids"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMemory   = "memory"
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
)

type MongoConf struct {
	Uri         string
	Database    string
	Username    string
	Password    string
	MaxPoolSize int
}

type PostgresConf struct {
	URL string
}

type RedisConf struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	PoolSize int
}

type NatsConf struct {
	Enabled         bool
	Servers         []string
	Name            string
	FanoutSubject   string // gateway to gateway broadcast
	InterestSubject string // item interest events from the item service
	InterestQueue   string
	InterestMode    string // core | js_push
}

type KafkaConf struct {
	Enabled bool
	Brokers []string
	Topic   string
}

// GatewayConf holds websocket tuning.
type GatewayConf struct {
	HistoryLimit   int
	SendQueue      int
	MaxMessageSize int64
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	PresenceTTL    time.Duration
}

type AppConfig struct {
	NodeId   string
	SnowNode int64
	Port     int
	LogLevel string

	JwtSecret      string
	AllowedOrigins []string

	StoreDriver   string
	UserDirectory string   // memory | mongo
	DevUsers      []string // "id:name" pairs seeding the memory directory

	Mongo    MongoConf
	Postgres PostgresConf
	Redis    RedisConf
	Nats     NatsConf
	Kafka    KafkaConf
	Gateway  GatewayConf
}

// Global holds the defaults every environment starts from.
var Global = AppConfig{
	NodeId:   "gateway_10",
	SnowNode: 100,
	Port:     8000,
	LogLevel: "debug",
	AllowedOrigins: []string{
		"http://localhost:5173",
	},
	StoreDriver:   StoreMemory,
	UserDirectory: StoreMemory,
	Mongo: MongoConf{
		Uri:         "mongodb://localhost:27017",
		Database:    "pshare",
		MaxPoolSize: 20,
	},
	Redis: RedisConf{
		Addr:     "127.0.0.1:6379",
		PoolSize: 20,
	},
	Nats: NatsConf{
		Servers:         []string{"nats://127.0.0.1:4222"},
		Name:            "pshare-gateway",
		FanoutSubject:   "pshare.gateway.fanout",
		InterestSubject: "pshare.item.interest",
		InterestQueue:   "pshare-interest",
		InterestMode:    "core",
	},
	Kafka: KafkaConf{
		Brokers: []string{"127.0.0.1:9092"},
		Topic:   "pshare.message.events",
	},
	Gateway: GatewayConf{
		HistoryLimit:   50,
		SendQueue:      256,
		MaxMessageSize: 1 << 16,
		PingInterval:   25 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		PresenceTTL:    2 * time.Hour,
	},
}

// Load overlays the environment (and a .env file when present) on Global.
func Load() AppConfig {
	_ = godotenv.Load()

	c := Global
	c.NodeId = tools.GetEnv("NODE_ID", c.NodeId)
	c.SnowNode = int64(tools.GetEnvInt("SNOW_NODE", int(c.SnowNode)))
	c.Port = tools.GetEnvInt("PORT", c.Port)
	c.LogLevel = tools.GetEnv("LOG_LEVEL", c.LogLevel)
	c.JwtSecret = tools.GetEnv("JWT_SECRET", c.JwtSecret)
	c.AllowedOrigins = tools.GetEnvList("ALLOWED_ORIGINS", c.AllowedOrigins)

	c.StoreDriver = tools.GetEnv("STORE_DRIVER", c.StoreDriver)
	c.UserDirectory = tools.GetEnv("USER_DIRECTORY", c.UserDirectory)
	if c.StoreDriver == StoreMongo {
		c.UserDirectory = StoreMongo
	}
	c.DevUsers = tools.GetEnvList("DEV_USERS", c.DevUsers)
	c.Mongo.Uri = tools.GetEnv("MONGO_URI", c.Mongo.Uri)
	c.Mongo.Database = tools.GetEnv("MONGO_DB", c.Mongo.Database)
	c.Mongo.Username = tools.GetEnv("MONGO_USER", c.Mongo.Username)
	c.Mongo.Password = tools.GetEnv("MONGO_PASSWORD", c.Mongo.Password)
	c.Mongo.MaxPoolSize = tools.GetEnvInt("MONGO_POOL", c.Mongo.MaxPoolSize)
	c.Postgres.URL = tools.GetEnv("DATABASE_URL", c.Postgres.URL)

	c.Redis.Enabled = tools.GetEnvBool("REDIS_ENABLED", c.Redis.Enabled)
	c.Redis.Addr = tools.GetEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = tools.GetEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = tools.GetEnvInt("REDIS_DB", c.Redis.DB)

	c.Nats.Enabled = tools.GetEnvBool("NATS_ENABLED", c.Nats.Enabled)
	c.Nats.Servers = tools.GetEnvList("NATS_SERVERS", c.Nats.Servers)
	c.Nats.Name = tools.GetEnv("NATS_NAME", c.Nats.Name)
	c.Nats.InterestMode = tools.GetEnv("NATS_INTEREST_MODE", c.Nats.InterestMode)

	c.Kafka.Enabled = tools.GetEnvBool("KAFKA_ENABLED", c.Kafka.Enabled)
	c.Kafka.Brokers = tools.GetEnvList("KAFKA_BROKERS", c.Kafka.Brokers)
	c.Kafka.Topic = tools.GetEnv("KAFKA_TOPIC", c.Kafka.Topic)

	c.Gateway.HistoryLimit = tools.GetEnvInt("HISTORY_LIMIT", c.Gateway.HistoryLimit)
	c.Gateway.SendQueue = tools.GetEnvInt("WS_SEND_QUEUE", c.Gateway.SendQueue)
	c.Gateway.PingInterval = tools.GetEnvDuration("WS_PING_INTERVAL", c.Gateway.PingInterval)
	c.Gateway.PongWait = tools.GetEnvDuration("WS_PONG_WAIT", c.Gateway.PongWait)
	c.Gateway.WriteWait = tools.GetEnvDuration("WS_WRITE_WAIT", c.Gateway.WriteWait)

	if c.JwtSecret == "" {
		logger.Warn("JWT_SECRET is empty, every session token will be rejected")
	}
	return c
}

// ConfigIds seeds the snowflake generator with this node's number.
func ConfigIds(c AppConfig) {
	logger.Infof("snowflake node id %d", c.SnowNode)
	ids.SetNodeID(c.SnowNode)
}
