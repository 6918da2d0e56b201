package config

import "time"

// API defaults
const (
	DefaultAPIBaseURL  = "https://userpay.vercel.app"
	DefaultHTTPTimeout = 15 * time.Second
	DefaultLogLevel    = "info"
)

// Session defaults
const (
	DefaultTokenStore = "file"
	DefaultTokenKey   = "userpay_token"
	DefaultTokenDir   = ".userpay"
)

// Redis defaults
const (
	DefaultRedisAddr = "localhost:6379"
	DefaultRedisDB   = 0
)

// Resolver defaults
const (
	DefaultRouteMemoTTL = 5 * time.Minute
)

// Dashboard defaults
const (
	DefaultHistoryLimit   = 50
	DefaultSummaryRows    = 5
	DefaultCurrencySymbol = "₦"
)

// Kafka defaults
const (
	DefaultKafkaBrokers           = ""
	DefaultKafkaTopic             = "large-transfers"
	DefaultKafkaTransferThreshold = 100000.0
)

// Sandbox defaults
const (
	DefaultSandboxHTTPPort      = "8080"
	DefaultSandboxGinMode       = "release"
	DefaultSandboxJWTSecret     = "change-me-in-production"
	DefaultSandboxJWTExpiration = 24 * time.Hour
	DefaultSandboxOTPTTL        = 5 * time.Minute
)
