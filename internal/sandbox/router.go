// Package sandbox поднимает UserPay API в памяти: тот же HTTP-контракт,
// что потребляет клиент, для тестов и локальной отладки.
package sandbox

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"userpay-client/internal/sandbox/handlers"
	"userpay-client/internal/sandbox/ledger"
	"userpay-client/internal/sandbox/middleware"
)

// Options настройки песочницы
type Options struct {
	GinMode       string
	JWTSecret     string
	JWTExpiration time.Duration
	OTPTTL        time.Duration
	// LegacyRoutes раскладывает маршруты по прежней схеме (/api/auth/*, /wallet/*)
	LegacyRoutes bool
}

// Server песочница: книга и роутер
type Server struct {
	Ledger *ledger.Ledger
	Router *gin.Engine
}

// New создает песочницу; reg может быть nil
func New(opts Options, reg *prometheus.Registry, logger *logrus.Logger) *Server {
	l := ledger.New(opts.OTPTTL, logger)
	jwtMiddleware := middleware.NewJWTMiddleware(opts.JWTSecret, opts.JWTExpiration, logger)

	return &Server{
		Ledger: l,
		Router: SetupRouter(l, jwtMiddleware, reg, logger, opts),
	}
}

// OTP текущий код ожидающего перевода
func (s *Server) OTP(transactionID string) (string, bool) {
	return s.Ledger.OTP(transactionID)
}

// SetupRouter настраивает и возвращает роутер с всеми эндпоинтами
func SetupRouter(
	l *ledger.Ledger,
	jwtMiddleware *middleware.JWTMiddleware,
	reg *prometheus.Registry,
	logger *logrus.Logger,
	opts Options,
) *gin.Engine {
	if opts.GinMode != "" {
		gin.SetMode(opts.GinMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	if reg != nil {
		router.Use(middleware.Metrics(reg))
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authHandler := handlers.NewAuthHandler(l, jwtMiddleware, logger)
	walletHandler := handlers.NewWalletHandler(l, logger)
	cryptoHandler := handlers.NewCryptoHandler(l, logger)

	authPrefix, walletPrefix := "/auth", "/api/wallet"
	if opts.LegacyRoutes {
		authPrefix, walletPrefix = "/api/auth", "/wallet"
	}

	auth := router.Group(authPrefix)
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/resend-verification", authHandler.ResendVerification)
		auth.GET("/profile", jwtMiddleware.Auth(), authHandler.Profile)
	}

	wallet := router.Group(walletPrefix)
	wallet.Use(jwtMiddleware.Auth())
	{
		wallet.GET("/balance", walletHandler.GetBalance)
		wallet.POST("/topup", walletHandler.TopUp)
		wallet.GET("/transactions", walletHandler.GetTransactions)
		wallet.POST("/transfer", walletHandler.Transfer)
		wallet.POST("/transfer/confirm", walletHandler.ConfirmTransfer)
	}

	crypto := router.Group("/api/crypto")
	crypto.Use(jwtMiddleware.Auth())
	{
		crypto.GET("/balance", cryptoHandler.GetBalance)
		crypto.POST("/topup", cryptoHandler.TopUp)
		crypto.GET("/transactions", cryptoHandler.GetTransactions)
		crypto.POST("/send", cryptoHandler.Transfer)
		crypto.POST("/send/confirm", cryptoHandler.ConfirmTransfer)
	}

	return router
}
