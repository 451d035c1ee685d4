// Command ckms-admin wires the key management service's infrastructure and
// exposes its core operations through the ckms-admin CLI. There is no HTTP
// or gRPC surface: every operation the service exposes is reachable as a
// subcommand driven directly against the in-process CryptoFacade.
package main

import (
	"context"
	"log"
	"time"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/turtacn/ckms/cmd/cli"
	"github.com/turtacn/ckms/internal/application"
	"github.com/turtacn/ckms/internal/config"
	"github.com/turtacn/ckms/internal/domain/service"
	"github.com/turtacn/ckms/internal/infrastructure/audit"
	ckmscrypto "github.com/turtacn/ckms/internal/infrastructure/crypto"
	"github.com/turtacn/ckms/internal/infrastructure/kms"
	"github.com/turtacn/ckms/internal/infrastructure/monitoring"
	"github.com/turtacn/ckms/internal/infrastructure/persistence/postgres"
	ckmsredis "github.com/turtacn/ckms/internal/infrastructure/persistence/redis"
)

func main() {
	startupLogger, _ := monitoring.NewZapLogger(&config.LogConfig{Level: "info"})

	cfg, err := config.LoadConfig(startupLogger)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	appLogger, err := monitoring.NewZapLogger(&cfg.Log)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}

	tracer, err := monitoring.NewTracingManager(cfg, appLogger)
	if err != nil {
		appLogger.Fatal(context.Background(), "failed to initialize tracing", err)
	}
	defer tracer.Shutdown(context.Background())

	db, err := postgres.NewDBConnection(context.Background(), &cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal(context.Background(), "failed to connect to database", err)
	}

	aliasIndex := postgres.NewAliasIndexRepository(db)
	policyStore := postgres.NewPolicyStoreRepository(db)
	wrappedStore := postgres.NewWrappedKeyStoreRepository(db)
	klrRepo := postgres.NewKLRRepository(db)

	redisConn := ckmsredis.NewRedisConnection(&ckmsredis.Config{
		Mode:     ckmsredis.ModeStandalone,
		Host:     cfg.Redis.FirstHost(),
		Port:     cfg.Redis.FirstPort(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	}, appLogger)
	if err := redisConn.Connect(); err != nil {
		appLogger.Fatal(context.Background(), "failed to connect to redis", err)
	}
	cache := ckmsredis.NewPublicKeyCacheManager(redisConn, appLogger)

	var hsmVault service.HSMKeyVault
	switch cfg.Policy.HSMBackend {
	case "pkcs11":
		pkcs11Vault, err := kms.NewPKCS11Provider(cfg.PKCS11.LibraryPath, cfg.PKCS11.Pin, int(cfg.PKCS11.SlotID), appLogger)
		if err != nil {
			appLogger.Fatal(context.Background(), "failed to open pkcs11 module", err)
		}
		hsmVault = pkcs11Vault
	default:
		vaultClient, err := vaultapi.NewClient(&vaultapi.Config{Address: cfg.Vault.Address})
		if err != nil {
			appLogger.Fatal(context.Background(), "failed to create vault client", err)
		}
		vaultClient.SetToken(cfg.Vault.Token)
		hsmVault = kms.NewVaultProvider(vaultClient, cfg.Vault.KVMount, appLogger)
	}

	rsaCrypto := ckmscrypto.NewRSACrypto()
	certSrc := ckmscrypto.NewSelfSignedCertificateSource()

	klr, err := audit.NewKafkaProducer(cfg.Kafka, appLogger)
	if err != nil {
		appLogger.Fatal(context.Background(), "failed to create kafka producer", err)
	}
	var registry service.KeyLifecycleRegistry = audit.NewFanOutRegistry(appLogger, klr, klrRepo)
	if cfg.Policy.AuditSigningKey != "" {
		registry = audit.NewSignedRegistry(registry, cfg.Policy.AuditSigningKey)
	}

	metrics := monitoring.NewMetricsAdapter(monitoring.NewMetrics())

	resolver := application.NewKeyResolver(
		aliasIndex,
		policyStore,
		wrappedStore,
		hsmVault,
		rsaCrypto,
		rsaCrypto,
		certSrc,
		service.SystemClock{},
		registry,
		metrics,
		appLogger,
	)

	cacheTTL := time.Duration(cfg.Redis.CacheTTL) * time.Second
	facade := application.NewCryptoFacade(resolver, rsaCrypto, certSrc, service.SystemClock{}, registry, metrics, cache, cacheTTL, appLogger)

	cli.Bootstrap(facade, appLogger)
	cli.Execute()
}
